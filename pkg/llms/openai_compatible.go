package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/penguin-run/penguin/pkg/httpclient"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
)

// OpenAICompatible implements Gateway against any OpenAI-wire-compatible
// chat-completions endpoint. native/openai, native/ollama, openrouter, and
// litellm all construct one of these with a different BaseURL/ExtraHeaders
// set rather than duplicating request/response handling (spec.md §4.5:
// "openrouter and litellm ... reuse the OpenAI adapter's message formatting
// with a different base URL / header set"). Grounded on hector's
// pkg/llms/openai.go request/response shape, simplified from its Responses
// API to the more widely compatible chat/completions shape that ollama and
// openrouter both also implement.
type OpenAICompatible struct {
	BaseURL      string
	ExtraHeaders map[string]string
	HTTP         *httpclient.Client
	Component    string
}

// NewNativeOpenAI builds the native/openai adapter.
func NewNativeOpenAI(apiKey string) *OpenAICompatible {
	return &OpenAICompatible{
		BaseURL:      "https://api.openai.com/v1",
		ExtraHeaders: map[string]string{"Authorization": "Bearer " + apiKey},
		HTTP:         httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders)),
		Component:    "llms.openai",
	}
}

// NewNativeOllama builds the native/ollama adapter against a local daemon.
func NewNativeOllama(baseURL string) *OpenAICompatible {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return &OpenAICompatible{
		BaseURL:   baseURL,
		HTTP:      httpclient.New(),
		Component: "llms.ollama",
	}
}

// NewOpenRouter builds the openrouter adapter (spec.md §4.5; grounded on
// original_source/penguin/llm/provider_adapters.py).
func NewOpenRouter(apiKey string) *OpenAICompatible {
	return &OpenAICompatible{
		BaseURL: "https://openrouter.ai/api/v1",
		ExtraHeaders: map[string]string{
			"Authorization": "Bearer " + apiKey,
			"HTTP-Referer":  "https://penguin.run",
		},
		HTTP:      httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders)),
		Component: "llms.openrouter",
	}
}

// NewLiteLLM builds the litellm proxy adapter (grounded on
// original_source/penguin/llm/litellm_gateway.py).
func NewLiteLLM(baseURL, apiKey string) *OpenAICompatible {
	return &OpenAICompatible{
		BaseURL:      baseURL,
		ExtraHeaders: map[string]string{"Authorization": "Bearer " + apiKey},
		HTTP:         httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders)),
		Component:    "llms.litellm",
	}
}

type chatCompletionRequest struct {
	Model           string             `json:"model"`
	Messages        []openAIWireMsg    `json:"messages"`
	MaxTokens       int                `json:"max_tokens,omitempty"`
	Temperature     *float64           `json:"temperature,omitempty"`
	Stream          bool               `json:"stream,omitempty"`
	Tools           []openAIToolWire   `json:"tools,omitempty"`
	ToolChoice      string             `json:"tool_choice,omitempty"`
	ReasoningEffort string             `json:"reasoning_effort,omitempty"`
}

type openAIWireMsg struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	ToolCalls  []openAIToolCallOut `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	Name       string              `json:"name,omitempty"`
}

type openAIToolCallOut struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIToolWire struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAICompatible) buildRequest(spec *model.ModelSpec, messages []Message, opts Options, stream bool) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:     spec.ModelID,
		MaxTokens: opts.MaxOutputTokens,
		Stream:    stream,
	}
	if AllowTemperature(spec) {
		t := opts.Temperature
		req.Temperature = &t
	}
	reasoning := BuildReasoningParams(spec)
	if reasoning.Effort != "" {
		req.ReasoningEffort = reasoning.Effort
	}
	if opts.ToolChoice != "" {
		req.ToolChoice = opts.ToolChoice
	}
	for _, t := range opts.Tools {
		tw := openAIToolWire{Type: "function"}
		tw.Function.Name = t.Name
		tw.Function.Description = t.Description
		tw.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, tw)
	}
	for _, m := range messages {
		wm := openAIWireMsg{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			out := openAIToolCallOut{ID: tc.ID, Type: "function"}
			out.Function.Name = tc.Name
			out.Function.Arguments = tc.RawArgs
			wm.ToolCalls = append(wm.ToolCalls, out)
		}
		req.Messages = append(req.Messages, wm)
	}
	return req
}

func (o *OpenAICompatible) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range o.ExtraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Generate runs one non-streaming call.
func (o *OpenAICompatible) Generate(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	messages, _ := FormatMessages(history, false)
	reqBody := o.buildRequest(spec, messages, opts, false)
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, perrors.NewInvalidRequestError(o.Component, "marshaling request", err)
	}

	httpReq, err := o.newHTTPRequest(ctx, data)
	if err != nil {
		return Response{}, perrors.NewNetworkError(o.Component, "building request", err)
	}

	resp, err := o.HTTP.Do(ctx, httpReq, o.Component)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, perrors.NewProviderError(o.Component, "decoding response", resp.StatusCode, err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, perrors.NewProviderError(o.Component, "empty choices in response", resp.StatusCode, nil)
	}

	out := Response{Text: parsed.Choices[0].Message.Content, UsageTotal: parsed.Usage.TotalTokens}
	for _, tc := range parsed.Choices[0].Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: args, RawArgs: tc.Function.Arguments,
		})
	}
	return out, nil
}

type sseDelta struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Stream runs a server-sent-events call, invoking opts.StreamCallback as
// chunks arrive (spec.md §4.5 step 4).
func (o *OpenAICompatible) Stream(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	messages, _ := FormatMessages(history, false)
	reqBody := o.buildRequest(spec, messages, opts, true)
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, perrors.NewInvalidRequestError(o.Component, "marshaling request", err)
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	httpReq, err := o.newHTTPRequest(streamCtx, data)
	if err != nil {
		return Response{}, perrors.NewNetworkError(o.Component, "building request", err)
	}

	resp, err := o.HTTP.Do(ctx, httpReq, o.Component)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	watchdog := newIdleWatchdog(cancelStream)
	defer watchdog.Stop()

	var out Response
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		watchdog.Touch()
		if ctx.Err() != nil {
			return out, perrors.NewInterruptedError(o.Component, "stream cancelled")
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var delta sseDelta
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			continue
		}
		if delta.Usage.TotalTokens > 0 {
			out.UsageTotal = delta.Usage.TotalTokens
		}
		for _, c := range delta.Choices {
			if c.Delta.ReasoningContent != "" {
				out.Reasoning += c.Delta.ReasoningContent
				emit(opts, StreamChunk{Tag: ChunkReasoning, Text: c.Delta.ReasoningContent})
			}
			if c.Delta.Content != "" {
				out.Text += c.Delta.Content
				emit(opts, StreamChunk{Tag: ChunkAssistant, Text: c.Delta.Content})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return out, perrors.NewNetworkError(o.Component, "stream idle timeout exceeded (30s)", err)
		}
		return out, perrors.NewNetworkError(o.Component, "reading stream", err)
	}
	return out, nil
}

func emit(opts Options, chunk StreamChunk) {
	if opts.StreamCallback != nil {
		opts.StreamCallback(chunk)
	}
}
