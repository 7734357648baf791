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

// Anthropic implements Gateway against the Anthropic Messages API. Grounded
// on hector's pkg/llms/anthropic.go (system hoisted to a top-level field,
// x-api-key auth, content-block response shape).
type Anthropic struct {
	BaseURL   string
	APIKey    string
	HTTP      *httpclient.Client
	Component string
}

const anthropicVersion = "2023-06-01"

// NewAnthropic builds the native/anthropic adapter.
func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{
		BaseURL:   "https://api.anthropic.com/v1",
		APIKey:    apiKey,
		HTTP:      httpclient.New(httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders)),
		Component: "llms.anthropic",
	}
}

type anthropicMsg struct {
	Role    string               `json:"role"`
	Content []anthropicContent   `json:"content"`
}

type anthropicContent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
}

type anthropicRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []anthropicMsg `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// toAnthropicMessages converts wire Messages into Anthropic's content-block
// shape, folding role "tool" into a user message carrying a tool_result
// block (Anthropic has no "tool" role) and role "system" into nothing (the
// caller must have hoisted system text out via FormatMessages).
func toAnthropicMessages(messages []Message) []anthropicMsg {
	var out []anthropicMsg
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "tool":
			out = append(out, anthropicMsg{Role: "user", Content: []anthropicContent{
				{Type: "tool_result", ToolUseID: m.ToolCallID, Text: m.Content},
			}})
		case "assistant":
			blocks := []anthropicContent{}
			if m.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			out = append(out, anthropicMsg{Role: "assistant", Content: blocks})
		default:
			out = append(out, anthropicMsg{Role: "user", Content: []anthropicContent{{Type: "text", Text: m.Content}}})
		}
	}
	return out
}

func (a *Anthropic) buildRequest(spec *model.ModelSpec, messages []Message, systemPrompt string, opts Options, stream bool) anthropicRequest {
	req := anthropicRequest{
		Model:     spec.ModelID,
		System:    systemPrompt,
		Messages:  toAnthropicMessages(messages),
		MaxTokens: opts.MaxOutputTokens,
		Stream:    stream,
	}
	if AllowTemperature(spec) {
		t := opts.Temperature
		req.Temperature = &t
	}
	reasoning := BuildReasoningParams(spec)
	if reasoning.MaxTokens > 0 {
		req.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: reasoning.MaxTokens}
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return req
}

func (a *Anthropic) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

// Generate runs one non-streaming call (spec.md §4.5).
func (a *Anthropic) Generate(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	wire, systemPrompt := FormatMessages(history, true)
	reqBody := a.buildRequest(spec, wire, systemPrompt, opts, false)
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, perrors.NewInvalidRequestError(a.Component, "marshaling request", err)
	}

	httpReq, err := a.newHTTPRequest(ctx, data)
	if err != nil {
		return Response{}, perrors.NewNetworkError(a.Component, "building request", err)
	}

	resp, err := a.HTTP.Do(ctx, httpReq, a.Component)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, perrors.NewProviderError(a.Component, "decoding response", resp.StatusCode, err)
	}

	out := Response{UsageTotal: parsed.Usage.InputTokens + parsed.Usage.OutputTokens}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "thinking":
			out.Reasoning += block.Text
		case "tool_use":
			args, _ := block.Input.(map[string]any)
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	return out, nil
}

type anthropicSSEEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Stream runs a server-sent-events call over Anthropic's streaming format.
func (a *Anthropic) Stream(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	wire, systemPrompt := FormatMessages(history, true)
	reqBody := a.buildRequest(spec, wire, systemPrompt, opts, true)
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, perrors.NewInvalidRequestError(a.Component, "marshaling request", err)
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	httpReq, err := a.newHTTPRequest(streamCtx, data)
	if err != nil {
		return Response{}, perrors.NewNetworkError(a.Component, "building request", err)
	}

	resp, err := a.HTTP.Do(ctx, httpReq, a.Component)
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
			return out, perrors.NewInterruptedError(a.Component, "stream cancelled")
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev anthropicSSEEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		if ev.Usage.OutputTokens > 0 {
			out.UsageTotal = ev.Usage.OutputTokens
		}
		switch ev.Delta.Type {
		case "thinking_delta":
			out.Reasoning += ev.Delta.Text
			emit(opts, StreamChunk{Tag: ChunkReasoning, Text: ev.Delta.Text})
		case "text_delta":
			out.Text += ev.Delta.Text
			emit(opts, StreamChunk{Tag: ChunkAssistant, Text: ev.Delta.Text})
		}
	}
	if err := scanner.Err(); err != nil {
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return out, perrors.NewNetworkError(a.Component, "stream idle timeout exceeded (30s)", err)
		}
		return out, perrors.NewNetworkError(a.Component, "reading stream", err)
	}
	return out, nil
}
