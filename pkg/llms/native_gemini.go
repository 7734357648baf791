package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/penguin-run/penguin/pkg/httpclient"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
)

// Gemini implements Gateway against the Google Gemini generateContent API.
// Grounded on hector's pkg/llms/gemini.go (contents/parts shape, system
// instruction as a separate top-level field, API key as a query parameter).
type Gemini struct {
	BaseURL   string
	APIKey    string
	HTTP      *httpclient.Client
	Component string
}

// NewGemini builds the native/gemini adapter.
func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		BaseURL:   "https://generativelanguage.googleapis.com/v1beta",
		APIKey:    apiKey,
		HTTP:      httpclient.New(httpclient.WithHeaderParser(httpclient.ParseGeminiHeaders)),
		Component: "llms.gemini",
	}
}

type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResp `json:"functionResponse,omitempty"`
}

type geminiFuncCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFuncResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	Temperature     *float64              `json:"temperature,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

// geminiThinkingConfig requests a thinking-token budget for Gemini's
// max_tokens-style reasoning models (spec.md §4.5 step 2; DetectReasoningStyle
// classifies Gemini 2.5/"thinking" models as ReasoningMaxTokens, grounded on
// original_source/penguin/llm/model_config.py:167-170).
type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig  `json:"generationConfig"`
	Tools             []geminiToolDecl        `json:"tools,omitempty"`
}

type geminiToolDecl struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations"`
}

type geminiFuncDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// geminiRole maps the internal role onto Gemini's "user"/"model" pair;
// Gemini has no "assistant" or "tool" role.
func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func toGeminiContents(messages []Message) []geminiContent {
	var out []geminiContent
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "tool":
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{
				{FunctionResponse: &geminiFuncResp{Name: m.Name, Response: map[string]any{"result": m.Content}}},
			}})
		case "assistant":
			var parts []geminiPart
			if m.Content != "" {
				parts = append(parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, geminiPart{FunctionCall: &geminiFuncCall{Name: tc.Name, Args: tc.Arguments}})
			}
			out = append(out, geminiContent{Role: "model", Parts: parts})
		default:
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	return out
}

func (g *Gemini) buildRequest(spec *model.ModelSpec, messages []Message, systemPrompt string, opts Options) geminiRequest {
	req := geminiRequest{
		Contents: toGeminiContents(messages),
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	if AllowTemperature(spec) {
		t := opts.Temperature
		req.GenerationConfig.Temperature = &t
	}
	reasoning := BuildReasoningParams(spec)
	if reasoning.MaxTokens > 0 {
		req.GenerationConfig.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: reasoning.MaxTokens}
	}
	if len(opts.Tools) > 0 {
		decl := geminiToolDecl{}
		for _, t := range opts.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, geminiFuncDecl{
				Name: t.Name, Description: t.Description, Parameters: t.Parameters,
			})
		}
		req.Tools = []geminiToolDecl{decl}
	}
	return req
}

func (g *Gemini) endpoint(modelID string, stream bool) string {
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	return fmt.Sprintf("%s/models/%s:%s?key=%s&alt=sse", g.BaseURL, modelID, method, g.APIKey)
}

// Generate runs one non-streaming call.
func (g *Gemini) Generate(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	messages, systemPrompt := FormatMessages(history, true)
	reqBody := g.buildRequest(spec, messages, systemPrompt, opts)
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, perrors.NewInvalidRequestError(g.Component, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(spec.ModelID, false), bytes.NewReader(data))
	if err != nil {
		return Response{}, perrors.NewNetworkError(g.Component, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(ctx, httpReq, g.Component)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, perrors.NewProviderError(g.Component, "decoding response", resp.StatusCode, err)
	}
	if len(parsed.Candidates) == 0 {
		return Response{}, perrors.NewProviderError(g.Component, "empty candidates in response", resp.StatusCode, nil)
	}

	out := Response{UsageTotal: parsed.UsageMetadata.TotalTokenCount}
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Text += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args})
		}
	}
	return out, nil
}

// Stream runs a server-sent-events call (Gemini's alt=sse mode). The text
// parts of each event are treated as the next increment: appended to the
// running text and emitted as one chunk each.
func (g *Gemini) Stream(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	messages, systemPrompt := FormatMessages(history, true)
	reqBody := g.buildRequest(spec, messages, systemPrompt, opts)
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, perrors.NewInvalidRequestError(g.Component, "marshaling request", err)
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, g.endpoint(spec.ModelID, true), bytes.NewReader(data))
	if err != nil {
		return Response{}, perrors.NewNetworkError(g.Component, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(ctx, httpReq, g.Component)
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
			return out, perrors.NewInterruptedError(g.Component, "stream cancelled")
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}
		if chunk.UsageMetadata.TotalTokenCount > 0 {
			out.UsageTotal = chunk.UsageMetadata.TotalTokenCount
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				out.Text += part.Text
				emit(opts, StreamChunk{Tag: ChunkAssistant, Text: part.Text})
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, ToolCall{Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return out, perrors.NewNetworkError(g.Component, "stream idle timeout exceeded (30s)", err)
		}
		return out, perrors.NewNetworkError(g.Component, "reading stream", err)
	}
	return out, nil
}
