// Package llms implements the LLM Gateway (spec.md §4.5, C5): one adapter per
// client preference behind a uniform Gateway contract, with message
// formatting, reasoning-parameter injection, vision encoding, and tool-call
// sanitization centralized so no adapter duplicates them. Grounded on
// hector's pkg/llms (types.go, anthropic.go/openai.go/ollama.go/gemini.go
// adapter shapes) generalized from hector's A2A-message wire format to
// spec.md's internal session.Message model.
package llms

import (
	"context"

	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/session"
)

// Message is the provider-wire message shape every adapter formats its
// request body from. It is distinct from session.Message: the gateway owns
// the translation between the two (spec.md §4.9 "shaped for submission").
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Images     []Image    `json:"-"`
}

// Image is a vision input, already normalized to either a pass-through URL
// or a resized/re-encoded base64 data URI (spec.md §4.5 step 1).
type Image struct {
	URL      string
	DataURI  string
	MimeType string
}

// ToolDefinition describes one callable tool in provider-agnostic JSON Schema
// form, passed through options.Tools.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	RawArgs   string
}

// ChunkTag distinguishes streamed content categories (spec.md §4.5 step 4).
type ChunkTag string

const (
	ChunkAssistant ChunkTag = "assistant"
	ChunkReasoning ChunkTag = "reasoning"
)

// StreamChunk is one unit of incremental output.
type StreamChunk struct {
	Tag  ChunkTag
	Text string
}

// StreamCallback receives chunks in provider order (spec.md §4.5 step 4).
type StreamCallback func(StreamChunk)

// Options configures one Gateway call (spec.md §4.5 "options include").
type Options struct {
	MaxOutputTokens int
	Temperature     float64
	Tools           []ToolDefinition
	ToolChoice      string
	Stream          bool
	StreamCallback  StreamCallback
}

// Response is the uniform result of one Gateway call.
type Response struct {
	// Text is the concatenation of all assistant-tagged chunks (spec.md §4.5
	// ordering guarantee: equals the return value regardless of stream mode).
	Text string
	// Reasoning is the concatenation of all reasoning-tagged chunks, persisted
	// by the caller as a REASONING-category message if non-empty.
	Reasoning  string
	ToolCalls  []ToolCall
	UsageTotal int
}

// Gateway is the uniform contract every provider adapter implements
// (spec.md §4.5). Generate runs in batch mode; Stream additionally invokes
// opts.StreamCallback as chunks arrive. Both honor ctx cancellation,
// aborting the underlying request cleanly (spec.md §4.5 step 6, P9).
//
// history is the raw Conversation Manager history (spec.md §4.9
// get_history(for_gateway=True)); each adapter calls FormatMessages itself
// with the system-hoisting behavior its provider requires, since that
// choice is provider-specific (hoisted for Anthropic and Gemini, inlined for
// the OpenAI-compatible adapters).
type Gateway interface {
	Generate(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error)
	Stream(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error)
}
