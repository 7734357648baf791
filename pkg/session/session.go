// Package session implements the durable session+message data model of
// spec.md §3/§6.2 (C6): a Session is the ordered, insertion-canonical
// message history of one conversation thread. Grounded on the message/
// session shape of goclaw's internal/sessions/manager.go (the closest
// pack analogue to a flat, file-persisted chat session — hector's own
// pkg/session is event/state-store shaped for its ADK-style runtime and
// doesn't fit spec.md's message-list model) and on hector's checkpoint
// storage for the atomic-write discipline.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Category classifies a Message for token-budget accounting (spec.md §3).
type Category string

const (
	CategorySystem     Category = "SYSTEM"
	CategoryContext    Category = "CONTEXT"
	CategoryDialog     Category = "DIALOG"
	CategoryToolResult Category = "TOOL_RESULT"
	CategoryReasoning  Category = "REASONING"
)

// PartType identifies one typed content part within a multi-part Message.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one typed content element. Either Text or ImageURL/ImageDataURI
// is set, matching its Type.
type Part struct {
	Type         PartType `json:"type"`
	Text         string   `json:"text,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	ImageDataURI string   `json:"image_data_uri,omitempty"`
}

// Message is one entry in a Session's ordered history (spec.md §3).
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text,omitempty"`
	Parts     []Part         `json:"parts,omitempty"`
	Category  Category       `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// ToolCallID is required for RoleTool messages unless the gateway
	// rewrites them to RoleAssistant before submission (spec.md §4.5.3).
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewMessage constructs a text Message with a fresh id and timestamp.
func NewMessage(role Role, text string, category Category) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Category:  category,
		Timestamp: time.Now(),
	}
}

// IsMultiPart reports whether this Message carries typed parts (vision)
// rather than a single plain-text body.
func (m Message) IsMultiPart() bool { return len(m.Parts) > 0 }

// Session is the durable, ordered record of one conversation thread
// (spec.md §3). Insertion order of Messages is canonical; mutate only
// through pkg/conversation.Manager, never directly, to preserve P1.
type Session struct {
	ID              string         `json:"id"`
	AgentID         string         `json:"agent_id"`
	ParentSessionID string         `json:"parent_session_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActiveAt    time.Time      `json:"last_active_at"`
	Title           string         `json:"title"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	SystemPrompt    string         `json:"system_prompt,omitempty"`
	Messages        []Message      `json:"messages"`
}

// New creates an empty Session for agentID.
func New(agentID string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		CreatedAt:    now,
		LastActiveAt: now,
		Metadata:     make(map[string]any),
	}
}

// Clone deep-copies the Session, used by pkg/checkpoint to produce
// value-semantics snapshots (spec.md P4/P5: rollback/branch independence).
func (s *Session) Clone() *Session {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		clone.Messages[i] = m
		if m.Metadata != nil {
			clone.Messages[i].Metadata = cloneMap(m.Metadata)
		}
		if m.Parts != nil {
			clone.Messages[i].Parts = append([]Part(nil), m.Parts...)
		}
	}
	clone.Metadata = cloneMap(s.Metadata)
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Summary is the lightweight listing shape returned by Store.List, which
// must not materialize full message bodies (spec.md §4.6).
type Summary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	MessageCount   int       `json:"message_count"`
	LastActiveAt   time.Time `json:"last_active_at"`
}
