// Package eventbus implements the in-process pub/sub bus described in
// spec.md §4.2. Hector has no direct analogue (agents there talk over A2A's
// typed Event struct, not a subscriber bus); this package borrows hector's
// generic-registry-style concurrency discipline (pkg/registry) and the
// Event field shapes of hector/pkg/agent/event.go, built out into a
// priority-ordered publish/subscribe bus.
package eventbus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Priority orders handler invocation within a single publish.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// Type identifies one of the stable event kinds from spec.md §3/§6.4.
type Type string

const (
	TypeMessage          Type = "MESSAGE"
	TypeStreamChunk      Type = "STREAM_CHUNK"
	TypeStreamEnd        Type = "STREAM_END"
	TypeToolCall         Type = "TOOL_CALL"
	TypeToolResult       Type = "TOOL_RESULT"
	TypeTaskStarted      Type = "TASK_STARTED"
	TypeTaskProgressed   Type = "TASK_PROGRESSED"
	TypeTaskCompleted    Type = "TASK_COMPLETED"
	TypeTaskFailed       Type = "TASK_FAILED"
	TypeTaskNeedsInput   Type = "TASK_NEEDS_INPUT"
	TypeCheckpointCreated Type = "CHECKPOINT_CREATED"
	TypeTruncation       Type = "TRUNCATION"
	TypeModelChanged     Type = "MODEL_CHANGED"
	TypeInterrupted      Type = "INTERRUPTED"
)

// Event is the envelope delivered to handlers.
type Event struct {
	Type     Type
	Payload  any
	Priority Priority
}

// Handler processes one Event. Handlers must not block indefinitely; a
// handler that blocks delays every other handler for the same publish
// because deliveries for one Publish call complete before it returns
// (spec.md §4.2 ordering guarantee).
type Handler func(ctx context.Context, ev Event)

// Subscription is an opaque handle returned by Subscribe, used to Unsubscribe.
type Subscription struct {
	id        uint64
	eventType Type
}

// defaultMaxPublishDepth bounds re-entrant publish-from-handler recursion
// (spec.md §4.2: "a per-publish depth limit (default 16) guards against
// loops").
const defaultMaxPublishDepth = 16

type depthKey struct{}

type entry struct {
	id       uint64
	priority Priority
	seq      uint64
	handler  Handler
}

// Bus is a single process-wide pub/sub instance. The zero value is not
// usable; construct with New.
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[Type][]entry
	nextID         uint64
	nextSeq        uint64
	maxPublishDepth int
	logger         *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxPublishDepth overrides the default re-entrancy guard depth.
func WithMaxPublishDepth(depth int) Option {
	return func(b *Bus) { b.maxPublishDepth = depth }
}

// WithLogger overrides the logger used to report recovered handler panics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers:     make(map[Type][]entry),
		maxPublishDepth: defaultMaxPublishDepth,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for eventType at the given priority. Handlers
// for one event type are invoked HIGH before NORMAL before LOW; within one
// priority tier, in subscription order (spec.md §4.2 P8).
func (b *Bus) Subscribe(eventType Type, priority Priority, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.nextSeq++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], entry{
		id:       id,
		priority: priority,
		seq:      b.nextSeq,
		handler:  handler,
	})

	return &Subscription{id: id, eventType: eventType}
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subscribers[sub.eventType]
	for i, e := range entries {
		if e.id == sub.id {
			b.subscribers[sub.eventType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every handler subscribed to eventType, in
// priority order, and blocks until all handlers have returned (spec.md §4.2:
// "Deliveries for one publish call complete before it returns"). Handler
// panics are recovered and logged; they never interrupt other handlers.
func (b *Bus) Publish(ctx context.Context, eventType Type, payload any, priority Priority) {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= b.maxPublishDepth {
		b.logger.Warn("eventbus: max publish depth exceeded, dropping publish",
			"event_type", eventType, "depth", depth)
		return
	}
	nextCtx := context.WithValue(ctx, depthKey{}, depth+1)

	b.mu.RLock()
	entries := make([]entry, len(b.subscribers[eventType]))
	copy(entries, b.subscribers[eventType])
	b.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority // HIGH(2) before NORMAL(1) before LOW(0)
		}
		return entries[i].seq < entries[j].seq
	})

	ev := Event{Type: eventType, Payload: payload, Priority: priority}
	for _, e := range entries {
		b.invoke(nextCtx, e.handler, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: handler panicked", "event_type", ev.Type, "panic", r)
		}
	}()
	handler(ctx, ev)
}

// ClearAll removes every subscription from the bus.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = make(map[Type][]entry)
}
