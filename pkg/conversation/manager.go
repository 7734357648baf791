// Package conversation implements the per-agent Conversation Manager
// (spec.md §4.9, C9): it owns one Session, one ContextWindow, and one
// CheckpointManager, and is the only path through which a Session's
// message list is mutated (preserving P1 append ordering). Grounded on
// hector's pkg/agent.ContextManager composition style (token counter +
// history policy wired together behind one facade) adapted to own a
// concrete Session/Window/CheckpointManager triple instead of hector's
// selection-strategy pipeline.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/penguin-run/penguin/pkg/checkpoint"
	"github.com/penguin-run/penguin/pkg/ctxwindow"
	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/session"
)

// Options configures a new Manager.
type Options struct {
	AgentID   string
	Window    *ctxwindow.Window
	Store     session.Store
	Bus       *eventbus.Bus
	Retention checkpoint.RetentionConfig

	// Shared, when non-nil, makes this Manager append to the SAME
	// *session.Session as Shared — spec.md §4.9 "Shared sessions": when
	// agents share a session, add_message appends to the parent's session.
	Shared *Manager
	// ShareContextWindow, only meaningful with Shared set, reuses Shared's
	// Window instead of the one passed in Options.Window, so both agents
	// observe the same trim state.
	ShareContextWindow bool
}

// Manager is the sole mutator of its Session (spec.md P1/P2).
type Manager struct {
	sess        *session.Session
	window      *ctxwindow.Window
	checkpoints *checkpoint.Manager
	store       session.Store
	bus         *eventbus.Bus
	mu          *sync.Mutex // shared across agents sharing one session
}

// New creates a Manager owning a fresh Session for agentID, or sharing an
// existing one per Options.Shared.
func New(opts Options) *Manager {
	var sess *session.Session
	var mu *sync.Mutex
	var window *ctxwindow.Window

	if opts.Shared != nil {
		sess = opts.Shared.sess
		mu = opts.Shared.mu
		if opts.ShareContextWindow {
			window = opts.Shared.window
		} else {
			window = opts.Window
		}
	} else {
		sess = session.New(opts.AgentID)
		mu = &sync.Mutex{}
		window = opts.Window
	}

	return &Manager{
		sess:        sess,
		window:      window,
		checkpoints: checkpoint.NewManager(opts.Retention, opts.Bus),
		store:       opts.Store,
		bus:         opts.Bus,
		mu:          mu,
	}
}

// Session returns the live, owned Session. Callers must not mutate it
// directly; go through Manager's methods instead.
func (m *Manager) Session() *session.Session { return m.sess }

// AddMessage appends a new Message, trims the context window, may take an
// AUTO checkpoint, and publishes a MESSAGE event (spec.md §4.9). If the
// window can no longer fit even the protected messages, the append still
// happens (P1 holds unconditionally) but a ContextLengthExceededError is
// returned alongside the appended message.
func (m *Manager) AddMessage(role session.Role, text string, category session.Category, metadata map[string]any) (session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := session.NewMessage(role, text, category)
	msg.Metadata = metadata
	m.sess.Messages = append(m.sess.Messages, msg)
	m.sess.LastActiveAt = time.Now()
	idx := len(m.sess.Messages) - 1

	trimErr := m.window.Trim(m.sess)

	if m.bus != nil {
		m.bus.Publish(context.Background(), eventbus.TypeMessage, map[string]any{
			"role": msg.Role, "content": msg.Text, "category": msg.Category, "metadata": msg.Metadata,
		}, eventbus.Normal)
	}

	if m.checkpoints.ShouldCheckpoint(idx) {
		m.checkpoints.Create(m.sess, checkpoint.TypeAuto, "", "")
	}

	return msg, trimErr
}

// AddImageMessage appends a multi-part (vision) Message.
func (m *Manager) AddImageMessage(role session.Role, parts []session.Part, category session.Category, metadata map[string]any) (session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := session.Message{
		ID: session.NewMessage(role, "", category).ID, Role: role, Parts: parts,
		Category: category, Timestamp: time.Now(), Metadata: metadata,
	}
	m.sess.Messages = append(m.sess.Messages, msg)
	m.sess.LastActiveAt = time.Now()

	trimErr := m.window.Trim(m.sess)
	if m.bus != nil {
		m.bus.Publish(context.Background(), eventbus.TypeMessage, map[string]any{
			"role": msg.Role, "category": msg.Category, "metadata": msg.Metadata,
		}, eventbus.Normal)
	}
	return msg, trimErr
}

// SetSystemPrompt replaces the single SYSTEM-category message, enforcing
// the uniqueness invariant P2 by removing any pre-existing SYSTEM messages
// before inserting the new one at the front.
func (m *Manager) SetSystemPrompt(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sess.SystemPrompt = text

	kept := m.sess.Messages[:0:0]
	for _, msg := range m.sess.Messages {
		if msg.Category != session.CategorySystem {
			kept = append(kept, msg)
		}
	}
	sysMsg := session.NewMessage(session.RoleSystem, text, session.CategorySystem)
	m.sess.Messages = append([]session.Message{sysMsg}, kept...)
}

// GetHistory returns a copy of the message list. forGateway is accepted to
// match spec.md §4.9's signature; system hoisting and tool-message
// rewriting for a specific provider are the gateway's responsibility
// (spec.md §4.5.3), not the Conversation Manager's.
func (m *Manager) GetHistory(forGateway bool) []session.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = forGateway
	out := make([]session.Message, len(m.sess.Messages))
	copy(out, m.sess.Messages)
	return out
}

// Reset clears the session and starts a fresh one, preserving AgentID.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	agentID := m.sess.AgentID
	now := time.Now()
	*m.sess = *session.New(agentID)
	m.sess.CreatedAt = now
	m.sess.LastActiveAt = now
}

// Load replaces this Manager's live session with the one stored under id.
func (m *Manager) Load(id string) error {
	loaded, err := m.store.Load(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.sess = *loaded
	return nil
}

// Save persists the live session.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Save(m.sess)
}

// Delete removes the persisted session with id (not necessarily the live one).
func (m *Manager) Delete(id string) error {
	return m.store.Delete(id)
}

// GetTokenUsage reports the live token accounting (spec.md §4.9).
func (m *Manager) GetTokenUsage() ctxwindow.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.TokenUsage(m.sess)
}

// Checkpoints exposes the owned CheckpointManager for pkg/core's
// checkpoint passthrough operations (create/list/rollback/branch).
func (m *Manager) Checkpoints() *checkpoint.Manager { return m.checkpoints }

// Window exposes the owned ContextWindow, e.g. for pkg/core.LoadModel to
// Rebind it to a new ModelSpec.
func (m *Manager) Window() *ctxwindow.Window { return m.window }
