// Package core implements the Agent Registry / Core Facade (spec.md §4.11,
// C11): the multi-agent roster, persona application, and the single
// external entry point a host (cmd/penguin or any other frontend) drives
// the whole stack through. Grounded on hector's pkg/runtime/runtime.go
// multi-agent roster and atomic-reload pattern (functional Option wiring,
// a registry of built agents, one "active" pointer), generalized from
// hector's config-driven agent build to spec.md's explicit register_agent/
// create_sub_agent/set_active_agent API, and on pkg/registry.BaseRegistry
// for the roster itself (the same generic table pkg/llms and pkg/tool use).
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/penguin-run/penguin/pkg/action"
	"github.com/penguin-run/penguin/pkg/checkpoint"
	"github.com/penguin-run/penguin/pkg/conversation"
	"github.com/penguin-run/penguin/pkg/ctxwindow"
	"github.com/penguin-run/penguin/pkg/engine"
	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/llms"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/registry"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/penguin-run/penguin/pkg/tool"
)

// Persona is a declarative agent-behavior bundle (spec.md §4.11): applied at
// registration, and again whenever LoadModel invokes the same ModelOverride
// path.
type Persona struct {
	SystemPrompt          string
	DefaultToolsWhitelist []string
	ModelOverride         string
	ContextBudgetOverride map[session.Category]float64
}

// AgentEntry is one roster row: a live Engine bound to its own (or shared)
// Conversation Manager, plus the persona/model id it was registered with.
type AgentEntry struct {
	ID       string
	ParentID string
	ModelID  string
	Persona  Persona

	Engine *engine.Engine
	Conv   *conversation.Manager
}

// Options configures a new Core.
type Options struct {
	Bus        *eventbus.Bus
	Store      session.Store
	Dispatcher *tool.Dispatcher
	Gateways   *llms.Registry
	// ModelSpecs maps a configured model id to its capability descriptor
	// (spec.md §6.1 model_configs.<id>). RegisterAgent resolves ModelID
	// through this table; LoadModel re-resolves it the same way.
	ModelSpecs map[string]*model.ModelSpec
	// DefaultModelID is used when RegisterAgent's ModelID is empty.
	DefaultModelID string
	Retention      checkpoint.RetentionConfig
	Counter        ctxwindow.Counter
}

// Core is the single facade a host drives the whole stack through
// (spec.md §4.11).
type Core struct {
	mu       sync.RWMutex
	agents   *registry.BaseRegistry[*AgentEntry]
	activeID string

	bus        *eventbus.Bus
	store      session.Store
	dispatcher *tool.Dispatcher
	gateways   *llms.Registry
	modelSpecs map[string]*model.ModelSpec
	defaultModelID string
	retention  checkpoint.RetentionConfig
	counter    ctxwindow.Counter
}

// New creates an empty Core with no registered agents.
func New(opts Options) *Core {
	counter := opts.Counter
	if counter == nil {
		counter = ctxwindow.EstimatorCounter{}
	}
	return &Core{
		agents:         registry.NewBaseRegistry[*AgentEntry](),
		bus:            opts.Bus,
		store:          opts.Store,
		dispatcher:     opts.Dispatcher,
		gateways:       opts.Gateways,
		modelSpecs:     opts.ModelSpecs,
		defaultModelID: opts.DefaultModelID,
		retention:      opts.Retention,
		counter:        counter,
	}
}

// RegisterOptions configures RegisterAgent.
type RegisterOptions struct {
	ID           string
	Persona      Persona
	ModelID      string
	DefaultTools []string
	Activate     bool

	// ParentID, when non-empty, links this agent to an existing one. Shared
	// session/context-window plumbing is meaningful only with ParentID set.
	ParentID           string
	ShareSession       bool
	ShareContextWindow bool
}

// RegisterAgent creates a session, a Conversation Manager, and an Engine for
// a new roster entry, applies the persona, and optionally activates it
// (spec.md §4.11 register_agent).
func (c *Core) RegisterAgent(opts RegisterOptions) (*AgentEntry, error) {
	if opts.ID == "" {
		return nil, perrors.NewConfigError("core", "agent id cannot be empty", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.agents.Get(opts.ID); exists {
		return nil, perrors.NewConfigError("core", fmt.Sprintf("agent %q already registered", opts.ID), nil)
	}

	var parent *AgentEntry
	if opts.ParentID != "" {
		p, ok := c.agents.Get(opts.ParentID)
		if !ok {
			return nil, perrors.NewConfigError("core", fmt.Sprintf("parent agent %q not found", opts.ParentID), nil)
		}
		parent = p
	}

	modelID := opts.ModelID
	if modelID == "" {
		modelID = opts.Persona.ModelOverride
	}
	if modelID == "" {
		modelID = c.defaultModelID
	}
	spec, ok := c.modelSpecs[modelID]
	if !ok {
		return nil, perrors.NewConfigError("core", fmt.Sprintf("unknown model id %q", modelID), nil)
	}

	gw, err := c.gateways.Resolve(spec)
	if err != nil {
		return nil, err
	}

	window := ctxwindow.New(spec, c.counter, c.bus)
	if opts.Persona.ContextBudgetOverride != nil {
		window = window.WithBudgets(opts.Persona.ContextBudgetOverride)
	}

	convOpts := conversation.Options{
		AgentID:   opts.ID,
		Window:    window,
		Store:     c.store,
		Bus:       c.bus,
		Retention: c.retention,
	}
	if parent != nil && opts.ShareSession {
		convOpts.Shared = parent.Conv
		convOpts.ShareContextWindow = opts.ShareContextWindow
	}
	conv := conversation.New(convOpts)

	if opts.Persona.SystemPrompt != "" {
		conv.SetSystemPrompt(opts.Persona.SystemPrompt)
	}

	whitelist := map[string]bool{}
	for _, name := range opts.DefaultTools {
		whitelist[name] = true
	}
	for _, name := range opts.Persona.DefaultToolsWhitelist {
		whitelist[name] = true
	}

	eng := engine.New(engine.Options{
		Gateway:       gw,
		Spec:          spec,
		Conv:          conv,
		Dispatcher:    c.dispatcher,
		Bus:           c.bus,
		ActionOptions: action.Options{Whitelist: whitelist},
	})

	entry := &AgentEntry{
		ID: opts.ID, ParentID: opts.ParentID, ModelID: modelID, Persona: opts.Persona,
		Engine: eng, Conv: conv,
	}
	if err := c.agents.Register(opts.ID, entry); err != nil {
		return nil, perrors.NewConfigError("core", "registering agent", err)
	}

	if opts.Activate || c.activeID == "" {
		c.activeID = opts.ID
	}

	return entry, nil
}

// CreateSubAgent is a convenience wrapper enforcing parentID exists before
// delegating to RegisterAgent (spec.md §4.11 create_sub_agent).
func (c *Core) CreateSubAgent(id, parentID string, opts RegisterOptions) (*AgentEntry, error) {
	if parentID == "" {
		return nil, perrors.NewConfigError("core", "create_sub_agent requires a parent id", nil)
	}
	opts.ID = id
	opts.ParentID = parentID
	return c.RegisterAgent(opts)
}

// SetActiveAgent switches the active-agent pointer (spec.md §4.11).
func (c *Core) SetActiveAgent(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.agents.Get(id); !ok {
		return perrors.NewConfigError("core", fmt.Sprintf("agent %q not found", id), nil)
	}
	c.activeID = id
	return nil
}

// ActiveAgentID returns the id of the currently active agent.
func (c *Core) ActiveAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// RemoveAgent deregisters id, refusing to remove the last remaining agent
// (spec.md §4.11). If id was active, another registered agent (arbitrary,
// registration order) becomes active.
func (c *Core) RemoveAgent(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.agents.Count() <= 1 {
		return perrors.NewConfigError("core", "cannot remove the last agent", nil)
	}
	if _, ok := c.agents.Get(id); !ok {
		return perrors.NewConfigError("core", fmt.Sprintf("agent %q not found", id), nil)
	}
	if err := c.agents.Remove(id); err != nil {
		return perrors.NewConfigError("core", "removing agent", err)
	}

	if c.activeID == id {
		c.activeID = ""
		for _, name := range c.agents.Names() {
			c.activeID = name
			break
		}
	}
	return nil
}

func (c *Core) resolveAgent(id string) (*AgentEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id == "" {
		id = c.activeID
	}
	entry, ok := c.agents.Get(id)
	if !ok {
		return nil, perrors.NewConfigError("core", fmt.Sprintf("agent %q not found", id), nil)
	}
	return entry, nil
}

// ProcessOptions configures Process.
type ProcessOptions struct {
	// AgentID selects the roster entry; empty means the active agent.
	AgentID        string
	Streaming      bool
	StreamCallback llms.StreamCallback
	// MaxIterations bounds the underlying Engine.RunTask call. <= 0 means a
	// single step's worth of tool-dispatch turns (1): process is "one user
	// turn round trip" (spec.md's cmd/penguin process subcommand), not an
	// open-ended task run — use StartRunMode for that.
	MaxIterations int
}

// ProcessResult is the outcome of one Process call (spec.md §4.11).
type ProcessResult struct {
	AssistantResponse string
	ActionResults     []tool.Result
	Iterations        int
}

// Process binds the target conversation, enqueues the user message, and
// runs the Engine for one bounded turn, returning the final assistant text
// and every tool result produced along the way (spec.md §4.11 process).
func (c *Core) Process(ctx context.Context, input string, opts ProcessOptions) (ProcessResult, error) {
	entry, err := c.resolveAgent(opts.AgentID)
	if err != nil {
		return ProcessResult{}, err
	}

	entry.Engine.SetGenOptions(llms.Options{Stream: opts.Streaming, StreamCallback: opts.StreamCallback})

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}

	result, err := entry.Engine.RunTask(ctx, input, maxIterations)
	return ProcessResult{
		AssistantResponse: result.Response.Text,
		ActionResults:     result.ActionResults,
		Iterations:        result.Iterations,
	}, err
}

// RunOptions configures StartRunMode.
type RunOptions struct {
	AgentID        string
	Streaming      bool
	StreamCallback llms.StreamCallback
	// MaxIterations bounds a sentinel-driven multi-step task run. <= 0 uses
	// the Engine's configured default (engine.DefaultMaxIterations).
	MaxIterations int
}

// StartRunMode runs the open-ended multi-step task protocol to completion
// (or until one of Engine.RunTask's stop conditions fires), the mode behind
// cmd/penguin's run subcommand (spec.md §4.11 "runs Engine ... multi-step
// depending on mode").
func (c *Core) StartRunMode(ctx context.Context, input string, opts RunOptions) (ProcessResult, error) {
	entry, err := c.resolveAgent(opts.AgentID)
	if err != nil {
		return ProcessResult{}, err
	}

	entry.Engine.SetGenOptions(llms.Options{Stream: opts.Streaming, StreamCallback: opts.StreamCallback})

	result, err := entry.Engine.RunTask(ctx, input, opts.MaxIterations)
	return ProcessResult{
		AssistantResponse: result.Response.Text,
		ActionResults:     result.ActionResults,
		Iterations:        result.Iterations,
	}, err
}

// LoadModel atomically swaps the active agent's ModelSpec, re-resolves its
// Gateway, and reconfigures its ContextWindow (spec.md §4.11 load_model).
// Messages are preserved; Window.Rebind may change category budgets enough
// to trigger a trim pass on the next AddMessage.
func (c *Core) LoadModel(agentID, modelID string) error {
	entry, err := c.resolveAgent(agentID)
	if err != nil {
		return err
	}

	c.mu.RLock()
	spec, ok := c.modelSpecs[modelID]
	c.mu.RUnlock()
	if !ok {
		return perrors.NewConfigError("core", fmt.Sprintf("unknown model id %q", modelID), nil)
	}

	gw, err := c.gateways.Resolve(spec)
	if err != nil {
		return err
	}

	entry.Conv.Window().Rebind(spec)
	entry.Engine.SetGateway(gw, spec)
	entry.ModelID = modelID

	c.publish(eventbus.TypeModelChanged, map[string]any{
		"agent_id": entry.ID, "model_id": modelID,
	})
	return nil
}

// publish is a nil-safe wrapper around Bus.Publish, mirroring
// pkg/engine.Engine.publish, so a Core built without a bus (e.g. in a unit
// test exercising the registry in isolation) doesn't panic.
func (c *Core) publish(eventType eventbus.Type, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(context.Background(), eventType, payload, eventbus.Normal)
}

// SystemInfo is the static-ish snapshot returned by GetSystemInfo.
type SystemInfo struct {
	AgentCount int
	ActiveID   string
	ModelIDs   map[string]string // agent id -> model id
}

// GetSystemInfo reports the roster shape (spec.md §4.11 get_system_info).
func (c *Core) GetSystemInfo() SystemInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := make(map[string]string, c.agents.Count())
	for _, entry := range c.agents.List() {
		models[entry.ID] = entry.ModelID
	}
	return SystemInfo{AgentCount: c.agents.Count(), ActiveID: c.activeID, ModelIDs: models}
}

// AgentStatus is one roster entry's per-agent status.
type AgentStatus struct {
	ID         string
	State      engine.State
	TokenUsage ctxwindow.Usage
}

// GetSystemStatus reports live Engine state and token usage per agent
// (spec.md §4.11 get_system_status).
func (c *Core) GetSystemStatus() []AgentStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]AgentStatus, 0, c.agents.Count())
	for _, entry := range c.agents.List() {
		out = append(out, AgentStatus{
			ID:         entry.ID,
			State:      entry.Engine.State(),
			TokenUsage: entry.Conv.GetTokenUsage(),
		})
	}
	return out
}

// GetTokenUsage reports one agent's token accounting (spec.md §4.11
// get_token_usage). agentID empty means the active agent.
func (c *Core) GetTokenUsage(agentID string) (ctxwindow.Usage, error) {
	entry, err := c.resolveAgent(agentID)
	if err != nil {
		return ctxwindow.Usage{}, err
	}
	return entry.Conv.GetTokenUsage(), nil
}

// ListCheckpoints passes through to the agent's Conversation Manager's
// Checkpoint Manager (spec.md §4.11 list_checkpoints).
func (c *Core) ListCheckpoints(agentID string, limit int) ([]checkpoint.Summary, error) {
	entry, err := c.resolveAgent(agentID)
	if err != nil {
		return nil, err
	}
	return entry.Conv.Checkpoints().List(limit), nil
}

// CreateCheckpoint passes through to the Checkpoint Manager (spec.md §4.11
// create_checkpoint), snapshotting the agent's live session.
func (c *Core) CreateCheckpoint(agentID, name, description string) (*checkpoint.Checkpoint, error) {
	entry, err := c.resolveAgent(agentID)
	if err != nil {
		return nil, err
	}
	return entry.Conv.Checkpoints().Create(entry.Conv.Session(), checkpoint.TypeManual, name, description), nil
}

// RollbackToCheckpoint passes through to the Checkpoint Manager (spec.md
// §4.11 rollback_to_checkpoint).
func (c *Core) RollbackToCheckpoint(agentID, checkpointID string) error {
	entry, err := c.resolveAgent(agentID)
	if err != nil {
		return err
	}
	return entry.Conv.Checkpoints().Rollback(entry.Conv.Session(), checkpointID)
}

// BranchFromCheckpoint passes through to the Checkpoint Manager (spec.md
// §4.11 branch_from_checkpoint), registering the branched session as a new
// sub-agent sharing this agent's model but an independent conversation.
func (c *Core) BranchFromCheckpoint(agentID, checkpointID, newAgentID, name string) (*AgentEntry, error) {
	entry, err := c.resolveAgent(agentID)
	if err != nil {
		return nil, err
	}

	branched, err := entry.Conv.Checkpoints().Branch(checkpointID, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	newEntry, err := c.registerFromBranch(newAgentID, entry, branched)
	if err != nil {
		return nil, err
	}
	return newEntry, nil
}

// registerFromBranch builds a new roster entry around an already-branched
// Session, reusing the source agent's model/spec/dispatcher/persona. Caller
// holds c.mu.
func (c *Core) registerFromBranch(id string, source *AgentEntry, branched *session.Session) (*AgentEntry, error) {
	if _, exists := c.agents.Get(id); exists {
		return nil, perrors.NewConfigError("core", fmt.Sprintf("agent %q already registered", id), nil)
	}

	spec, ok := c.modelSpecs[source.ModelID]
	if !ok {
		return nil, perrors.NewConfigError("core", fmt.Sprintf("unknown model id %q", source.ModelID), nil)
	}
	gw, err := c.gateways.Resolve(spec)
	if err != nil {
		return nil, err
	}

	window := ctxwindow.New(spec, c.counter, c.bus)
	conv := conversation.New(conversation.Options{
		AgentID:   id,
		Window:    window,
		Store:     c.store,
		Bus:       c.bus,
		Retention: c.retention,
	})
	*conv.Session() = *branched

	whitelist := map[string]bool{}
	for _, name := range source.Persona.DefaultToolsWhitelist {
		whitelist[name] = true
	}

	eng := engine.New(engine.Options{
		Gateway:       gw,
		Spec:          spec,
		Conv:          conv,
		Dispatcher:    c.dispatcher,
		Bus:           c.bus,
		ActionOptions: action.Options{Whitelist: whitelist},
	})

	entry := &AgentEntry{ID: id, ParentID: source.ID, ModelID: source.ModelID, Persona: source.Persona, Engine: eng, Conv: conv}
	if err := c.agents.Register(id, entry); err != nil {
		return nil, perrors.NewConfigError("core", "registering branched agent", err)
	}
	return entry, nil
}

// EmitUIEvent publishes an arbitrary host-originated event on the shared
// bus (spec.md §4.11 emit_ui_event) -- the escape hatch a frontend uses to
// surface its own UI state transitions (e.g. "user is typing") without the
// Core needing to know about them.
func (c *Core) EmitUIEvent(eventType eventbus.Type, payload any) {
	c.publish(eventType, payload)
}
