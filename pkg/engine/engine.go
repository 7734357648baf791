// Package engine implements the run-loop state machine (spec.md §4.10, C10):
// Step drives one gateway call plus action dispatch, RunTask loops Step
// under the multi-step task protocol with its stop conditions, and
// RunContinuous loops Step under the wall-clock-bounded "247" protocol.
// Grounded on hector's pkg/agent/llmagent/flow.go outer/inner loop split
// (Flow.Run bounded by MaxIterations, runOneStep doing one LLM call plus
// tool handling) generalized from hector's structured-tool_calls model to
// spec.md's text-tag action model (pkg/action/pkg/tool), and on
// hector/pkg/reasoning/chain_of_thought_strategy.go's ShouldStop/
// AfterIteration shape for the per-iteration stop check and progress
// logging. The completion-signal check is grounded on
// hector/pkg/reasoning/completion.go's CompletionAssessment{IsComplete}
// structured-output pattern; the retry/backoff helper is grounded on
// hector/pkg/agent/task_status_retry.go's attempt-with-exponential-backoff
// loop.
package engine

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/penguin-run/penguin/pkg/action"
	"github.com/penguin-run/penguin/pkg/conversation"
	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/llms"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/penguin-run/penguin/pkg/tool"
)

// State is one node of the engine's run-loop state machine (spec.md §4.10):
//
//	IDLE -> RUNNING -> (WAITING_FOR_TOOL -> RUNNING)* -> {DONE | FAILED | INTERRUPTED}
//
// NEEDS_INPUT is a pause state reached from RUNNING when the clarification
// sentinel fires; it is not a terminal state, since RunTask can be called
// again on the same Engine to resume the conversation once the caller
// supplies the requested input.
type State string

const (
	StateIdle           State = "IDLE"
	StateRunning        State = "RUNNING"
	StateWaitingForTool State = "WAITING_FOR_TOOL"
	StateNeedsInput     State = "NEEDS_INPUT"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
	StateInterrupted    State = "INTERRUPTED"
)

const (
	// DefaultCompletionSentinel is the literal string an assistant turn
	// emits to signal a multi-step task is finished (spec.md §4.10).
	DefaultCompletionSentinel = "TASK_COMPLETED"
	// DefaultClarificationSentinel signals the task cannot proceed without
	// more information from the user.
	DefaultClarificationSentinel = "NEED_USER_CLARIFICATION"
	// DefaultMaxIterations bounds a RunTask call absent an explicit override.
	DefaultMaxIterations = 5

	engineMaxRetries   = 3
	retryBaseDelay     = 1 * time.Second
	retryBackoffFactor = 2
	retryJitterFrac    = 0.2
)

// taskDoneTag is the structured alternative to the literal completion
// sentinel (spec.md §9 "alternative": a self-closing tag is recognized
// equivalently to the literal string).
var taskDoneTag = regexp.MustCompile(`<task_done\s*/>`)

// isCompleteField matches a structured `"is_complete": true` signal
// embedded in assistant JSON output, mirroring hector's
// CompletionAssessment.IsComplete field name.
var isCompleteField = regexp.MustCompile(`"is_complete"\s*:\s*true`)

// Options configures a new Engine.
type Options struct {
	Gateway    llms.Gateway
	Spec       *model.ModelSpec
	Conv       *conversation.Manager
	Dispatcher *tool.Dispatcher
	Bus        *eventbus.Bus

	// ActionOptions configures the action parser whitelist/fence policy.
	ActionOptions action.Options
	// GenOptions configures every gateway call (tool definitions, streaming,
	// temperature, ...).
	GenOptions llms.Options

	// CompletionSentinel overrides DefaultCompletionSentinel when non-empty.
	CompletionSentinel string
	// ClarificationSentinel overrides DefaultClarificationSentinel.
	ClarificationSentinel string
	// MaxIterations overrides DefaultMaxIterations for RunTask calls that
	// don't pass an explicit iteration cap.
	MaxIterations int
}

// Engine drives one agent's run loop: one gateway call, one action parse,
// one tool dispatch pass, per Step (spec.md §4.10, C10).
type Engine struct {
	gw         llms.Gateway
	spec       *model.ModelSpec
	conv       *conversation.Manager
	dispatcher *tool.Dispatcher
	bus        *eventbus.Bus

	actionOpts action.Options
	genOpts    llms.Options

	completionSentinel    string
	clarificationSentinel string
	maxIterations         int

	mu    sync.Mutex
	state State
}

// New constructs an Engine in the IDLE state.
func New(opts Options) *Engine {
	completion := opts.CompletionSentinel
	if completion == "" {
		completion = DefaultCompletionSentinel
	}
	clarification := opts.ClarificationSentinel
	if clarification == "" {
		clarification = DefaultClarificationSentinel
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return &Engine{
		gw:                    opts.Gateway,
		spec:                  opts.Spec,
		conv:                  opts.Conv,
		dispatcher:            opts.Dispatcher,
		bus:                   opts.Bus,
		actionOpts:            opts.ActionOptions,
		genOpts:               opts.GenOptions,
		completionSentinel:    completion,
		clarificationSentinel: clarification,
		maxIterations:         maxIterations,
		state:                 StateIdle,
	}
}

// State reports the engine's current run-loop state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// SetGenOptions replaces the llms.Options used for every subsequent gateway
// call, so a caller (pkg/core.Process) can toggle streaming/tool definitions
// per turn without rebuilding the Engine.
func (e *Engine) SetGenOptions(opts llms.Options) {
	e.mu.Lock()
	e.genOpts = opts
	e.mu.Unlock()
}

func (e *Engine) getGenOptions() llms.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.genOpts
}

// SetGateway atomically swaps the Gateway and ModelSpec used by every
// subsequent gateway call, the primitive pkg/core.LoadModel needs to change
// an agent's active model without rebuilding its Engine.
func (e *Engine) SetGateway(gw llms.Gateway, spec *model.ModelSpec) {
	e.mu.Lock()
	e.gw = gw
	e.spec = spec
	e.mu.Unlock()
}

func (e *Engine) getGateway() (llms.Gateway, *model.ModelSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gw, e.spec
}

// publish is a nil-safe wrapper around Bus.Publish, so an Engine built
// without a bus (e.g. in a unit test exercising Step in isolation) doesn't
// panic.
func (e *Engine) publish(ctx context.Context, eventType eventbus.Type, payload any, priority eventbus.Priority) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, eventType, payload, priority)
}

// StepResult is the outcome of one Step call.
type StepResult struct {
	Response    llms.Response
	Actions     []action.Action
	Results     []tool.Result
	ParseErrors []action.ParseError
}

// Step runs exactly one gateway call, parses any actions out of the
// response text, dispatches each in turn, and appends a TOOL category
// message per result (spec.md §4.10 "single step"). It transitions
// RUNNING -> WAITING_FOR_TOOL -> RUNNING around the dispatch pass when
// actions are present, leaving the state at RUNNING on return so the
// caller (RunTask/RunContinuous) owns the terminal transition.
//
// Tool-result messages are appended with no ToolCallID, since Penguin's
// action model is text-tag based rather than the provider tool_calls
// protocol: pkg/llms.Sanitize already rewrites such orphan messages to an
// assistant-role "[Tool Result] ..." message at gateway-submission time,
// which is the correct behavior here, not a gap to fix.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	resp, err := e.generateWithRetry(ctx)
	if err != nil {
		// A partial Response (accumulated stream text before cancellation)
		// is still returned alongside an InterruptedError, so the caller can
		// preserve it as the partial turn.
		return StepResult{Response: resp}, err
	}

	if _, werr := e.conv.AddMessage(session.RoleAssistant, resp.Text, session.CategoryDialog, nil); werr != nil {
		// A ContextLengthExceededError from AddMessage means the append
		// still happened (P1 holds unconditionally); surface it, and
		// RunTask ends the run as failed with it.
		return StepResult{Response: resp}, werr
	}
	if resp.Reasoning != "" {
		_, _ = e.conv.AddMessage(session.RoleAssistant, resp.Reasoning, session.CategoryReasoning, nil)
	}

	actions, parseErrs := action.Parse(resp.Text, e.actionOpts)
	result := StepResult{Response: resp, Actions: actions, ParseErrors: parseErrs}
	if len(actions) == 0 {
		return result, nil
	}

	e.setState(StateWaitingForTool)
	for _, act := range actions {
		e.publish(ctx, eventbus.TypeToolCall, act, eventbus.Normal)
		r := e.dispatcher.Dispatch(ctx, act)
		result.Results = append(result.Results, r)
		_, _ = e.conv.AddMessage(session.RoleTool, r.Result, session.CategoryToolResult, map[string]any{
			"action": r.Action,
			"status": string(r.Status),
		})
	}
	e.setState(StateRunning)

	return result, nil
}

// TaskResult is the outcome of a RunTask or RunContinuous call.
type TaskResult struct {
	Response      llms.Response
	Iterations    int
	State         State
	ActionResults []tool.Result
}

// RunTask runs the multi-step task protocol (spec.md §4.10): single-step
// in a loop bounded by maxIterations (0 means use the Engine's configured
// default), stopping on whichever of the six conditions fires first:
// a completion signal, a clarification signal (pausing at NEEDS_INPUT), two
// consecutive turns producing no actions, the iteration cap, a pre-flight
// token-budget failure, or external cancellation.
func (e *Engine) RunTask(ctx context.Context, userInput string, maxIterations int) (TaskResult, error) {
	if maxIterations <= 0 {
		maxIterations = e.maxIterations
	}
	if userInput != "" {
		if _, err := e.conv.AddMessage(session.RoleUser, userInput, session.CategoryDialog, nil); err != nil {
			return TaskResult{}, err
		}
	}

	e.setState(StateRunning)
	e.publish(ctx, eventbus.TypeTaskStarted, map[string]any{"max_iterations": maxIterations}, eventbus.Normal)

	noActionTurns := 0
	var last llms.Response
	var results []tool.Result
	for iteration := 1; iteration <= maxIterations; iteration++ {
		if ctx.Err() != nil {
			return e.finishInterrupted(ctx, last, iteration-1, results)
		}
		if usage := e.conv.GetTokenUsage(); usage.MaxTokens > 0 && usage.CurrentTotal >= usage.MaxTokens {
			err := perrors.NewContextLengthExceededError("engine", usage.CurrentTotal, usage.MaxTokens, nil)
			return e.finishFailed(ctx, err, iteration-1, results)
		}

		step, err := e.Step(ctx)
		if err != nil {
			if classified, ok := err.(perrors.Classified); ok && classified.Kind() == perrors.KindInterrupted {
				return e.finishInterrupted(ctx, step.Response, iteration-1, results)
			}
			return e.finishFailed(ctx, err, iteration-1, results)
		}
		last = step.Response
		results = append(results, step.Results...)

		progress := int(math.Floor(100 * float64(iteration) / float64(maxIterations)))
		e.publish(ctx, eventbus.TypeTaskProgressed, map[string]any{
			"iteration": iteration, "max_iterations": maxIterations, "progress_percent": progress,
		}, eventbus.Normal)

		if e.clarificationSentinel != "" && strings.Contains(step.Response.Text, e.clarificationSentinel) {
			e.setState(StateNeedsInput)
			e.publish(ctx, eventbus.TypeTaskNeedsInput, map[string]any{"iteration": iteration}, eventbus.Normal)
			return TaskResult{Response: last, Iterations: iteration, State: StateNeedsInput, ActionResults: results}, nil
		}

		if e.isComplete(step.Response.Text) {
			return e.finishCompleted(ctx, last, iteration, results)
		}

		if len(step.Actions) == 0 {
			noActionTurns++
			if noActionTurns >= 2 {
				return e.finishCompleted(ctx, last, iteration, results)
			}
		} else {
			noActionTurns = 0
		}
	}

	return e.finishCompleted(ctx, last, maxIterations, results)
}

// RunContinuous runs the "247" protocol (spec.md §4.10): single-step in a
// loop with no sentinel-driven exit, stopping only when timeLimit elapses
// (checked cooperatively between iterations, so an in-flight Step is
// allowed to finish) or the context is cancelled. timeLimit <= 0 means no
// time bound; the caller must cancel ctx to stop the loop.
func (e *Engine) RunContinuous(ctx context.Context, timeLimit time.Duration) (TaskResult, error) {
	var deadline time.Time
	if timeLimit > 0 {
		deadline = time.Now().Add(timeLimit)
	}

	e.setState(StateRunning)
	e.publish(ctx, eventbus.TypeTaskStarted, map[string]any{"continuous": true}, eventbus.Normal)

	iteration := 0
	var last llms.Response
	var results []tool.Result
	for {
		if ctx.Err() != nil {
			return e.finishInterrupted(ctx, last, iteration, results)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		iteration++
		step, err := e.Step(ctx)
		if err != nil {
			if classified, ok := err.(perrors.Classified); ok && classified.Kind() == perrors.KindInterrupted {
				return e.finishInterrupted(ctx, step.Response, iteration-1, results)
			}
			return e.finishFailed(ctx, err, iteration-1, results)
		}
		last = step.Response
		results = append(results, step.Results...)

		e.publish(ctx, eventbus.TypeTaskProgressed, map[string]any{
			"iteration": iteration, "max_iterations": 0, "progress_percent": 0,
		}, eventbus.Normal)

		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
	}

	return e.finishCompleted(ctx, last, iteration, results)
}

func (e *Engine) finishCompleted(ctx context.Context, resp llms.Response, iterations int, results []tool.Result) (TaskResult, error) {
	e.setState(StateDone)
	e.publish(ctx, eventbus.TypeTaskCompleted, map[string]any{"response": resp.Text}, eventbus.Normal)
	return TaskResult{Response: resp, Iterations: iterations, State: StateDone, ActionResults: results}, nil
}

func (e *Engine) finishFailed(ctx context.Context, err error, iterations int, results []tool.Result) (TaskResult, error) {
	e.setState(StateFailed)
	kind := perrors.Kind("unknown")
	if classified, ok := err.(perrors.Classified); ok {
		kind = classified.Kind()
	}
	e.publish(ctx, eventbus.TypeTaskFailed, map[string]any{"error": err.Error(), "kind": string(kind)}, eventbus.Normal)
	return TaskResult{Iterations: iterations, State: StateFailed, ActionResults: results}, err
}

// finishInterrupted publishes INTERRUPTED and appends whatever partial
// response text was produced before cancellation as a DIALOG message
// (spec.md §4.10, §5 P9: interrupt handling must leave well-formed state).
func (e *Engine) finishInterrupted(ctx context.Context, partial llms.Response, iterations int, results []tool.Result) (TaskResult, error) {
	e.setState(StateInterrupted)
	if partial.Text != "" {
		// Use a background context: ctx is already cancelled/expiring, and
		// this append must still land so the partial turn is not lost.
		_, _ = e.conv.AddMessage(session.RoleAssistant, partial.Text, session.CategoryDialog, map[string]any{"interrupted": true})
	}
	e.publish(context.Background(), eventbus.TypeInterrupted, map[string]any{"iterations": iterations}, eventbus.Normal)
	return TaskResult{Response: partial, Iterations: iterations, State: StateInterrupted, ActionResults: results}, perrors.NewInterruptedError("engine", "run cancelled")
}

// isComplete recognizes either the literal completion sentinel or a
// structured is_complete/<task_done/> signal as equivalent stop conditions
// (spec.md §9).
func (e *Engine) isComplete(text string) bool {
	if e.completionSentinel != "" && strings.Contains(text, e.completionSentinel) {
		return true
	}
	if taskDoneTag.MatchString(text) {
		return true
	}
	return isCompleteField.MatchString(text)
}

// generateWithRetry runs one gateway call (streaming if configured),
// retrying on RateLimitError/NetworkError with exponential backoff plus
// jitter up to engineMaxRetries times, and retrying a ProviderError once.
// AuthError, ContextLengthExceeded, and InvalidRequest are never retried
// (perrors.IsRetryable returns false for them), surfacing on the first
// attempt.
func (e *Engine) generateWithRetry(ctx context.Context) (llms.Response, error) {
	history := e.conv.GetHistory(true)

	var lastErr error
	for attempt := 0; attempt <= engineMaxRetries; attempt++ {
		if ctx.Err() != nil {
			return llms.Response{}, perrors.NewInterruptedError("engine", "context cancelled before gateway call")
		}

		genOpts := e.getGenOptions()
		gw, spec := e.getGateway()
		var resp llms.Response
		var err error
		if genOpts.Stream {
			resp, err = gw.Stream(ctx, spec, history, genOpts)
		} else {
			resp, err = gw.Generate(ctx, spec, history, genOpts)
		}
		if err == nil {
			return resp, nil
		}
		if classified, ok := err.(perrors.Classified); ok && classified.Kind() == perrors.KindInterrupted {
			return resp, err
		}

		lastErr = err
		retryable := perrors.IsRetryable(err)
		if classified, ok := err.(perrors.Classified); ok && classified.Kind() == perrors.KindProvider && attempt == 0 {
			retryable = true
		}
		if !retryable || attempt == engineMaxRetries {
			return llms.Response{}, err
		}

		select {
		case <-ctx.Done():
			return llms.Response{}, perrors.NewInterruptedError("engine", "context cancelled during retry backoff")
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return llms.Response{}, lastErr
}

// backoffDelay returns the exponential delay for attempt (0-indexed),
// jittered by +/-retryJitterFrac.
func backoffDelay(attempt int) time.Duration {
	base := float64(retryBaseDelay) * math.Pow(retryBackoffFactor, float64(attempt))
	jitter := 1 + (rand.Float64()*2-1)*retryJitterFrac
	return time.Duration(base * jitter)
}
