package engine

import (
	"context"
	"testing"
	"time"

	"github.com/penguin-run/penguin/pkg/action"
	"github.com/penguin-run/penguin/pkg/checkpoint"
	"github.com/penguin-run/penguin/pkg/conversation"
	"github.com/penguin-run/penguin/pkg/ctxwindow"
	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/llms"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/penguin-run/penguin/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway replays a fixed sequence of responses/errors, one per call,
// mirroring llms.registry_test.go's fakeGateway pattern.
type scriptedGateway struct {
	responses []llms.Response
	errs      []error
	calls     int
}

func (g *scriptedGateway) next() (llms.Response, error) {
	i := g.calls
	g.calls++
	var resp llms.Response
	var err error
	if i < len(g.responses) {
		resp = g.responses[i]
	}
	if i < len(g.errs) {
		err = g.errs[i]
	}
	return resp, err
}

func (g *scriptedGateway) Generate(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts llms.Options) (llms.Response, error) {
	return g.next()
}

func (g *scriptedGateway) Stream(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts llms.Options) (llms.Response, error) {
	return g.next()
}

// echoTool always succeeds, recording the args it was called with.
type echoTool struct{ name string }

func (t *echoTool) Name() string                 { return t.name }
func (t *echoTool) ArgSchema() []tool.ArgField    { return nil }
func (t *echoTool) RequiresNetwork() bool         { return false }
func (t *echoTool) RequiresWrite() bool           { return false }
func (t *echoTool) Mutating() bool                { return false }
func (t *echoTool) PathScope() tool.PathScope     { return tool.ScopeAny }
func (t *echoTool) Timeout() time.Duration        { return 0 }
func (t *echoTool) Execute(ctx context.Context, args map[string]string) (map[string]any, error) {
	return map[string]any{"message": "done"}, nil
}

func newTestEngine(t *testing.T, gw llms.Gateway, maxIterations int) (*Engine, *conversation.Manager, *eventbus.Bus) {
	t.Helper()
	spec := model.NewModelSpec(model.Options{ModelID: "test-model", MaxContextWindowTokens: 100000})
	window := ctxwindow.New(spec, ctxwindow.EstimatorCounter{}, nil)
	bus := eventbus.New()
	conv := conversation.New(conversation.Options{
		AgentID:   "agent-1",
		Window:    window,
		Store:     nil,
		Bus:       bus,
		Retention: checkpoint.DefaultRetention(),
	})

	disp := tool.NewDispatcher(tool.Roots{ProjectRoot: "."}, bus)
	require.NoError(t, disp.Register(&echoTool{name: "run"}))

	e := New(Options{
		Gateway:       gw,
		Spec:          spec,
		Conv:          conv,
		Dispatcher:    disp,
		Bus:           bus,
		ActionOptions: action.Options{Whitelist: map[string]bool{"run": true}},
		MaxIterations: maxIterations,
	})
	return e, conv, bus
}

func TestStepAppendsAssistantMessageAndDispatchesActions(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{{Text: "<run>x</run>"}}}
	e, conv, _ := newTestEngine(t, gw, 5)

	result, err := e.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Actions, 1)
	require.Len(t, result.Results, 1)
	assert.Equal(t, tool.StatusOK, result.Results[0].Status)
	assert.Equal(t, StateRunning, e.State())

	hist := conv.GetHistory(false)
	require.Len(t, hist, 2)
	assert.Equal(t, session.RoleAssistant, hist[0].Role)
	assert.Equal(t, session.RoleTool, hist[1].Role)
	assert.Empty(t, hist[1].ToolCallID)
}

func TestRunTaskStopsOnCompletionSentinel(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{
		{Text: "working on it"},
		{Text: "all done. TASK_COMPLETED"},
	}}
	e, _, _ := newTestEngine(t, gw, 5)

	res, err := e.RunTask(context.Background(), "please do the thing", 0)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Iterations)
}

func TestRunTaskRecognizesStructuredCompletionSignal(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{
		{Text: `{"is_complete": true, "quality": "good"}`},
	}}
	e, _, _ := newTestEngine(t, gw, 5)

	res, err := e.RunTask(context.Background(), "go", 0)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Iterations)
}

func TestRunTaskPausesOnClarificationSentinel(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{
		{Text: "I need more details. NEED_USER_CLARIFICATION"},
	}}
	e, _, bus := newTestEngine(t, gw, 5)

	var gotNeedsInput bool
	bus.Subscribe(eventbus.TypeTaskNeedsInput, eventbus.Normal, func(ctx context.Context, ev eventbus.Event) {
		gotNeedsInput = true
	})

	res, err := e.RunTask(context.Background(), "ambiguous ask", 0)
	require.NoError(t, err)
	assert.Equal(t, StateNeedsInput, res.State)
	assert.True(t, gotNeedsInput)
}

func TestRunTaskStopsAfterTwoConsecutiveNoActionTurns(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{
		{Text: "hmm, let me think"},
		{Text: "still thinking, no sentinel here"},
	}}
	e, _, _ := newTestEngine(t, gw, 5)

	res, err := e.RunTask(context.Background(), "think about it", 0)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 2, res.Iterations)
}

func TestRunTaskStopsAtMaxIterations(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{
		{Text: "<run>1</run>"},
		{Text: "<run>2</run>"},
		{Text: "<run>3</run>"},
	}}
	e, _, _ := newTestEngine(t, gw, 3)

	res, err := e.RunTask(context.Background(), "loop forever", 0)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 3, res.Iterations)
}

func TestRunTaskFailsOnFatalError(t *testing.T) {
	gw := &scriptedGateway{errs: []error{perrors.NewAuthError("llms.test", "bad key", nil)}}
	e, _, bus := newTestEngine(t, gw, 5)

	var gotFailed bool
	bus.Subscribe(eventbus.TypeTaskFailed, eventbus.Normal, func(ctx context.Context, ev eventbus.Event) {
		gotFailed = true
	})

	res, err := e.RunTask(context.Background(), "go", 0)
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, gotFailed)
}

func TestRunTaskRetriesRateLimitThenSucceeds(t *testing.T) {
	gw := &scriptedGateway{
		responses: []llms.Response{{}, {Text: "recovered. TASK_COMPLETED"}},
		errs:      []error{perrors.NewRateLimitError("llms.test", "slow down", time.Millisecond, nil), nil},
	}
	e, _, _ := newTestEngine(t, gw, 5)

	start := time.Now()
	res, err := e.RunTask(context.Background(), "go", 0)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 1, res.Iterations)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestRunTaskReturnsInterruptedOnCancelledContext(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{{Text: "<run>1</run>"}}}
	e, _, bus := newTestEngine(t, gw, 5)

	var gotInterrupted bool
	bus.Subscribe(eventbus.TypeInterrupted, eventbus.Normal, func(ctx context.Context, ev eventbus.Event) {
		gotInterrupted = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.RunTask(ctx, "go", 0)
	require.Error(t, err)
	assert.Equal(t, StateInterrupted, res.State)
	assert.True(t, gotInterrupted)
}

func TestRunContinuousStopsAtTimeLimit(t *testing.T) {
	gw := &scriptedGateway{responses: []llms.Response{
		{Text: "tick"}, {Text: "tick"}, {Text: "tick"}, {Text: "tick"}, {Text: "tick"},
	}}
	e, _, _ := newTestEngine(t, gw, 5)

	res, err := e.RunContinuous(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.GreaterOrEqual(t, res.Iterations, 1)
}
