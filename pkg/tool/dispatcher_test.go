package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/penguin-run/penguin/pkg/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	scope   PathScope
	pathArg string
	delay   time.Duration
}

func (e *echoTool) Name() string { return "execute" }
func (e *echoTool) ArgSchema() []ArgField {
	return []ArgField{{Name: "", Type: FieldRaw, Required: true}}
}
func (e *echoTool) RequiresNetwork() bool { return false }
func (e *echoTool) RequiresWrite() bool   { return false }
func (e *echoTool) Mutating() bool        { return false }
func (e *echoTool) PathScope() PathScope  { return e.scope }
func (e *echoTool) Timeout() time.Duration {
	return 0
}
func (e *echoTool) PathArgName() string { return e.pathArg }
func (e *echoTool) Execute(ctx context.Context, args map[string]string) (map[string]any, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]any{"message": "hello: " + args[""]}, nil
}

func TestDispatchUnknownAction(t *testing.T) {
	d := NewDispatcher(Roots{}, nil)
	r := d.Dispatch(context.Background(), action.Action{Name: "nope"})
	assert.Equal(t, StatusRefused, r.Status)
}

func TestDispatchMissingRequiredArg(t *testing.T) {
	d := NewDispatcher(Roots{}, nil)
	require.NoError(t, d.Register(&echoTool{scope: ScopeAny}))
	r := d.Dispatch(context.Background(), action.Action{Name: "execute", Args: map[string]string{}})
	assert.Equal(t, StatusError, r.Status)
}

func TestDispatchSuccess(t *testing.T) {
	d := NewDispatcher(Roots{}, nil)
	require.NoError(t, d.Register(&echoTool{scope: ScopeAny}))
	r := d.Dispatch(context.Background(), action.Action{Name: "execute", Args: map[string]string{"": "world"}})
	assert.Equal(t, StatusOK, r.Status)
	assert.Contains(t, r.Result, "world")
}

func TestDispatchTimeout(t *testing.T) {
	d := NewDispatcher(Roots{}, nil)
	require.NoError(t, d.Register(&echoTool{scope: ScopeAny, delay: 50 * time.Millisecond}))
	// Force a tiny per-call timeout via a context deadline shorter than the tool's delay.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	r := d.Dispatch(ctx, action.Action{Name: "execute", Args: map[string]string{"": "x"}})
	assert.Equal(t, StatusError, r.Status)
	assert.True(t, r.Timeout)
}

func TestDispatchPathScopeRefusesEscape(t *testing.T) {
	tmp := t.TempDir()
	project := filepath.Join(tmp, "project")
	require.NoError(t, os.MkdirAll(project, 0755))

	d := NewDispatcher(Roots{ProjectRoot: project}, nil)
	require.NoError(t, d.Register(&echoTool{scope: ScopeProject, pathArg: "path"}))

	outside := filepath.Join(tmp, "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))

	r := d.Dispatch(context.Background(), action.Action{Name: "execute", Args: map[string]string{"": "x", "path": outside}})
	assert.Equal(t, StatusRefused, r.Status)
}

func TestDispatchPathScopeAllowsWithin(t *testing.T) {
	tmp := t.TempDir()
	project := filepath.Join(tmp, "project")
	require.NoError(t, os.MkdirAll(project, 0755))
	inside := filepath.Join(project, "file.txt")
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0644))

	d := NewDispatcher(Roots{ProjectRoot: project}, nil)
	require.NoError(t, d.Register(&echoTool{scope: ScopeProject, pathArg: "path"}))

	r := d.Dispatch(context.Background(), action.Action{Name: "execute", Args: map[string]string{"": "x", "path": inside}})
	assert.Equal(t, StatusOK, r.Status)
}

func TestActiveRoot(t *testing.T) {
	d := NewDispatcher(Roots{ProjectRoot: "/proj", WorkspaceRoot: "/ws", WriteMode: WriteRootWorkspace}, nil)
	assert.Equal(t, "/ws", d.ActiveRoot())
}
