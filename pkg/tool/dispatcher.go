package tool

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/penguin-run/penguin/pkg/action"
	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/registry"
)

// Status is the outcome of one dispatch, per spec.md §4.4 step 5.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusRefused Status = "refused"
)

// Result is the uniform shape returned for every dispatched action.
type Result struct {
	Action   string
	Status   Status
	Result   string
	Metadata map[string]any
	Timeout  bool
}

// WriteRootMode selects which root creation operations write under
// (spec.md §4.4 step 4, env WRITE_ROOT override).
type WriteRootMode string

const (
	WriteRootProject   WriteRootMode = "project"
	WriteRootWorkspace WriteRootMode = "workspace"
)

const defaultTimeout = 30 * time.Second

// Roots holds the resolved filesystem roots the path policy checks against.
type Roots struct {
	ProjectRoot   string
	WorkspaceRoot string
	// Additional is the spec.md §6.1 project.additional_directories list,
	// accepted under ScopeProject in addition to ProjectRoot.
	Additional []string
	WriteMode  WriteRootMode
}

// Dispatcher resolves action names to Tool handlers, enforces the path and
// write-root policy, runs the handler under a per-tool timeout, and
// publishes TOOL_RESULT on the event bus (spec.md §4.4).
type Dispatcher struct {
	tools *registry.BaseRegistry[Tool]
	roots Roots
	bus   *eventbus.Bus
}

// NewDispatcher creates a Dispatcher. bus may be nil to skip event emission
// (useful in unit tests that exercise dispatch in isolation).
func NewDispatcher(roots Roots, bus *eventbus.Bus) *Dispatcher {
	if roots.WriteMode == "" {
		roots.WriteMode = WriteRootProject
	}
	return &Dispatcher{
		tools: registry.NewBaseRegistry[Tool](),
		roots: roots,
		bus:   bus,
	}
}

// Register adds t to the dispatch table under t.Name().
func (d *Dispatcher) Register(t Tool) error {
	return d.tools.Register(t.Name(), t)
}

// ActiveRoot returns the filesystem root that creation operations currently
// write under, per the dispatcher's WriteRootMode (spec.md §4.4 step 4).
func (d *Dispatcher) ActiveRoot() string {
	if d.roots.WriteMode == WriteRootWorkspace {
		return d.roots.WorkspaceRoot
	}
	return d.roots.ProjectRoot
}

// Dispatch resolves act to a Tool, validates its arguments against the
// schema, enforces path/write-root policy, runs the handler, and returns a
// uniform Result. It never returns a Go error for tool-level failures —
// those are captured into Result per spec.md §4.4 step 5/6.
func (d *Dispatcher) Dispatch(ctx context.Context, act action.Action) Result {
	t, ok := d.tools.Get(act.Name)
	if !ok {
		return d.finish(Result{
			Action: act.Name,
			Status: StatusRefused,
			Result: fmt.Sprintf("unknown action %q", act.Name),
		})
	}

	if err := validateArgs(t.ArgSchema(), act.Args); err != nil {
		return d.finish(Result{
			Action: act.Name,
			Status: StatusError,
			Result: err.Error(),
		})
	}

	if pa, ok := t.(PathArg); ok {
		if argName := pa.PathArgName(); argName != "" {
			if refusal := d.checkPath(t, act.Args[argName]); refusal != "" {
				return d.finish(Result{
					Action: act.Name,
					Status: StatusRefused,
					Result: refusal,
				})
			}
		}
	}

	timeout := t.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data map[string]any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := t.Execute(callCtx, act.Args)
		done <- outcome{data, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return d.finish(Result{
				Action: act.Name,
				Status: StatusError,
				Result: o.err.Error(),
			})
		}
		return d.finish(Result{
			Action:   act.Name,
			Status:   StatusOK,
			Result:   stringifyResult(o.data),
			Metadata: o.data,
		})
	case <-callCtx.Done():
		return d.finish(Result{
			Action:  act.Name,
			Status:  StatusError,
			Result:  fmt.Sprintf("tool %q timed out after %s", act.Name, timeout),
			Timeout: true,
		})
	}
}

func (d *Dispatcher) finish(r Result) Result {
	if d.bus != nil {
		d.bus.Publish(context.Background(), eventbus.TypeToolResult, r, eventbus.Normal)
	}
	return r
}

func validateArgs(schema []ArgField, args map[string]string) error {
	for _, f := range schema {
		v, present := args[f.Name]
		if f.Required && !present {
			return fmt.Errorf("missing required argument %q", f.Name)
		}
		if !present {
			continue
		}
		switch f.Type {
		case FieldInt:
			if _, err := parseIntStrict(v); err != nil {
				return fmt.Errorf("argument %q must be an int: %w", f.Name, err)
			}
		case FieldBool:
			if v != "true" && v != "false" {
				return fmt.Errorf("argument %q must be \"true\" or \"false\"", f.Name)
			}
		}
	}
	return nil
}

func parseIntStrict(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// checkPath enforces spec.md §4.4 step 3: symlink resolution happens before
// the root-containment check, and ScopeAny skips the check entirely.
func (d *Dispatcher) checkPath(t Tool, path string) string {
	if t.PathScope() == ScopeAny || path == "" {
		return ""
	}

	resolved, err := resolveSymlinks(path)
	if err != nil {
		return fmt.Sprintf("cannot resolve path %q: %v", path, err)
	}

	var allowedRoots []string
	switch t.PathScope() {
	case ScopeProject:
		allowedRoots = append([]string{d.roots.ProjectRoot}, d.roots.Additional...)
	case ScopeWorkspace:
		allowedRoots = []string{d.roots.WorkspaceRoot}
	}

	for _, root := range allowedRoots {
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if within(resolved, absRoot) {
			return ""
		}
	}
	return fmt.Sprintf("path %q escapes allowed root(s) for scope %q", path, t.PathScope())
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func stringifyResult(data map[string]any) string {
	if msg, ok := data["message"].(string); ok {
		return msg
	}
	if out, ok := data["output"].(string); ok {
		return out
	}
	return fmt.Sprintf("%v", data)
}
