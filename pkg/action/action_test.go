package action

import (
	"reflect"
	"testing"
)

func whitelist(names ...string) map[string]bool {
	w := make(map[string]bool)
	for _, n := range names {
		w[n] = true
	}
	return w
}

func TestParseSingleAction(t *testing.T) {
	text := `I'll run this: <execute>echo hello</execute> done.`
	actions, errs := Parse(text, Options{Whitelist: whitelist("execute")})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Name != "execute" {
		t.Fatalf("expected name 'execute', got %q", actions[0].Name)
	}
	if actions[0].Args[""] != "echo hello" {
		t.Fatalf("expected raw payload, got %v", actions[0].Args)
	}
}

func TestParseOrderPreserved(t *testing.T) {
	text := `<search>a</search> then <execute>b</execute> then <search>c</search>`
	actions, _ := Parse(text, Options{Whitelist: whitelist("search", "execute")})
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	wantNames := []string{"search", "execute", "search"}
	for i, n := range wantNames {
		if actions[i].Name != n {
			t.Fatalf("action %d: expected %q, got %q", i, n, actions[i].Name)
		}
	}
}

func TestParseRawSpanIsSubstring(t *testing.T) {
	text := `prefix <execute>echo hi</execute> suffix`
	actions, _ := Parse(text, Options{Whitelist: whitelist("execute")})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Raw(text) != "<execute>echo hi</execute>" {
		t.Fatalf("unexpected raw span: %q", actions[0].Raw(text))
	}
}

func TestParseUnknownTagIgnored(t *testing.T) {
	text := `<b>bold</b> and <execute>x</execute>`
	actions, _ := Parse(text, Options{Whitelist: whitelist("execute")})
	if len(actions) != 1 {
		t.Fatalf("expected only whitelisted action, got %d", len(actions))
	}
	if actions[0].Name != "execute" {
		t.Fatalf("expected execute, got %q", actions[0].Name)
	}
}

func TestParseMalformedOpenerContinues(t *testing.T) {
	text := `<execute>unterminated then <search>ok</search>`
	actions, errs := Parse(text, Options{Whitelist: whitelist("execute", "search")})
	if len(errs) != 1 {
		t.Fatalf("expected 1 parse error, got %d: %v", len(errs), errs)
	}
	if len(actions) != 1 || actions[0].Name != "search" {
		t.Fatalf("expected parser to continue and find 'search', got %v", actions)
	}
}

func TestParseColonDelimitedArgs(t *testing.T) {
	text := `<task_create>name:foo|priority:high</task_create>`
	actions, _ := Parse(text, Options{Whitelist: whitelist("task_create")})
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Args["name"] != "foo" || actions[0].Args["priority"] != "high" {
		t.Fatalf("unexpected args: %v", actions[0].Args)
	}
}

func TestParseDeterministic(t *testing.T) {
	text := `<execute>echo 1</execute> <execute>echo 2</execute>`
	opts := Options{Whitelist: whitelist("execute")}
	a1, _ := Parse(text, opts)
	a2, _ := Parse(text, opts)
	if len(a1) != len(a2) {
		t.Fatalf("non-deterministic parse: %v vs %v", a1, a2)
	}
	for i := range a1 {
		if !reflect.DeepEqual(a1[i], a2[i]) {
			t.Fatalf("non-deterministic parse at %d: %v vs %v", i, a1[i], a2[i])
		}
	}
}

func TestParseFencedCodeBlockLegacyBehavior(t *testing.T) {
	text := "```\n<execute>echo fenced</execute>\n```"
	actions, _ := Parse(text, Options{Whitelist: whitelist("execute"), StrictInsideFences: false})
	if len(actions) != 1 {
		t.Fatalf("legacy behavior expects fenced tags to be treated as actions, got %d", len(actions))
	}
}

func TestParseStrictInsideFencesIgnoresFencedTags(t *testing.T) {
	text := "```\n<execute>echo fenced</execute>\n```\n<execute>echo real</execute>"
	actions, _ := Parse(text, Options{Whitelist: whitelist("execute"), StrictInsideFences: true})
	if len(actions) != 1 {
		t.Fatalf("expected only the non-fenced action, got %d", len(actions))
	}
	if actions[0].Args[""] != "echo real" {
		t.Fatalf("unexpected action survived: %v", actions[0])
	}
}
