package model

import "testing"

func TestNewModelSpecClampsSafetyFraction(t *testing.T) {
	spec := NewModelSpec(Options{
		ModelID:                "test/model",
		MaxContextWindowTokens: 100000,
		SafetyFraction:         0.99,
	})
	if spec.SafetyFraction != maxSafetyFraction {
		t.Fatalf("expected clamp to %v, got %v", maxSafetyFraction, spec.SafetyFraction)
	}
	if spec.MaxHistoryTokens > spec.MaxContextWindowTokens {
		t.Fatalf("invariant violated: MaxHistoryTokens %d > MaxContextWindowTokens %d",
			spec.MaxHistoryTokens, spec.MaxContextWindowTokens)
	}
}

func TestNewModelSpecDefaultSafetyFraction(t *testing.T) {
	spec := NewModelSpec(Options{ModelID: "x", MaxContextWindowTokens: 10000})
	if spec.SafetyFraction != defaultSafetyFraction {
		t.Fatalf("expected default %v, got %v", defaultSafetyFraction, spec.SafetyFraction)
	}
	if spec.MaxHistoryTokens != 8500 {
		t.Fatalf("expected 8500, got %d", spec.MaxHistoryTokens)
	}
}

func TestDetectReasoningStyle(t *testing.T) {
	cases := []struct {
		modelID string
		want    ReasoningStyle
	}{
		{"openai/o1-preview", ReasoningEffort},
		{"openai/o3-mini", ReasoningEffort},
		{"deepseek/deepseek-r1", ReasoningEffort},
		{"anthropic/claude-3-7-sonnet", ReasoningMaxTokens},
		{"anthropic/claude-sonnet-4-5", ReasoningMaxTokens},
		{"openai/gpt-4o", ReasoningNone},
		{"google/gemini-2.5-pro", ReasoningMaxTokens},
		{"google/gemini-2.0-flash-thinking", ReasoningMaxTokens},
		{"google/gemini-2.0-flash", ReasoningNone},
		{"x-ai/grok-4", ReasoningEffort},
		{"openai/gpt-5.2", ReasoningEffort},
		{"openai/gpt-6", ReasoningEffort},
	}
	for _, c := range cases {
		style, _, _ := DetectReasoningStyle(c.modelID)
		if style != c.want {
			t.Errorf("DetectReasoningStyle(%q) = %v, want %v", c.modelID, style, c.want)
		}
	}
}

func TestNewModelSpecExplicitReasoningOverridesDetection(t *testing.T) {
	spec := NewModelSpec(Options{
		ModelID:                "openai/o1-preview",
		MaxContextWindowTokens: 10000,
		ReasoningStyle:         ReasoningNone,
	})
	if spec.ReasoningStyle != ReasoningNone {
		t.Fatalf("expected explicit override to win, got %v", spec.ReasoningStyle)
	}
}

func TestRegistryResolveUnknownModel(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("missing/model"); err == nil {
		t.Fatal("expected ConfigError for unknown model id")
	}
}

func TestRegistryResolveKnownModel(t *testing.T) {
	r := NewRegistry()
	spec := NewModelSpec(Options{ModelID: "a/b", MaxContextWindowTokens: 1000})
	if err := r.Register(spec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := r.Resolve("a/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != spec {
		t.Fatal("expected same pointer back")
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	spec1 := NewModelSpec(Options{ModelID: "a/b", MaxContextWindowTokens: 1000})
	_ = r.Register(spec1)

	spec2 := NewModelSpec(Options{ModelID: "a/b", MaxContextWindowTokens: 2000})
	if err := r.Replace(spec2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := r.Resolve("a/b")
	if got.MaxContextWindowTokens != 2000 {
		t.Fatalf("expected replaced spec, got %+v", got)
	}
}
