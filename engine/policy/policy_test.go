package policy

import "testing"

func TestClassifyBuckets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		confidence float64
		want       Action
	}{
		{"zero", 0.0, ActionClarify},
		{"low", 0.3, ActionClarify},
		{"just below clarify boundary", 0.59, ActionClarify},
		{"clarify boundary belongs to soft confirm", 0.6, ActionSoftConfirm},
		{"mid", 0.7, ActionSoftConfirm},
		{"just below accept boundary", 0.79, ActionSoftConfirm},
		{"accept boundary belongs to accept", 0.8, ActionAccept},
		{"high", 0.95, ActionAccept},
		{"one", 1.0, ActionAccept},
	}

	cfg := DefaultConfig
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cfg.Classify(tc.confidence); got != tc.want {
				t.Fatalf("Classify(%.2f) = %s, want %s", tc.confidence, got, tc.want)
			}
		})
	}
}

func TestClassifyClampsOutOfRange(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig
	if got := cfg.Classify(-0.5); got != ActionClarify {
		t.Fatalf("Classify(-0.5) = %s, want %s", got, ActionClarify)
	}
	if got := cfg.Classify(1.5); got != ActionAccept {
		t.Fatalf("Classify(1.5) = %s, want %s", got, ActionAccept)
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	t.Parallel()

	cfg := Config{ClarifyBelow: 0.5, AcceptAt: 0.9}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if got := cfg.Classify(0.55); got != ActionSoftConfirm {
		t.Fatalf("Classify(0.55) = %s, want %s", got, ActionSoftConfirm)
	}
	if got := cfg.Classify(0.85); got != ActionSoftConfirm {
		t.Fatalf("Classify(0.85) = %s, want %s", got, ActionSoftConfirm)
	}
	if got := cfg.Classify(0.9); got != ActionAccept {
		t.Fatalf("Classify(0.9) = %s, want %s", got, ActionAccept)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	t.Parallel()

	cfg := Config{ClarifyBelow: 0.8, AcceptAt: 0.6}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for inverted thresholds")
	}
}
