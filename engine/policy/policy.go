package policy

import (
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

// Action is the gate decision for one extracted slot value.
type Action string

const (
	// ActionClarify: the value is stored pending clarification and does not
	// count toward stage advancement or fit-score.
	ActionClarify Action = "clarify"
	// ActionSoftConfirm: the value is usable provisionally and counts toward
	// fit-score at a weight proportional to its confidence.
	ActionSoftConfirm Action = "soft_confirm"
	// ActionAccept: the value is used directly at full weight, no prompt.
	ActionAccept Action = "accept"
)

// Config holds the confidence thresholds. Boundary values belong to the
// higher bucket: Classify(ClarifyBelow) is soft-confirm, Classify(AcceptAt)
// is accept.
type Config struct {
	ClarifyBelow float64 `split_words:"true" default:"0.6"`
	AcceptAt     float64 `split_words:"true" default:"0.8"`
}

var DefaultConfig = Config{
	ClarifyBelow: 0.6,
	AcceptAt:     0.8,
}

func (c Config) Validate() error {
	if c.ClarifyBelow < 0 || c.AcceptAt > 1 || c.ClarifyBelow > c.AcceptAt {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= clarify_below <= accept_at <= 1, got %.2f/%.2f",
			contractx.ErrValidation, c.ClarifyBelow, c.AcceptAt)
	}
	return nil
}

// Classify maps a confidence to an action. Pure and deterministic; inputs
// outside [0,1] are clamped.
func (c Config) Classify(confidence float64) Action {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	switch {
	case confidence < c.ClarifyBelow:
		return ActionClarify
	case confidence < c.AcceptAt:
		return ActionSoftConfirm
	default:
		return ActionAccept
	}
}
