package fitscore

import (
	"fmt"
	"math"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

// Config carries the scoring weights and the offer threshold. Weights should
// sum to 100 across all scorable slots; the final score is clamped to
// [0,100] regardless, so configuration drift degrades gracefully.
type Config struct {
	Threshold int            `split_words:"true" default:"60"`
	Weights   map[string]int `split_words:"true"`
}

// DefaultWeights mirrors the original qualification rubric: acknowledged
// problem 20, measurable volume 20, data access 15, decision maker 15
// (name 8 + company 7), budget 20, deadline 10.
func DefaultWeights() map[string]int {
	return map[string]int{
		statex.SlotNeed:          20,
		statex.SlotProcessVolume: 20,
		statex.SlotDataAccess:    15,
		statex.SlotClientName:    8,
		statex.SlotCompanyName:   7,
		statex.SlotBudgetBand:    20,
		statex.SlotDeadline:      10,
	}
}

// Result is a computed score with its per-slot breakdown.
type Result struct {
	Score     int
	Breakdown map[string]int
}

// MeetsThreshold reports whether the score reaches the configured threshold.
func (r Result) MeetsThreshold(threshold int) bool {
	return r.Score >= threshold
}

// Calculator derives a 0-100 qualification score from the slot mapping.
// Compute is pure: the same slot set always yields the same score and
// breakdown.
type Calculator struct {
	threshold int
	weights   map[string]int
}

func New(cfg Config) (*Calculator, error) {
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 100 {
		return nil, fmt.Errorf("%w: fit-score threshold must be in (0,100], got %d", contractx.ErrValidation, threshold)
	}

	source := cfg.Weights
	if len(source) == 0 {
		source = DefaultWeights()
	}
	// Copied so a caller mutating the config map later cannot change scoring.
	weights := make(map[string]int, len(source))
	for name, w := range source {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight %d for slot %q", contractx.ErrValidation, w, name)
		}
		weights[name] = w
	}

	return &Calculator{threshold: threshold, weights: weights}, nil
}

func (c *Calculator) Threshold() int {
	return c.threshold
}

// Compute scores the slot mapping. Accepted slots contribute their full
// weight, soft-confirmed slots a confidence-discounted weight, pending ones
// nothing. Non-scorable slots are ignored.
func (c *Calculator) Compute(slots map[string]*statex.SlotValue) Result {
	breakdown := make(map[string]int, len(c.weights))
	total := 0

	for name, weight := range c.weights {
		contribution := 0
		if slot, ok := slots[name]; ok && slot != nil {
			switch slot.Status {
			case statex.SlotAccepted:
				contribution = weight
			case statex.SlotSoftConfirmed:
				contribution = int(math.Round(float64(weight) * slot.Confidence))
			}
		}
		breakdown[name] = contribution
		total += contribution
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return Result{Score: total, Breakdown: breakdown}
}
