package fitscore

import (
	"reflect"
	"testing"
	"time"

	statex "github.com/leadflowhq/leadflow/engine/state"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := New(Config{Threshold: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return calc
}

func slot(value string, confidence float64, status statex.SlotStatus) *statex.SlotValue {
	return &statex.SlotValue{
		Value:      value,
		Confidence: confidence,
		Status:     status,
		UpdatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestComputeEmptySlots(t *testing.T) {
	t.Parallel()

	calc := newCalculator(t)
	res := calc.Compute(map[string]*statex.SlotValue{})
	if res.Score != 0 {
		t.Fatalf("expected score 0, got %d", res.Score)
	}
}

func TestComputeAcceptedFullWeight(t *testing.T) {
	t.Parallel()

	calc := newCalculator(t)
	slots := map[string]*statex.SlotValue{
		statex.SlotNeed:       slot("automation", 0.9, statex.SlotAccepted),
		statex.SlotBudgetBand: slot("50k-100k", 0.85, statex.SlotAccepted),
	}
	res := calc.Compute(slots)
	if res.Score != 40 {
		t.Fatalf("expected score 40, got %d", res.Score)
	}
	if res.Breakdown[statex.SlotNeed] != 20 {
		t.Fatalf("expected need contribution 20, got %d", res.Breakdown[statex.SlotNeed])
	}
	if res.Breakdown[statex.SlotBudgetBand] != 20 {
		t.Fatalf("expected budget contribution 20, got %d", res.Breakdown[statex.SlotBudgetBand])
	}
}

func TestComputeSoftConfirmedDiscounted(t *testing.T) {
	t.Parallel()

	calc := newCalculator(t)
	slots := map[string]*statex.SlotValue{
		statex.SlotNeed: slot("automation", 0.7, statex.SlotSoftConfirmed),
	}
	res := calc.Compute(slots)
	// 20 * 0.7 rounds to 14.
	if res.Score != 14 {
		t.Fatalf("expected score 14, got %d", res.Score)
	}
}

func TestComputePendingContributesNothing(t *testing.T) {
	t.Parallel()

	calc := newCalculator(t)
	slots := map[string]*statex.SlotValue{
		statex.SlotClientName: slot("Alex", 0.9, statex.SlotAccepted),
		statex.SlotNeed:       slot("pricing", 0.5, statex.SlotPendingClarification),
	}
	res := calc.Compute(slots)
	if res.Score != 8 {
		t.Fatalf("expected only client_name contribution 8, got %d", res.Score)
	}
	if res.Breakdown[statex.SlotNeed] != 0 {
		t.Fatalf("pending slot must contribute 0, got %d", res.Breakdown[statex.SlotNeed])
	}
}

func TestComputeIdempotent(t *testing.T) {
	t.Parallel()

	calc := newCalculator(t)
	slots := map[string]*statex.SlotValue{
		statex.SlotNeed:        slot("automation", 0.72, statex.SlotSoftConfirmed),
		statex.SlotClientName:  slot("Alex", 0.95, statex.SlotAccepted),
		statex.SlotCompanyName: slot("Acme", 0.81, statex.SlotAccepted),
	}
	first := calc.Compute(slots)
	second := calc.Compute(slots)
	if first.Score != second.Score {
		t.Fatalf("scores differ across recomputation: %d vs %d", first.Score, second.Score)
	}
	if !reflect.DeepEqual(first.Breakdown, second.Breakdown) {
		t.Fatalf("breakdowns differ across recomputation: %v vs %v", first.Breakdown, second.Breakdown)
	}
}

func TestComputeClampsConfigurationDrift(t *testing.T) {
	t.Parallel()

	calc, err := New(Config{
		Threshold: 60,
		Weights:   map[string]int{"a": 80, "b": 70},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	slots := map[string]*statex.SlotValue{
		"a": slot("x", 0.9, statex.SlotAccepted),
		"b": slot("y", 0.9, statex.SlotAccepted),
	}
	res := calc.Compute(slots)
	if res.Score != 100 {
		t.Fatalf("expected clamped score 100, got %d", res.Score)
	}
}

func TestNewCopiesWeights(t *testing.T) {
	t.Parallel()

	weights := map[string]int{statex.SlotNeed: 20}
	calc, err := New(Config{Threshold: 60, Weights: weights})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slots := map[string]*statex.SlotValue{
		statex.SlotNeed: slot("automation", 0.9, statex.SlotAccepted),
	}
	before := calc.Compute(slots)

	// Mutating the config map after construction must not change scoring.
	weights[statex.SlotNeed] = 100
	after := calc.Compute(slots)
	if before.Score != 20 || after.Score != 20 {
		t.Fatalf("expected stable score 20, got %d then %d", before.Score, after.Score)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Threshold: 0}); err == nil {
		t.Fatal("expected error for zero threshold")
	}
	if _, err := New(Config{Threshold: 60, Weights: map[string]int{"a": -1}}); err == nil {
		t.Fatal("expected error for negative weight")
	}
}
