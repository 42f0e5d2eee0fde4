package flownode

import (
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	fitscorex "github.com/leadflowhq/leadflow/engine/fitscore"
)

// RecomputeFitScore rescores the conversation after the merge. The threshold
// event fires only on the upward crossing: staying above the threshold, or
// falling back below it, is silent.
func RecomputeFitScore(in *GraphState, calc *fitscorex.Calculator) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	result := calc.Compute(in.Conversation.Slots)
	in.Conversation.FitScore = result.Score

	if in.PrevScore < calc.Threshold() && result.MeetsThreshold(calc.Threshold()) {
		in.emit(eventbusx.KindFitScoreCrossedThreshold, eventbusx.FitScoreCrossedThresholdPayload{
			Previous:  in.PrevScore,
			Score:     result.Score,
			Threshold: calc.Threshold(),
			Breakdown: result.Breakdown,
		})
	}
	return in, nil
}
