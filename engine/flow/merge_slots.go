package flownode

import (
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	policyx "github.com/leadflowhq/leadflow/engine/policy"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

// MergeSlots gates every candidate through the confidence policy and merges
// it into the conversation. One SlotExtracted event per candidate; a
// SlotAccepted event when the merge left the slot usable (accepted or
// soft-confirmed) with the candidate applied.
func MergeSlots(in *GraphState, policy policyx.Config) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	for _, candidate := range in.Candidates {
		action := policy.Classify(candidate.Confidence)
		status, outcome := in.Conversation.ApplySlot(candidate.Name, candidate, action, in.Now)

		in.emit(eventbusx.KindSlotExtracted, eventbusx.SlotExtractedPayload{
			Slot:       candidate.Name,
			Value:      candidate.Value,
			Confidence: candidate.Confidence,
			Status:     string(status),
			Outcome:    string(outcome),
		})
		if status.Usable() && outcome == statex.MergeApplied {
			in.emit(eventbusx.KindSlotAccepted, eventbusx.SlotAcceptedPayload{
				Slot:       candidate.Name,
				Value:      candidate.Value,
				Confidence: candidate.Confidence,
				Status:     string(status),
			})
		}
	}
	return in, nil
}
