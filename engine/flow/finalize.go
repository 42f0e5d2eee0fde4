package flownode

import (
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

// Finalize assembles the committed result. ScheduleReady signals that the
// conversation reached the scheduling stage with a concrete proposed window;
// the caller decides whether consent allows acting on it.
func Finalize(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Conversation == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	conv := in.Conversation

	ready := conv.Stage == statex.StageScheduling &&
		conv.ProposedWindow != nil &&
		conv.ProposedWindow.Valid() &&
		conv.HoldID == ""

	return GraphOutput{
		Conversation:  conv.Clone(),
		Missing:       in.Missing,
		ScheduleReady: ready,
		Events:        in.Events,
	}, nil
}
