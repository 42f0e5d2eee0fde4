package flownode

import (
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

// AdvanceStage moves the conversation forward while every requirement for
// the current stage is satisfied. Advancement past presentation additionally
// requires the fit score to have reached the offer threshold, so unqualified
// conversations never see a consultation offer. A single batch can advance
// several stages. Missing always reflects the stage the conversation lands
// on.
func AdvanceStage(in *GraphState, requirements statex.Requirements, offerThreshold int) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	conv := in.Conversation

	for !conv.Stage.Terminal() {
		if !requirements.Satisfied(conv.Stage, conv) {
			break
		}
		if conv.Stage == statex.StagePresentation && conv.FitScore < offerThreshold {
			break
		}
		next, ok := conv.Stage.Next()
		if !ok {
			break
		}
		in.emit(eventbusx.KindStageChanged, eventbusx.StageChangedPayload{
			From: string(conv.Stage),
			To:   string(next),
		})
		conv.Stage = next
	}

	in.Missing = requirements.Missing(conv.Stage, conv)
	return in, nil
}
