package flownode

import (
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

// RecordObjection appends the detected objection to the conversation's
// bounded history. No stage movement happens here: an objection pauses
// advancement only through the slots it left unfilled.
func RecordObjection(in *GraphState) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}
	if in.Objection != "" {
		in.Conversation.AddObjection(in.Objection, in.ObjectionMessage, in.Now)
	}
	return in, nil
}
