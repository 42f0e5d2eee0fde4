package flownode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

func LoadOrCreateConversation(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	conv, err := store.Load(ctx, in.ConversationID)
	if err != nil {
		if !errors.Is(err, statex.ErrNotFound) {
			return nil, err
		}
		conv = statex.NewConversation(in.ConversationID, in.Now)
		in.Created = true
	}
	if conv.Stage.Terminal() {
		return nil, fmt.Errorf("%w: conversation %s is %s", contractx.ErrConflict, conv.ID, conv.Stage)
	}

	in.Conversation = conv
	in.PrevStage = conv.Stage
	in.PrevScore = conv.FitScore
	return in, nil
}
