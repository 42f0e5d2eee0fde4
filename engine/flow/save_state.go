package flownode

import (
	"context"
	"fmt"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

func SaveConversation(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	in.Conversation.Touch(in.Now)
	if err := in.Conversation.Validate(); err != nil {
		return nil, fmt.Errorf("conversation validation failed: %w", err)
	}
	if err := store.Save(ctx, in.Conversation); err != nil {
		return nil, err
	}
	return in, nil
}
