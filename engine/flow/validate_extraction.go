package flownode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	eventbusx "github.com/leadflowhq/leadflow/engine/eventbus"
	statex "github.com/leadflowhq/leadflow/engine/state"
)

var ErrInvalidConversation = errors.New("conversation id is empty")

// GraphInput is one extraction batch for one conversation. Objection, when
// set, is the classified objection type detected in the source message.
type GraphInput struct {
	ConversationID   string
	Candidates       []contractx.ExtractedSlot
	Objection        string
	ObjectionMessage string
}

// GraphOutput is the pipeline result. Events are collected, not yet
// published: the caller publishes them only after the run committed, so a
// retried run never double-publishes.
type GraphOutput struct {
	Conversation  *statex.Conversation
	Missing       []string
	ScheduleReady bool
	Events        []eventbusx.Event
}

// GraphState threads through the pipeline nodes.
type GraphState struct {
	ConversationID   string
	Candidates       []contractx.ExtractedSlot
	Objection        string
	ObjectionMessage string
	Now              time.Time

	Conversation *statex.Conversation
	PrevStage    statex.Stage
	PrevScore    int
	Created      bool

	Missing []string
	Events  []eventbusx.Event
}

func (s *GraphState) emit(kind eventbusx.Kind, payload any) {
	s.Events = append(s.Events, eventbusx.New(s.ConversationID, kind, payload, s.Now))
}

func ValidateExtraction(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}
	for _, c := range in.Candidates {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("%w: extracted slot has no name", contractx.ErrValidation)
		}
	}

	return &GraphState{
		ConversationID:   conversationID,
		Candidates:       in.Candidates,
		Objection:        in.Objection,
		ObjectionMessage: in.ObjectionMessage,
		Now:              nowFn().UTC(),
	}, nil
}
