package eventbus

import (
	"time"

	"github.com/google/uuid"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

// Kind tags a domain event.
type Kind string

const (
	KindMessageReceived          Kind = "message.received"
	KindSlotExtracted            Kind = "slot.extracted"
	KindSlotAccepted             Kind = "slot.accepted"
	KindStageChanged             Kind = "stage.changed"
	KindFitScoreCrossedThreshold Kind = "fitscore.crossed_threshold"
	KindConsentRecorded          Kind = "consent.recorded"
	KindMeetingTentativelyHeld   Kind = "meeting.tentatively_held"
	KindMeetingConfirmed         Kind = "meeting.confirmed"
	KindMeetingExpired           Kind = "meeting.expired"
	KindMeetingReleased          Kind = "meeting.released"
	KindSchedulerDegraded        Kind = "scheduler.degraded"
)

// Event is an immutable record of a state change, published once per causal
// occurrence. Delivery to a single subscriber preserves publication order
// for the same conversation.
type Event struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Kind           Kind      `json:"kind"`
	Payload        any       `json:"payload,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// New builds an event with a fresh identifier.
func New(conversationID string, kind Kind, payload any, now time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Kind:           kind,
		Payload:        payload,
		OccurredAt:     now.UTC(),
	}
}

// Typed payloads, one struct per kind.

type MessageReceivedPayload struct {
	Text string `json:"text"`
}

type SlotExtractedPayload struct {
	Slot       string  `json:"slot"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Outcome    string  `json:"outcome"`
}

type SlotAcceptedPayload struct {
	Slot       string  `json:"slot"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
}

type StageChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type FitScoreCrossedThresholdPayload struct {
	Previous  int            `json:"previous"`
	Score     int            `json:"score"`
	Threshold int            `json:"threshold"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

type ConsentRecordedPayload struct {
	RecordedAt time.Time `json:"recorded_at"`
}

type MeetingTentativelyHeldPayload struct {
	HoldID    string           `json:"hold_id"`
	Window    contractx.Window `json:"window"`
	ExpiresAt time.Time        `json:"expires_at"`
}

type MeetingConfirmedPayload struct {
	HoldID         string `json:"hold_id"`
	ReservationRef string `json:"reservation_ref"`
}

type MeetingExpiredPayload struct {
	HoldID string `json:"hold_id"`
}

type MeetingReleasedPayload struct {
	HoldID string `json:"hold_id"`
}

type SchedulerDegradedPayload struct {
	HoldID string `json:"hold_id"`
	Reason string `json:"reason"`
}
