package scheduler

import (
	"time"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

// HoldStatus is the lifecycle status of a tentative hold.
type HoldStatus string

const (
	HoldPending   HoldStatus = "pending"
	HoldConfirmed HoldStatus = "confirmed"
	HoldExpired   HoldStatus = "expired"
	HoldReleased  HoldStatus = "released"
)

// Terminal reports whether the status admits no further transitions.
func (s HoldStatus) Terminal() bool {
	return s == HoldExpired || s == HoldReleased
}

// TentativeHold is a provisional reservation tied to exactly one
// conversation. The conversation keeps only the hold identifier; the hold is
// owned by the scheduler. At most one non-terminal hold exists per
// conversation at a time.
type TentativeHold struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Window         contractx.Window `json:"window"`
	Status         HoldStatus       `json:"status"`
	ReservationRef string           `json:"reservation_ref,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	Version        int64            `json:"version"`
}

// Active reports whether the hold blocks new holds for its conversation.
func (h *TentativeHold) Active() bool {
	return h != nil && !h.Status.Terminal()
}

func (h *TentativeHold) Clone() *TentativeHold {
	if h == nil {
		return nil
	}
	cp := *h
	return &cp
}
