package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
)

// LoopbackCalendar is a CalendarBackend for deployments without an external
// calendar: every reservation succeeds with a generated reference. Repeat
// calls with the same idempotency key return the same reference.
type LoopbackCalendar struct {
	mu   sync.Mutex
	refs map[string]contractx.ReservationRef
}

var _ contractx.CalendarBackend = (*LoopbackCalendar)(nil)

func NewLoopbackCalendar() *LoopbackCalendar {
	return &LoopbackCalendar{refs: make(map[string]contractx.ReservationRef)}
}

func (c *LoopbackCalendar) Reserve(ctx context.Context, idempotencyKey string, window contractx.Window) (contractx.ReservationRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ref, ok := c.refs[idempotencyKey]; ok {
		return ref, nil
	}
	ref := contractx.ReservationRef{ID: uuid.NewString(), HoldID: idempotencyKey}
	c.refs[idempotencyKey] = ref
	return ref, nil
}
