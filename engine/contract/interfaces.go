package contract

import "context"

// Extractor turns raw text into candidate slot values. Implementations may
// block on network calls; callers enforce a timeout through ctx. An empty
// batch is a valid result.
type Extractor interface {
	Extract(ctx context.Context, conversationID, rawText string) ([]ExtractedSlot, error)
}

// CalendarBackend reserves real-world time. Reserve must be idempotent with
// respect to the key: a retried call with the same key yields the same
// reservation, never a second one.
type CalendarBackend interface {
	Reserve(ctx context.Context, idempotencyKey string, window Window) (ReservationRef, error)
}
