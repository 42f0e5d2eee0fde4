package contract

import "time"

// Window is a proposed meeting time range, UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Valid reports whether the window is a non-empty forward range.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && w.End.After(w.Start)
}

// ExtractedSlot is one candidate fact produced by the external extractor.
// Window is set only for time-like slots the extractor resolved to a range.
type ExtractedSlot struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Window     *Window `json:"window,omitempty"`
}

// ReservationRef identifies a reservation made on the external calendar.
type ReservationRef struct {
	ID     string `json:"id"`
	HoldID string `json:"hold_id"`
}
