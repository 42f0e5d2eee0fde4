package llmextract

import (
	"testing"
	"time"

	statex "github.com/leadflowhq/leadflow/engine/state"
)

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	content := `[
		{"slot": "client_name", "value": "Alex", "confidence": 0.92},
		{"slot": "budget_band", "value": "10-20k", "confidence": 1.4},
		{"slot": "", "value": "dropped", "confidence": 0.9},
		{"slot": "need", "value": "", "confidence": 0.9},
		{"slot": "preferred_time", "value": "Tue 10:00", "confidence": 0.8,
		 "window_start": "2026-03-10T10:00:00Z", "window_end": "2026-03-10T10:30:00Z"}
	]`

	slots := parseCandidates("c1", content)
	if len(slots) != 3 {
		t.Fatalf("expected 3 usable candidates, got %d: %v", len(slots), slots)
	}
	if slots[0].Name != statex.SlotClientName || slots[0].Confidence != 0.92 {
		t.Fatalf("unexpected first slot %+v", slots[0])
	}
	// Out-of-range confidence is clamped, not dropped.
	if slots[1].Confidence != 1 {
		t.Fatalf("expected clamped confidence 1, got %v", slots[1].Confidence)
	}
	if slots[2].Window == nil {
		t.Fatalf("expected parsed window")
	}
	wantStart := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if !slots[2].Window.Start.Equal(wantStart) {
		t.Fatalf("unexpected window start %v", slots[2].Window.Start)
	}
}

func TestParseCandidatesMalformed(t *testing.T) {
	t.Parallel()

	for _, content := range []string{
		"",
		"Sure! Here are the slots you asked for.",
		`{"slot": "need"}`,
		"```json\nnot json\n```",
	} {
		if got := parseCandidates("c1", content); len(got) != 0 {
			t.Errorf("content %q: expected empty batch, got %v", content, got)
		}
	}
}

func TestParseCandidatesStripsFences(t *testing.T) {
	t.Parallel()

	content := "```json\n[{\"slot\": \"need\", \"value\": \"automation\", \"confidence\": 0.85}]\n```"
	slots := parseCandidates("c1", content)
	if len(slots) != 1 || slots[0].Name != statex.SlotNeed {
		t.Fatalf("expected fenced JSON to parse, got %v", slots)
	}
}

func TestParseWindowRejectsInverted(t *testing.T) {
	t.Parallel()

	if w := parseWindow("2026-03-10T11:00:00Z", "2026-03-10T10:00:00Z"); w != nil {
		t.Fatalf("inverted window must be rejected, got %+v", w)
	}
	if w := parseWindow("not-a-time", "2026-03-10T10:00:00Z"); w != nil {
		t.Fatalf("unparseable start must be rejected, got %+v", w)
	}
}
