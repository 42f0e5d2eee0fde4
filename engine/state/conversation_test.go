package state

import (
	"strings"
	"testing"
	"time"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	policyx "github.com/leadflowhq/leadflow/engine/policy"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestStageNext(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stage Stage
		next  Stage
		ok    bool
	}{
		{StageGreeting, StageNeedsDiscovery, true},
		{StageNeedsDiscovery, StagePresentation, true},
		{StagePresentation, StageConsultationOffer, true},
		{StageConsultationOffer, StageScheduling, true},
		{StageScheduling, StageScheduling, false},
		{StageClosed, StageClosed, false},
		{StageAbandoned, StageAbandoned, false},
	}
	for _, tc := range cases {
		next, ok := tc.stage.Next()
		if next != tc.next || ok != tc.ok {
			t.Errorf("Next(%s) = %s, %v; want %s, %v", tc.stage, next, ok, tc.next, tc.ok)
		}
	}
}

func TestApplySlotStatusFollowsAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		action policyx.Action
		want   SlotStatus
	}{
		{policyx.ActionAccept, SlotAccepted},
		{policyx.ActionSoftConfirm, SlotSoftConfirmed},
		{policyx.ActionClarify, SlotPendingClarification},
	}
	for _, tc := range cases {
		c := NewConversation("c1", testNow)
		status, outcome := c.ApplySlot(SlotNeed, contractx.ExtractedSlot{
			Name: SlotNeed, Value: "automation", Confidence: 0.7,
		}, tc.action, testNow)
		if status != tc.want || outcome != MergeApplied {
			t.Errorf("action %s: got %s/%s, want %s/applied", tc.action, status, outcome, tc.want)
		}
	}
}

func TestApplySlotAcceptedRepeatNeverLosesConfidence(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", testNow)
	c.ApplySlot(SlotCompanyName, contractx.ExtractedSlot{Value: "Acme", Confidence: 0.9}, policyx.ActionAccept, testNow)

	// Lower-confidence repeat of the same value is ignored.
	status, outcome := c.ApplySlot(SlotCompanyName, contractx.ExtractedSlot{Value: "Acme", Confidence: 0.65}, policyx.ActionSoftConfirm, testNow.Add(time.Minute))
	if status != SlotAccepted || outcome != MergeIgnored {
		t.Fatalf("got %s/%s, want accepted/ignored", status, outcome)
	}
	if slot := c.Slot(SlotCompanyName); slot.Confidence != 0.9 {
		t.Fatalf("confidence degraded to %.2f", slot.Confidence)
	}

	// Higher-confidence repeat refreshes.
	status, outcome = c.ApplySlot(SlotCompanyName, contractx.ExtractedSlot{Value: "Acme", Confidence: 0.95}, policyx.ActionAccept, testNow.Add(2*time.Minute))
	if status != SlotAccepted || outcome != MergeApplied {
		t.Fatalf("got %s/%s, want accepted/applied", status, outcome)
	}
	if slot := c.Slot(SlotCompanyName); slot.Confidence != 0.95 {
		t.Fatalf("confidence not refreshed, got %.2f", slot.Confidence)
	}
}

func TestApplySlotConflictTriggersReclarification(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", testNow)
	c.ApplySlot(SlotBudgetBand, contractx.ExtractedSlot{Value: "10-20k", Confidence: 0.9}, policyx.ActionAccept, testNow)

	// A conflicting value below the accept bar demotes the slot and carries
	// the new candidate forward for clarification.
	status, outcome := c.ApplySlot(SlotBudgetBand, contractx.ExtractedSlot{Value: "under 5k", Confidence: 0.7}, policyx.ActionSoftConfirm, testNow.Add(time.Minute))
	if status != SlotPendingClarification || outcome != MergeReclarify {
		t.Fatalf("got %s/%s, want pending_clarification/reclarify", status, outcome)
	}
	slot := c.Slot(SlotBudgetBand)
	if slot.Value != "under 5k" || slot.Status.Usable() {
		t.Fatalf("expected unusable candidate %q, got %+v", "under 5k", slot)
	}

	// The clarification answer re-accepts.
	status, outcome = c.ApplySlot(SlotBudgetBand, contractx.ExtractedSlot{Value: "under 5k", Confidence: 0.92}, policyx.ActionAccept, testNow.Add(2*time.Minute))
	if status != SlotAccepted || outcome != MergeApplied {
		t.Fatalf("got %s/%s, want accepted/applied", status, outcome)
	}
}

func TestApplySlotConfidentConflictOverwrites(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", testNow)
	c.ApplySlot(SlotClientName, contractx.ExtractedSlot{Value: "Alex", Confidence: 0.85}, policyx.ActionAccept, testNow)

	status, outcome := c.ApplySlot(SlotClientName, contractx.ExtractedSlot{Value: "Alexander", Confidence: 0.95}, policyx.ActionAccept, testNow.Add(time.Minute))
	if status != SlotAccepted || outcome != MergeApplied {
		t.Fatalf("got %s/%s, want accepted/applied", status, outcome)
	}
	if slot := c.Slot(SlotClientName); slot.Value != "Alexander" {
		t.Fatalf("expected overwrite, got %q", slot.Value)
	}
}

func TestApplySlotCapturesProposedWindow(t *testing.T) {
	t.Parallel()

	window := contractx.Window{
		Start: testNow.Add(48 * time.Hour),
		End:   testNow.Add(48*time.Hour + 30*time.Minute),
	}

	c := NewConversation("c1", testNow)
	c.ApplySlot(SlotPreferredTime, contractx.ExtractedSlot{
		Value: "Tuesday 10:00", Confidence: 0.55, Window: &window,
	}, policyx.ActionClarify, testNow)
	if c.ProposedWindow != nil {
		t.Fatalf("unusable slot must not set the window")
	}

	c.ApplySlot(SlotPreferredTime, contractx.ExtractedSlot{
		Value: "Tuesday 10:00", Confidence: 0.9, Window: &window,
	}, policyx.ActionAccept, testNow)
	if c.ProposedWindow == nil || !c.ProposedWindow.Start.Equal(window.Start) {
		t.Fatalf("expected captured window, got %+v", c.ProposedWindow)
	}
}

func TestRecordConsentEarliestWins(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", testNow)
	c.RecordConsent(testNow.Add(time.Hour))
	c.RecordConsent(testNow) // earlier, wins
	c.RecordConsent(testNow.Add(2 * time.Hour))

	if !c.HasConsent() || !c.ConsentRecordedAt.Equal(testNow) {
		t.Fatalf("expected earliest consent %v, got %v", testNow, c.ConsentRecordedAt)
	}
}

func TestAddObjectionCapsHistoryAndMessage(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", testNow)
	long := strings.Repeat("x", 300)
	for i := 0; i < 15; i++ {
		c.AddObjection("price", long, testNow.Add(time.Duration(i)*time.Minute))
	}

	if len(c.Objections) != maxObjectionHistory {
		t.Fatalf("expected %d objections, got %d", maxObjectionHistory, len(c.Objections))
	}
	if got := len(c.Objections[0].Message); got != maxObjectionMessage {
		t.Fatalf("expected truncated message of %d, got %d", maxObjectionMessage, got)
	}
	// Oldest entries are evicted first.
	if !c.Objections[0].At.Equal(testNow.Add(5 * time.Minute)) {
		t.Fatalf("expected oldest kept objection at +5m, got %v", c.Objections[0].At)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	c := NewConversation("c1", testNow)
	c.ApplySlot(SlotNeed, contractx.ExtractedSlot{Value: "automation", Confidence: 0.9}, policyx.ActionAccept, testNow)
	c.RecordConsent(testNow)
	c.AddObjection("timing", "not before Q3", testNow)

	cp := c.Clone()
	cp.Slots[SlotNeed].Value = "mutated"
	cp.Objections[0].Type = "mutated"
	*cp.ConsentRecordedAt = testNow.Add(time.Hour)

	if c.Slots[SlotNeed].Value != "automation" {
		t.Fatalf("slot aliased through clone")
	}
	if c.Objections[0].Type != "timing" {
		t.Fatalf("objections aliased through clone")
	}
	if !c.ConsentRecordedAt.Equal(testNow) {
		t.Fatalf("consent timestamp aliased through clone")
	}
}

func TestRequirementsMissing(t *testing.T) {
	t.Parallel()

	reqs := DefaultRequirements()
	c := NewConversation("c1", testNow)

	missing := reqs.Missing(StageNeedsDiscovery, c)
	if len(missing) != 2 || missing[0] != SlotNeed || missing[1] != SlotCompanyName {
		t.Fatalf("unexpected missing set %v", missing)
	}

	c.ApplySlot(SlotNeed, contractx.ExtractedSlot{Value: "automation", Confidence: 0.7}, policyx.ActionSoftConfirm, testNow)
	c.ApplySlot(SlotCompanyName, contractx.ExtractedSlot{Value: "Acme", Confidence: 0.5}, policyx.ActionClarify, testNow)

	missing = reqs.Missing(StageNeedsDiscovery, c)
	if len(missing) != 1 || missing[0] != SlotCompanyName {
		t.Fatalf("pending slot must stay missing, got %v", missing)
	}
	if reqs.Satisfied(StageNeedsDiscovery, c) {
		t.Fatalf("stage must not be satisfied with a pending slot")
	}

	c.ApplySlot(SlotCompanyName, contractx.ExtractedSlot{Value: "Acme", Confidence: 0.85}, policyx.ActionAccept, testNow)
	if !reqs.Satisfied(StageNeedsDiscovery, c) {
		t.Fatalf("stage should be satisfied")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := (&Conversation{}).Validate(); err == nil {
		t.Fatalf("expected error for empty id")
	}

	c := NewConversation("c1", testNow)
	c.Slots["bad"] = &SlotValue{Value: "x", Confidence: 1.5, Status: SlotAccepted}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range confidence")
	}

	c = NewConversation("c1", testNow)
	c.Stage = Stage("limbo")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}
