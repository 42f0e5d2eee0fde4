package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/leadflowhq/leadflow/engine/contract"
	policyx "github.com/leadflowhq/leadflow/engine/policy"
)

// Stage is the dialogue stage of one conversation. Transitions are
// forward-only through the ordered sequence; Closed and Abandoned are
// terminal.
type Stage string

const (
	StageGreeting          Stage = "greeting"
	StageNeedsDiscovery    Stage = "needs_discovery"
	StagePresentation      Stage = "presentation"
	StageConsultationOffer Stage = "consultation_offer"
	StageScheduling        Stage = "scheduling"
	StageClosed            Stage = "closed"
	StageAbandoned         Stage = "abandoned"
)

var stageOrder = []Stage{
	StageGreeting,
	StageNeedsDiscovery,
	StagePresentation,
	StageConsultationOffer,
	StageScheduling,
}

func (s Stage) Terminal() bool {
	return s == StageClosed || s == StageAbandoned
}

// Next returns the following stage in sequence. Scheduling has no automatic
// successor: Closed is reached only through an explicit close.
func (s Stage) Next() (Stage, bool) {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return s, false
}

func (s Stage) Valid() bool {
	if s.Terminal() {
		return true
	}
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// SlotStatus is the acceptance status of a stored slot value.
type SlotStatus string

const (
	SlotPendingClarification SlotStatus = "pending_clarification"
	SlotSoftConfirmed        SlotStatus = "soft_confirmed"
	SlotAccepted             SlotStatus = "accepted"
)

// Usable reports whether the slot counts toward stage advancement.
func (s SlotStatus) Usable() bool {
	return s == SlotAccepted || s == SlotSoftConfirmed
}

// SlotValue is a named fact collected from the conversation.
type SlotValue struct {
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Status     SlotStatus `json:"status"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ObjectionRecord is one classified objection kept for audit.
type ObjectionRecord struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const (
	maxObjectionHistory = 10
	maxObjectionMessage = 200
)

// Conversation is the per-counterpart dialogue record. It is owned by the
// dialogue engine and mutated only under the engine's per-conversation
// exclusion scope; other components read snapshots or react to events.
type Conversation struct {
	ID    string                `json:"id"`
	Stage Stage                 `json:"stage"`
	Slots map[string]*SlotValue `json:"slots,omitempty"`

	FitScore          int               `json:"fit_score"`
	ConsentRecordedAt *time.Time        `json:"consent_recorded_at,omitempty"`
	HoldID            string            `json:"hold_id,omitempty"`
	PendingScheduling bool              `json:"pending_scheduling,omitempty"`
	ProposedWindow    *contractx.Window `json:"proposed_window,omitempty"`
	Objections        []ObjectionRecord `json:"objections,omitempty"`

	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

var (
	ErrNilConversation = errors.New("conversation is nil")
	ErrInvalidID       = errors.New("conversation id is empty")
)

func NewConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:             id,
		Stage:          StageGreeting,
		Slots:          make(map[string]*SlotValue, 8),
		Version:        1,
		CreatedAt:      now.UTC(),
		LastActivityAt: now.UTC(),
	}
}

func (c *Conversation) Touch(now time.Time) {
	c.LastActivityAt = now.UTC()
}

func (c *Conversation) EnsureSlotsMap() {
	if c.Slots == nil {
		c.Slots = make(map[string]*SlotValue, 8)
	}
}

// Slot returns the stored value for name, or nil.
func (c *Conversation) Slot(name string) *SlotValue {
	if c == nil || c.Slots == nil {
		return nil
	}
	return c.Slots[name]
}

// MergeOutcome describes what ApplySlot did with a candidate.
type MergeOutcome string

const (
	// MergeApplied: the candidate value was stored.
	MergeApplied MergeOutcome = "applied"
	// MergeIgnored: a lower-confidence repeat of an accepted value was dropped.
	MergeIgnored MergeOutcome = "ignored"
	// MergeReclarify: the candidate conflicts with an accepted value and the
	// slot was demoted to pending clarification with the new candidate.
	MergeReclarify MergeOutcome = "reclarify"
)

// ApplySlot merges one extracted candidate under the given policy action.
// Invariants: an accepted slot never loses confidence to a repeat of the
// same value; a conflicting value below the accept threshold triggers a
// reclarification cycle instead of a silent downgrade.
func (c *Conversation) ApplySlot(name string, candidate contractx.ExtractedSlot, action policyx.Action, now time.Time) (SlotStatus, MergeOutcome) {
	c.EnsureSlotsMap()

	status := statusForAction(action)
	existing := c.Slots[name]

	if existing != nil && existing.Status == SlotAccepted {
		if candidate.Value == existing.Value {
			if candidate.Confidence >= existing.Confidence {
				existing.Confidence = candidate.Confidence
				existing.UpdatedAt = now.UTC()
				return SlotAccepted, MergeApplied
			}
			return SlotAccepted, MergeIgnored
		}
		if action != policyx.ActionAccept {
			status = SlotPendingClarification
			c.setSlot(name, candidate, status, now)
			return status, MergeReclarify
		}
	}

	c.setSlot(name, candidate, status, now)
	return status, MergeApplied
}

func (c *Conversation) setSlot(name string, candidate contractx.ExtractedSlot, status SlotStatus, now time.Time) {
	c.Slots[name] = &SlotValue{
		Value:      candidate.Value,
		Confidence: candidate.Confidence,
		Status:     status,
		UpdatedAt:  now.UTC(),
	}
	if candidate.Window != nil && candidate.Window.Valid() && status.Usable() {
		w := *candidate.Window
		c.ProposedWindow = &w
	}
}

func statusForAction(action policyx.Action) SlotStatus {
	switch action {
	case policyx.ActionAccept:
		return SlotAccepted
	case policyx.ActionSoftConfirm:
		return SlotSoftConfirmed
	default:
		return SlotPendingClarification
	}
}

// AddObjection appends a classified objection, truncating the message and
// capping history length.
func (c *Conversation) AddObjection(objectionType, message string, now time.Time) {
	if len(message) > maxObjectionMessage {
		message = message[:maxObjectionMessage]
	}
	c.Objections = append(c.Objections, ObjectionRecord{
		Type:    objectionType,
		Message: message,
		At:      now.UTC(),
	})
	if len(c.Objections) > maxObjectionHistory {
		c.Objections = c.Objections[len(c.Objections)-maxObjectionHistory:]
	}
}

// RecordConsent mirrors the ledger's record on the conversation snapshot for
// audit. Earliest timestamp wins, matching the ledger.
func (c *Conversation) RecordConsent(at time.Time) {
	at = at.UTC()
	if c.ConsentRecordedAt == nil || at.Before(*c.ConsentRecordedAt) {
		c.ConsentRecordedAt = &at
	}
}

func (c *Conversation) HasConsent() bool {
	return c != nil && c.ConsentRecordedAt != nil
}

// Clone returns a deep copy. Stores hand out clones so callers never alias
// the stored record.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Slots = make(map[string]*SlotValue, len(c.Slots))
	for k, v := range c.Slots {
		sv := *v
		cp.Slots[k] = &sv
	}
	if c.ProposedWindow != nil {
		w := *c.ProposedWindow
		cp.ProposedWindow = &w
	}
	if c.ConsentRecordedAt != nil {
		t := *c.ConsentRecordedAt
		cp.ConsentRecordedAt = &t
	}
	cp.Objections = append([]ObjectionRecord(nil), c.Objections...)
	return &cp
}

func (c *Conversation) Validate() error {
	if c == nil {
		return ErrNilConversation
	}
	if c.ID == "" {
		return ErrInvalidID
	}
	if !c.Stage.Valid() {
		return fmt.Errorf("invalid stage %q for conversation %s", c.Stage, c.ID)
	}
	for name, slot := range c.Slots {
		if slot == nil {
			return fmt.Errorf("nil slot %q for conversation %s", name, c.ID)
		}
		if slot.Confidence < 0 || slot.Confidence > 1 {
			return fmt.Errorf("slot %q confidence %.2f out of range for conversation %s", name, slot.Confidence, c.ID)
		}
	}
	return nil
}
