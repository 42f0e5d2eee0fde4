package state

// Canonical slot names collected during a sales dialogue.
const (
	SlotClientName    = "client_name"
	SlotCompanyName   = "company_name"
	SlotContact       = "contact"
	SlotNeed          = "need"
	SlotProcessVolume = "process_volume"
	SlotDataAccess    = "data_access"
	SlotBudgetBand    = "budget_band"
	SlotDeadline      = "deadline"
	SlotPreferredTime = "preferred_time"
)

// Requirements maps each stage to the slots that must be usable (accepted or
// soft-confirmed) before the conversation advances past it.
type Requirements map[Stage][]string

// DefaultRequirements follows the original qualification script: identity
// first, then the need, then commercial framing, then a way to reach the
// counterpart.
func DefaultRequirements() Requirements {
	return Requirements{
		StageGreeting:          {SlotClientName},
		StageNeedsDiscovery:    {SlotNeed, SlotCompanyName},
		StagePresentation:      {SlotBudgetBand},
		StageConsultationOffer: {SlotContact},
		StageScheduling:        {SlotPreferredTime},
	}
}

// Missing returns the required slots for stage that are absent or still
// pending clarification, in the configured order.
func (r Requirements) Missing(stage Stage, c *Conversation) []string {
	required := r[stage]
	if len(required) == 0 {
		return nil
	}
	var missing []string
	for _, name := range required {
		slot := c.Slot(name)
		if slot == nil || !slot.Status.Usable() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Satisfied reports whether every required slot for stage is usable.
func (r Requirements) Satisfied(stage Stage, c *Conversation) bool {
	return len(r.Missing(stage, c)) == 0
}
