package session

import "time"

// Language is a speech language used for both recognition and synthesis.
type Language string

const (
	LangEnglish Language = "en-US"
	LangSpanish Language = "es-MX"
)

// Stage is a node of the per-call dialogue state machine.
type Stage string

const (
	StageGreeting         Stage = "greeting"
	StageRouting          Stage = "routing"
	StageFAQResponse      Stage = "faq_response"
	StagePatientType      Stage = "booking_patient_type"
	StageCollectName      Stage = "booking_collect_name"
	StageCollectPhone     Stage = "booking_collect_phone"
	StageCollectReason    Stage = "booking_collect_reason"
	StageOfferSlots       Stage = "booking_offer_slots"
	StageConfirm          Stage = "booking_confirm"
	StageRescheduleLookup Stage = "reschedule_lookup"
	StageHumanHandoff     Stage = "human_handoff"
	StageEmergencyRoute   Stage = "emergency_route"
	StageCallEnd          Stage = "call_end"
)

// Terminal reports whether the stage ends the call.
func (s Stage) Terminal() bool {
	switch s {
	case StageCallEnd, StageHumanHandoff, StageEmergencyRoute:
		return true
	default:
		return false
	}
}

// Slot is a named piece of information collected during the dialogue.
type Slot string

const (
	SlotName        Slot = "name"
	SlotPhone       Slot = "phone"
	SlotEmail       Slot = "email"
	SlotReason      Slot = "reason"
	SlotPatientType Slot = "patient_type"
	SlotChosenTime  Slot = "chosen_time"
)

// TimeSlot is an appointment slot offered to the caller.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Call is the per-call conversation state. All access goes through the
// Manager, which serializes mutations per call ID.
type Call struct {
	CallID         string          `json:"call_id"`
	From           string          `json:"from"`
	Language       Language        `json:"language"`
	Stage          Stage           `json:"stage"`
	Slots          map[Slot]string `json:"slots"`
	Attempts       int             `json:"attempts"`
	Offered        []TimeSlot      `json:"offered,omitempty"`
	Status         Status          `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
}

// SetSlot records a collected slot value. Values are only ever overwritten,
// never removed.
func (c *Call) SetSlot(name Slot, value string) {
	if c.Slots == nil {
		c.Slots = make(map[Slot]string)
	}
	c.Slots[name] = value
}

// SlotValue returns the collected value for name, or "".
func (c *Call) SlotValue(name Slot) string {
	return c.Slots[name]
}

// EnterStage moves the call to a new stage and resets the per-stage retry
// counter. Re-entering the current stage keeps the counter.
func (c *Call) EnterStage(next Stage) {
	if c.Stage != next {
		c.Attempts = 0
	}
	c.Stage = next
}
