// Package booking talks to the upstream calendar service, exposing slot
// listing and an idempotent booking attempt with a closed set of failure
// reasons.
package booking

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

// FailureReason is the closed set of caller-facing booking failures. Raw
// upstream error text never crosses this boundary.
type FailureReason string

const (
	ReasonSlotUnavailable     FailureReason = "slot_unavailable"
	ReasonUpstreamUnavailable FailureReason = "upstream_unavailable"
	ReasonInvalidInput        FailureReason = "invalid_input"
)

// Request carries the slots required to book plus the idempotency token.
type Request struct {
	IdempotencyKey string           `json:"idempotency_key"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone"`
	Email          string           `json:"email,omitempty"`
	Reason         string           `json:"reason"`
	Slot           session.TimeSlot `json:"slot"`
}

// Result is either a confirmed appointment reference or a structured failure.
type Result struct {
	Confirmed     bool          `json:"confirmed"`
	AppointmentID string        `json:"appointment_id,omitempty"`
	Reason        FailureReason `json:"reason,omitempty"`
}

// Retryable reports whether the dialogue may re-offer slots and try again.
// Invalid input requires re-collecting the offending slot instead.
func (r Result) Retryable() bool {
	if r.Confirmed {
		return false
	}
	return r.Reason == ReasonSlotUnavailable || r.Reason == ReasonUpstreamUnavailable
}

// IdempotencyToken derives the token for a booking attempt from the call ID
// and the chosen start time. Retrying the same choice on the same call always
// produces the same token.
func IdempotencyToken(callID string, start time.Time) string {
	sum := sha256.Sum256([]byte(callID + "|" + start.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:16])
}
