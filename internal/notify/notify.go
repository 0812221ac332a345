// Package notify reports missed calls to clinic staff so no lead goes cold.
package notify

import (
	"context"
	"log"
)

// MissedCall describes a call that ended without reaching the agent.
type MissedCall struct {
	CallID string
	From   string
	Status string
}

// MissedCallNotifier delivers missed-call alerts. Delivery is best effort;
// failures must not affect webhook handling.
type MissedCallNotifier interface {
	NotifyMissedCall(ctx context.Context, mc MissedCall) error
}

// LogNotifier writes missed-call alerts to the service log. It is the default
// when no delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyMissedCall(_ context.Context, mc MissedCall) error {
	log.Printf("missed call: id=%s from=%s status=%s", mc.CallID, mc.From, mc.Status)
	return nil
}
