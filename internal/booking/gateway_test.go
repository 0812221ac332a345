package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

type upstreamStub struct {
	contactStatus     int
	appointmentStatus int
	appointmentCalls  atomic.Int64
	delay             time.Duration
}

func (u *upstreamStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contacts", func(w http.ResponseWriter, r *http.Request) {
		if u.delay > 0 {
			time.Sleep(u.delay)
		}
		w.WriteHeader(u.contactStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{"contact": map[string]string{"id": "c-1"}})
	})
	mux.HandleFunc("/api/v1/appointments", func(w http.ResponseWriter, r *http.Request) {
		u.appointmentCalls.Add(1)
		w.WriteHeader(u.appointmentStatus)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "appt-42"})
	})
	mux.HandleFunc("/api/v1/appointments/availability/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"availability": map[string]any{
				"2025-01-06": []map[string]string{
					{"startTime": "2025-01-06T15:00:00Z", "endTime": "2025-01-06T15:30:00Z"},
					{"startTime": "2025-01-06T09:00:00Z", "endTime": "2025-01-06T09:30:00Z"},
				},
			},
		})
	})
	return mux
}

func newTestGateway(t *testing.T, u *upstreamStub) *Gateway {
	t.Helper()
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)
	return NewGateway(GatewayConfig{
		APIBaseURL: srv.URL,
		APIKey:     "test-key",
		LocationID: "loc-1",
		CalendarID: "cal-1",
		Timeout:    2 * time.Second,
	}, NewMemoryLedger(), nil)
}

func testRequest(token string) Request {
	start := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	return Request{
		IdempotencyKey: token,
		Name:           "Jane Doe",
		Phone:          "555-0100",
		Reason:         "back pain",
		Slot:           session.TimeSlot{Start: start, End: start.Add(30 * time.Minute)},
	}
}

func TestAttemptBookingSuccess(t *testing.T) {
	u := &upstreamStub{contactStatus: 200, appointmentStatus: 200}
	g := newTestGateway(t, u)

	res := g.AttemptBooking(context.Background(), testRequest("tok-1"))
	if !res.Confirmed {
		t.Fatalf("result = %+v, want confirmed", res)
	}
	if res.AppointmentID != "appt-42" {
		t.Fatalf("AppointmentID = %q, want appt-42", res.AppointmentID)
	}
}

func TestAttemptBookingIdempotent(t *testing.T) {
	u := &upstreamStub{contactStatus: 200, appointmentStatus: 200}
	g := newTestGateway(t, u)

	req := testRequest("tok-same")
	first := g.AttemptBooking(context.Background(), req)
	second := g.AttemptBooking(context.Background(), req)

	if !first.Confirmed || !second.Confirmed {
		t.Fatalf("results = %+v, %+v; want both confirmed", first, second)
	}
	if first.AppointmentID != second.AppointmentID {
		t.Fatalf("AppointmentIDs differ: %q vs %q", first.AppointmentID, second.AppointmentID)
	}
	if got := u.appointmentCalls.Load(); got != 1 {
		t.Fatalf("upstream appointment calls = %d, want 1", got)
	}
}

func TestAttemptBookingClassifiesFailures(t *testing.T) {
	tests := []struct {
		name              string
		contactStatus     int
		appointmentStatus int
		want              FailureReason
		retryable         bool
	}{
		{"upstream 5xx", 200, 500, ReasonUpstreamUnavailable, true},
		{"slot conflict", 200, 409, ReasonSlotUnavailable, true},
		{"slot gone", 200, 422, ReasonSlotUnavailable, true},
		{"bad appointment input", 200, 400, ReasonInvalidInput, false},
		{"contact rejected", 400, 200, ReasonInvalidInput, false},
		{"contact rate limited", 429, 200, ReasonUpstreamUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &upstreamStub{contactStatus: tt.contactStatus, appointmentStatus: tt.appointmentStatus}
			g := newTestGateway(t, u)

			res := g.AttemptBooking(context.Background(), testRequest("tok-"+tt.name))
			if res.Confirmed {
				t.Fatalf("result = %+v, want failure", res)
			}
			if res.Reason != tt.want {
				t.Fatalf("Reason = %q, want %q", res.Reason, tt.want)
			}
			if res.Retryable() != tt.retryable {
				t.Fatalf("Retryable() = %v, want %v", res.Retryable(), tt.retryable)
			}
		})
	}
}

func TestAttemptBookingTimeout(t *testing.T) {
	u := &upstreamStub{contactStatus: 200, appointmentStatus: 200, delay: 300 * time.Millisecond}
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)
	g := NewGateway(GatewayConfig{
		APIBaseURL: srv.URL,
		Timeout:    50 * time.Millisecond,
	}, NewMemoryLedger(), nil)

	res := g.AttemptBooking(context.Background(), testRequest("tok-slow"))
	if res.Confirmed {
		t.Fatalf("result = %+v, want failure", res)
	}
	if res.Reason != ReasonUpstreamUnavailable {
		t.Fatalf("Reason = %q, want %q", res.Reason, ReasonUpstreamUnavailable)
	}
}

func TestAttemptBookingValidatesInput(t *testing.T) {
	g := NewGateway(GatewayConfig{APIBaseURL: "http://127.0.0.1:1"}, NewMemoryLedger(), nil)

	req := testRequest("tok-missing")
	req.Name = ""
	res := g.AttemptBooking(context.Background(), req)
	if res.Reason != ReasonInvalidInput {
		t.Fatalf("Reason = %q, want %q", res.Reason, ReasonInvalidInput)
	}
}

func TestListSlotsSorted(t *testing.T) {
	u := &upstreamStub{contactStatus: 200, appointmentStatus: 200}
	g := newTestGateway(t, u)

	slots, err := g.ListSlots(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListSlots() error = %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
	if !slots[0].Start.Before(slots[1].Start) {
		t.Fatalf("slots not sorted: %v before %v", slots[0].Start, slots[1].Start)
	}
	if slots[0].Label == "" {
		t.Fatalf("slot label should be set")
	}
}

func TestIdempotencyTokenDeterministic(t *testing.T) {
	at := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	if IdempotencyToken("CA1", at) != IdempotencyToken("CA1", at) {
		t.Fatalf("same call and time must derive the same token")
	}
	if IdempotencyToken("CA1", at) == IdempotencyToken("CA2", at) {
		t.Fatalf("different calls must derive different tokens")
	}
	if IdempotencyToken("CA1", at) == IdempotencyToken("CA1", at.Add(time.Hour)) {
		t.Fatalf("different times must derive different tokens")
	}
}
