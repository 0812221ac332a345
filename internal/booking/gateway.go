package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vanguardlabs/frontdesk/internal/reliability"
	"github.com/vanguardlabs/frontdesk/internal/session"
)

// Metrics is the subset of instrumentation the gateway reports into.
type Metrics interface {
	ObserveBooking(outcome string)
	ObserveUpstreamLatency(d time.Duration)
}

type GatewayConfig struct {
	APIBaseURL string
	APIKey     string
	LocationID string
	CalendarID string
	APIVersion string
	Timeout    time.Duration
}

// Gateway is the calendar upstream client. Every call carries a bounded
// timeout; the caller is on a live phone call and is owed an answer within a
// few seconds.
type Gateway struct {
	cfg     GatewayConfig
	client  *http.Client
	ledger  Ledger
	metrics Metrics
}

func NewGateway(cfg GatewayConfig, ledger Ledger, metrics Metrics) *Gateway {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://services.leadconnectorhq.com"
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2021-07-28"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Gateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		ledger:  ledger,
		metrics: metrics,
	}
}

type availabilityResponse struct {
	Availability map[string][]struct {
		StartTime time.Time `json:"startTime"`
		EndTime   time.Time `json:"endTime"`
	} `json:"availability"`
}

// ListSlots fetches open appointment slots for the next daysAhead days,
// soonest first.
func (g *Gateway) ListSlots(ctx context.Context, daysAhead int) ([]session.TimeSlot, error) {
	if daysAhead <= 0 {
		daysAhead = 3
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	now := time.Now().UTC()
	endpoint := fmt.Sprintf("%s/api/v1/appointments/availability/%s?locationId=%s&startDate=%s&endDate=%s",
		strings.TrimRight(g.cfg.APIBaseURL, "/"),
		g.cfg.CalendarID,
		g.cfg.LocationID,
		now.Format("2006-01-02"),
		now.AddDate(0, 0, daysAhead).Format("2006-01-02"),
	)

	var parsed availabilityResponse
	if err := g.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}

	var slots []session.TimeSlot
	for _, daySlots := range parsed.Availability {
		for _, s := range daySlots {
			slots = append(slots, session.TimeSlot{
				Start: s.StartTime,
				End:   s.EndTime,
				Label: s.StartTime.Format("Monday at 3:04 PM"),
			})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// AttemptBooking books the requested slot. It is idempotent on the request's
// token: a token that already produced a confirmed result returns that result
// without another upstream call.
func (g *Gateway) AttemptBooking(ctx context.Context, req Request) Result {
	if stored, ok, err := g.ledger.Get(ctx, req.IdempotencyKey); err != nil {
		log.Printf("booking ledger lookup failed: %v", err)
	} else if ok {
		g.observe("ledger_hit")
		return stored
	}

	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Phone) == "" || req.Slot.Start.IsZero() {
		g.observe("invalid_input")
		return Result{Reason: ReasonInvalidInput}
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	contactID, res := g.createContact(ctx, req)
	if !res.Confirmed && res.Reason != "" {
		g.observe(string(res.Reason))
		return res
	}

	res = g.createAppointment(ctx, req, contactID)
	if res.Confirmed {
		if err := g.ledger.Put(ctx, req.IdempotencyKey, res); err != nil {
			log.Printf("booking ledger insert failed: %v", err)
		}
		g.observe("confirmed")
		return res
	}
	g.observe(string(res.Reason))
	return res
}

type contactResponse struct {
	Contact struct {
		ID string `json:"id"`
	} `json:"contact"`
}

func (g *Gateway) createContact(ctx context.Context, req Request) (string, Result) {
	payload := map[string]any{
		"locationId": g.cfg.LocationID,
		"name":       req.Name,
		"phone":      req.Phone,
		"email":      req.Email,
		"source":     "voice-agent",
	}
	var parsed contactResponse
	status, err := g.postJSON(ctx, strings.TrimRight(g.cfg.APIBaseURL, "/")+"/api/v1/contacts", payload, &parsed)
	if err != nil {
		return "", g.classifyTransport(err)
	}
	switch {
	case status >= 200 && status < 300:
		id := parsed.Contact.ID
		if id == "" {
			id = uuid.NewString()
		}
		return id, Result{}
	default:
		return "", g.classifyStatus(status, false)
	}
}

type appointmentResponse struct {
	ID string `json:"id"`
}

func (g *Gateway) createAppointment(ctx context.Context, req Request, contactID string) Result {
	payload := map[string]any{
		"calendarId":     g.cfg.CalendarID,
		"locationId":     g.cfg.LocationID,
		"contactId":      contactID,
		"startTime":      req.Slot.Start.UTC().Format(time.RFC3339),
		"endTime":        req.Slot.End.UTC().Format(time.RFC3339),
		"title":          "Phone booking: " + req.Reason,
		"idempotencyKey": req.IdempotencyKey,
	}
	var parsed appointmentResponse
	status, err := g.postJSON(ctx, strings.TrimRight(g.cfg.APIBaseURL, "/")+"/api/v1/appointments", payload, &parsed)
	if err != nil {
		return g.classifyTransport(err)
	}
	switch {
	case status >= 200 && status < 300:
		id := parsed.ID
		if id == "" {
			id = uuid.NewString()
		}
		return Result{Confirmed: true, AppointmentID: id}
	default:
		return g.classifyStatus(status, true)
	}
}

// classifyStatus maps an upstream status to the closed reason set. A conflict
// on appointment creation means the slot was taken between listing and
// booking.
func (g *Gateway) classifyStatus(status int, slotConflictPossible bool) Result {
	switch {
	case reliability.IsRetryableHTTPStatus(status):
		return Result{Reason: ReasonUpstreamUnavailable}
	case slotConflictPossible && (status == http.StatusConflict || status == http.StatusUnprocessableEntity):
		return Result{Reason: ReasonSlotUnavailable}
	default:
		return Result{Reason: ReasonInvalidInput}
	}
}

func (g *Gateway) classifyTransport(err error) Result {
	if reliability.IsTimeout(err) {
		log.Printf("booking upstream timeout: %v", err)
	} else {
		log.Printf("booking upstream error: %v", err)
	}
	return Result{Reason: ReasonUpstreamUnavailable}
}

func (g *Gateway) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	g.authorize(req)

	start := time.Now()
	resp, err := g.client.Do(req)
	g.observeLatency(time.Since(start))
	if err != nil {
		return fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar status %d: %s", resp.StatusCode, string(detail))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *Gateway) postJSON(ctx context.Context, endpoint string, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	start := time.Now()
	resp, err := g.client.Do(req)
	g.observeLatency(time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil {
		// Decode failures are tolerated; an ID is generated when absent.
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	}
	return resp.StatusCode, nil
}

func (g *Gateway) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Version", g.cfg.APIVersion)
}

func (g *Gateway) observe(outcome string) {
	if g.metrics != nil {
		g.metrics.ObserveBooking(outcome)
	}
}

func (g *Gateway) observeLatency(d time.Duration) {
	if g.metrics != nil {
		g.metrics.ObserveUpstreamLatency(d)
	}
}
