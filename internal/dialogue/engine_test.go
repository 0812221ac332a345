package dialogue

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vanguardlabs/frontdesk/internal/booking"
	"github.com/vanguardlabs/frontdesk/internal/session"
)

type fakeGateway struct {
	slots        []session.TimeSlot
	listErr      error
	result       booking.Result
	bookCalls    atomic.Int64
	lastRequest  booking.Request
	resultsQueue []booking.Result
}

func (f *fakeGateway) ListSlots(_ context.Context, _ int) ([]session.TimeSlot, error) {
	return f.slots, f.listErr
}

func (f *fakeGateway) AttemptBooking(_ context.Context, req booking.Request) booking.Result {
	f.bookCalls.Add(1)
	f.lastRequest = req
	if len(f.resultsQueue) > 0 {
		res := f.resultsQueue[0]
		f.resultsQueue = f.resultsQueue[1:]
		return res
	}
	return f.result
}

func testSlots() []session.TimeSlot {
	start := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC) // a Monday
	return []session.TimeSlot{
		{Start: start, End: start.Add(30 * time.Minute), Label: "Monday at 3:00 PM"},
		{Start: start.Add(24 * time.Hour), End: start.Add(24*time.Hour + 30*time.Minute), Label: "Tuesday at 3:00 PM"},
		{Start: start.Add(48 * time.Hour), End: start.Add(48*time.Hour + 30*time.Minute), Label: "Wednesday at 3:00 PM"},
	}
}

func newTestEngine(gw *fakeGateway) (*Engine, *session.Manager) {
	sessions := session.NewManager(time.Minute)
	engine := NewEngine(sessions, gw, NewCatalog(ClinicInfo{Name: "Vanguard Chiropractic"}), Config{})
	return engine, sessions
}

func say(t *testing.T, e *Engine, callID, text string) Turn {
	t.Helper()
	turn, err := e.Continue(context.Background(), callID, "+15550100", text, "")
	if err != nil {
		t.Fatalf("Continue(%q) error = %v", text, err)
	}
	return turn
}

func TestFullBookingScenario(t *testing.T) {
	gw := &fakeGateway{
		slots:  testSlots(),
		result: booking.Result{Confirmed: true, AppointmentID: "appt-1"},
	}
	e, _ := newTestEngine(gw)

	turn, err := e.Begin("CA1", "+15550100", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if turn.Stage != session.StageRouting {
		t.Fatalf("stage after greeting = %q, want %q", turn.Stage, session.StageRouting)
	}

	turn = say(t, e, "CA1", "I'd like to book an appointment")
	if turn.Stage != session.StagePatientType {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StagePatientType)
	}

	turn = say(t, e, "CA1", "I'm a new patient")
	if turn.Stage != session.StageCollectName {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectName)
	}

	turn = say(t, e, "CA1", "Jane Doe")
	if turn.Stage != session.StageCollectPhone {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectPhone)
	}

	turn = say(t, e, "CA1", "555-0100 is my number")
	if turn.Stage != session.StageCollectReason {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectReason)
	}

	turn = say(t, e, "CA1", "back pain")
	if turn.Stage != session.StageOfferSlots {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageOfferSlots)
	}
	if len(turn.Prompts) == 0 || !strings.Contains(turn.Prompts[0], "Monday at 3:00 PM") {
		t.Fatalf("offer prompt should list slots, got %q", turn.Prompts)
	}

	turn = say(t, e, "CA1", "option one please")
	if turn.Stage != session.StageCallEnd {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCallEnd)
	}
	if turn.Expected != InputNone {
		t.Fatalf("Expected = %q, want %q", turn.Expected, InputNone)
	}
	if got := gw.bookCalls.Load(); got != 1 {
		t.Fatalf("booking calls = %d, want 1", got)
	}

	req := gw.lastRequest
	if req.Name != "Jane Doe" || req.Phone != "5550100" || req.Reason != "back pain" {
		t.Fatalf("unexpected booking request: %+v", req)
	}
	wantToken := booking.IdempotencyToken("CA1", testSlots()[0].Start)
	if req.IdempotencyKey != wantToken {
		t.Fatalf("IdempotencyKey = %q, want token derived from call and time", req.IdempotencyKey)
	}
}

func TestLanguageSwitchKeepsStage(t *testing.T) {
	gw := &fakeGateway{slots: testSlots()}
	e, sessions := newTestEngine(gw)

	_, _ = e.Begin("CA2", "", "")
	turn := say(t, e, "CA2", "what are your hours")
	if turn.Stage != session.StageFAQResponse {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageFAQResponse)
	}

	turn = say(t, e, "CA2", "español por favor")
	if turn.Language != session.LangSpanish {
		t.Fatalf("language = %q, want %q", turn.Language, session.LangSpanish)
	}
	if turn.Stage != session.StageFAQResponse {
		t.Fatalf("stage after switch = %q, want unchanged %q", turn.Stage, session.StageFAQResponse)
	}
	for _, p := range turn.Prompts {
		if strings.Contains(p, "How can I help") {
			t.Fatalf("prompt not re-rendered in Spanish: %q", turn.Prompts)
		}
	}

	c, err := sessions.Get("CA2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Language != session.LangSpanish {
		t.Fatalf("session language = %q, want %q", c.Language, session.LangSpanish)
	}
}

func TestUnrecognizedEscalatesAfterThreshold(t *testing.T) {
	gw := &fakeGateway{slots: testSlots()}
	e, _ := newTestEngine(gw)

	_, _ = e.Begin("CA3", "", "")

	var turn Turn
	for i := 0; i < 2; i++ {
		turn = say(t, e, "CA3", "blorp fizzle")
		if turn.Stage != session.StageRouting {
			t.Fatalf("after %d unrecognized inputs stage = %q, want %q", i+1, turn.Stage, session.StageRouting)
		}
	}
	turn = say(t, e, "CA3", "blorp fizzle")
	if turn.Stage != session.StageHumanHandoff {
		t.Fatalf("after threshold stage = %q, want %q", turn.Stage, session.StageHumanHandoff)
	}
	if !turn.Handoff {
		t.Fatalf("turn should request handoff")
	}
}

func TestEmergencyShortCircuitsEveryStage(t *testing.T) {
	setups := []struct {
		name  string
		steps []string
	}{
		{"routing", nil},
		{"patient type", []string{"book an appointment"}},
		{"collect name", []string{"book an appointment", "new"}},
		{"collect phone", []string{"book an appointment", "new", "Jane Doe"}},
		{"collect reason", []string{"book an appointment", "new", "Jane Doe", "555-0100"}},
		{"offer slots", []string{"book an appointment", "new", "Jane Doe", "555-0100", "back pain"}},
	}
	for _, tt := range setups {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{slots: testSlots()}
			e, _ := newTestEngine(gw)
			_, _ = e.Begin("CA-em", "", "")
			for _, step := range tt.steps {
				say(t, e, "CA-em", step)
			}
			turn := say(t, e, "CA-em", "this is an emergency")
			if turn.Stage != session.StageEmergencyRoute {
				t.Fatalf("stage = %q, want %q", turn.Stage, session.StageEmergencyRoute)
			}
			if turn.Expected != InputNone {
				t.Fatalf("Expected = %q, want %q", turn.Expected, InputNone)
			}
		})
	}
}

func TestBookingFailureReoffersThenHandsOff(t *testing.T) {
	gw := &fakeGateway{
		slots: testSlots(),
		resultsQueue: []booking.Result{
			{Reason: booking.ReasonSlotUnavailable},
			{Reason: booking.ReasonSlotUnavailable},
			{Reason: booking.ReasonSlotUnavailable},
		},
	}
	e, _ := newTestEngine(gw)

	_, _ = e.Begin("CA4", "", "")
	for _, step := range []string{"book an appointment", "new", "Jane Doe", "555-0100", "back pain"} {
		say(t, e, "CA4", step)
	}

	turn := say(t, e, "CA4", "option one")
	if turn.Stage != session.StageOfferSlots {
		t.Fatalf("after first failure stage = %q, want re-offer", turn.Stage)
	}
	turn = say(t, e, "CA4", "option one")
	if turn.Stage != session.StageOfferSlots {
		t.Fatalf("after second failure stage = %q, want re-offer", turn.Stage)
	}
	turn = say(t, e, "CA4", "option one")
	if turn.Stage != session.StageHumanHandoff {
		t.Fatalf("after third failure stage = %q, want %q", turn.Stage, session.StageHumanHandoff)
	}
}

func TestBookingInvalidInputRecollectsPhone(t *testing.T) {
	gw := &fakeGateway{
		slots:  testSlots(),
		result: booking.Result{Reason: booking.ReasonInvalidInput},
	}
	e, _ := newTestEngine(gw)

	_, _ = e.Begin("CA5", "", "")
	for _, step := range []string{"book an appointment", "new", "Jane Doe", "555-0100", "back pain"} {
		say(t, e, "CA5", step)
	}

	turn := say(t, e, "CA5", "option one")
	if turn.Stage != session.StageCollectPhone {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectPhone)
	}
}

func TestNoAvailabilityHandsOff(t *testing.T) {
	gw := &fakeGateway{slots: nil}
	e, _ := newTestEngine(gw)

	_, _ = e.Begin("CA6", "", "")
	for _, step := range []string{"book an appointment", "new", "Jane Doe", "555-0100"} {
		say(t, e, "CA6", step)
	}
	turn := say(t, e, "CA6", "back pain")
	if turn.Stage != session.StageHumanHandoff {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageHumanHandoff)
	}
}

func TestCollectionCapturesSpeechMatchingRoutingPhrases(t *testing.T) {
	// "price" is a services keyword and "back" appears in FAQ phrasing; inside
	// a collection stage such speech is the value, not a routing command.
	gw := &fakeGateway{slots: testSlots(), result: booking.Result{Confirmed: true}}
	e, _ := newTestEngine(gw)

	_, _ = e.Begin("CA10", "", "")
	for _, step := range []string{"book an appointment", "new"} {
		say(t, e, "CA10", step)
	}

	turn := say(t, e, "CA10", "Noel Price")
	if turn.Stage != session.StageCollectPhone {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectPhone)
	}

	say(t, e, "CA10", "555-0100")
	turn = say(t, e, "CA10", "insurance question about my back")
	if turn.Stage != session.StageOfferSlots {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageOfferSlots)
	}

	say(t, e, "CA10", "option one")
	if gw.lastRequest.Name != "Noel Price" {
		t.Fatalf("booked name = %q, want %q", gw.lastRequest.Name, "Noel Price")
	}
	if gw.lastRequest.Reason != "insurance question about my back" {
		t.Fatalf("booked reason = %q", gw.lastRequest.Reason)
	}
}

func TestInvalidPhoneRepromptsInStage(t *testing.T) {
	gw := &fakeGateway{slots: testSlots()}
	e, _ := newTestEngine(gw)

	_, _ = e.Begin("CA7", "", "")
	for _, step := range []string{"book an appointment", "new", "Jane Doe"} {
		say(t, e, "CA7", step)
	}
	turn := say(t, e, "CA7", "umm twelve")
	if turn.Stage != session.StageCollectPhone {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectPhone)
	}
	turn = say(t, e, "CA7", "555-0100")
	if turn.Stage != session.StageCollectReason {
		t.Fatalf("stage = %q, want %q", turn.Stage, session.StageCollectReason)
	}
}

func TestSpanishGreetingHint(t *testing.T) {
	gw := &fakeGateway{slots: testSlots()}
	e, _ := newTestEngine(gw)

	turn, err := e.Begin("CA8", "", "hola, buenos días")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if turn.Language != session.LangSpanish {
		t.Fatalf("language = %q, want %q", turn.Language, session.LangSpanish)
	}
	if len(turn.Prompts) == 0 || !strings.Contains(turn.Prompts[0], "Gracias por llamar") {
		t.Fatalf("greeting should be Spanish, got %q", turn.Prompts)
	}
}

func TestSlotChoiceByDigitAndWeekday(t *testing.T) {
	for _, tt := range []struct {
		input string
		want  string
	}{
		{"2", "Tuesday"},
		{"wednesday works for me", "Wednesday"},
	} {
		gw := &fakeGateway{slots: testSlots(), result: booking.Result{Confirmed: true}}
		e, _ := newTestEngine(gw)
		_, _ = e.Begin("CA9", "", "")
		for _, step := range []string{"book an appointment", "new", "Jane Doe", "555-0100", "back pain"} {
			say(t, e, "CA9", step)
		}
		turn := say(t, e, "CA9", tt.input)
		if turn.Stage != session.StageCallEnd {
			t.Fatalf("input %q: stage = %q, want %q", tt.input, turn.Stage, session.StageCallEnd)
		}
		if !strings.Contains(gw.lastRequest.Slot.Label, tt.want) {
			t.Fatalf("input %q chose %q, want %s", tt.input, gw.lastRequest.Slot.Label, tt.want)
		}
	}
}
