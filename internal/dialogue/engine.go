// Package dialogue owns the per-call conversation: it consumes classified
// intents and produces the next prompt and the next stage.
package dialogue

import (
	"context"
	"log"
	"strings"

	"github.com/vanguardlabs/frontdesk/internal/booking"
	"github.com/vanguardlabs/frontdesk/internal/intent"
	"github.com/vanguardlabs/frontdesk/internal/session"
)

// ExpectedInput tells the response assembler what to capture next.
type ExpectedInput string

const (
	InputSpeech ExpectedInput = "speech"
	InputNone   ExpectedInput = "none"
)

// Turn is one engine decision: what to say, in which language, and what input
// to expect. Terminal turns end the call after the prompts are spoken.
type Turn struct {
	CallID   string
	Language session.Language
	Stage    session.Stage
	Prompts  []string
	Expected ExpectedInput
	Handoff  bool
}

// Gateway is the booking collaborator as the engine sees it: slot listing and
// an idempotent booking attempt with typed outcomes.
type Gateway interface {
	ListSlots(ctx context.Context, daysAhead int) ([]session.TimeSlot, error)
	AttemptBooking(ctx context.Context, req booking.Request) booking.Result
}

type Config struct {
	MaxAttempts      int
	AvailabilityDays int
	MaxOfferedSlots  int
}

// Engine is the dialogue state machine. It is the only component that mutates
// call sessions and the single place deciding user-visible wording.
type Engine struct {
	sessions *session.Manager
	gateway  Gateway
	prompts  *Catalog
	cfg      Config
}

func NewEngine(sessions *session.Manager, gateway Gateway, prompts *Catalog, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AvailabilityDays <= 0 {
		cfg.AvailabilityDays = 3
	}
	if cfg.MaxOfferedSlots <= 0 {
		cfg.MaxOfferedSlots = 3
	}
	return &Engine{sessions: sessions, gateway: gateway, prompts: prompts, cfg: cfg}
}

// Begin handles the first webhook of a call: greet and move to routing. The
// first utterance, when present, serves as a language hint; explicit switch
// commands later remain authoritative.
func (e *Engine) Begin(callID, from, firstUtterance string) (Turn, error) {
	var turn Turn
	err := e.sessions.WithCall(callID, from, func(c *session.Call) error {
		if strings.TrimSpace(firstUtterance) != "" && c.Stage == session.StageGreeting {
			c.Language = intent.DetectLanguage(firstUtterance)
		}
		c.EnterStage(session.StageRouting)
		turn = e.turn(c, InputSpeech, e.prompts.Render(promptGreeting, c.Language))
		return nil
	})
	return turn, err
}

// Continue handles a speech or keypress webhook for an in-progress call.
func (e *Engine) Continue(ctx context.Context, callID, from, speech, digits string) (Turn, error) {
	input := strings.TrimSpace(speech)
	if input == "" {
		input = strings.TrimSpace(digits)
	}

	var turn Turn
	err := e.sessions.WithCall(callID, from, func(c *session.Call) error {
		log.Printf("call %s: stage=%s heard %q", callID, c.Stage, input)
		turn = e.advance(ctx, c, input)
		return nil
	})
	return turn, err
}

// advance is the transition function: (stage, intent, slots) -> (next stage,
// prompts, side effects). Deterministic for identical inputs.
func (e *Engine) advance(ctx context.Context, c *session.Call, input string) Turn {
	it := intent.Classify(input, c.Language)

	// Emergency short-circuits every stage.
	if it.Kind == intent.KindEmergency {
		c.EnterStage(session.StageEmergencyRoute)
		return e.handoffTurn(c, promptEmergency)
	}

	// Language switching is orthogonal to stage: flip and re-ask.
	if it.Kind == intent.KindSwitchLanguage {
		c.Language = it.Target
		prompts := append([]string{e.prompts.Render(promptLanguageSwitch, c.Language)}, e.stagePrompts(c)...)
		return e.turn(c, InputSpeech, prompts...)
	}

	if it.Kind == intent.KindSpeakToHuman {
		c.EnterStage(session.StageHumanHandoff)
		return e.handoffTurn(c, promptHandoff)
	}

	// In a collection stage, any speech that is not a global command is the
	// value itself, even when it happens to match a routing phrase.
	switch c.Stage {
	case session.StageCollectName, session.StageCollectPhone, session.StageCollectReason:
		if v := strings.TrimSpace(input); v != "" {
			it = intent.SlotValue(v)
		}
	}

	switch c.Stage {
	case session.StageGreeting, session.StageRouting, session.StageFAQResponse:
		return e.route(c, it)
	case session.StagePatientType:
		return e.collectPatientType(c, it)
	case session.StageCollectName:
		return e.collectName(c, it)
	case session.StageCollectPhone:
		return e.collectPhone(c, it)
	case session.StageCollectReason:
		return e.collectReason(ctx, c, it)
	case session.StageOfferSlots:
		return e.pickSlot(ctx, c, it, input)
	default:
		// Terminal stages should already be evicted; answer safely anyway.
		return e.turn(c, InputNone, e.prompts.Render(promptGoodbye, c.Language))
	}
}

func (e *Engine) route(c *session.Call, it intent.Intent) Turn {
	switch it.Kind {
	case intent.KindGreetingAck:
		c.EnterStage(session.StageRouting)
		return e.turn(c, InputSpeech, e.prompts.Render(promptHowCanIHelp, c.Language))
	case intent.KindAskHours:
		return e.faq(c, promptFAQHours)
	case intent.KindAskLocation:
		return e.faq(c, promptFAQLocation)
	case intent.KindAskInsurance:
		return e.faq(c, promptFAQInsurance)
	case intent.KindAskServices:
		return e.faq(c, promptFAQServices)
	case intent.KindBookNew, intent.KindBookExisting:
		c.EnterStage(session.StagePatientType)
		return e.turn(c, InputSpeech, e.prompts.Render(promptAskPatientType, c.Language))
	case intent.KindReschedule:
		c.EnterStage(session.StageRescheduleLookup)
		c.EnterStage(session.StageCollectName)
		return e.turn(c, InputSpeech,
			e.prompts.Render(promptRescheduleIntro, c.Language),
			e.prompts.Render(promptAskName, c.Language))
	case intent.KindAffirm:
		c.EnterStage(session.StageRouting)
		return e.turn(c, InputSpeech, e.prompts.Render(promptHowCanIHelp, c.Language))
	case intent.KindDeny:
		c.EnterStage(session.StageCallEnd)
		return e.turn(c, InputNone, e.prompts.Render(promptGoodbye, c.Language))
	default:
		return e.reprompt(c)
	}
}

func (e *Engine) faq(c *session.Call, answer promptKey) Turn {
	c.EnterStage(session.StageFAQResponse)
	return e.turn(c, InputSpeech,
		e.prompts.Render(answer, c.Language),
		e.prompts.Render(promptAnythingElse, c.Language))
}

func (e *Engine) collectPatientType(c *session.Call, it intent.Intent) Turn {
	switch it.Kind {
	case intent.KindBookNew:
		c.SetSlot(session.SlotPatientType, "new")
	case intent.KindBookExisting, intent.KindAffirm:
		c.SetSlot(session.SlotPatientType, "existing")
	case intent.KindDeny:
		c.SetSlot(session.SlotPatientType, "new")
	default:
		return e.reprompt(c)
	}
	c.EnterStage(session.StageCollectName)
	return e.turn(c, InputSpeech, e.prompts.Render(promptAskName, c.Language))
}

func (e *Engine) collectName(c *session.Call, it intent.Intent) Turn {
	if it.Kind != intent.KindProvideSlot {
		return e.reprompt(c)
	}
	c.SetSlot(session.SlotName, it.Raw)
	c.EnterStage(session.StageCollectPhone)
	return e.turn(c, InputSpeech, e.prompts.Render(promptAskPhone, c.Language))
}

func (e *Engine) collectPhone(c *session.Call, it intent.Intent) Turn {
	if it.Kind != intent.KindProvideSlot {
		return e.reprompt(c)
	}
	digits := keepDigits(it.Raw)
	if len(digits) < 7 {
		return e.repromptWith(c, promptInvalidPhone)
	}
	c.SetSlot(session.SlotPhone, digits)
	c.EnterStage(session.StageCollectReason)
	return e.turn(c, InputSpeech, e.prompts.Render(promptAskReason, c.Language, c.SlotValue(session.SlotName)))
}

func (e *Engine) collectReason(ctx context.Context, c *session.Call, it intent.Intent) Turn {
	if it.Kind != intent.KindProvideSlot {
		return e.reprompt(c)
	}
	c.SetSlot(session.SlotReason, it.Raw)
	return e.offerSlots(ctx, c, promptOfferSlots)
}

// offerSlots fetches fresh availability and presents up to MaxOfferedSlots
// options. An unreachable or empty calendar hands the caller to a human
// rather than dead-ending the booking.
func (e *Engine) offerSlots(ctx context.Context, c *session.Call, intro promptKey) Turn {
	slots, err := e.gateway.ListSlots(ctx, e.cfg.AvailabilityDays)
	if err != nil {
		log.Printf("call %s: list slots failed: %v", c.CallID, err)
		slots = nil
	}
	if len(slots) == 0 {
		c.EnterStage(session.StageHumanHandoff)
		return e.handoffTurn(c, promptNoSlots)
	}
	if len(slots) > e.cfg.MaxOfferedSlots {
		slots = slots[:e.cfg.MaxOfferedSlots]
	}
	c.Offered = slots
	c.EnterStage(session.StageOfferSlots)
	return e.turn(c, InputSpeech, e.prompts.Render(intro, c.Language, slotList(slots, c.Language)))
}

func (e *Engine) pickSlot(ctx context.Context, c *session.Call, it intent.Intent, input string) Turn {
	if it.Kind == intent.KindDeny {
		// None of the offered times work; re-list within the attempts bound.
		c.Attempts++
		if c.Attempts >= e.cfg.MaxAttempts {
			c.EnterStage(session.StageHumanHandoff)
			return e.handoffTurn(c, promptHandoff)
		}
		return e.offerSlots(ctx, c, promptOfferSlots)
	}

	idx, ok := chooseSlot(input, it, len(c.Offered), c.Language, c.Offered)
	if !ok {
		return e.repromptWith(c, promptPickSlot)
	}
	chosen := c.Offered[idx]
	c.SetSlot(session.SlotChosenTime, chosen.Start.UTC().Format("2006-01-02T15:04:05Z07:00"))
	// The offer/confirm cycle shares one retry budget; EnterStage would reset
	// it on each hop, so carry it across the booking attempt.
	attempts := c.Attempts
	c.EnterStage(session.StageConfirm)

	res := e.gateway.AttemptBooking(ctx, booking.Request{
		IdempotencyKey: booking.IdempotencyToken(c.CallID, chosen.Start),
		Name:           c.SlotValue(session.SlotName),
		Phone:          c.SlotValue(session.SlotPhone),
		Email:          c.SlotValue(session.SlotEmail),
		Reason:         c.SlotValue(session.SlotReason),
		Slot:           chosen,
	})

	switch {
	case res.Confirmed:
		c.EnterStage(session.StageCallEnd)
		return e.turn(c, InputNone,
			e.prompts.Render(promptConfirmed, c.Language, c.SlotValue(session.SlotName), slotLabel(chosen, c.Language)),
			e.prompts.Render(promptGoodbye, c.Language))
	case res.Reason == booking.ReasonInvalidInput:
		// Re-collect the most likely offending slot instead of retrying blind.
		c.EnterStage(session.StageCollectPhone)
		return e.turn(c, InputSpeech, e.prompts.Render(promptBookingInvalid, c.Language))
	default:
		c.EnterStage(session.StageOfferSlots)
		c.Attempts = attempts + 1
		if c.Attempts >= e.cfg.MaxAttempts {
			c.EnterStage(session.StageHumanHandoff)
			return e.handoffTurn(c, promptHandoff)
		}
		return e.offerSlots(ctx, c, promptBookingRetry)
	}
}

// reprompt re-enters the current stage with a clarifying prompt, bounded by
// the attempts threshold; beyond it the caller goes to a human. This is the
// guard against the reprompt loop that strands callers.
func (e *Engine) reprompt(c *session.Call) Turn {
	return e.repromptWith(c, promptClarify)
}

func (e *Engine) repromptWith(c *session.Call, clarify promptKey) Turn {
	c.Attempts++
	if c.Attempts >= e.cfg.MaxAttempts {
		c.EnterStage(session.StageHumanHandoff)
		return e.handoffTurn(c, promptHandoff)
	}
	prompts := append([]string{e.prompts.Render(clarify, c.Language)}, e.stagePrompts(c)...)
	return e.turn(c, InputSpeech, prompts...)
}

// stagePrompts re-asks the current stage's question, used after clarification
// and language switches.
func (e *Engine) stagePrompts(c *session.Call) []string {
	switch c.Stage {
	case session.StagePatientType:
		return []string{e.prompts.Render(promptAskPatientType, c.Language)}
	case session.StageCollectName:
		return []string{e.prompts.Render(promptAskName, c.Language)}
	case session.StageCollectPhone:
		return []string{e.prompts.Render(promptAskPhone, c.Language)}
	case session.StageCollectReason:
		return []string{e.prompts.Render(promptAskReason, c.Language, c.SlotValue(session.SlotName))}
	case session.StageOfferSlots:
		return []string{e.prompts.Render(promptOfferSlots, c.Language, slotList(c.Offered, c.Language))}
	default:
		return []string{e.prompts.Render(promptHowCanIHelp, c.Language)}
	}
}

func (e *Engine) turn(c *session.Call, expected ExpectedInput, prompts ...string) Turn {
	if c.Stage.Terminal() {
		expected = InputNone
	}
	return Turn{
		CallID:   c.CallID,
		Language: c.Language,
		Stage:    c.Stage,
		Prompts:  prompts,
		Expected: expected,
	}
}

func (e *Engine) handoffTurn(c *session.Call, key promptKey) Turn {
	t := e.turn(c, InputNone, e.prompts.Render(key, c.Language))
	t.Handoff = true
	return t
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var ordinalWords = map[session.Language][][]string{
	session.LangEnglish: {
		{"1", "one", "first"},
		{"2", "two", "second"},
		{"3", "three", "third"},
	},
	session.LangSpanish: {
		{"1", "uno", "primero", "primera"},
		{"2", "dos", "segundo", "segunda"},
		{"3", "tres", "tercero", "tercera"},
	},
}

// chooseSlot resolves the caller's pick from a keypress, an ordinal word, an
// affirmation (first option), or the weekday of an offered slot.
func chooseSlot(input string, it intent.Intent, n int, lang session.Language, offered []session.TimeSlot) (int, bool) {
	if n == 0 {
		return 0, false
	}
	if it.Kind == intent.KindAffirm {
		return 0, true
	}

	text := " " + strings.ToLower(strings.TrimSpace(input)) + " "
	for i, words := range ordinalWords[lang] {
		if i >= n {
			break
		}
		for _, w := range words {
			if strings.Contains(text, " "+w+" ") {
				return i, true
			}
		}
	}

	for i, s := range offered {
		if i >= n {
			break
		}
		day := strings.ToLower(s.Start.Format("Monday"))
		if lang == session.LangSpanish {
			day = spanishWeekdays[s.Start.Weekday()]
		}
		if strings.Contains(text, " "+day+" ") {
			return i, true
		}
	}
	return 0, false
}
