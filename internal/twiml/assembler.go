package twiml

import (
	"context"

	"github.com/vanguardlabs/frontdesk/internal/dialogue"
	"github.com/vanguardlabs/frontdesk/internal/session"
	"github.com/vanguardlabs/frontdesk/internal/synthesis"
)

// PromptAudio resolves prompt text to a hosted audio asset. A Fallback result
// means the text must be spoken instead of played.
type PromptAudio interface {
	AudioURL(ctx context.Context, text, voiceID string, lang session.Language) synthesis.Result
}

// AssemblerConfig fixes the webhook wiring and the synthesis voices.
type AssemblerConfig struct {
	ActionPath    string // where gathered input posts back, default /handle-response
	GatherTimeout int    // seconds of silence before the gather gives up
	VoiceEnglish  string
	VoiceSpanish  string
	AmbianceURL   string // optional background clip played before the greeting
	HandoffNumber string // optional human line dialed on handoff turns
}

// Assembler converts engine turns into response documents, preferring cached
// synthesized audio and degrading to plain speech when synthesis is
// unavailable.
type Assembler struct {
	audio PromptAudio
	cfg   AssemblerConfig
}

func NewAssembler(audio PromptAudio, cfg AssemblerConfig) *Assembler {
	if cfg.ActionPath == "" {
		cfg.ActionPath = "/handle-response"
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 5
	}
	return &Assembler{audio: audio, cfg: cfg}
}

func (a *Assembler) voiceFor(lang session.Language) string {
	if lang == session.LangSpanish {
		return a.cfg.VoiceSpanish
	}
	return a.cfg.VoiceEnglish
}

// promptVerbs resolves each prompt to a Play when a valid asset URL exists,
// otherwise a Say in the turn's language.
func (a *Assembler) promptVerbs(ctx context.Context, turn dialogue.Turn) []any {
	verbs := make([]any, 0, len(turn.Prompts))
	for _, text := range turn.Prompts {
		res := a.audio.AudioURL(ctx, text, a.voiceFor(turn.Language), turn.Language)
		if !res.Fallback && PlayableURL(res.URL) {
			verbs = append(verbs, Play{URL: res.URL})
			continue
		}
		verbs = append(verbs, Say{Voice: SayVoice(turn.Language), Language: string(turn.Language), Text: text})
	}
	return verbs
}

// Greeting builds the first response of a call: optional ambiance, the
// greeting prompts, and a gather for the caller's reply.
func (a *Assembler) Greeting(ctx context.Context, turn dialogue.Turn) Response {
	var doc Response
	if PlayableURL(a.cfg.AmbianceURL) {
		doc.Verbs = append(doc.Verbs, Play{URL: a.cfg.AmbianceURL})
	}
	a.appendTurn(ctx, &doc, turn)
	return doc
}

// Respond builds the response for a mid-call turn.
func (a *Assembler) Respond(ctx context.Context, turn dialogue.Turn) Response {
	var doc Response
	a.appendTurn(ctx, &doc, turn)
	return doc
}

func (a *Assembler) appendTurn(ctx context.Context, doc *Response, turn dialogue.Turn) {
	prompts := a.promptVerbs(ctx, turn)

	if turn.Expected == dialogue.InputSpeech {
		doc.Verbs = append(doc.Verbs, Gather{
			Input:    "speech dtmf",
			Action:   a.cfg.ActionPath,
			Method:   "POST",
			Timeout:  a.cfg.GatherTimeout,
			Language: string(turn.Language),
			Verbs:    prompts,
		})
		// Silence past the timeout falls through the gather; loop back so the
		// engine can reprompt instead of dropping the call.
		doc.Verbs = append(doc.Verbs, Redirect{Method: "POST", URL: a.cfg.ActionPath})
		doc.Validate(turn.Language, fallbackText(turn.Language))
		return
	}

	doc.Verbs = append(doc.Verbs, prompts...)
	if turn.Handoff && a.cfg.HandoffNumber != "" {
		doc.Verbs = append(doc.Verbs, Dial{Number: a.cfg.HandoffNumber})
	} else {
		doc.Verbs = append(doc.Verbs, Hangup{})
	}
	doc.Validate(turn.Language, fallbackText(turn.Language))
}

// Fallback is the document of last resort, used when request handling fails
// outright. It never depends on synthesis or session state.
func Fallback(lang session.Language) Response {
	return Response{Verbs: []any{
		Say{Voice: SayVoice(lang), Language: string(lang), Text: fallbackText(lang)},
		Hangup{},
	}}
}

func fallbackText(lang session.Language) string {
	if lang == session.LangSpanish {
		return "Lo sentimos, estamos teniendo problemas técnicos. Por favor llame de nuevo más tarde."
	}
	return "We're sorry, we're having technical difficulties. Please call back later."
}
