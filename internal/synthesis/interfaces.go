// Package synthesis turns prompt text into externally fetchable audio,
// caching synthesized assets so each distinct (text, voice, language) is
// synthesized at most once.
package synthesis

import (
	"context"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

// Synthesizer produces spoken audio bytes for text. Implementations wrap one
// upstream text-to-speech backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Result is the outcome of an audio request. When Fallback is set the caller
// must use the telephony platform's built-in speech for the line; a failed
// synthesis never fails the call.
type Result struct {
	URL      string
	Fallback bool
}

// Voice is the synthesis identity for one language.
type Voice struct {
	ID       string
	Language session.Language
}
