// Package httpapi exposes the telephony webhooks, the audio asset endpoint,
// and the operational endpoints.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vanguardlabs/frontdesk/internal/config"
	"github.com/vanguardlabs/frontdesk/internal/dialogue"
	"github.com/vanguardlabs/frontdesk/internal/notify"
	"github.com/vanguardlabs/frontdesk/internal/observability"
	"github.com/vanguardlabs/frontdesk/internal/session"
	"github.com/vanguardlabs/frontdesk/internal/synthesis"
	"github.com/vanguardlabs/frontdesk/internal/twiml"
)

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	engine    *dialogue.Engine
	assembler *twiml.Assembler
	store     *synthesis.Store
	notifier  notify.MissedCallNotifier
	metrics   *observability.Metrics
}

func New(cfg config.Config, sessions *session.Manager, engine *dialogue.Engine, assembler *twiml.Assembler, store *synthesis.Store, notifier notify.MissedCallNotifier, metrics *observability.Metrics) *Server {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		engine:    engine,
		assembler: assembler,
		store:     store,
		notifier:  notifier,
		metrics:   metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.twimlRecoverer)
		r.Post("/voice", s.handleVoice)
		r.Post("/handle-response", s.handleResponse)
	})
	r.Post("/status", s.handleStatus)

	r.Get("/audio/{key}", s.handleAudio)
	r.Options("/audio/{key}", s.handleAudioPreflight)

	return r
}

// twimlRecoverer is the outermost boundary for webhook handlers: a panic
// still yields a well-formed document, so the caller hears an apology
// instead of dead air.
func (s *Server) twimlRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("webhook panic on %s: %v", r.URL.Path, rec)
				s.respondTwiML(w, r.URL.Path, twiml.Fallback(s.callLanguage(r)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleVoice answers the first webhook of an inbound call.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	callID, from := callIdentity(r)
	if callID == "" {
		s.respondTwiML(w, "/voice", twiml.Fallback(session.LangEnglish))
		return
	}

	turn, err := s.engine.Begin(callID, from, r.PostFormValue("SpeechResult"))
	if err != nil {
		log.Printf("call %s: begin failed: %v", callID, err)
		s.respondTwiML(w, "/voice", twiml.Fallback(session.LangEnglish))
		return
	}
	s.metrics.ActiveCalls.Set(float64(s.sessions.ActiveCount()))
	s.respondTwiML(w, "/voice", s.assembler.Greeting(r.Context(), turn))
}

// handleResponse advances the dialogue with gathered speech or keypresses.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	callID, from := callIdentity(r)
	if callID == "" {
		s.respondTwiML(w, "/handle-response", twiml.Fallback(session.LangEnglish))
		return
	}

	turn, err := s.engine.Continue(r.Context(), callID, from, r.PostFormValue("SpeechResult"), r.PostFormValue("Digits"))
	if err != nil {
		log.Printf("call %s: continue failed: %v", callID, err)
		s.respondTwiML(w, "/handle-response", twiml.Fallback(s.callLanguage(r)))
		return
	}

	doc := s.assembler.Respond(r.Context(), turn)
	if turn.Stage.Terminal() {
		s.sessions.Evict(callID)
		s.metrics.ActiveCalls.Set(float64(s.sessions.ActiveCount()))
	}
	s.respondTwiML(w, "/handle-response", doc)
}

// handleStatus receives call lifecycle callbacks. Missed calls (the caller
// never reached the agent) are reported to staff; ended calls are evicted.
// Mid-call statuses (ringing, answered, in-progress) can race a speech
// webhook and must leave the live session alone.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	callID, from := callIdentity(r)
	status := strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus")))

	switch status {
	case "no-answer", "busy", "failed", "canceled":
		if err := s.notifier.NotifyMissedCall(r.Context(), notify.MissedCall{
			CallID: callID,
			From:   from,
			Status: status,
		}); err != nil {
			log.Printf("call %s: missed-call notify failed: %v", callID, err)
		}
	}

	if callID != "" && callEnded(status) {
		s.sessions.Evict(callID)
		s.metrics.ActiveCalls.Set(float64(s.sessions.ActiveCount()))
	}
	s.metrics.ObserveWebhook("/status", http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

// callEnded reports whether a lifecycle status means the call is over.
func callEnded(status string) bool {
	switch status {
	case "completed", "no-answer", "busy", "failed", "canceled":
		return true
	}
	return false
}

// handleAudio serves a cached synthesized asset. Storage keys are validated
// before touching the filesystem.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !synthesis.ValidStorageKey(key) || !s.store.Has(key) {
		s.metrics.ObserveWebhook("/audio", http.StatusNotFound)
		http.NotFound(w, r)
		return
	}

	s.audioCORS(w)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	s.metrics.ObserveWebhook("/audio", http.StatusOK)
	http.ServeFile(w, r, s.store.Path(key))
}

func (s *Server) handleAudioPreflight(w http.ResponseWriter, _ *http.Request) {
	s.audioCORS(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) audioCORS(w http.ResponseWriter) {
	origin := s.cfg.AllowedAudioOrigin
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Range, Content-Type")
}

func (s *Server) respondTwiML(w http.ResponseWriter, endpoint string, doc twiml.Response) {
	body, err := doc.Render()
	if err != nil {
		log.Printf("twiml render failed: %v", err)
		body, _ = twiml.Fallback(session.LangEnglish).Render()
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	s.metrics.ObserveWebhook(endpoint, http.StatusOK)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// callLanguage looks up the caller's language for error responses; unknown
// calls fall back to English.
func (s *Server) callLanguage(r *http.Request) session.Language {
	callID, _ := callIdentity(r)
	if callID == "" {
		return session.LangEnglish
	}
	c, err := s.sessions.Get(callID)
	if err != nil {
		return session.LangEnglish
	}
	return c.Language
}

func callIdentity(r *http.Request) (callID, from string) {
	return strings.TrimSpace(r.PostFormValue("CallSid")), strings.TrimSpace(r.PostFormValue("From"))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
