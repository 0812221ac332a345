package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vanguardlabs/frontdesk/internal/booking"
	"github.com/vanguardlabs/frontdesk/internal/config"
	"github.com/vanguardlabs/frontdesk/internal/dialogue"
	"github.com/vanguardlabs/frontdesk/internal/httpapi"
	"github.com/vanguardlabs/frontdesk/internal/notify"
	"github.com/vanguardlabs/frontdesk/internal/observability"
	"github.com/vanguardlabs/frontdesk/internal/session"
	"github.com/vanguardlabs/frontdesk/internal/synthesis"
	"github.com/vanguardlabs/frontdesk/internal/twiml"
)

func main() {
	// Local development keeps credentials in a .env file; production sets real
	// environment variables and has no file to load.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.PublicBaseURL == "" {
		log.Printf("PUBLIC_URL_BASE is not set; synthesized audio will fall back to platform speech")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	ledger, err := booking.NewLedger(ctx, cfg.DatabaseURL, cfg.RedisURL)
	if err != nil {
		log.Fatalf("booking ledger init failed: %v", err)
	}
	defer ledger.Close()

	gateway := booking.NewGateway(booking.GatewayConfig{
		APIBaseURL: cfg.SchedulingAPIBaseURL,
		APIKey:     cfg.SchedulingAPIKey,
		LocationID: cfg.SchedulingLocationID,
		CalendarID: cfg.SchedulingCalendarID,
		Timeout:    cfg.BookingTimeout,
	}, ledger, metrics)

	synth := newSynthesizer(cfg)

	store, err := synthesis.NewStore(cfg.AudioCacheDir)
	if err != nil {
		log.Fatalf("audio store init failed: %v", err)
	}
	audioCache := synthesis.NewCache(store, synth, synthesis.CacheConfig{
		BaseAddress: cfg.PublicBaseURL,
		TTL:         cfg.AudioCacheTTL,
		MaxAssets:   cfg.AudioCacheMax,
	}, metrics)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(c *session.Call) {
		log.Printf("call %s: session expired", c.CallID)
		metrics.ActiveCalls.Set(float64(sessions.ActiveCount()))
	})

	engine := dialogue.NewEngine(sessions, gateway, dialogue.NewCatalog(dialogue.ClinicInfo{
		Name:        cfg.ClinicName,
		HoursEN:     cfg.ClinicHours,
		LocationEN:  cfg.ClinicAddress,
		InsuranceEN: cfg.ClinicInsurance,
		ServicesEN:  cfg.ClinicServices,
	}), dialogue.Config{
		MaxAttempts:      cfg.MaxPromptAttempts,
		AvailabilityDays: cfg.AvailabilityDays,
	})

	assembler := twiml.NewAssembler(audioCache, twiml.AssemblerConfig{
		VoiceEnglish:  cfg.VoiceEnglish,
		VoiceSpanish:  cfg.VoiceSpanish,
		AmbianceURL:   cfg.AmbianceURL,
		HandoffNumber: cfg.HandoffNumber,
	})

	api := httpapi.New(cfg, sessions, engine, assembler, store, notify.LogNotifier{}, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)
	audioCache.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// newSynthesizer picks the text-to-speech backend. auto prefers the websocket
// stream when a key is present and degrades to mock without one, so the
// service stays runnable in development.
func newSynthesizer(cfg config.Config) synthesis.Synthesizer {
	mode := strings.ToLower(strings.TrimSpace(cfg.SynthesisMode))
	hasKey := cfg.ElevenLabsAPIKey != ""

	switch mode {
	case "http":
		if !hasKey {
			log.Fatalf("SYNTHESIS_MODE=http but ELEVENLABS_API_KEY is not set")
		}
	case "stream":
		if !hasKey {
			log.Fatalf("SYNTHESIS_MODE=stream but ELEVENLABS_API_KEY is not set")
		}
	case "mock":
		log.Printf("synthesis backend: mock")
		return synthesis.NewMockSynthesizer()
	case "auto", "":
		if !hasKey {
			log.Printf("synthesis backend: mock (no elevenlabs key)")
			return synthesis.NewMockSynthesizer()
		}
		mode = "stream"
	}

	if mode == "stream" {
		log.Printf("synthesis backend: elevenlabs stream")
		return synthesis.NewStreamSynthesizer(synthesis.StreamConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			WSBaseURL: cfg.ElevenLabsWSBaseURL,
			Timeout:   cfg.SynthesisTimeout,
		})
	}
	log.Printf("synthesis backend: elevenlabs http")
	return synthesis.NewElevenLabsSynthesizer(synthesis.ElevenLabsConfig{
		APIKey:     cfg.ElevenLabsAPIKey,
		APIBaseURL: cfg.ElevenLabsAPIBaseURL,
		Timeout:    cfg.SynthesisTimeout,
	})
}
