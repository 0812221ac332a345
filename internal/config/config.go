package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the front-desk voice service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	// PublicBaseURL is the externally reachable address of this service; audio
	// asset URLs handed to the telephony provider are built from it.
	PublicBaseURL      string
	AllowedAudioOrigin string

	MaxPromptAttempts int

	ElevenLabsAPIKey     string
	ElevenLabsAPIBaseURL string
	ElevenLabsWSBaseURL  string
	// Premade voices: a neutral American English voice and a Mexican Spanish one.
	VoiceEnglish     string
	VoiceSpanish     string
	SynthesisMode    string // http, stream, mock, or auto
	SynthesisTimeout time.Duration

	AudioCacheDir string
	AudioCacheTTL time.Duration
	AudioCacheMax int

	SchedulingAPIBaseURL string
	SchedulingAPIKey     string
	SchedulingLocationID string
	SchedulingCalendarID string
	BookingTimeout       time.Duration
	AvailabilityDays     int

	DatabaseURL string
	RedisURL    string

	AmbianceURL   string
	HandoffNumber string

	ClinicName      string
	ClinicHours     string
	ClinicAddress   string
	ClinicInsurance string
	ClinicServices  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "frontdesk"),
		PublicBaseURL:        stringsTrimSpace("PUBLIC_URL_BASE"),
		AllowedAudioOrigin:   envOrDefault("APP_AUDIO_ALLOWED_ORIGIN", "*"),
		ElevenLabsAPIKey:     stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsAPIBaseURL: envOrDefault("ELEVENLABS_API_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL:  envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		VoiceEnglish:         envOrDefault("ELEVENLABS_VOICE_EN", "pNInz6obpgDQGcFmaJgB"),
		VoiceSpanish:         envOrDefault("ELEVENLABS_VOICE_ES", "ErXwobaYiN019PkySvjV"),
		SynthesisMode:        envOrDefault("SYNTHESIS_MODE", "auto"),
		AudioCacheDir:        envOrDefault("AUDIO_CACHE_DIR", "audio_cache"),
		SchedulingAPIBaseURL: envOrDefault("GHL_API_BASE_URL", "https://services.leadconnectorhq.com"),
		SchedulingAPIKey:     stringsTrimSpace("GHL_API_KEY"),
		SchedulingLocationID: stringsTrimSpace("GHL_LOCATION_ID"),
		SchedulingCalendarID: stringsTrimSpace("GHL_CALENDAR_ID"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		RedisURL:             stringsTrimSpace("REDIS_URL"),
		AmbianceURL:          stringsTrimSpace("AMBIANCE_URL"),
		HandoffNumber:        stringsTrimSpace("HANDOFF_NUMBER"),
		ClinicName:           envOrDefault("CLINIC_NAME", "Vanguard Chiropractic"),
		ClinicHours:          stringsTrimSpace("CLINIC_HOURS"),
		ClinicAddress:        stringsTrimSpace("CLINIC_ADDRESS"),
		ClinicInsurance:      stringsTrimSpace("CLINIC_INSURANCE"),
		ClinicServices:       stringsTrimSpace("CLINIC_SERVICES"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 5 * time.Minute,
		SynthesisTimeout:         10 * time.Second,
		AudioCacheTTL:            24 * time.Hour,
		AudioCacheMax:            512,
		BookingTimeout:           5 * time.Second,
		AvailabilityDays:         3,
		MaxPromptAttempts:        3,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisTimeout, err = durationFromEnv("SYNTHESIS_TIMEOUT", cfg.SynthesisTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCacheTTL, err = durationFromEnv("AUDIO_CACHE_TTL", cfg.AudioCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCacheMax, err = intFromEnv("AUDIO_CACHE_MAX_ASSETS", cfg.AudioCacheMax)
	if err != nil {
		return Config{}, err
	}
	cfg.BookingTimeout, err = durationFromEnv("GHL_BOOKING_TIMEOUT", cfg.BookingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AvailabilityDays, err = intFromEnv("GHL_AVAILABILITY_DAYS", cfg.AvailabilityDays)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxPromptAttempts, err = intFromEnv("APP_MAX_PROMPT_ATTEMPTS", cfg.MaxPromptAttempts)
	if err != nil {
		return Config{}, err
	}

	switch cfg.SynthesisMode {
	case "auto", "http", "stream", "mock":
	default:
		return Config{}, fmt.Errorf("SYNTHESIS_MODE must be auto, http, stream, or mock")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxPromptAttempts <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_PROMPT_ATTEMPTS must be positive")
	}
	if cfg.AvailabilityDays <= 0 {
		return Config{}, fmt.Errorf("GHL_AVAILABILITY_DAYS must be positive")
	}
	if cfg.AudioCacheMax <= 0 {
		return Config{}, fmt.Errorf("AUDIO_CACHE_MAX_ASSETS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
