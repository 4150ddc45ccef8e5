package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envFileVariable = "SNAPSELL_ENV_FILE"

// Error reports a missing or invalid deployment setting. It is only
// produced at startup; a process that got past Load never sees one.
type Error struct {
	Variable string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Variable, e.Reason)
}

type Config struct {
	ListenAddr            string
	GeminiAPIKey          string
	GeminiBaseURL         string
	GenerationModel       string
	TranscriptionModel    string
	GenerationTemperature float32
	IdentityBaseURL       string
	IdentityPublicKey     string
	IdentityTimeout       time.Duration
	AudioFetchTimeout     time.Duration
	TranscriptionTimeout  time.Duration
	GenerationTimeout     time.Duration
	MaxBodyBytes          int64
	MaxAudioBytes         int64
	AudioAllowedHosts     []string
	DefaultAudioMIMEType  string
	RequireCompleteResult bool
	LogLevel              string
	LogFormat             string
}

type envConfig struct {
	ListenAddr                  string   `env:"LISTEN_ADDR" envDefault:":8080"`
	GeminiAPIKey                string   `env:"GEMINI_API_KEY"`
	GeminiBaseURL               string   `env:"GEMINI_BASE_URL"`
	GenerationModel             string   `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	TranscriptionModel          string   `env:"TRANSCRIPTION_MODEL" envDefault:"gemini-2.5-flash"`
	GenerationTemperature       float32  `env:"GENERATION_TEMPERATURE" envDefault:"0.4"`
	IdentityBaseURL             string   `env:"SUPABASE_URL"`
	IdentityPublicKey           string   `env:"SUPABASE_ANON_KEY"`
	IdentityTimeoutSeconds      int      `env:"IDENTITY_TIMEOUT_SECONDS" envDefault:"10"`
	AudioFetchTimeoutSeconds    int      `env:"AUDIO_FETCH_TIMEOUT_SECONDS" envDefault:"15"`
	TranscriptionTimeoutSeconds int      `env:"TRANSCRIPTION_TIMEOUT_SECONDS" envDefault:"30"`
	GenerationTimeoutSeconds    int      `env:"GENERATION_TIMEOUT_SECONDS" envDefault:"60"`
	MaxBodyBytes                int64    `env:"MAX_BODY_BYTES" envDefault:"20971520"`
	MaxAudioBytes               int64    `env:"MAX_AUDIO_BYTES" envDefault:"10485760"`
	AudioAllowedHosts           []string `env:"AUDIO_ALLOWED_HOSTS" envSeparator:","`
	DefaultAudioMIMEType        string   `env:"DEFAULT_AUDIO_MIME_TYPE" envDefault:"audio/webm"`
	RequireCompleteResult       bool     `env:"REQUIRE_COMPLETE_RESULT" envDefault:"false"`
	LogLevel                    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat                   string   `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadEnvFile preloads variables from a dotenv file without overriding the
// process environment. A missing file is not an error.
func LoadEnvFile() (string, error) {
	path := strings.TrimSpace(os.Getenv(envFileVariable))
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		return path, fmt.Errorf("load %s: %w", path, err)
	}
	return path, nil
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:            strings.TrimSpace(raw.ListenAddr),
		GeminiAPIKey:          strings.TrimSpace(raw.GeminiAPIKey),
		GeminiBaseURL:         strings.TrimRight(strings.TrimSpace(raw.GeminiBaseURL), "/"),
		GenerationModel:       strings.TrimSpace(raw.GenerationModel),
		TranscriptionModel:    strings.TrimSpace(raw.TranscriptionModel),
		GenerationTemperature: raw.GenerationTemperature,
		IdentityBaseURL:       strings.TrimRight(strings.TrimSpace(raw.IdentityBaseURL), "/"),
		IdentityPublicKey:     strings.TrimSpace(raw.IdentityPublicKey),
		IdentityTimeout:       time.Duration(raw.IdentityTimeoutSeconds) * time.Second,
		AudioFetchTimeout:     time.Duration(raw.AudioFetchTimeoutSeconds) * time.Second,
		TranscriptionTimeout:  time.Duration(raw.TranscriptionTimeoutSeconds) * time.Second,
		GenerationTimeout:     time.Duration(raw.GenerationTimeoutSeconds) * time.Second,
		MaxBodyBytes:          raw.MaxBodyBytes,
		MaxAudioBytes:         raw.MaxAudioBytes,
		AudioAllowedHosts:     normalizeHosts(raw.AudioAllowedHosts),
		DefaultAudioMIMEType:  strings.ToLower(strings.TrimSpace(raw.DefaultAudioMIMEType)),
		RequireCompleteResult: raw.RequireCompleteResult,
		LogLevel:              strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		LogFormat:             strings.ToLower(strings.TrimSpace(raw.LogFormat)),
	}

	// Audio references are pre-signed storage URLs on the identity
	// project's host unless told otherwise.
	if len(cfg.AudioAllowedHosts) == 0 {
		if u, err := url.Parse(cfg.IdentityBaseURL); err == nil && u.Hostname() != "" {
			cfg.AudioAllowedHosts = []string{strings.ToLower(u.Hostname())}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalizeHosts(hosts []string) []string {
	var out []string
	for _, host := range hosts {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			out = append(out, host)
		}
	}
	return out
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return &Error{Variable: "LISTEN_ADDR", Reason: "must not be empty"}
	}
	if c.GeminiAPIKey == "" {
		return &Error{Variable: "GEMINI_API_KEY", Reason: "not configured"}
	}
	if c.IdentityBaseURL == "" {
		return &Error{Variable: "SUPABASE_URL", Reason: "not configured"}
	}
	if u, err := url.Parse(c.IdentityBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Variable: "SUPABASE_URL", Reason: "must be an absolute http(s) URL"}
	}
	if c.IdentityPublicKey == "" {
		return &Error{Variable: "SUPABASE_ANON_KEY", Reason: "not configured"}
	}
	if c.GenerationModel == "" {
		return &Error{Variable: "GEMINI_MODEL", Reason: "must not be empty"}
	}
	if c.TranscriptionModel == "" {
		return &Error{Variable: "TRANSCRIPTION_MODEL", Reason: "must not be empty"}
	}
	if c.GenerationTemperature < 0 || c.GenerationTemperature > 2 {
		return &Error{Variable: "GENERATION_TEMPERATURE", Reason: "must be within [0, 2]"}
	}
	if c.IdentityTimeout <= 0 {
		return &Error{Variable: "IDENTITY_TIMEOUT_SECONDS", Reason: "must be > 0"}
	}
	if c.AudioFetchTimeout <= 0 {
		return &Error{Variable: "AUDIO_FETCH_TIMEOUT_SECONDS", Reason: "must be > 0"}
	}
	if c.TranscriptionTimeout <= 0 {
		return &Error{Variable: "TRANSCRIPTION_TIMEOUT_SECONDS", Reason: "must be > 0"}
	}
	if c.GenerationTimeout <= 0 {
		return &Error{Variable: "GENERATION_TIMEOUT_SECONDS", Reason: "must be > 0"}
	}
	if c.MaxBodyBytes <= 0 {
		return &Error{Variable: "MAX_BODY_BYTES", Reason: "must be > 0"}
	}
	if c.MaxAudioBytes <= 0 {
		return &Error{Variable: "MAX_AUDIO_BYTES", Reason: "must be > 0"}
	}
	if c.DefaultAudioMIMEType == "" {
		return &Error{Variable: "DEFAULT_AUDIO_MIME_TYPE", Reason: "must not be empty"}
	}
	return nil
}
