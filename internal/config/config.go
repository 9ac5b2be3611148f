package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider holds the connection settings for one upstream deployment.
type Provider struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// Relay contains all runtime settings for the relay process.
type Relay struct {
	Addr            string
	ShutdownTimeout time.Duration
	AllowOrigin     string
	ProviderFlavor  string
	ParamPrefix     string

	Realtime Provider
	Chat     Provider

	RealtimeVoice          string
	ChatSystemPrompt       string
	ChatPromptEnabled      bool
	TranslationPrompt      string
	ExplanationPrompt      string
	ChatTemperature        float64
	TranslationTemperature float64
	ExplanationTemperature float64

	MetricsNamespace string
}

// Client contains the settings of the session client.
type Client struct {
	RelayURL           string
	RealtimeBaseURL    string
	RealtimeModel      string
	RealtimeVoice      string
	TranslationEnabled bool
	RealtimeSendGuard  bool
	EventLogLimit      int
}

// LoadRelay reads environment variables and applies safe defaults. API keys
// may be left empty when PARAM_PREFIX points at SSM.
func LoadRelay() (Relay, error) {
	cfg := Relay{
		Addr:              relayAddr(),
		AllowOrigin:       stringsTrimSpace("RELAY_ALLOW_ORIGIN"),
		ProviderFlavor:    strings.ToLower(envOrDefault("PROVIDER_FLAVOR", "azure")),
		ParamPrefix:       stringsTrimSpace("PARAM_PREFIX"),
		Realtime:          providerFromEnv("AZURE_OPENAI_REALTIME"),
		Chat:              providerFromEnv("AZURE_OPENAI_CHAT"),
		RealtimeVoice:     envOrDefault("REALTIME_VOICE", "verse"),
		ChatSystemPrompt:  os.Getenv("CHAT_SYSTEM_PROMPT"),
		TranslationPrompt: os.Getenv("TRANSLATION_SYSTEM_PROMPT"),
		ExplanationPrompt: os.Getenv("EXPLANATION_SYSTEM_PROMPT"),
		MetricsNamespace:  envOrDefault("METRICS_NAMESPACE", "english_tutor"),
		ShutdownTimeout:   15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("RELAY_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Relay{}, err
	}
	cfg.ChatPromptEnabled, err = boolFromEnv("CHAT_SYSTEM_PROMPT_ENABLED", true)
	if err != nil {
		return Relay{}, err
	}
	cfg.ChatTemperature, err = floatFromEnv("CHAT_TEMPERATURE", 0.7)
	if err != nil {
		return Relay{}, err
	}
	cfg.TranslationTemperature, err = floatFromEnv("TRANSLATION_TEMPERATURE", 0.3)
	if err != nil {
		return Relay{}, err
	}
	cfg.ExplanationTemperature, err = floatFromEnv("EXPLANATION_TEMPERATURE", 0.7)
	if err != nil {
		return Relay{}, err
	}

	switch cfg.ProviderFlavor {
	case "azure", "openai":
	default:
		return Relay{}, fmt.Errorf("PROVIDER_FLAVOR must be azure or openai, got %q", cfg.ProviderFlavor)
	}
	for name, t := range map[string]float64{
		"CHAT_TEMPERATURE":        cfg.ChatTemperature,
		"TRANSLATION_TEMPERATURE": cfg.TranslationTemperature,
		"EXPLANATION_TEMPERATURE": cfg.ExplanationTemperature,
	} {
		if t < 0 || t > 2 {
			return Relay{}, fmt.Errorf("%s must be between 0 and 2", name)
		}
	}
	if err := cfg.Realtime.validate("AZURE_OPENAI_REALTIME", cfg.ParamPrefix != ""); err != nil {
		return Relay{}, err
	}
	if err := cfg.Chat.validate("AZURE_OPENAI_CHAT", cfg.ParamPrefix != ""); err != nil {
		return Relay{}, err
	}
	if cfg.ShutdownTimeout <= 0 {
		return Relay{}, fmt.Errorf("RELAY_SHUTDOWN_TIMEOUT must be positive")
	}

	return cfg, nil
}

// LoadClient reads the session client settings.
func LoadClient() (Client, error) {
	cfg := Client{
		RelayURL:           strings.TrimRight(envOrDefault("TUTOR_RELAY_URL", "http://localhost:3000/api"), "/"),
		RealtimeBaseURL:    stringsTrimSpace("TUTOR_REALTIME_BASE_URL"),
		RealtimeModel:      stringsTrimSpace("TUTOR_REALTIME_MODEL"),
		RealtimeVoice:      envOrDefault("REALTIME_VOICE", "verse"),
		TranslationEnabled: strings.EqualFold(stringsTrimSpace("TUTOR_TRANSLATION_ENABLED"), "on"),
		EventLogLimit:      200,
	}
	var err error
	cfg.RealtimeSendGuard, err = boolFromEnv("TUTOR_REALTIME_SEND_GUARD", false)
	if err != nil {
		return Client{}, err
	}
	cfg.EventLogLimit, err = intFromEnv("TUTOR_EVENT_LOG_LIMIT", cfg.EventLogLimit)
	if err != nil {
		return Client{}, err
	}
	if cfg.EventLogLimit < 0 {
		return Client{}, fmt.Errorf("TUTOR_EVENT_LOG_LIMIT must be >= 0")
	}
	return cfg, nil
}

// RealtimeConfigured reports whether the SDP exchange endpoint is known.
func (c Client) RealtimeConfigured() bool {
	return c.RealtimeBaseURL != "" && c.RealtimeModel != ""
}

func providerFromEnv(prefix string) Provider {
	return Provider{
		APIKey:     stringsTrimSpace(prefix + "_API_KEY"),
		Endpoint:   stringsTrimSpace(prefix + "_ENDPOINT"),
		Deployment: stringsTrimSpace(prefix + "_DEPLOYMENT_NAME"),
		APIVersion: stringsTrimSpace(prefix + "_API_VERSION"),
	}
}

func (p Provider) validate(prefix string, keyFromSSM bool) error {
	if p.Endpoint == "" {
		return fmt.Errorf("%s_ENDPOINT is required", prefix)
	}
	if p.Deployment == "" {
		return fmt.Errorf("%s_DEPLOYMENT_NAME is required", prefix)
	}
	if p.APIKey == "" && !keyFromSSM {
		return fmt.Errorf("%s_API_KEY is required when PARAM_PREFIX is not set", prefix)
	}
	return nil
}

func relayAddr() string {
	if v := stringsTrimSpace("RELAY_ADDR"); v != "" {
		return v
	}
	if port := stringsTrimSpace("PORT"); port != "" {
		return ":" + port
	}
	return ":3000"
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
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

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
