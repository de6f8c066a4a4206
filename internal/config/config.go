package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the agent orchestration core.
type Config struct {
	Port    int
	Version string

	Provider  ProviderConfig
	Timeouts  TimeoutConfig
	Cache     CacheConfig
	Telemetry TelemetryConfig

	// DevLogging enables server-side logging of raw provider error bodies.
	// Responses always carry only the classified message.
	DevLogging bool
}

// ProviderConfig configures the outbound generative-AI provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string

	// AppBaseURL is the fallback base URL for preload-context fetches when
	// the request does not supply one.
	AppBaseURL string
}

// TimeoutConfig holds the per-kind transport timeout budgets.
type TimeoutConfig struct {
	Chat  time.Duration
	Image time.Duration
	Video time.Duration
	Voice time.Duration
}

// CacheConfig configures the model metadata cache.
type CacheConfig struct {
	TTL time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AGENTCORE_PORT", 8080),
		Version: envStr("AGENTCORE_VERSION", "0.4.0"),
		Provider: ProviderConfig{
			APIKey:     envStr("AGENTCORE_PROVIDER_API_KEY", ""),
			BaseURL:    envStr("AGENTCORE_PROVIDER_BASE_URL", "https://api.openai.com/v1"),
			AppBaseURL: envStr("AGENTCORE_APP_BASE_URL", "http://localhost:3000"),
		},
		Timeouts: TimeoutConfig{
			Chat:  envDuration("AGENTCORE_CHAT_TIMEOUT", 2*time.Minute),
			Image: envDuration("AGENTCORE_IMAGE_TIMEOUT", 1*time.Minute),
			Video: envDuration("AGENTCORE_VIDEO_TIMEOUT", 5*time.Minute),
			Voice: envDuration("AGENTCORE_VOICE_TIMEOUT", 2*time.Minute),
		},
		Cache: CacheConfig{
			TTL: envDuration("AGENTCORE_MODEL_CACHE_TTL", 5*time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agent-core"),
		},
		DevLogging: envBool("AGENTCORE_DEV_LOGGING", false),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
