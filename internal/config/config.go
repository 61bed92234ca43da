package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port           int
	LogLevel       string
	BaseURL        string
	DefaultAPIKey  string
	SessionSecret  string
	SessionIdle    time.Duration
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	MaxUploadBytes int64
	NatsURL        string
	NatsToken      string
}

func Load() Config {
	return Config{
		Port:           envInt("TUNER_PORT", 8760),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		BaseURL:        envStr("TUNER_BASE_URL", "https://api.openai.com/v1"),
		DefaultAPIKey:  envStr("OPENAI_API_KEY", ""),
		SessionSecret:  envStr("TUNER_SESSION_SECRET", ""),
		SessionIdle:    envDuration("TUNER_SESSION_IDLE", 30*time.Minute),
		RequestTimeout: envDuration("TUNER_REQUEST_TIMEOUT", 30*time.Second),
		UploadTimeout:  envDuration("TUNER_UPLOAD_TIMEOUT", 120*time.Second),
		MaxUploadBytes: int64(envInt("TUNER_MAX_UPLOAD_BYTES", 512<<20)),
		NatsURL:        envStr("NATS_URL", ""),
		NatsToken:      envStr("NATS_TOKEN", ""),
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("45s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
