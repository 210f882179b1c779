package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv builds a Config from environment variables.
// Unset variables take the defaults; malformed values are errors.
func FromEnv() (*Config, error) {
	r := envReader{}

	cfg := Config{
		Server: ServerConfig{
			Port:         r.int("ALERT_SERVER_PORT", DefaultServerPort),
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Alerts: AlertConfig{
			LatencySeconds:        r.float("ALERT_LATENCY_SECONDS", DefaultLatencySeconds),
			TokenThreshold:        r.int("ALERT_TOKEN_THRESHOLD", DefaultTokenThreshold),
			NotifyMode:            NotifyMode(r.str("ALERT_NOTIFY_MODE", string(NotifyLog))).Normalize(),
			WebhookURL:            r.str("ALERT_WEBHOOK_URL", ""),
			WebhookTimeoutSeconds: r.float("ALERT_WEBHOOK_TIMEOUT_SECONDS", DefaultWebhookTimeoutSeconds),
			SMTPHost:              r.str("SMTP_HOST", ""),
			SMTPPort:              r.int("SMTP_PORT", DefaultSMTPPort),
			SMTPUsername:          r.str("SMTP_USERNAME", ""),
			SMTPPassword:          r.str("SMTP_PASSWORD", ""),
			SMTPFrom:              r.str("SMTP_FROM", ""),
			SMTPTo:                r.str("SMTP_TO", ""),
			SMTPUseTLS:            r.flag("SMTP_USE_TLS", true),
			RunTTL:                r.duration("ALERT_RUN_TTL", 0),
		},
		Monitoring: MonitoringConfig{
			LogLevel:  r.str("LOG_LEVEL", "info"),
			LogFormat: r.str("LOG_FORMAT", ""),
			LogOutput: r.str("LOG_OUTPUT", "stdout"),
		},
	}

	if r.err != nil {
		return nil, r.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envReader reads typed variables and keeps the first parse error.
type envReader struct {
	err error
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *envReader) int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

// flag is true for 1, true or yes (any case).
func (r *envReader) flag(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (r *envReader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
