// Alert configuration - thresholds and the notification channel.
//
// DESIGN: AlertConfig is built once and handed to the handler and dispatcher
// by value. Exactly one channel is active, chosen by NotifyMode.
package config

import (
	"fmt"
	"strings"
	"time"
)

// NotifyMode selects the single active notification channel.
type NotifyMode string

const (
	NotifyLog     NotifyMode = "log"
	NotifyWebhook NotifyMode = "webhook"
	NotifySMTP    NotifyMode = "smtp"
)

// Normalize lower-cases and trims the mode. Empty becomes NotifyLog.
func (m NotifyMode) Normalize() NotifyMode {
	n := NotifyMode(strings.ToLower(strings.TrimSpace(string(m))))
	if n == "" {
		return NotifyLog
	}
	return n
}

// Known reports whether the mode names a supported channel.
func (m NotifyMode) Known() bool {
	switch m {
	case NotifyLog, NotifyWebhook, NotifySMTP:
		return true
	}
	return false
}

// AlertConfig holds alert thresholds and channel credentials.
type AlertConfig struct {
	LatencySeconds float64    `yaml:"latency_seconds"` // Alert if elapsed >= this
	TokenThreshold int        `yaml:"token_threshold"` // Alert if total tokens >= this
	NotifyMode     NotifyMode `yaml:"notify_mode"`     // log, webhook, smtp

	WebhookURL            string  `yaml:"webhook_url"`
	WebhookTimeoutSeconds float64 `yaml:"webhook_timeout_seconds"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPTo       string `yaml:"smtp_to"` // Comma-separated recipients
	SMTPUseTLS   bool   `yaml:"smtp_use_tls"`

	// RunTTL evicts start times whose end event never arrived. 0 disables eviction.
	RunTTL time.Duration `yaml:"run_ttl"`
}

// Defaults used by FromEnv and for fields absent from a YAML file.
const (
	DefaultLatencySeconds        = 5.0
	DefaultTokenThreshold        = 50
	DefaultWebhookTimeoutSeconds = 5.0
	DefaultSMTPPort              = 587
)

// DefaultAlertConfig returns the settings used when nothing is configured.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		LatencySeconds:        DefaultLatencySeconds,
		TokenThreshold:        DefaultTokenThreshold,
		NotifyMode:            NotifyLog,
		WebhookTimeoutSeconds: DefaultWebhookTimeoutSeconds,
		SMTPPort:              DefaultSMTPPort,
		SMTPUseTLS:            true,
	}
}

// WebhookTimeout returns the per-request webhook timeout. A config that
// skipped Validate with no timeout set gets the default, never none.
func (c AlertConfig) WebhookTimeout() time.Duration {
	if c.WebhookTimeoutSeconds <= 0 {
		return time.Duration(DefaultWebhookTimeoutSeconds * float64(time.Second))
	}
	return time.Duration(c.WebhookTimeoutSeconds * float64(time.Second))
}

// SMTPConfigured reports whether host, sender and recipient are all set.
func (c AlertConfig) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.SMTPTo != ""
}

// SMTPRecipients splits SMTPTo on commas, dropping blanks.
func (c AlertConfig) SMTPRecipients() []string {
	var out []string
	for _, addr := range strings.Split(c.SMTPTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Redacted returns a copy safe to print.
func (c AlertConfig) Redacted() AlertConfig {
	if c.SMTPPassword != "" {
		c.SMTPPassword = "********"
	}
	return c
}

// Validate checks thresholds and channel settings.
// Unknown notify modes are allowed; they dispatch nothing beyond the log line.
func (c AlertConfig) Validate() error {
	if c.LatencySeconds < 0 {
		return fmt.Errorf("alerts.latency_seconds must not be negative: %v", c.LatencySeconds)
	}
	if c.TokenThreshold < 0 {
		return fmt.Errorf("alerts.token_threshold must not be negative: %d", c.TokenThreshold)
	}
	if c.WebhookTimeoutSeconds <= 0 {
		return fmt.Errorf("alerts.webhook_timeout_seconds must be positive: %v", c.WebhookTimeoutSeconds)
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("invalid alerts.smtp_port: %d (must be 1-65535)", c.SMTPPort)
	}
	if c.RunTTL < 0 {
		return fmt.Errorf("alerts.run_ttl must not be negative")
	}
	return nil
}
