package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wneessen/go-mail"

	"github.com/compresr/llm-alerts/internal/config"
)

func TestNewWebhookNotifier_UnvalidatedConfigStillTimesOut(t *testing.T) {
	n := NewWebhookNotifier(config.AlertConfig{WebhookURL: "http://127.0.0.1:1"})
	assert.Equal(t, 5*time.Second, n.client.Timeout)

	n = NewWebhookNotifier(config.AlertConfig{WebhookURL: "http://127.0.0.1:1", WebhookTimeoutSeconds: 0.25})
	assert.Equal(t, 250*time.Millisecond, n.client.Timeout)
}

func TestLoginMechanisms_NoEncWithoutTLS(t *testing.T) {
	assert.Equal(t,
		[]mail.SMTPAuthType{mail.SMTPAuthPlain, mail.SMTPAuthLogin, mail.SMTPAuthCramMD5},
		loginMechanisms(true))
	assert.Equal(t,
		[]mail.SMTPAuthType{mail.SMTPAuthPlainNoEnc, mail.SMTPAuthLoginNoEnc, mail.SMTPAuthCramMD5},
		loginMechanisms(false))
}
