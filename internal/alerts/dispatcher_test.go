package alerts_test

// Dispatcher Tests - channel selection and fail-soft delivery
//
// Every alert produces a warning log line. At most one channel runs, and
// neither missing settings nor transport failures reach the caller.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/compresr/llm-alerts/internal/alerts"
	"github.com/compresr/llm-alerts/internal/config"
	"github.com/compresr/llm-alerts/internal/monitoring"
)

var testPayload = alerts.Payload{
	Title: "LangSmith alert: Latency threshold exceeded",
	Body:  "Reason: Latency threshold exceeded\nLatency: 2.50s",
}

// logCapture collects JSON log lines.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) entries(t *testing.T) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func (c *logCapture) messages(t *testing.T) []string {
	var msgs []string
	for _, e := range c.entries(t) {
		msgs = append(msgs, e["message"].(string))
	}
	return msgs
}

func newTestLogger() (*monitoring.Logger, *logCapture) {
	capture := &logCapture{}
	return monitoring.NewWithWriter(capture, zerolog.DebugLevel), capture
}

// countingServer counts POSTs and answers with status.
func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int64, *[]alerts.Payload) {
	t.Helper()
	var (
		hits     atomic.Int64
		mu       sync.Mutex
		received []alerts.Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p alerts.Payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		received = append(received, p)
		mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, &received
}

// =============================================================================
// LOG MODE
// =============================================================================

func TestDispatch_LogMode_NoOutboundCalls(t *testing.T) {
	srv, hits, _ := countingServer(t, http.StatusOK)

	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = config.NotifyLog
	cfg.WebhookURL = srv.URL
	cfg.SMTPHost, cfg.SMTPFrom, cfg.SMTPTo = "mail.local", "a@local", "b@local"

	logger, logs := newTestLogger()
	metrics := monitoring.NewMetricsCollector()
	d := alerts.NewDispatcher(cfg, logger, metrics)

	d.Dispatch(context.Background(), testPayload)

	assert.Equal(t, int64(0), hits.Load())
	assert.Equal(t, []string{testPayload.Title}, logs.messages(t))
	assert.Equal(t, "warn", logs.entries(t)[0]["level"])
	assert.Equal(t, int64(1), metrics.Stats()["alerts_fired"])
}

func TestDispatch_UnknownMode_LogOnly(t *testing.T) {
	srv, hits, _ := countingServer(t, http.StatusOK)

	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = "pagerduty"
	cfg.WebhookURL = srv.URL

	logger, logs := newTestLogger()
	d := alerts.NewDispatcher(cfg, logger, nil)
	d.Dispatch(context.Background(), testPayload)

	assert.Equal(t, int64(0), hits.Load())
	assert.Contains(t, logs.messages(t), testPayload.Title)
	assert.Equal(t, config.NotifyMode("pagerduty"), d.Mode())
}

// =============================================================================
// WEBHOOK MODE
// =============================================================================

func TestDispatch_Webhook_Delivers(t *testing.T) {
	srv, hits, received := countingServer(t, http.StatusNoContent)

	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = "WEBHOOK"
	cfg.WebhookURL = srv.URL

	metrics := monitoring.NewMetricsCollector()
	d := alerts.NewDispatcher(cfg, monitoring.Nop(), metrics)
	d.Dispatch(context.Background(), testPayload)

	require.Equal(t, int64(1), hits.Load())
	assert.Equal(t, testPayload, (*received)[0])
	assert.Equal(t, int64(1), metrics.Stats()["alerts_delivered"])
}

func TestDispatch_Webhook_EmptyURL(t *testing.T) {
	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = config.NotifyWebhook
	cfg.WebhookURL = ""

	logger, logs := newTestLogger()
	metrics := monitoring.NewMetricsCollector()
	d := alerts.NewDispatcher(cfg, logger, metrics)

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), testPayload) })

	msgs := logs.messages(t)
	assert.Equal(t, []string{testPayload.Title, "channel not configured; skipping alert"}, msgs)
	assert.Equal(t, int64(1), metrics.Stats()["alerts_skipped"])
	assert.Equal(t, int64(0), metrics.Stats()["delivery_failures"])
}

func TestDispatch_Webhook_ServerError(t *testing.T) {
	srv, hits, _ := countingServer(t, http.StatusInternalServerError)

	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = config.NotifyWebhook
	cfg.WebhookURL = srv.URL

	logger, logs := newTestLogger()
	metrics := monitoring.NewMetricsCollector()
	d := alerts.NewDispatcher(cfg, logger, metrics)

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), testPayload) })

	assert.Equal(t, int64(1), hits.Load(), "no retry")
	entries := logs.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "alert delivery failed", entries[1]["message"])
	assert.Equal(t, "warn", entries[1]["level"])
	assert.Contains(t, entries[1]["error"], "HTTP 500")
	assert.Equal(t, int64(1), metrics.Stats()["delivery_failures"])
}

func TestDispatch_Webhook_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = config.NotifyWebhook
	cfg.WebhookURL = srv.URL
	cfg.WebhookTimeoutSeconds = 0.05

	logger, logs := newTestLogger()
	d := alerts.NewDispatcher(cfg, logger, nil)

	start := time.Now()
	d.Dispatch(context.Background(), testPayload)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, logs.messages(t), "alert delivery failed")
}

func TestDispatch_Webhook_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = config.NotifyWebhook
	cfg.WebhookURL = url

	logger, logs := newTestLogger()
	d := alerts.NewDispatcher(cfg, logger, nil)

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), testPayload) })
	assert.Contains(t, logs.messages(t), "alert delivery failed")
}

// =============================================================================
// SMTP MODE
// =============================================================================

// fakeSession records sends and closes.
type fakeSession struct {
	sent    []*mail.Msg
	sendErr error
	closed  int
}

func (s *fakeSession) Send(msgs ...*mail.Msg) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msgs...)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// fakeDialer hands out one session and remembers the config it was called with.
type fakeDialer struct {
	session *fakeSession
	err     error
	calls   int
	cfg     config.AlertConfig
}

func (f *fakeDialer) Dial(_ context.Context, cfg config.AlertConfig) (alerts.MailSession, error) {
	f.calls++
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func smtpConfig() config.AlertConfig {
	cfg := config.DefaultAlertConfig()
	cfg.NotifyMode = config.NotifySMTP
	cfg.SMTPHost = "mail.local"
	cfg.SMTPFrom = "alerts@example.com"
	cfg.SMTPTo = "oncall@example.com"
	return cfg
}

func TestDispatch_SMTP_MissingFrom(t *testing.T) {
	cfg := smtpConfig()
	cfg.SMTPFrom = ""

	dialer := &fakeDialer{session: &fakeSession{}}
	logger, logs := newTestLogger()
	metrics := monitoring.NewMetricsCollector()
	d := alerts.NewDispatcher(cfg, logger, metrics,
		alerts.WithNotifier(alerts.NewSMTPNotifier(cfg, alerts.WithDialer(dialer.Dial))))

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), testPayload) })

	assert.Equal(t, 0, dialer.calls, "no SMTP session without a sender")
	assert.Contains(t, logs.messages(t), "channel not configured; skipping alert")
	assert.Equal(t, int64(1), metrics.Stats()["alerts_skipped"])
}

func TestSMTPNotifier_MissingSettings(t *testing.T) {
	for _, blank := range []string{"host", "from", "to"} {
		t.Run(blank, func(t *testing.T) {
			cfg := smtpConfig()
			switch blank {
			case "host":
				cfg.SMTPHost = ""
			case "from":
				cfg.SMTPFrom = ""
			case "to":
				cfg.SMTPTo = ""
			}

			dialer := &fakeDialer{session: &fakeSession{}}
			n := alerts.NewSMTPNotifier(cfg, alerts.WithDialer(dialer.Dial))

			err := n.Notify(context.Background(), testPayload)
			assert.ErrorIs(t, err, alerts.ErrNotConfigured)
			assert.Equal(t, 0, dialer.calls)
		})
	}
}

func TestSMTPNotifier_SendsMessage(t *testing.T) {
	cfg := smtpConfig()
	cfg.SMTPTo = "oncall@example.com, lead@example.com"
	cfg.SMTPUsername, cfg.SMTPPassword = "user", "secret"

	session := &fakeSession{}
	dialer := &fakeDialer{session: session}
	n := alerts.NewSMTPNotifier(cfg, alerts.WithDialer(dialer.Dial))

	require.NoError(t, n.Notify(context.Background(), testPayload))

	assert.Equal(t, 1, dialer.calls)
	assert.Equal(t, "user", dialer.cfg.SMTPUsername)
	assert.Equal(t, 1, session.closed, "session released after send")
	require.Len(t, session.sent, 1)

	var raw bytes.Buffer
	_, err := session.sent[0].WriteTo(&raw)
	require.NoError(t, err)
	out := raw.String()

	assert.Contains(t, out, "Subject: "+testPayload.Title)
	assert.Contains(t, out, "alerts@example.com")
	assert.Contains(t, out, "oncall@example.com")
	assert.Contains(t, out, "lead@example.com")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "Reason: Latency threshold exceeded")
	assert.Contains(t, out, "Latency: 2.50s")
}

func TestSMTPNotifier_SendFailureStillCloses(t *testing.T) {
	session := &fakeSession{sendErr: errors.New("550 mailbox unavailable")}
	dialer := &fakeDialer{session: session}
	n := alerts.NewSMTPNotifier(smtpConfig(), alerts.WithDialer(dialer.Dial))

	err := n.Notify(context.Background(), testPayload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550")
	assert.Equal(t, 1, session.closed)
}

func TestDispatch_SMTP_ConnectFailureIsSoft(t *testing.T) {
	cfg := smtpConfig()
	dialer := &fakeDialer{err: errors.New("connection refused")}

	logger, logs := newTestLogger()
	metrics := monitoring.NewMetricsCollector()
	d := alerts.NewDispatcher(cfg, logger, metrics,
		alerts.WithNotifier(alerts.NewSMTPNotifier(cfg, alerts.WithDialer(dialer.Dial))))

	assert.NotPanics(t, func() { d.Dispatch(context.Background(), testPayload) })

	assert.Equal(t, 1, dialer.calls)
	assert.Contains(t, logs.messages(t), "alert delivery failed")
	assert.Equal(t, int64(1), metrics.Stats()["delivery_failures"])
}

func TestSMTPNotifier_InvalidSender(t *testing.T) {
	cfg := smtpConfig()
	cfg.SMTPFrom = "not an address"

	dialer := &fakeDialer{session: &fakeSession{}}
	n := alerts.NewSMTPNotifier(cfg, alerts.WithDialer(dialer.Dial))

	err := n.Notify(context.Background(), testPayload)
	require.Error(t, err)
	assert.NotErrorIs(t, err, alerts.ErrNotConfigured)
	assert.Equal(t, 0, dialer.calls, "message is validated before connecting")
}

func TestNewDispatcher_SelectsChannel(t *testing.T) {
	cfg := smtpConfig()
	d := alerts.NewDispatcher(cfg, nil, nil)
	assert.Equal(t, config.NotifySMTP, d.Mode())

	cfg.NotifyMode = ""
	d = alerts.NewDispatcher(cfg, nil, nil)
	assert.Equal(t, config.NotifyLog, d.Mode())
}
