package alerts

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/compresr/llm-alerts/internal/config"
)

const defaultSMTPTimeout = 15 * time.Second

// MailSession is an open SMTP connection.
type MailSession interface {
	Send(msgs ...*mail.Msg) error
	Close() error
}

// DialFunc opens a session to the configured server: connect, STARTTLS when
// enabled, then authenticate when credentials are present.
type DialFunc func(ctx context.Context, cfg config.AlertConfig) (MailSession, error)

// SMTPNotifier emails the payload as a plain-text message.
type SMTPNotifier struct {
	cfg  config.AlertConfig
	dial DialFunc
}

// SMTPOption configures an SMTPNotifier.
type SMTPOption func(*SMTPNotifier)

// WithDialer replaces the go-mail dialer.
func WithDialer(dial DialFunc) SMTPOption {
	return func(n *SMTPNotifier) { n.dial = dial }
}

// NewSMTPNotifier creates a notifier for cfg's SMTP settings.
func NewSMTPNotifier(cfg config.AlertConfig, opts ...SMTPOption) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg, dial: dialSMTP}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements Notifier.
func (n *SMTPNotifier) Name() string { return "smtp" }

// Notify builds the message and sends it over a fresh session.
// The session is closed on every path once opened.
func (n *SMTPNotifier) Notify(ctx context.Context, p Payload) error {
	if !n.cfg.SMTPConfigured() {
		return fmt.Errorf("smtp host, from and to are required: %w", ErrNotConfigured)
	}

	msg, err := n.buildMessage(p)
	if err != nil {
		return err
	}

	session, err := n.dial(ctx, n.cfg)
	if err != nil {
		return fmt.Errorf("smtp connect %s:%d: %w", n.cfg.SMTPHost, n.cfg.SMTPPort, err)
	}
	defer func() { _ = session.Close() }()

	if err := session.Send(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(p Payload) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.SMTPFrom); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.cfg.SMTPFrom, err)
	}
	if err := msg.To(n.cfg.SMTPRecipients()...); err != nil {
		return nil, fmt.Errorf("invalid recipients %q: %w", n.cfg.SMTPTo, err)
	}
	msg.Subject(p.Title)
	msg.SetBodyString(mail.TypeTextPlain, p.Body)
	return msg, nil
}

// loginMechanisms lists the SMTP AUTH mechanisms tried in order. Without TLS
// the NoEnc variants are used, since go-mail refuses plain credentials over an
// unencrypted connection to anything but localhost.
func loginMechanisms(useTLS bool) []mail.SMTPAuthType {
	if useTLS {
		return []mail.SMTPAuthType{mail.SMTPAuthPlain, mail.SMTPAuthLogin, mail.SMTPAuthCramMD5}
	}
	return []mail.SMTPAuthType{mail.SMTPAuthPlainNoEnc, mail.SMTPAuthLoginNoEnc, mail.SMTPAuthCramMD5}
}

// dialSMTP connects and, when both username and password are set, logs in
// with the first mechanism the server accepts.
func dialSMTP(ctx context.Context, cfg config.AlertConfig) (MailSession, error) {
	if cfg.SMTPUsername == "" || cfg.SMTPPassword == "" {
		return dialSMTPWith(ctx, cfg, "")
	}

	var lastErr error
	for _, mechanism := range loginMechanisms(cfg.SMTPUseTLS) {
		session, err := dialSMTPWith(ctx, cfg, mechanism)
		if err == nil {
			return session, nil
		}
		if !mechanismRejected(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// dialSMTPWith opens one session. An empty mechanism skips SMTP AUTH.
func dialSMTPWith(ctx context.Context, cfg config.AlertConfig, mechanism mail.SMTPAuthType) (MailSession, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(defaultSMTPTimeout),
	}
	if cfg.SMTPUseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if mechanism != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mechanism),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.DialWithContext(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// mechanismRejected reports whether err means the server does not offer the
// AUTH mechanism, as opposed to bad credentials or a network failure.
func mechanismRejected(err error) bool {
	if errors.Is(err, mail.ErrPlainAuthNotSupported) ||
		errors.Is(err, mail.ErrLoginAuthNotSupported) ||
		errors.Is(err, mail.ErrCramMD5AuthNotSupported) {
		return true
	}
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == 504
}
