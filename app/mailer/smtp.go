// Package mailer delivers email over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

const implicitTLSPort = 465

var ErrTransport = errors.New("smtp transport failure")

// Client is the subset of the go-mail client the mailer drives.
type Client interface {
	DialWithContext(ctx context.Context) error
	Send(msgs ...*mail.Msg) error
	Close() error
}

type ClientFactory func(cfg config.SMTPConfig) (Client, error)

type Option func(*SMTPMailer)

func WithClientFactory(factory ClientFactory) Option {
	return func(m *SMTPMailer) {
		if factory != nil {
			m.newClient = factory
		}
	}
}

// SMTPMailer keeps a set of idle SMTP sessions. Each Send takes its own
// session, so concurrent sends do not wait on each other. A session that
// fails is dropped and the next Send dials again.
type SMTPMailer struct {
	cfg       config.SMTPConfig
	newClient ClientFactory
	logger    logrus.FieldLogger

	mu   sync.Mutex
	idle []Client
	// gen is bumped by Close. Sessions checked out under an older
	// generation are closed when their send returns.
	gen uint64
}

func NewSMTPMailer(cfg config.SMTPConfig, logger logrus.FieldLogger, opts ...Option) *SMTPMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &SMTPMailer{
		cfg:       cfg,
		newClient: dialer,
		logger:    logger.WithField("component", "smtp"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens an SMTP session if none is idle.
func (m *SMTPMailer) Connect(ctx context.Context) error {
	m.mu.Lock()
	ready := len(m.idle) > 0
	gen := m.gen
	m.mu.Unlock()
	if ready {
		return nil
	}

	client, err := m.dial(ctx)
	if err != nil {
		return err
	}
	m.release(client, gen)
	return nil
}

// Send delivers msg over an idle or freshly dialled session. It returns once
// ctx ends even if the relay has not answered; the abandoned session is
// closed when the relay finally responds or the client times out.
func (m *SMTPMailer) Send(ctx context.Context, msg entity.EmailMessage) error {
	out, err := m.compose(msg)
	if err != nil {
		return err
	}

	client, gen, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		m.release(client, gen)
		return err
	}

	result := make(chan error, 1)
	go func() {
		result <- client.Send(out)
	}()

	select {
	case err := <-result:
		if err != nil {
			m.discard(client)
			return fmt.Errorf("%w: send to %s: %v", ErrTransport, msg.Email, err)
		}
		m.release(client, gen)
		return nil
	case <-ctx.Done():
		go func() {
			<-result
			m.discard(client)
		}()
		return fmt.Errorf("%w: send to %s: %w", ErrTransport, msg.Email, ctx.Err())
	}
}

// Close closes the idle sessions. It does not wait for sends in progress;
// their sessions are closed as those sends return.
func (m *SMTPMailer) Close() error {
	m.mu.Lock()
	idle := m.idle
	m.idle = nil
	m.gen++
	m.mu.Unlock()

	var errs []error
	for _, client := range idle {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *SMTPMailer) acquire(ctx context.Context) (Client, uint64, error) {
	m.mu.Lock()
	gen := m.gen
	if n := len(m.idle); n > 0 {
		client := m.idle[n-1]
		m.idle = m.idle[:n-1]
		m.mu.Unlock()
		return client, gen, nil
	}
	m.mu.Unlock()

	client, err := m.dial(ctx)
	if err != nil {
		return nil, 0, err
	}
	return client, gen, nil
}

func (m *SMTPMailer) dial(ctx context.Context) (Client, error) {
	client, err := m.newClient(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", ErrTransport, m.cfg.Host, m.cfg.Port, err)
	}
	m.logger.WithField("host", m.cfg.Host).Debug("SMTP session opened")
	return client, nil
}

func (m *SMTPMailer) release(client Client, gen uint64) {
	m.mu.Lock()
	if gen == m.gen {
		m.idle = append(m.idle, client)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.discard(client)
}

func (m *SMTPMailer) discard(client Client) {
	if err := client.Close(); err != nil {
		m.logger.WithError(err).Debug("Failed to close SMTP session")
	}
}

func (m *SMTPMailer) compose(msg entity.EmailMessage) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.cfg.From, err)
	}
	if err := out.To(msg.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.Email, err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

func dialer(cfg config.SMTPConfig) (Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
