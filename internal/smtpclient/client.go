package smtpclient

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/opentracing/opentracing-go"

	"github.com/postlane/mailengine/internal/config"
	"github.com/postlane/mailengine/internal/logger"
	"github.com/postlane/mailengine/internal/models"
	"github.com/postlane/mailengine/internal/tracing"
)

// Result is the outcome of a successful send (spec.md §4.2 contract:
// send(message, dkim?) → {ok, smtp_id} | {err, classified}).
type Result struct {
	SMTPMessageID string
}

// Client owns a bounded connection pool to a single upstream SMTP relay.
type Client struct {
	cfg  *config.SMTPConfig
	log  logger.Logger
	pool *pool
}

func NewClient(cfg *config.SMTPConfig, log logger.Logger) *Client {
	return &Client{
		cfg:  cfg,
		log:  log,
		pool: newPool(cfg, log),
	}
}

// Send transmits a raw, already-assembled RFC 5322 message (built by
// BuildRawMessage, optionally DKIM-signed by the caller beforehand) to the
// message's recipient using a synthetic SMTP message-id. Any failure is
// returned as a *Classified so the caller's retry/suppression logic can
// switch on its kind.
func (c *Client) Send(ctx context.Context, msg *models.Message, smtpMessageID string, raw []byte) (*Result, *Classified) {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.Send")
	defer span.Finish()
	tracing.TagComponentSMTPClient(span)
	span.LogKV("to", msg.ToAddress, "smtp_message_id", smtpMessageID)

	addr := c.cfg.Addr()
	pc := c.pool.get(addr)

	err := pc.withClient(c.cfg, func(client *smtp.Client) error {
		return sendOne(client, msg.FromAddress, msg.ToAddress, raw)
	})
	if err != nil {
		classified := Classify(err)
		tracing.TraceErr(span, classified)
		return nil, classified
	}

	return &Result{SMTPMessageID: smtpMessageID}, nil
}

// Verify performs a handshake against the relay without sending mail, used
// by the process's readiness check.
func (c *Client) Verify() error {
	addr := c.cfg.Addr()
	pc := c.pool.get(addr)

	return pc.withClient(c.cfg, func(client *smtp.Client) error {
		return client.Noop()
	})
}

// Close drains every pooled connection.
func (c *Client) Close() {
	c.pool.drain()
}

// SystemDomain returns the domain used to build synthetic Message-ID
// values (spec.md §4.3: "synthetic message-id <{message_id}@{system_domain}>").
func (c *Client) SystemDomain() string {
	return c.cfg.SystemDomain
}

func sendOne(client *smtp.Client, from, to string, raw []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command failed for %s: %w", to, err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}

	if _, err := writer.Write(raw); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}

	return writer.Close()
}
