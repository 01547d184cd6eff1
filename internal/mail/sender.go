// Package mail provides the outbound transport the dispatcher delivers through.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/scrumdeck/taskmail/internal/logging"
)

// Transport sends one message to one recipient. Implementations must honor
// ctx cancellation so a stuck send cannot stall the worker loop.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds SMTP transport configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string // falls back to User when empty
	UseTLS   bool   // attempt STARTTLS when the server offers it
}

// Sender is the SMTP implementation of Transport. When host or credentials
// are unconfigured it degrades to logging the would-be send and reporting
// success.
type Sender struct {
	config Config
	auth   smtp.Auth
	logger *logging.Logger
}

// NewSender creates an SMTP sender.
func NewSender(config Config, logger *logging.Logger) *Sender {
	if config.Port == 0 {
		config.Port = 587
	}
	if config.From == "" {
		config.From = config.User
	}

	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}

	return &Sender{
		config: config,
		auth:   auth,
		logger: logger,
	}
}

// Configured reports whether the sender has everything it needs to reach an
// SMTP server.
func (s *Sender) Configured() bool {
	return s.config.Host != "" && s.config.User != "" && s.config.Password != ""
}

// Send delivers one message. Unconfigured transport logs and succeeds.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	if !s.Configured() {
		s.logger.Plain().WithRecipient(to).WithField("subject", subject).
			Warn("smtp transport not configured, logging send instead")
		s.logger.Plain().WithRecipient(to).Infof("would send email:\n%s", body)
		return nil
	}

	msg := s.buildMessage(to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return s.send(ctx, addr, to, msg)
}

// buildMessage constructs the message with headers
func (s *Sender) buildMessage(to, subject, body string) []byte {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

func (s *Sender) send(ctx context.Context, addr, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// the context deadline bounds the whole SMTP conversation
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if s.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName: s.config.Host,
				MinVersion: tls.VersionTLS12,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.From)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the address from formats like "Name <email@example.com>"
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
