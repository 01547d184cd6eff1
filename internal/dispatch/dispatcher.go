// Package dispatch turns one decoded task event into independent notification
// send attempts, one per resolved recipient.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scrumdeck/taskmail/internal/event"
	"github.com/scrumdeck/taskmail/internal/logging"
	"github.com/scrumdeck/taskmail/internal/mail"
	"github.com/scrumdeck/taskmail/internal/metrics"
	"github.com/scrumdeck/taskmail/internal/tracing"
)

// Recipient role labels surfaced in logs and rendered content.
const (
	RoleAssigned  = "Assigned Developer"
	RoleReporting = "Reporting To (Product Owner)"
)

// Attempt records one recipient's send outcome for one envelope. It lives
// only for the duration of dispatch, feeding logs and metrics.
type Attempt struct {
	Recipient string
	RoleLabel string
	Success   bool
	Err       error
}

// Summary aggregates the per-recipient outcomes of one dispatch.
type Summary struct {
	Delivered int
	Failed    int
	Attempts  []Attempt
}

// Attempted returns the number of send attempts made
func (s Summary) Attempted() int {
	return len(s.Attempts)
}

// Dispatcher delivers rendered notifications through a mail transport.
// Recipient outcomes are fully independent: one failure never suppresses the
// other attempt and never escapes as an error.
type Dispatcher struct {
	transport   mail.Transport
	sendTimeout time.Duration
	logger      *logging.Logger

	delivered atomic.Int64
	failed    atomic.Int64
}

// NewDispatcher creates a dispatcher. sendTimeout bounds each per-recipient
// transport send.
func NewDispatcher(transport mail.Transport, sendTimeout time.Duration, logger *logging.Logger) *Dispatcher {
	if sendTimeout == 0 {
		sendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		transport:   transport,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Totals returns the running send counts since the dispatcher started
func (d *Dispatcher) Totals() (delivered, failed int64) {
	return d.delivered.Load(), d.failed.Load()
}

type recipient struct {
	email     string
	roleLabel string
	role      string // metric label
}

// Dispatch attempts delivery of one envelope to each resolved recipient.
// It returns an error only for a structurally invalid envelope, which the
// caller should count as a skipped event. Partial delivery failure is
// reported through the summary, never as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, env event.Envelope) (Summary, error) {
	if err := env.Validate(); err != nil {
		return Summary{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch.event",
		attribute.Int64("task_id", env.TaskID),
		attribute.String("event_kind", env.Kind.String()),
	)
	defer span.End()

	recipients := resolveRecipients(env)
	if len(recipients) == 0 {
		d.logger.WithContext(ctx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
			Info("no recipients resolved, nothing to send")
		tracing.AddSpanEvent(ctx, "dispatch.no_recipients")
		metrics.RecordDispatched(env.Kind.String())
		return Summary{}, nil
	}

	subject := Subject(env)
	var sum Summary
	for _, r := range recipients {
		attempt := d.sendTo(ctx, env, r, subject)
		sum.Attempts = append(sum.Attempts, attempt)
		if attempt.Success {
			sum.Delivered++
			d.delivered.Add(1)
		} else {
			sum.Failed++
			d.failed.Add(1)
		}
	}

	span.SetAttributes(
		attribute.Int("dispatch.delivered", sum.Delivered),
		attribute.Int("dispatch.failed", sum.Failed),
	)
	metrics.RecordDispatched(env.Kind.String())
	return sum, nil
}

// sendTo makes one bounded, isolated send attempt
func (d *Dispatcher) sendTo(ctx context.Context, env event.Envelope, r recipient, subject string) Attempt {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	body := Body(env, r.roleLabel)

	start := time.Now()
	err := d.transport.Send(sendCtx, r.email, subject, body)
	latency := time.Since(start)

	if err != nil {
		tracing.SetSpanError(ctx, err)
		d.logger.WithContext(ctx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
			WithRecipient(r.email).WithField("role", r.roleLabel).WithError(err).
			Error("notification send failed")
		metrics.RecordSend("failed", r.role, latency)
		return Attempt{Recipient: r.email, RoleLabel: r.roleLabel, Err: err}
	}

	d.logger.WithContext(ctx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
		WithRecipient(r.email).WithField("role", r.roleLabel).
		Info("notification sent")
	metrics.RecordSend("delivered", r.role, latency)
	return Attempt{Recipient: r.email, RoleLabel: r.roleLabel, Success: true}
}

// resolveRecipients returns up to two recipients, assignee first
func resolveRecipients(env event.Envelope) []recipient {
	var out []recipient
	if env.AssignedToEmail != "" {
		out = append(out, recipient{email: env.AssignedToEmail, roleLabel: RoleAssigned, role: "assigned"})
	}
	if env.ReportingToEmail != "" {
		out = append(out, recipient{email: env.ReportingToEmail, roleLabel: RoleReporting, role: "reporting"})
	}
	return out
}
