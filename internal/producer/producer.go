// Package producer builds event envelopes for task mutations and appends
// them to the durable queue. Enqueue is fire and forget: a producer failure
// is logged and counted but never surfaces to the caller, so the task
// mutation that triggered it always proceeds.
package producer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scrumdeck/taskmail/internal/event"
	"github.com/scrumdeck/taskmail/internal/logging"
	"github.com/scrumdeck/taskmail/internal/metrics"
	"github.com/scrumdeck/taskmail/internal/queue"
	"github.com/scrumdeck/taskmail/internal/tracing"
)

// Directory resolves member emails and organization names at enqueue time.
// Lookups that fail degrade to empty fields, they never block the event.
type Directory interface {
	DeveloperEmail(ctx context.Context, id int64) (string, error)
	ProductOwnerEmail(ctx context.Context, id int64) (string, error)
	MemberEmail(ctx context.Context, id int64) (string, error)
	OrganizationName(ctx context.Context, id int64) (string, error)
}

// Task carries the mutated task's state as the producer needs it.
type Task struct {
	ID             int64
	Title          string
	Status         string
	AssignedToID   int64
	ReportingToID  int64
	OrganizationID int64
}

// Actor identifies who performed the mutation.
type Actor struct {
	ID   int64
	Role string
}

// Update describes a task_updated mutation.
type Update struct {
	PrevStatus string
	Fields     map[string]any // non-status fields that changed, keyed by name
	FieldOrder []string       // render order for Fields
	Reason     string
}

// Producer emits task event envelopes onto the queue.
type Producer struct {
	queue     queue.Queue
	directory Directory
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a producer writing to q, resolving recipients through dir.
func New(q queue.Queue, dir Directory, logger *logging.Logger) *Producer {
	return &Producer{
		queue:     q,
		directory: dir,
		logger:    logger,
		now:       time.Now,
	}
}

// TaskCreated publishes a task_created event.
func (p *Producer) TaskCreated(ctx context.Context, t Task, actor Actor) {
	env := p.buildEnvelope(ctx, event.KindCreated, t, actor)
	p.enqueue(ctx, env)
}

// TaskUpdated publishes a task_updated event carrying the field changes.
// The status transition, when present, is recorded first with its old and
// new values so consumers can render it distinctly.
func (p *Producer) TaskUpdated(ctx context.Context, t Task, u Update, actor Actor) {
	env := p.buildEnvelope(ctx, event.KindUpdated, t, actor)

	var changes event.FieldChanges
	if u.PrevStatus != "" && u.PrevStatus != t.Status {
		changes = changes.WithTransition("status", u.PrevStatus, t.Status)
	}
	for _, field := range u.FieldOrder {
		if v, ok := u.Fields[field]; ok {
			changes = changes.WithChange(field, v)
		}
	}
	env.Changes = changes

	env.Reason = u.Reason
	if env.Reason == "" {
		env.Reason = fmt.Sprintf("%s modified task", actorRole(actor))
	}

	p.enqueue(ctx, env)
}

// TaskDeleted publishes a task_deleted event.
func (p *Producer) TaskDeleted(ctx context.Context, t Task, actor Actor) {
	env := p.buildEnvelope(ctx, event.KindDeleted, t, actor)
	p.enqueue(ctx, env)
}

// buildEnvelope assembles the envelope for one mutation. Recipient and
// organization lookups happen here, at enqueue time, so the consumer sees a
// self-contained event. Apart from OccurredAt the result is deterministic
// for a given task and actor.
func (p *Producer) buildEnvelope(ctx context.Context, kind event.Kind, t Task, actor Actor) event.Envelope {
	env := event.Envelope{
		Kind:           kind,
		TaskID:         t.ID,
		TaskTitle:      t.Title,
		AssignedToID:   t.AssignedToID,
		ReportingToID:  t.ReportingToID,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
		OrganizationID: t.OrganizationID,
		OccurredAt:     p.now().UTC(),
		TraceHeaders:   tracing.PropagateTraceToQueue(ctx),
	}

	if t.AssignedToID != 0 {
		env.AssignedToEmail = p.lookup(ctx, t.ID, "assignee", func() (string, error) {
			return p.directory.DeveloperEmail(ctx, t.AssignedToID)
		})
	}
	if t.ReportingToID != 0 {
		env.ReportingToEmail = p.lookup(ctx, t.ID, "reporting_owner", func() (string, error) {
			return p.directory.ProductOwnerEmail(ctx, t.ReportingToID)
		})
	}
	if actor.ID != 0 {
		env.ActorEmail = p.lookup(ctx, t.ID, "actor", func() (string, error) {
			return p.directory.MemberEmail(ctx, actor.ID)
		})
	}
	if t.OrganizationID != 0 {
		env.OrganizationName = p.lookup(ctx, t.ID, "organization", func() (string, error) {
			return p.directory.OrganizationName(ctx, t.OrganizationID)
		})
	}
	return env
}

// lookup runs one directory resolution, degrading to empty on failure
func (p *Producer) lookup(ctx context.Context, taskID int64, what string, fn func() (string, error)) string {
	v, err := fn()
	if err != nil {
		p.logger.WithContext(ctx).WithTask(taskID).WithField("lookup", what).WithError(err).
			Warn("directory lookup failed, field left empty")
		return ""
	}
	return v
}

// enqueue encodes and appends the envelope, absorbing any failure
func (p *Producer) enqueue(ctx context.Context, env event.Envelope) {
	ctx, span := tracing.StartSpan(ctx, "producer.enqueue",
		attribute.Int64("task_id", env.TaskID),
		attribute.String("event_kind", env.Kind.String()),
	)
	defer span.End()

	data, err := env.Encode()
	if err != nil {
		tracing.SetSpanError(ctx, err)
		p.logger.WithContext(ctx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
			WithError(err).Error("event encode failed, event dropped")
		metrics.RecordEnqueueFailure()
		return
	}

	if err := p.queue.Append(ctx, data); err != nil {
		tracing.SetSpanError(ctx, err)
		p.logger.WithContext(ctx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
			WithError(err).Error("event enqueue failed, event dropped")
		metrics.RecordEnqueueFailure()
		return
	}

	p.logger.WithContext(ctx).WithTask(env.TaskID).WithEventKind(env.Kind.String()).
		Debug("event enqueued")
	metrics.RecordEnqueued(env.Kind.String())
}

func actorRole(a Actor) string {
	if a.Role != "" {
		return a.Role
	}
	return "Owner"
}
