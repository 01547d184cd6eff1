package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the task lifecycle occurrence an envelope describes.
type Kind string

const (
	KindCreated Kind = "task_created"
	KindUpdated Kind = "task_updated"
	KindDeleted Kind = "task_deleted"
)

// Valid reports whether the kind is one of the known lifecycle kinds
func (k Kind) Valid() bool {
	switch k {
	case KindCreated, KindUpdated, KindDeleted:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

var (
	ErrMissingTaskID = errors.New("envelope missing task_id")
	ErrMissingKind   = errors.New("envelope missing event_kind")
	ErrUnknownKind   = errors.New("envelope has unknown event_kind")
)

// Envelope is the immutable record of one task lifecycle event, passed from
// producer to consumer through the durable queue. Consumers only read it.
type Envelope struct {
	Kind             Kind              `json:"event_kind"`
	TaskID           int64             `json:"task_id"`
	TaskTitle        string            `json:"task_title,omitempty"`
	AssignedToID     int64             `json:"assigned_to_id,omitempty"`
	AssignedToEmail  string            `json:"assigned_to_email,omitempty"`
	ReportingToID    int64             `json:"reporting_to_id,omitempty"`
	ReportingToEmail string            `json:"reporting_to_email,omitempty"`
	ActorID          int64             `json:"actor_id,omitempty"`
	ActorEmail       string            `json:"actor_email,omitempty"`
	ActorRole        string            `json:"actor_role,omitempty"`
	OrganizationID   int64             `json:"organization_id,omitempty"`
	OrganizationName string            `json:"organization_name,omitempty"`
	Changes          FieldChanges      `json:"changes,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	OccurredAt       time.Time         `json:"occurred_at"`
	TraceHeaders     map[string]string `json:"trace_headers,omitempty"`
}

// Validate fails closed on the fields every consumer depends on. Unknown extra
// keys on the wire are tolerated; missing identity is not.
func (e Envelope) Validate() error {
	if e.TaskID == 0 {
		return ErrMissingTaskID
	}
	if e.Kind == "" {
		return ErrMissingKind
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// Encode serializes the envelope for the queue
func (e Envelope) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses one queue entry. It returns a validation error for entries a
// worker must skip rather than dispatch.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// StatusChange returns the status transition carried in Changes, if any
func (e Envelope) StatusChange() (oldStatus, newStatus string, ok bool) {
	for _, c := range e.Changes {
		if c.Field != "status" {
			continue
		}
		if c.Old == nil {
			return "", stringify(c.New), c.New != nil
		}
		return stringify(c.Old), stringify(c.New), true
	}
	return "", "", false
}

// HasRecipients reports whether dispatch would attempt at least one send
func (e Envelope) HasRecipients() bool {
	return e.AssignedToEmail != "" || e.ReportingToEmail != ""
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
