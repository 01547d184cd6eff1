package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scrumdeck/taskmail/internal/event"
	"github.com/scrumdeck/taskmail/internal/logging"
)

type fakeSend struct {
	To      string
	Subject string
	Body    string
}

// fakeTransport records sends and fails addresses listed in failFor.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []fakeSend
	failFor map[string]error
}

func (f *fakeTransport) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeSend{To: to, Subject: subject, Body: body})
	return nil
}

func testEnvelope() event.Envelope {
	return event.Envelope{
		Kind:             event.KindUpdated,
		TaskID:           42,
		TaskTitle:        "Fix login bug",
		AssignedToEmail:  "dev@example.com",
		ReportingToEmail: "po@example.com",
		ActorEmail:       "dev@example.com",
		ActorRole:        "Developer",
		OrganizationName: "Acme",
		Changes:          event.FieldChanges{}.WithTransition("status", "open", "in_review"),
		Reason:           "ready for QA",
		OccurredAt:       time.Now().UTC(),
	}
}

func newTestDispatcher(t *fakeTransport) *Dispatcher {
	return NewDispatcher(t, time.Second, logging.New("dispatch-test"))
}

func TestDispatchBothRecipients(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(tr)

	sum, err := d.Dispatch(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Delivered != 2 || sum.Failed != 0 {
		t.Fatalf("summary = %+v, want 2 delivered 0 failed", sum)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(tr.sent))
	}
	if tr.sent[0].To != "dev@example.com" || tr.sent[1].To != "po@example.com" {
		t.Fatalf("recipient order = %q, %q", tr.sent[0].To, tr.sent[1].To)
	}
	for _, s := range tr.sent {
		if s.Subject != "Task Updated: Fix login bug" {
			t.Fatalf("subject = %q", s.Subject)
		}
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	tr := &fakeTransport{failFor: map[string]error{
		"dev@example.com": errors.New("mailbox full"),
	}}
	d := newTestDispatcher(tr)

	sum, err := d.Dispatch(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("partial failure must not return an error, got %v", err)
	}
	if sum.Delivered != 1 || sum.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 delivered 1 failed", sum)
	}
	if len(tr.sent) != 1 || tr.sent[0].To != "po@example.com" {
		t.Fatalf("surviving recipient still gets delivery, sent = %+v", tr.sent)
	}
	if sum.Attempts[0].Success || sum.Attempts[0].Err == nil {
		t.Fatalf("first attempt should carry the failure: %+v", sum.Attempts[0])
	}
}

func TestDispatchNoRecipients(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(tr)

	env := testEnvelope()
	env.AssignedToEmail = ""
	env.ReportingToEmail = ""

	sum, err := d.Dispatch(context.Background(), env)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Attempted() != 0 || len(tr.sent) != 0 {
		t.Fatalf("zero recipients must be a no-op, got %+v, sent %d", sum, len(tr.sent))
	}
}

func TestDispatchSingleRecipient(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(tr)

	env := testEnvelope()
	env.AssignedToEmail = ""

	sum, err := d.Dispatch(context.Background(), env)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sum.Delivered != 1 || tr.sent[0].To != "po@example.com" {
		t.Fatalf("want single delivery to reporting owner, got %+v", sum)
	}
	if !strings.Contains(tr.sent[0].Body, RoleReporting) {
		t.Fatalf("body should name the recipient role:\n%s", tr.sent[0].Body)
	}
}

func TestDispatchInvalidEnvelope(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDispatcher(tr)

	env := testEnvelope()
	env.TaskID = 0

	if _, err := d.Dispatch(context.Background(), env); !errors.Is(err, event.ErrMissingTaskID) {
		t.Fatalf("err = %v, want ErrMissingTaskID", err)
	}
	if len(tr.sent) != 0 {
		t.Fatalf("invalid envelope must not be sent")
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		kind event.Kind
		want string
	}{
		{event.KindCreated, "New Task Assigned: Fix login bug"},
		{event.KindUpdated, "Task Updated: Fix login bug"},
		{event.KindDeleted, "Task Deleted: Fix login bug"},
		{event.Kind("task_archived"), "Task Notification: Fix login bug"},
	}
	for _, tt := range tests {
		env := testEnvelope()
		env.Kind = tt.kind
		if got := Subject(env); got != tt.want {
			t.Errorf("Subject(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestBodyContent(t *testing.T) {
	env := testEnvelope()
	env.Changes = env.Changes.WithChange("priority", "high")

	body := Body(env, RoleAssigned)

	for _, want := range []string{
		"Task #42: Fix login bug",
		"Organization: Acme",
		"Action: updated by Developer (dev@example.com)",
		"Status: open -> in_review",
		"- priority: high",
		"Reason: ready for QA",
		"You are receiving this notification as Assigned Developer.",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestBodyFallbacks(t *testing.T) {
	env := testEnvelope()
	env.OrganizationName = ""
	env.ActorEmail = ""
	env.ActorRole = ""

	body := Body(env, RoleReporting)

	if !strings.Contains(body, "Organization: Your Organization") {
		t.Errorf("missing organization fallback:\n%s", body)
	}
	if !strings.Contains(body, "by Owner (System)") {
		t.Errorf("missing actor fallbacks:\n%s", body)
	}
}
