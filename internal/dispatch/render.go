package dispatch

import (
	"fmt"
	"strings"

	"github.com/scrumdeck/taskmail/internal/event"
)

// Subject returns the subject line for an envelope's event kind.
func Subject(env event.Envelope) string {
	switch env.Kind {
	case event.KindCreated:
		return fmt.Sprintf("New Task Assigned: %s", env.TaskTitle)
	case event.KindUpdated:
		return fmt.Sprintf("Task Updated: %s", env.TaskTitle)
	case event.KindDeleted:
		return fmt.Sprintf("Task Deleted: %s", env.TaskTitle)
	default:
		return fmt.Sprintf("Task Notification: %s", env.TaskTitle)
	}
}

// Body renders the plain-text notification for one recipient role.
func Body(env event.Envelope, roleLabel string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task #%d: %s\n", env.TaskID, env.TaskTitle)
	fmt.Fprintf(&b, "Organization: %s\n", orgName(env))
	fmt.Fprintf(&b, "%s\n", actionLine(env))

	if old, new, ok := env.StatusChange(); ok {
		fmt.Fprintf(&b, "Status: %s -> %s\n", old, new)
	}
	if other := formatOtherChanges(env.Changes); other != "" {
		b.WriteString(other)
	}
	if env.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", env.Reason)
	}

	fmt.Fprintf(&b, "\nYou are receiving this notification as %s.\n", roleLabel)
	return b.String()
}

func orgName(env event.Envelope) string {
	if env.OrganizationName != "" {
		return env.OrganizationName
	}
	return "Your Organization"
}

func actorDisplay(env event.Envelope) string {
	if env.ActorEmail != "" {
		return env.ActorEmail
	}
	return "System"
}

func actorRole(env event.Envelope) string {
	if env.ActorRole != "" {
		return env.ActorRole
	}
	return "Owner"
}

func actionLine(env event.Envelope) string {
	var verb string
	switch env.Kind {
	case event.KindCreated:
		verb = "created"
	case event.KindUpdated:
		verb = "updated"
	case event.KindDeleted:
		verb = "deleted"
	default:
		verb = "changed"
	}
	return fmt.Sprintf("Action: %s by %s (%s)", verb, actorRole(env), actorDisplay(env))
}

// formatOtherChanges lists non-status field changes in document order
func formatOtherChanges(changes event.FieldChanges) string {
	var lines []string
	for _, c := range changes {
		if c.Field == "status" {
			continue
		}
		if c.Old != nil {
			lines = append(lines, fmt.Sprintf("  - %s: %v -> %v", c.Field, c.Old, c.New))
		} else {
			lines = append(lines, fmt.Sprintf("  - %s: %v", c.Field, c.New))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Other changes:\n" + strings.Join(lines, "\n") + "\n"
}
