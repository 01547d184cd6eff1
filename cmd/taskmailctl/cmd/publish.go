package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrumdeck/taskmail/internal/event"
)

var (
	publishKind      string
	publishTaskID    int64
	publishTitle     string
	publishAssigned  string
	publishReporting string
	publishActor     string
	publishRole      string
	publishOrg       string
	publishReason    string
	publishStatus    []string
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a task event to the queue",
	Long: `Construct a task event envelope from flags and append it to the queue,
the same way the producer does. Useful for exercising the notifier end to end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := event.Envelope{
			Kind:             event.Kind(publishKind),
			TaskID:           publishTaskID,
			TaskTitle:        publishTitle,
			AssignedToEmail:  publishAssigned,
			ReportingToEmail: publishReporting,
			ActorEmail:       publishActor,
			ActorRole:        publishRole,
			OrganizationName: publishOrg,
			Reason:           publishReason,
			OccurredAt:       time.Now().UTC(),
		}
		if len(publishStatus) == 2 {
			env.Changes = event.FieldChanges{}.WithTransition("status", publishStatus[0], publishStatus[1])
		}

		data, err := env.Encode()
		if err != nil {
			return fmt.Errorf("invalid event: %w", err)
		}

		q, cleanup, ctx, err := connectQueue()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := q.Append(ctx, data); err != nil {
			return fmt.Errorf("append failed: %w", err)
		}

		if outputJSON {
			printOutput(env)
		} else {
			fmt.Printf("Published %s event for task #%d to %q\n", env.Kind, env.TaskID, queueName)
		}
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishKind, "kind", "task_created", "event kind (task_created|task_updated|task_deleted)")
	publishCmd.Flags().Int64Var(&publishTaskID, "task", 0, "task id (required)")
	publishCmd.Flags().StringVar(&publishTitle, "title", "", "task title")
	publishCmd.Flags().StringVar(&publishAssigned, "assigned", "", "assignee email")
	publishCmd.Flags().StringVar(&publishReporting, "reporting", "", "reporting owner email")
	publishCmd.Flags().StringVar(&publishActor, "actor", "", "actor email")
	publishCmd.Flags().StringVar(&publishRole, "role", "", "actor role")
	publishCmd.Flags().StringVar(&publishOrg, "org", "", "organization name")
	publishCmd.Flags().StringVar(&publishReason, "reason", "", "update reason")
	publishCmd.Flags().StringSliceVar(&publishStatus, "status", nil, "status transition as old,new")
	publishCmd.MarkFlagRequired("task")

	rootCmd.AddCommand(publishCmd)
}
