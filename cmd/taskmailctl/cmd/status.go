package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the queue backlog",
	Long:  `Report the number of task events waiting in the queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, cleanup, ctx, err := connectQueue()
		if err != nil {
			return err
		}
		defer cleanup()

		depth, err := q.Length(ctx)
		if err != nil {
			return fmt.Errorf("length failed: %w", err)
		}

		if outputJSON {
			printOutput(map[string]any{
				"queue": queueName,
				"depth": depth,
			})
		} else {
			fmt.Printf("Queue %q: %d pending event(s)\n", queueName, depth)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
