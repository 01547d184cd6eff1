package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the queue backend",
	Long:  `Verify the Redis queue backend is running and accessible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, cleanup, ctx, err := connectQueue()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := q.Ping(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}

		fmt.Println("Pong! Queue backend is reachable")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
