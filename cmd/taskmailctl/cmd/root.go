package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scrumdeck/taskmail/internal/queue"
)

var (
	cfgFile    string
	redisURL   string
	queueName  string
	timeout    time.Duration
	outputJSON bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskmailctl",
	Short: "Taskmail CLI - Interact with the task notification queue",
	Long: `Taskmail CLI (taskmailctl) is a command line tool for interacting with
the task notification service.

You can use it to publish test events, inspect the queue backlog, and
verify queue connectivity.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.taskmailctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "redis://localhost:6379/0", "redis connection URL")
	rootCmd.PersistentFlags().StringVar(&queueName, "queue", "task-events-queue", "queue list key")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	// Bind flags to viper
	viper.BindPFlag("redis", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("queue", rootCmd.PersistentFlags().Lookup("queue"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".taskmailctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Override global variables with config values if flags weren't explicitly set
	if !rootCmd.PersistentFlags().Changed("redis") {
		if s := viper.GetString("redis"); s != "" {
			redisURL = s
		}
	}
	if !rootCmd.PersistentFlags().Changed("queue") {
		if s := viper.GetString("queue"); s != "" {
			queueName = s
		}
	}
	if !rootCmd.PersistentFlags().Changed("timeout") {
		if d := viper.GetDuration("timeout"); d > 0 {
			timeout = d
		}
	}
	if !rootCmd.PersistentFlags().Changed("json") {
		outputJSON = viper.GetBool("json")
	}
}

// connectQueue dials the queue for one command invocation
func connectQueue() (*queue.Redis, func(), context.Context, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	q, err := queue.Dial(ctx, redisURL, queueName)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("failed to connect: %w", err)
	}

	cleanup := func() {
		q.Close()
		cancel()
	}
	return q, cleanup, ctx, nil
}

// printOutput prints a value as indented JSON
func printOutput(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "output marshal failed:", err)
		return
	}
	fmt.Println(string(data))
}
