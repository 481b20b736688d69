// Package main provides the agented CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ElectronicaGitHub/agented-io/cli"
)

var (
	// Global flags
	provider  string
	logLevel  string
	logFormat string
	timeout   time.Duration
	verbose   bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	defaults := cli.DefaultOptions()
	rootCmd := &cobra.Command{
		Use:   "agented",
		Short: "Run trees of cooperating LLM agents",
		Long: `Run a tree of LLM agents declared in a YAML file.

The root agent receives your message, calls functions or delegates to its
children, and replies once the work is finished. Providers are picked from
the *_API_KEY variables with fallback chains from LLM_CONNECTORS_SUBSTITUTE_*.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", defaults.LogFormat, "Log format (text, json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaults.Timeout, "Maximum time to wait for one exchange")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Trace agent activity on stderr")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(providersCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:  provider,
		LogLevel:  logLevel,
		LogFormat: logFormat,
		Timeout:   timeout,
		Verbose:   verbose,
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [tree.yaml] [message]",
		Short: "Send one message to an agent tree and print the reply",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(cmd.Context(), args[0], args[1], options())
		},
	}
	return cmd
}

func chatCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "chat [tree.yaml]",
		Short: "Start an interactive chat session with an agent tree",
		Long: `Start an interactive chat session with an agent tree.

With --db the history of every agent pair is kept in SQLite, so a later
session with the same tree continues where this one stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options()
			opts.DBPath = dbPath
			return cli.Chat(cmd.Context(), args[0], os.Stdin, opts)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path for message history")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers, their models and fallback chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListProviders(os.Stdout, options())
		},
	}
}
