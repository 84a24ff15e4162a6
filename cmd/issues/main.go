// Package main implements the issues CLI tool.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "issues",
	Short:        "A small live issue tracker",
	SilenceUsage: true,
}

var serverOverride string

func init() {
	rootCmd.PersistentFlags().StringVar(&serverOverride, "server", "", "Server URL (overrides ISSUES_SERVER and config)")
}
