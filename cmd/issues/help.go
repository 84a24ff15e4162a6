package main

import (
	"fmt"
	"strings"

	"github.com/amonks/issues/internal/clientenv"
	"github.com/amonks/issues/internal/config"
	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:   "help [command]",
	Short: "Help about any command",
	Args:  cobra.ArbitraryArgs,
	RunE:  runHelp,
}

var helpConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration files, keys and environment variables",
	Args:  cobra.NoArgs,
	RunE:  runHelpConfig,
}

func init() {
	rootCmd.SetHelpCommand(helpCmd)
	helpCmd.AddCommand(helpConfigCmd)
}

func runHelp(cmd *cobra.Command, args []string) error {
	root := cmd.Root()
	if len(args) == 0 {
		return root.Help()
	}

	target, _, err := root.Find(args)
	if err != nil || target == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Unknown help topic %q\n", strings.Join(args, " "))
		return root.Help()
	}

	return target.Help()
}

func runHelpConfig(cmd *cobra.Command, args []string) error {
	var builder strings.Builder
	builder.WriteString("Files (project values win):\n")
	builder.WriteString("  ~/.config/issues/config.toml\n")
	fmt.Fprintf(&builder, "  ./%s\n", config.ProjectFileName)
	builder.WriteString("\n[server]\n")
	fmt.Fprintf(&builder, "  addr         listen address (default %s)\n", config.DefaultAddr)
	builder.WriteString("  database     SQLite path (default ~/.local/state/issues/issues.db)\n")
	fmt.Fprintf(&builder, "  session-ttl  session lifetime (default %s)\n", config.DefaultSessionTTL)
	fmt.Fprintf(&builder, "  log-level    debug, info, warn or error (default %s)\n", config.DefaultLogLevel)
	builder.WriteString("\n[client]\n")
	builder.WriteString("  server       server URL used by client commands\n")
	builder.WriteString("\nEnvironment:\n")
	fmt.Fprintf(&builder, "  %s  server URL (overrides [client] server)\n", clientenv.ServerEnvVar)
	fmt.Fprintf(&builder, "  %s   session token (overrides saved credentials)\n", clientenv.TokenEnvVar)
	_, err := fmt.Fprint(cmd.OutOrStdout(), builder.String())
	return err
}
