package main

import (
	"os"
	"path/filepath"

	"github.com/amonks/issues/internal/listflags"
	"github.com/amonks/issues/internal/logging"
	"github.com/amonks/issues/internal/paths"
	"github.com/amonks/issues/internal/tui"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// issues watch
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live issue board",
	Long: `Open a terminal board that updates as issues change on the server.

Press ? inside the board for key bindings. Logs go to
~/.local/state/issues/watch.log.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchFilter listflags.Filter

func init() {
	rootCmd.AddCommand(watchCmd)
	listflags.AddFilterFlags(watchCmd, &watchFilter)
}

func runWatch(cmd *cobra.Command, args []string) error {
	filter, err := watchFilter.Parse()
	if err != nil {
		return err
	}
	api, err := signedInClient()
	if err != nil {
		return err
	}

	identity, err := api.WhoAmI(cmd.Context())
	if err != nil {
		return explainAuthError(err)
	}

	logger, closeLog := watchLogger()
	defer closeLog()

	err = tui.Run(cmd.Context(), tui.Options{
		Subscriber: api,
		Writer:     api,
		Identity:   identity,
		Filter:     filter,
		Logger:     logger,
	})
	return explainAuthError(err)
}

// watchLogger writes to a file in the state directory since the board owns
// the terminal.
func watchLogger() (*log.Logger, func()) {
	dir, err := paths.DefaultStateDir()
	if err != nil {
		return logging.Discard(), func() {}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return logging.Discard(), func() {}
	}
	file, err := os.OpenFile(filepath.Join(dir, "watch.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return logging.Discard(), func() {}
	}
	logger := logging.New(file, logging.DefaultOptions())
	logger.Info("watch started", "pid", os.Getpid())
	return logger, func() { file.Close() }
}
