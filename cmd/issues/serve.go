package main

import (
	"context"
	"os"
	"time"

	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/internal/logging"
	"github.com/amonks/issues/server"
	"github.com/amonks/issues/store"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const sessionPurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the issues API and web UI",
	Long: `Run the issues server.

The JSON API is served at the root and the browser UI under /web.
Defaults come from issues.toml and ~/.config/issues/config.toml.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr     string
	serveDatabase string
	serveLogLevel string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default from config, then 127.0.0.1:8089)")
	serveCmd.Flags().StringVar(&serveDatabase, "db", "", "SQLite database path")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("db") {
		cfg.Server.Database = serveDatabase
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Server.LogLevel = serveLogLevel
	}

	level, err := logging.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	opts := logging.DefaultOptions()
	opts.Level = level
	logger := logging.New(os.Stderr, opts)

	ttl, err := cfg.SessionTTLDuration()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Server.Database, store.Options{Logger: logger.WithPrefix("store")})
	if err != nil {
		return err
	}
	defer st.Close()

	authService, err := auth.New(st.DB(), auth.Options{SessionTTL: ttl, Logger: logger.WithPrefix("auth")})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Options{Store: st, Auth: authService, Logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go purgeSessions(ctx, authService, logger)

	logger.Info("database", "path", cfg.Server.Database)
	return srv.Serve(cfg.Server.Addr)
}

func purgeSessions(ctx context.Context, authService *auth.Service, logger *log.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		if removed, err := authService.PurgeExpired(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("purge expired sessions", "err", err)
		} else if removed > 0 {
			logger.Info("purged expired sessions", "count", removed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
