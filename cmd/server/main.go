// Package main implements the TaskForPerks claims API server: the HTTP
// API, the realtime stream and the periodic claim expiry sweeper.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/taskforperks/internal/config"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/platform/postgres"
	"github.com/spf13/pflag"
)

// options are the command line flags.
type options struct {
	configPath string
	migrate    string
	sweepOnce  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (default ./config.yaml if present)")
	fs.StringVar(&opts.migrate, "migrate", "", fmt.Sprintf("run a migration command and exit %v", postgres.MigrationCommands))
	fs.BoolVar(&opts.sweepOnce, "sweep-once", false, "run a single claim expiry sweep and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.migrate != "" && opts.sweepOnce {
		return options{}, errors.New("--migrate and --sweep-once are mutually exclusive")
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// run loads configuration and executes the requested mode. Invalid
// configuration fails before any connection is attempted.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"realtime_transport", cfg.Realtime.Transport,
		"sweeper_enabled", cfg.Sweeper.Enabled,
		"sweeper_interval", cfg.Sweeper.Interval)

	db, err := postgres.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}

	if opts.migrate != "" {
		defer closeDB(db, log)
		return postgres.Migrate(db.DB, opts.migrate, log)
	}

	app, err := newApplication(cfg, log, db)
	if err != nil {
		closeDB(db, log)
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if opts.sweepOnce {
		defer app.cleanup()
		return app.sweepOnce(ctx)
	}
	return app.Run(ctx)
}

func closeDB(db io.Closer, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Error("error closing database connection", "error", err)
	}
}
