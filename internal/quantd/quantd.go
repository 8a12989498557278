package quantd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"quantex/api"
	"quantex/config"
	"quantex/internal/logging"
	"quantex/internal/runs"
	"quantex/store"
)

func Run(args []string) int {
	flags := flag.NewFlagSet("quantd", flag.ContinueOnError)
	flags.SetOutput(os.Stderr)

	var (
		configPath string
		port       int
		dsn        string
	)
	flags.StringVar(&configPath, "config", "", "service config file (YAML); ./config.yaml is used when present")
	flags.IntVar(&port, "port", 0, "HTTP port (overrides config and QUANTEX_PORT)")
	flags.StringVar(&dsn, "dsn", "", "Postgres DSN for run history (overrides config and QUANTEX_DSN)")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if configPath == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configPath = "config.yaml"
		}
	}

	cfg := config.GetConfig(configPath)
	if port > 0 {
		cfg.Port = port
	}
	if dsn != "" {
		cfg.DSN = dsn
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 2
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("quantd stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

// serve runs the HTTP API until ctx is cancelled, then drains in order:
// HTTP server, run manager, database.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var (
		opts    []runs.Option
		history api.History
		repo    *store.Repository
	)
	if cfg.DSN != "" {
		var err error
		repo, err = store.Open(cfg.DSN, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := repo.Close(); err != nil {
				logger.Warn("close database", zap.Error(err))
			}
		}()
		opts = append(opts, runs.WithPersister(repo))
		history = repo
		logger.Info("run history persisted to postgres")
	} else {
		logger.Info("no database configured, run history kept in memory")
	}

	manager := runs.NewManager(logger, opts...)
	defer manager.Close()

	server := api.NewServer(cfg, manager, history, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info("quantd started",
		zap.Int("port", cfg.Port),
		zap.Float64("default_risk_pct", cfg.RiskPct),
		zap.Float64("rate_limit", cfg.RateLimit),
	)

	var runErr error
	select {
	case err := <-errCh:
		runErr = err
		if runErr == nil {
			runErr = errors.New("exited unexpectedly")
		}
		runErr = fmt.Errorf("http server: %w", runErr)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("shutdown complete")
	return nil
}
