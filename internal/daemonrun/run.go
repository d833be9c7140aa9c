// Package daemonrun hosts the process-level runtime shared by notebookd and
// "notebook serve": logger and telemetry setup, preflight logging, and the
// daemon lifecycle bound to SIGINT/SIGTERM.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/Davygupta47/notebook/internal/config"
	"github.com/Davygupta47/notebook/internal/daemon"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/preflight"
	"github.com/Davygupta47/notebook/internal/telemetry"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Version  string
	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
}

// Run starts notebookd and blocks until ctx ends or a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Setup(signalCtx, cfg.Telemetry, opts.Version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", logging.Error(err))
		}
	}()
	if handler := provider.LogHandler(); handler != nil {
		logger = logging.TeeLogger(logger, handler)
	}
	slog.SetDefault(logger)

	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "notebookd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := daemon.New(signalCtx, cfg, logger,
		daemon.WithObserver(provider.Metrics()),
		daemon.WithTracerProvider(provider.TracerProvider()),
		daemon.WithVersion(opts.Version),
	)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon shutdown incomplete", logging.Error(err))
		}
	}()
	if err := provider.Metrics().ObserveGate(d.Gate()); err != nil {
		logger.Warn("gate metrics unavailable", logging.Error(err))
	}

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if opts.Ready != nil {
		opts.Ready(d.Addr())
	}

	<-signalCtx.Done()
	logger.Info("notebookd shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		attrs := logging.Args(
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
		if result.Passed {
			logger.Debug("preflight check passed", attrs...)
			continue
		}
		logger.Warn("preflight check failed", attrs...)
	}
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
