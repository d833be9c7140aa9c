package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel/trace"

	"github.com/Davygupta47/notebook/internal/admission"
	"github.com/Davygupta47/notebook/internal/api"
	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/config"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/pipeline"
)

const lockFileName = "notebookd.lock"

// Daemon owns the service lifecycle and enforces single-instance execution
// per artifact directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store     artifact.Store
	ownsStore bool
	gate      *admission.Gate
	pipeline  pipeline.Pipeline
	runner    *jobs.Runner
	encoder   *jobs.Encoder
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	stopOnce sync.Once
}

// Option customizes daemon construction.
type Option func(*settings)

type settings struct {
	store    artifact.Store
	pipeline pipeline.Pipeline
	observer jobs.Observer
	tracer   trace.TracerProvider
	version  string
}

// WithStore uses store instead of opening the configured backend.
func WithStore(store artifact.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithPipeline uses p instead of the configured pipeline kind.
func WithPipeline(p pipeline.Pipeline) Option {
	return func(s *settings) { s.pipeline = p }
}

// WithObserver forwards job and stream lifecycle events to o.
func WithObserver(o jobs.Observer) Option {
	return func(s *settings) { s.observer = o }
}

// WithTracerProvider records a span per job on tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) { s.tracer = tp }
}

// WithVersion sets the version reported by /api/status.
func WithVersion(v string) Option {
	return func(s *settings) { s.version = v }
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	LockFilePath string
	Active       []jobs.Snapshot
}

// New constructs a daemon with initialized dependencies. The artifact store
// is opened here so backend errors surface before Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var set settings
	for _, opt := range opts {
		opt(&set)
	}

	gate, err := admission.New(cfg.Jobs.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("admission gate: %w", err)
	}

	p := set.pipeline
	if p == nil {
		if p, err = BuildPipeline(cfg, logger); err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
	}

	store := set.store
	if store == nil {
		if err := os.MkdirAll(cfg.Paths.ArtifactDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure artifact directory: %w", err)
		}
		if store, err = artifact.Open(ctx, cfg); err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
	}

	runner := jobs.NewRunner(gate, p,
		jobs.WithLogger(logger),
		jobs.WithObserver(set.observer),
		jobs.WithTracerProvider(set.tracer),
		jobs.WithCancelOnDisconnect(cfg.Jobs.CancelOnDisconnect),
		jobs.WithTimeout(cfg.PipelineTimeout()),
	)
	encoder := jobs.NewEncoder(store,
		jobs.WithKeepalive(cfg.KeepaliveInterval()),
		jobs.WithEncoderLogger(logger),
		jobs.WithEncoderObserver(set.observer),
	)

	server, err := api.New(api.Options{
		Runner:         runner,
		Encoder:        encoder,
		Store:          store,
		Gate:           gate,
		Logger:         logger,
		MaxUploadMB:    cfg.Server.MaxUploadMB,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultModel:   cfg.Pipeline.Model,
		StorageBackend: cfg.Storage.Backend,
		PipelineKind:   cfg.Pipeline.Kind,
		Version:        set.version,
	})
	if err != nil {
		_ = closeOwned(set.store, store)
		return nil, err
	}

	httpServer, err := newAPIServer(cfg.Paths.APIBind, server.Handler(), logging.NewComponentLogger(logger, "http"))
	if err != nil {
		_ = closeOwned(set.store, store)
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.ArtifactDir, lockFileName)
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		ownsStore: set.store == nil,
		gate:      gate,
		pipeline:  p,
		runner:    runner,
		encoder:   encoder,
		api:       httpServer,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// closeOwned closes store only when the daemon opened it.
func closeOwned(injected, store artifact.Store) error {
	if injected != nil {
		return nil
	}
	return artifact.Close(store)
}

// Start acquires the instance lock and starts serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another notebookd instance is already using this artifact directory")
	}

	if err := d.api.start(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("notebookd started",
		logging.String("address", d.api.addr()),
		logging.String("lock", d.lockPath),
		logging.String("storage_backend", d.cfg.Storage.Backend),
		logging.String("pipeline", d.cfg.Pipeline.Kind),
		logging.Int("max_concurrent", d.gate.Capacity()),
	)
	return nil
}

// Stop drains HTTP traffic, waits for in-flight jobs, and releases the lock.
// ctx bounds the whole sequence.
func (d *Daemon) Stop(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}

	var errs []error
	if err := d.api.stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := d.runner.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for jobs: %w", err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("notebookd stopped", logging.Int("abandoned_jobs", len(d.runner.Active())))
	return errors.Join(errs...)
}

// Close stops the daemon if needed and releases the artifact store.
func (d *Daemon) Close() error {
	var err error
	d.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.shutdownTimeout())
		defer cancel()
		err = d.Stop(ctx)
		if d.ownsStore {
			err = errors.Join(err, artifact.Close(d.store))
		}
	})
	return err
}

func (d *Daemon) shutdownTimeout() time.Duration {
	if timeout := d.cfg.ShutdownTimeout(); timeout > 0 {
		return timeout
	}
	return 10 * time.Second
}

// Gate exposes the admission gate for occupancy metrics.
func (d *Daemon) Gate() *admission.Gate { return d.gate }

// Addr returns the bound listen address, or "" before Start.
func (d *Daemon) Addr() string { return d.api.addr() }

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.api.addr(),
		LockFilePath: d.lockPath,
		Active:       d.runner.Active(),
	}
}
