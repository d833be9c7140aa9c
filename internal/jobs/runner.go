package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Davygupta47/notebook/internal/admission"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/pipeline"
	"github.com/Davygupta47/notebook/internal/progress"
	"github.com/Davygupta47/notebook/internal/services"
)

// Spec describes one generation request.
type Spec struct {
	ID         string
	Input      []byte
	Model      string
	Credential string
}

// State is the lifecycle phase of an active job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
)

// Snapshot describes an active job for status reporting.
type Snapshot struct {
	ID      string    `json:"id"`
	State   State     `json:"state"`
	Created time.Time `json:"created"`
	Started time.Time `json:"started,omitzero"`
	// PendingEvents counts progress events not yet taken by the stream.
	PendingEvents int `json:"pending_events"`
}

type trackedJob struct {
	snap   Snapshot
	events *progress.Channel
}

// Job is the handle to one running generation.
type Job struct {
	id      string
	events  *progress.Channel
	done    chan struct{}
	result  []byte
	err     error
	created time.Time
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Events returns the ordered progress events. The channel is closed once the
// pipeline has returned and every queued event has been delivered.
func (j *Job) Events() <-chan progress.Event { return j.events.C() }

// Done is closed when the job has resolved.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result blocks until the job resolves and returns the notebook or the
// failure.
func (j *Job) Result() ([]byte, error) {
	<-j.done
	return j.result, j.err
}

// Abandon tells the job its consumer is gone; queued and future events are
// dropped.
func (j *Job) Abandon() { j.events.Abandon() }

// Runner starts jobs under the admission gate.
type Runner struct {
	gate               *admission.Gate
	pipeline           pipeline.Pipeline
	logger             *slog.Logger
	observer           Observer
	cancelOnDisconnect bool
	timeout            time.Duration
	tracer             trace.Tracer

	mu     sync.Mutex
	active map[string]*trackedJob
	wg     sync.WaitGroup
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithCancelOnDisconnect makes the pipeline context follow the request
// context, so a client disconnect cancels the pipeline call.
func WithCancelOnDisconnect(enabled bool) Option {
	return func(r *Runner) { r.cancelOnDisconnect = enabled }
}

// WithTimeout bounds each pipeline call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithTracerProvider sets where job spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

const tracerName = "github.com/Davygupta47/notebook/internal/jobs"

// NewRunner builds a runner.
func NewRunner(gate *admission.Gate, p pipeline.Pipeline, opts ...Option) *Runner {
	r := &Runner{
		gate:     gate,
		pipeline: p,
		logger:   logging.NewNop(),
		observer: nopObserver{},
		active:   make(map[string]*trackedJob),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	r.logger = logging.NewComponentLogger(r.logger, "runner")
	return r
}

// Start launches the job and returns immediately. ctx is the request
// context: waiting for admission stops when it ends, and the pipeline call
// follows it only when cancel-on-disconnect is enabled.
func (r *Runner) Start(ctx context.Context, spec Spec) *Job {
	if spec.ID == "" {
		spec.ID = NewID()
	}
	job := &Job{
		id:      spec.ID,
		events:  progress.NewChannel(),
		done:    make(chan struct{}),
		created: time.Now(),
	}
	r.track(job)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, job, spec)
	}()
	return job
}

// Wait blocks until every started job has resolved or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns snapshots of queued and running jobs, oldest first.
func (r *Runner) Active() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.active))
	for _, tracked := range r.active {
		snap := tracked.snap
		snap.PendingEvents = tracked.events.Len()
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

func (r *Runner) run(ctx context.Context, job *Job, spec Spec) {
	ctx = services.WithJobID(ctx, job.id)
	ctx, span := r.tracer.Start(ctx, "notebook.job", trace.WithAttributes(
		attribute.String("job.id", job.id),
		attribute.Int("job.input_bytes", len(spec.Input)),
	))
	logger := logging.WithContext(ctx, r.logger)
	outcome := OutcomeFailed
	defer func() {
		job.events.Close()
		r.untrack(job.id)
		close(job.done)
		r.observer.JobFinished(ctx, outcome, time.Since(job.created))
		span.SetAttributes(attribute.String("job.outcome", outcome))
		if job.err != nil {
			span.RecordError(job.err)
			span.SetStatus(codes.Error, services.Kind(job.err))
		}
		span.End()
	}()

	r.observer.JobQueued(ctx)
	var release func()
	if ctx.Err() == nil {
		release, _ = r.gate.TryAcquire()
	}
	if release == nil {
		logger.Info("waiting for a free slot", logging.Int("in_flight", r.gate.InFlight()))
		var err error
		release, err = r.gate.Acquire(ctx)
		if err != nil {
			outcome = OutcomeAbandoned
			job.err = fmt.Errorf("waiting for a free slot: %w", err)
			logger.Info("job abandoned before admission", logging.Error(err))
			return
		}
	}
	defer release()

	wait := time.Since(job.created)
	r.markRunning(job.id)
	r.observer.JobAdmitted(ctx, wait)
	span.AddEvent("admitted", trace.WithAttributes(attribute.Int64("queue_wait_ms", wait.Milliseconds())))
	logger.Info("job admitted",
		logging.Duration("queue_wait", wait),
		logging.Int("in_flight", r.gate.InFlight()),
		logging.Int("input_bytes", len(spec.Input)),
	)

	pctx := ctx
	if !r.cancelOnDisconnect {
		pctx = context.WithoutCancel(ctx)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	job.result, job.err = r.invoke(pctx, spec, &channelSink{ch: job.events})
	release()

	if job.err != nil {
		logger.Warn("pipeline failed",
			logging.Error(job.err),
			logging.String(logging.FieldErrorKind, services.Kind(job.err)),
			logging.Duration("elapsed", time.Since(started)),
		)
		return
	}
	if len(job.result) == 0 {
		job.err = services.Wrap(services.ErrExternalTool, "pipeline", "run", "pipeline returned an empty notebook", nil)
		logger.Warn("pipeline returned no output")
		return
	}
	outcome = OutcomeSucceeded
	logger.Info("pipeline finished",
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("output_bytes", len(job.result)),
	)
}

func (r *Runner) invoke(ctx context.Context, spec Spec, sink pipeline.Sink) (data []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("pipeline panicked",
				logging.String(logging.FieldJobID, spec.ID),
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			data = nil
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()
	data, err = r.pipeline.Run(ctx, pipeline.Request{
		JobID:      spec.ID,
		Input:      spec.Input,
		Model:      spec.Model,
		Credential: spec.Credential,
	}, sink)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		err = fmt.Errorf("%w: %w", services.ErrTimeout, err)
	}
	return data, err
}

func (r *Runner) track(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[job.id] = &trackedJob{
		snap:   Snapshot{ID: job.id, State: StateQueued, Created: job.created},
		events: job.events,
	}
}

func (r *Runner) markRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracked, ok := r.active[id]; ok {
		tracked.snap.State = StateRunning
		tracked.snap.Started = time.Now()
	}
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

// channelSink forwards pipeline callbacks into a job's event channel.
type channelSink struct {
	ch *progress.Channel
}

func (s *channelSink) Progress(step int, name, detail string, extra map[string]any) {
	s.ch.Send(progress.FromMilestone(step, name, detail, extra))
}

func (s *channelSink) Draft(step int, name, detail string, extra map[string]any, payload []byte) {
	s.ch.Send(progress.Draft{Step: step, Name: name, Detail: detail, Extra: extra, Payload: payload})
}

func (s *channelSink) Thinking(text string) {
	s.ch.Send(progress.Thinking{Text: text})
}

// Failure reports a non-terminal error raised on the execution path.
func (s *channelSink) Failure(message string) {
	s.ch.Send(progress.Failure{Message: message})
}
