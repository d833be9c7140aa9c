package jobs_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/pipeline"
	"github.com/Davygupta47/notebook/internal/services"
)

func TestNewIDShape(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{12}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := jobs.NewID()
		if !pattern.MatchString(id) {
			t.Fatalf("unexpected id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if !jobs.ValidID(id) || !jobs.ValidID(jobs.DraftID(id)) {
			t.Fatalf("generated id %q rejected by ValidID", id)
		}
	}
}

func TestDraftIDs(t *testing.T) {
	if got := jobs.DraftID("abc"); got != "abc_draft" {
		t.Fatalf("DraftID = %q", got)
	}
	if !jobs.IsDraftID("abc_draft") || jobs.IsDraftID("abc") || jobs.IsDraftID("_draft") {
		t.Fatal("IsDraftID misclassified ids")
	}
	for _, bad := range []string{"../x", "a/b", "a..b", "", "a%2F", "a b"} {
		if jobs.ValidID(bad) {
			t.Fatalf("ValidID(%q) should be false", bad)
		}
	}
}

func TestRunnerBoundsConcurrentPipelines(t *testing.T) {
	const capacity = 2
	var current, peak atomic.Int64
	release := make(chan struct{})
	p := pipeline.Func(func(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		sink.Progress(1, "running", req.JobID, nil)
		<-release
		current.Add(-1)
		return []byte("nb"), nil
	})
	gate := newGate(t, capacity)
	runner := jobs.NewRunner(gate, p)
	store := artifact.NewMemory()

	const total = 5
	recs := make([]*recorder, total)
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		recs[i] = newRecorder()
		job := runner.Start(context.Background(), jobs.Spec{ID: jobs.NewID()})
		wg.Add(1)
		go func(rec *recorder) {
			defer wg.Done()
			if err := jobs.NewEncoder(store, jobs.WithKeepalive(5*time.Millisecond)).Stream(context.Background(), job, rec); err != nil {
				t.Errorf("Stream: %v", err)
			}
		}(recs[i])
	}

	waitFor(t, "gate saturation", func() bool { return gate.InFlight() == capacity && gate.Waiting() == total-capacity })
	time.Sleep(30 * time.Millisecond)

	// Queued jobs write only keepalives until admitted.
	progressed := 0
	for _, rec := range recs {
		if len(rec.withoutKeepalives()) > 0 {
			progressed++
		}
	}
	if progressed != capacity {
		t.Fatalf("expected %d jobs with progress while saturated, got %d", capacity, progressed)
	}

	queued := 0
	for _, snap := range runner.Active() {
		if snap.State == jobs.StateQueued {
			queued++
		}
	}
	if queued != total-capacity {
		t.Fatalf("expected %d queued snapshots, got %d", total-capacity, queued)
	}

	close(release)
	wg.Wait()

	if peak.Load() > capacity {
		t.Fatalf("observed %d concurrent pipelines, capacity %d", peak.Load(), capacity)
	}
	if gate.InFlight() != 0 || len(runner.Active()) != 0 {
		t.Fatalf("runner did not settle: inflight=%d active=%d", gate.InFlight(), len(runner.Active()))
	}
	for _, rec := range recs {
		assertSingleTerminal(t, rec, jobs.EventComplete)
	}
	if err := runner.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueuedJobAbandonedWhenRequestEnds(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	p := pipeline.Func(func(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
		<-block
		return []byte("nb"), nil
	})
	gate := newGate(t, 1)
	runner := jobs.NewRunner(gate, p)
	runner.Start(context.Background(), jobs.Spec{ID: "holder000001"})
	waitFor(t, "first job admitted", func() bool { return gate.InFlight() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	queued := runner.Start(ctx, jobs.Spec{ID: "queued000001"})
	waitFor(t, "second job queued", func() bool { return gate.Waiting() == 1 })
	cancel()

	if _, err := queued.Result(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected queued job to be abandoned, got %v", err)
	}
	if gate.Waiting() != 0 || gate.InFlight() != 1 {
		t.Fatalf("unexpected gate state waiting=%d inflight=%d", gate.Waiting(), gate.InFlight())
	}
}

func TestRunnerTimeoutIsClassified(t *testing.T) {
	p := pipeline.Func(func(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	runner := jobs.NewRunner(newGate(t, 1), p, jobs.WithTimeout(10*time.Millisecond))
	job := runner.Start(context.Background(), jobs.Spec{})

	if !jobs.ValidID(job.ID()) {
		t.Fatalf("expected generated id, got %q", job.ID())
	}
	_, err := job.Result()
	if !errors.Is(err, services.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestRunnerPassesRequestThrough(t *testing.T) {
	var got pipeline.Request
	p := pipeline.Func(func(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
		got = req
		if id, ok := services.JobIDFromContext(ctx); !ok || id != req.JobID {
			t.Errorf("job id missing from pipeline context")
		}
		return []byte("nb"), nil
	})
	runner := jobs.NewRunner(newGate(t, 1), p)
	job := runner.Start(context.Background(), jobs.Spec{ID: "passthrough1", Input: []byte("pdf"), Model: "model-x", Credential: "secret"})
	if _, err := job.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got.JobID != "passthrough1" || string(got.Input) != "pdf" || got.Model != "model-x" || got.Credential != "secret" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestRunnerRecordsJobSpans(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	defer tp.Shutdown(context.Background())

	fail := errors.New("converter crashed")
	p := pipeline.Func(func(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
		if req.JobID == "spanfail0001" {
			return nil, services.Wrap(services.ErrExternalTool, "pipeline", "run", "boom", fail)
		}
		return []byte("nb"), nil
	})
	runner := jobs.NewRunner(newGate(t, 2), p, jobs.WithTracerProvider(tp))
	ok := runner.Start(context.Background(), jobs.Spec{ID: "spanok000001", Input: []byte("pdf")})
	bad := runner.Start(context.Background(), jobs.Spec{ID: "spanfail0001"})
	_, _ = ok.Result()
	_, _ = bad.Result()
	waitFor(t, "both spans ended", func() bool { return len(spans.Ended()) == 2 })

	byJob := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range spans.Ended() {
		if span.Name() != "notebook.job" {
			t.Fatalf("unexpected span name %q", span.Name())
		}
		for _, kv := range span.Attributes() {
			if kv.Key == "job.id" {
				byJob[kv.Value.AsString()] = span
			}
		}
	}
	if got := byJob["spanok000001"]; got == nil || got.Status().Code == codes.Error {
		t.Fatalf("expected successful span for spanok000001, got %+v", got)
	} else if !hasAttr(got.Attributes(), "job.outcome", jobs.OutcomeSucceeded) {
		t.Fatalf("missing succeeded outcome on %v", got.Attributes())
	}
	failed := byJob["spanfail0001"]
	if failed == nil || failed.Status().Code != codes.Error || failed.Status().Description != "external_tool" {
		t.Fatalf("expected error status on failed span, got %+v", failed)
	}
	if !hasAttr(failed.Attributes(), "job.outcome", jobs.OutcomeFailed) {
		t.Fatalf("missing failed outcome on %v", failed.Attributes())
	}
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key && kv.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestActiveReportsPendingEvents(t *testing.T) {
	release := make(chan struct{})
	sent := make(chan struct{})
	p := pipeline.Func(func(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
		for i := 1; i <= 3; i++ {
			sink.Progress(i, "step", "working", nil)
		}
		close(sent)
		<-release
		return []byte("final"), nil
	})
	runner := jobs.NewRunner(newGate(t, 1), p)
	job := runner.Start(context.Background(), jobs.Spec{ID: "pending00001"})
	<-sent

	// One event may already sit with the delivery goroutine.
	waitFor(t, "pending events", func() bool {
		active := runner.Active()
		return len(active) == 1 && active[0].PendingEvents >= 2
	})
	if snap := runner.Active()[0]; snap.ID != job.ID() || snap.State != jobs.StateRunning {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	close(release)
	rec := newRecorder()
	if err := jobs.NewEncoder(artifact.NewMemory()).Stream(context.Background(), job, rec); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	assertSingleTerminal(t, rec, jobs.EventComplete)
	if n := len(runner.Active()); n != 0 {
		t.Fatalf("expected no active jobs, got %d", n)
	}
}
