package jobs_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Davygupta47/notebook/internal/admission"
	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/pipeline"
)

type frame struct {
	name    string
	payload any
	comment bool
}

type recorder struct {
	mu      sync.Mutex
	frames  []frame
	failOn  string
	written chan struct{}
}

func newRecorder() *recorder {
	return &recorder{written: make(chan struct{}, 1024)}
}

func (r *recorder) Event(name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && r.failOn == name {
		return errors.New("broken pipe")
	}
	r.frames = append(r.frames, frame{name: name, payload: payload})
	r.notify()
	return nil
}

func (r *recorder) Comment(string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{comment: true})
	r.notify()
	return nil
}

func (r *recorder) notify() {
	select {
	case r.written <- struct{}{}:
	default:
	}
}

func (r *recorder) snapshot() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame(nil), r.frames...)
}

// names returns event names, with keepalives rendered as ":".
func (r *recorder) names() []string {
	var out []string
	for _, f := range r.snapshot() {
		if f.comment {
			out = append(out, ":")
			continue
		}
		out = append(out, f.name)
	}
	return out
}

func (r *recorder) withoutKeepalives() []frame {
	var out []frame
	for _, f := range r.snapshot() {
		if !f.comment {
			out = append(out, f)
		}
	}
	return out
}

func newGate(t *testing.T, n int) *admission.Gate {
	t.Helper()
	gate, err := admission.New(n)
	if err != nil {
		t.Fatalf("admission.New: %v", err)
	}
	return gate
}

func streamJob(t *testing.T, p pipeline.Pipeline, store artifact.Store, opts ...jobs.EncoderOption) (*recorder, *jobs.Job, *admission.Gate) {
	t.Helper()
	gate := newGate(t, 3)
	runner := jobs.NewRunner(gate, p)
	job := runner.Start(context.Background(), jobs.Spec{ID: jobs.NewID(), Input: []byte("%PDF-1.7"), Model: "m", Credential: "k"})
	rec := newRecorder()
	enc := jobs.NewEncoder(store, opts...)
	if err := enc.Stream(context.Background(), job, rec); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return rec, job, gate
}

func assertSingleTerminal(t *testing.T, rec *recorder, want string) {
	t.Helper()
	frames := rec.snapshot()
	if len(frames) == 0 {
		t.Fatal("no frames written")
	}
	last := frames[len(frames)-1]
	if last.comment || last.name != want {
		t.Fatalf("expected terminal %s, got stream %v", want, rec.names())
	}
	if want == jobs.EventComplete {
		for _, f := range frames[:len(frames)-1] {
			if f.name == jobs.EventComplete {
				t.Fatalf("complete emitted before end: %v", rec.names())
			}
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// selectiveStore fails Put for keys matching failPut and hides keys matching
// hide from Exists.
type selectiveStore struct {
	artifact.Store
	failPut func(key string) bool
	hide    func(key string) bool
}

func (s selectiveStore) Put(ctx context.Context, key string, data []byte) error {
	if s.failPut != nil && s.failPut(key) {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, data)
}

func (s selectiveStore) Exists(ctx context.Context, key string) (bool, error) {
	if s.hide != nil && s.hide(key) {
		return false, nil
	}
	return s.Store.Exists(ctx, key)
}

func isDraft(key string) bool { return strings.HasSuffix(key, "_draft") }
