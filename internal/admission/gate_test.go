package admission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Davygupta47/notebook/internal/admission"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	if _, err := admission.New(0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestGateBoundsConcurrency(t *testing.T) {
	gate, err := admission.New(3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := gate.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > 3 {
		t.Fatalf("observed %d concurrent holders, capacity is 3", peak.Load())
	}
	if gate.InFlight() != 0 {
		t.Fatalf("expected no permits held, got %d", gate.InFlight())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	gate, _ := admission.New(1)
	release, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release()
	if gate.InFlight() != 0 {
		t.Fatalf("expected 0 in flight, got %d", gate.InFlight())
	}

	// A double release must not have minted an extra permit.
	first, ok := gate.TryAcquire()
	if !ok {
		t.Fatal("expected permit to be available")
	}
	if _, ok := gate.TryAcquire(); ok {
		t.Fatal("capacity 1 gate granted two permits")
	}
	first()
}

func TestAcquireHonorsContextWhileQueued(t *testing.T) {
	gate, _ := admission.New(1)
	release, _ := gate.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := gate.Acquire(ctx)
		errCh <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for gate.Waiting() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never queued")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued Acquire ignored cancellation")
	}
	if gate.Waiting() != 0 || gate.InFlight() != 1 {
		t.Fatalf("unexpected occupancy: waiting=%d inflight=%d", gate.Waiting(), gate.InFlight())
	}
}
