package jobs

import (
	"context"
	"time"
)

// Observer receives lifecycle notifications for metrics.
type Observer interface {
	JobQueued(ctx context.Context)
	JobAdmitted(ctx context.Context, wait time.Duration)
	JobFinished(ctx context.Context, outcome string, elapsed time.Duration)
	FrameSent(ctx context.Context, event string)
	ArtifactStored(ctx context.Context, kind string, size int)
}

// Outcomes reported to Observer.JobFinished.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

type nopObserver struct{}

func (nopObserver) JobQueued(context.Context)                          {}
func (nopObserver) JobAdmitted(context.Context, time.Duration)         {}
func (nopObserver) JobFinished(context.Context, string, time.Duration) {}
func (nopObserver) FrameSent(context.Context, string)                  {}
func (nopObserver) ArtifactStored(context.Context, string, int)        {}
