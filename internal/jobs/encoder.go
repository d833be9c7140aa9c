package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/progress"
	"github.com/Davygupta47/notebook/internal/services"
	"github.com/Davygupta47/notebook/internal/sse"
)

// DefaultKeepalive is the idle interval used when none is configured.
const DefaultKeepalive = time.Second

// Encoder turns a job into stream frames for one client.
type Encoder struct {
	store     artifact.Store
	keepalive time.Duration
	logger    *slog.Logger
	observer  Observer
}

// EncoderOption customizes an Encoder.
type EncoderOption func(*Encoder)

// WithKeepalive sets the idle interval after which a keepalive is written.
func WithKeepalive(d time.Duration) EncoderOption {
	return func(e *Encoder) {
		if d > 0 {
			e.keepalive = d
		}
	}
}

// WithEncoderLogger sets the encoder logger.
func WithEncoderLogger(logger *slog.Logger) EncoderOption {
	return func(e *Encoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEncoderObserver sets the metrics observer.
func WithEncoderObserver(o Observer) EncoderOption {
	return func(e *Encoder) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEncoder builds an encoder that persists artifacts to store.
func NewEncoder(store artifact.Store, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		store:     store,
		keepalive: DefaultKeepalive,
		logger:    logging.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "encoder")
	return e
}

// Stream writes the job's frames to w until exactly one terminal frame
// (complete or error from the job outcome) has been written. It returns early
// with an error when ctx ends or a write fails; the job is then abandoned but
// keeps running.
//
// The loop moves through four phases. While streaming it waits for the next
// event, the job resolving, or the keepalive timer. Once the job resolves it
// drains what is left in the event channel without keepalives, then
// finalizes by persisting the notebook and writing the terminal frame.
func (e *Encoder) Stream(ctx context.Context, job *Job, w FrameWriter) (err error) {
	ctx = services.WithJobID(ctx, job.ID())
	logger := logging.WithContext(ctx, e.logger)
	defer func() {
		if err != nil {
			job.Abandon()
			logger.Info("stream closed before completion", logging.Error(err))
		}
	}()

	events := job.Events()
	timer := time.NewTimer(e.keepalive)
	defer timer.Stop()

streaming:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := e.handle(ctx, logger, job, ev, w); err != nil {
				return err
			}
			timer.Reset(e.keepalive)
		case <-job.Done():
			break streaming
		case <-timer.C:
			select {
			case <-job.Done():
				break streaming
			default:
			}
			if err := w.Comment("keepalive"); err != nil {
				return err
			}
			timer.Reset(e.keepalive)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if events != nil {
		for ev := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.handle(ctx, logger, job, ev, w); err != nil {
				return err
			}
		}
	}

	return e.finalize(ctx, logger, job, w)
}

func (e *Encoder) handle(ctx context.Context, logger *slog.Logger, job *Job, ev progress.Event, w FrameWriter) error {
	switch ev := ev.(type) {
	case progress.Thinking:
		return e.emit(ctx, w, EventThinking, ThinkingFrame{Text: ev.Text})
	case progress.Milestone:
		return e.emitProgress(ctx, logger, w, progressFrame(ev))
	case progress.Draft:
		return e.handleDraft(ctx, logger, job, ev, w)
	case progress.Failure:
		return e.emit(ctx, w, EventError, ErrorFrame{Error: ev.Message})
	default:
		logger.Warn("dropping unknown progress event", logging.String("type", fmt.Sprintf("%T", ev)))
		return nil
	}
}

// handleDraft persists the draft before announcing it. Storage failures are
// reported in-stream and do not end the job.
func (e *Encoder) handleDraft(ctx context.Context, logger *slog.Logger, job *Job, ev progress.Draft, w FrameWriter) error {
	draftID := DraftID(job.ID())
	if err := e.store.Put(ctx, draftID, ev.Payload); err != nil {
		logger.Warn("draft not stored", logging.String("draft_id", draftID), logging.Error(err))
		return e.emit(ctx, w, EventError, ErrorFrame{Error: fmt.Sprintf("Failed to save draft: %v", err)})
	}
	exists, err := e.store.Exists(ctx, draftID)
	if err != nil || !exists {
		logger.Warn("draft missing after write", logging.String("draft_id", draftID), logging.Error(err))
		return e.emit(ctx, w, EventError, ErrorFrame{Error: "Draft file not written"})
	}
	e.observer.ArtifactStored(ctx, "draft", len(ev.Payload))
	logger.Info("draft stored", logging.String("draft_id", draftID), logging.Int("size_bytes", len(ev.Payload)))

	if err := e.emitProgress(ctx, logger, w, progressFrame(ev.Stripped())); err != nil {
		return err
	}
	return e.emit(ctx, w, EventDraftReady, ArtifactFrame{JobID: draftID, SizeKB: sizeKB(len(ev.Payload))})
}

func (e *Encoder) finalize(ctx context.Context, logger *slog.Logger, job *Job, w FrameWriter) error {
	data, jobErr := job.Result()
	if jobErr != nil {
		return e.emit(ctx, w, EventError, ErrorFrame{Error: jobErr.Error()})
	}
	if err := e.store.Put(ctx, job.ID(), data); err != nil {
		logger.Error("notebook not stored", logging.Error(err))
		return e.emit(ctx, w, EventError, ErrorFrame{Error: fmt.Sprintf("Failed to save notebook: %v", err)})
	}
	e.observer.ArtifactStored(ctx, "final", len(data))
	logger.Info("notebook stored", logging.Int("size_bytes", len(data)))
	return e.emit(ctx, w, EventComplete, ArtifactFrame{JobID: job.ID(), SizeKB: sizeKB(len(data))})
}

func (e *Encoder) emit(ctx context.Context, w FrameWriter, name string, payload any) error {
	if err := w.Event(name, payload); err != nil {
		return err
	}
	e.observer.FrameSent(ctx, name)
	return nil
}

// emitProgress writes a progress frame. Extra comes from the pipeline and may
// hold values JSON cannot represent; such a frame is resent without Extra.
func (e *Encoder) emitProgress(ctx context.Context, logger *slog.Logger, w FrameWriter, frame ProgressFrame) error {
	err := e.emit(ctx, w, EventProgress, frame)
	if err == nil || !errors.Is(err, sse.ErrEncode) {
		return err
	}
	logger.Warn("progress extra not encodable; sending without it",
		logging.String("step_name", frame.Name), logging.Error(err))
	frame.Extra = nil
	if err := e.emit(ctx, w, EventProgress, frame); err != nil && !errors.Is(err, sse.ErrEncode) {
		return err
	}
	return nil
}

func progressFrame(m progress.Milestone) ProgressFrame {
	return ProgressFrame{Step: m.Step, Name: m.Name, Detail: m.Detail, Extra: m.Extra}
}
