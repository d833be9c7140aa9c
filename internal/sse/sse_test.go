package sse_test

import (
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Davygupta47/notebook/internal/sse"
)

func TestWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)

	if err := w.Event("progress", map[string]any{"step": 1, "name": "read"}); err != nil {
		t.Fatalf("Event: %v", err)
	}
	if err := w.Comment("keepalive"); err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if err := w.Event("thinking", map[string]string{"text": "<b>ünïcode</b> & more"}); err != nil {
		t.Fatalf("Event: %v", err)
	}

	want := "event: progress\ndata: {\"name\":\"read\",\"step\":1}\n\n" +
		": keepalive\n\n" +
		"event: thinking\ndata: {\"text\":\"<b>ünïcode</b> & more\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected stream:\n%q\nwant\n%q", got, want)
	}
	if !rec.Flushed {
		t.Fatal("expected writer to flush")
	}
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	sse.SetHeaders(rec.Header())
	for key, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
		"Connection":        "keep-alive",
	} {
		if got := rec.Header().Get(key); got != want {
			t.Fatalf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestReaderParsesFrames(t *testing.T) {
	stream := ": keepalive\n\n" +
		"event: draft_ready\ndata: {\"job_id\":\"abc_draft\",\"size_kb\":3}\n\n" +
		"event: complete\ndata: {\"job_id\":\"abc\",\"size_kb\":9}\n\n"
	r := sse.NewReader(strings.NewReader(stream))

	frame, err := r.Next()
	if err != nil || !frame.IsComment() || frame.Comment != "keepalive" {
		t.Fatalf("expected keepalive comment, got %+v err=%v", frame, err)
	}

	frame, err = r.Next()
	if err != nil || frame.Event != "draft_ready" {
		t.Fatalf("expected draft_ready, got %+v err=%v", frame, err)
	}
	var ready struct {
		JobID  string `json:"job_id"`
		SizeKB int    `json:"size_kb"`
	}
	if err := frame.Decode(&ready); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ready.JobID != "abc_draft" || ready.SizeKB != 3 {
		t.Fatalf("unexpected payload %+v", ready)
	}

	if frame, err = r.Next(); err != nil || frame.Event != "complete" {
		t.Fatalf("expected complete, got %+v err=%v", frame, err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRoundTripThroughReader(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)
	_ = w.Event("error", map[string]string{"error": "line one\nline two"})

	frame, err := sse.NewReader(rec.Body).Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	var payload map[string]string
	if err := frame.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload["error"] != "line one\nline two" {
		t.Fatalf("unexpected error text %q", payload["error"])
	}
}

func TestEventRejectsUnencodablePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.NewWriter(rec)

	err := w.Event("progress", map[string]any{"ratio": math.NaN()})
	if !errors.Is(err, sse.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", rec.Body.String())
	}
	if err := w.Event("complete", map[string]string{"job_id": "abc"}); err != nil {
		t.Fatalf("writer unusable after encode error: %v", err)
	}
}
