// Package sse writes and reads text/event-stream frames.
//
// Frames are "event: <name>\ndata: <json>\n\n". Comment frames (": text\n\n")
// carry no event and are used as keepalives. JSON payloads are encoded without
// HTML escaping so non-ASCII text passes through unchanged.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrEncode marks a payload that could not be encoded as JSON. Nothing is
// written for that frame and the stream stays usable.
var ErrEncode = errors.New("sse: payload not encodable")

// Writer emits frames to an underlying writer, flushing after each one when
// the writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	buf     bytes.Buffer
}

// NewWriter wraps w. If w implements http.Flusher each frame is flushed.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// SetHeaders applies the response headers for an unbuffered event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Event writes one named frame with payload encoded as JSON.
func (w *Writer) Event(name string, payload any) error {
	data, err := Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEncode, name, err)
	}
	w.buf.Reset()
	w.buf.WriteString("event: ")
	w.buf.WriteString(name)
	w.buf.WriteString("\ndata: ")
	w.buf.Write(data)
	w.buf.WriteString("\n\n")
	return w.flush()
}

// Comment writes a comment frame. Newlines in text are folded into spaces.
func (w *Writer) Comment(text string) error {
	w.buf.Reset()
	w.buf.WriteString(": ")
	w.buf.WriteString(strings.ReplaceAll(text, "\n", " "))
	w.buf.WriteString("\n\n")
	return w.flush()
}

func (w *Writer) flush() error {
	if _, err := w.w.Write(w.buf.Bytes()); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Marshal encodes v as single-line JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
