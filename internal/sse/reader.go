package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Frame is one parsed event. Comment frames have an empty Event and the
// comment text in Comment.
type Frame struct {
	Event   string
	Data    string
	Comment string
}

// Decode unmarshals the frame data into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal([]byte(f.Data), v)
}

// IsComment reports whether the frame is a comment (keepalive).
func (f Frame) IsComment() bool {
	return f.Event == "" && f.Data == "" && f.Comment != ""
}

// Reader parses frames from a stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r. Lines up to 16 MiB are accepted.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner}
}

// Next returns the next frame, or io.EOF when the stream ends cleanly.
func (r *Reader) Next() (Frame, error) {
	var (
		frame   Frame
		data    []string
		started bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if !started {
				continue
			}
			frame.Data = strings.Join(data, "\n")
			return frame, nil
		}
		started = true
		switch {
		case strings.HasPrefix(line, ":"):
			frame.Comment = strings.TrimSpace(strings.TrimPrefix(line, ":"))
		case strings.HasPrefix(line, "event:"):
			frame.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if started {
		frame.Data = strings.Join(data, "\n")
		return frame, nil
	}
	return Frame{}, io.EOF
}
