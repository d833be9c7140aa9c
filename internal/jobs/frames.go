package jobs

// Event names written to the stream.
const (
	EventThinking   = "thinking"
	EventProgress   = "progress"
	EventDraftReady = "draft_ready"
	EventComplete   = "complete"
	EventError      = "error"
)

// ThinkingFrame is the payload of a thinking event.
type ThinkingFrame struct {
	Text string `json:"text"`
}

// ProgressFrame is the payload of a progress event. Extra is omitted when
// empty.
type ProgressFrame struct {
	Step   int            `json:"step"`
	Name   string         `json:"name"`
	Detail string         `json:"detail"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// ArtifactFrame is the payload of draft_ready and complete events.
type ArtifactFrame struct {
	JobID  string `json:"job_id"`
	SizeKB int    `json:"size_kb"`
}

// ErrorFrame is the payload of an error event.
type ErrorFrame struct {
	Error string `json:"error"`
}

// FrameWriter is the sink for encoded frames. sse.Writer implements it.
type FrameWriter interface {
	Event(name string, payload any) error
	Comment(text string) error
}

func sizeKB(n int) int { return n / 1024 }
