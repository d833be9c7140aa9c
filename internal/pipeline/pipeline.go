// Package pipeline defines the contract between the job runner and the
// backends that turn a PDF into a notebook.
//
// A Pipeline call blocks until the notebook is finished or generation fails.
// While it runs it may report progress through the Sink any number of times,
// from whatever goroutine it likes; Sink methods never block.
package pipeline

import "context"

// Request is the input to one generation run.
type Request struct {
	JobID      string
	Input      []byte
	Model      string
	Credential string
}

// Sink receives progress reports from a running pipeline.
type Sink interface {
	// Progress reports a milestone. An extra map holding []byte under
	// "draft_bytes" is treated as a draft delivery.
	Progress(step int, name, detail string, extra map[string]any)
	// Draft reports a milestone that carries an intermediate notebook.
	Draft(step int, name, detail string, extra map[string]any, payload []byte)
	// Thinking reports free-form reasoning text.
	Thinking(text string)
}

// Pipeline produces a notebook from a request.
type Pipeline interface {
	Run(ctx context.Context, req Request, sink Sink) ([]byte, error)
}

// Func adapts a function to the Pipeline interface.
type Func func(ctx context.Context, req Request, sink Sink) ([]byte, error)

// Run calls f.
func (f Func) Run(ctx context.Context, req Request, sink Sink) ([]byte, error) {
	return f(ctx, req, sink)
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Progress(int, string, string, map[string]any)      {}
func (Discard) Draft(int, string, string, map[string]any, []byte) {}
func (Discard) Thinking(string)                                   {}

// FailureReporter is implemented by sinks that accept non-terminal failure
// reports. The job runner's sink does.
type FailureReporter interface {
	Failure(message string)
}

// ReportFailure forwards message to sink when it implements FailureReporter.
func ReportFailure(sink Sink, message string) {
	if fr, ok := sink.(FailureReporter); ok {
		fr.Failure(message)
	}
}
