package testsupport

import (
	"context"
	"sync/atomic"

	"github.com/Davygupta47/notebook/internal/pipeline"
)

// Notebook is a minimal valid nbformat 4 document.
const Notebook = `{"cells":[],"metadata":{},"nbformat":4,"nbformat_minor":5}`

// DraftNotebook is a second document used as the draft payload.
const DraftNotebook = `{"cells":[{"cell_type":"markdown","metadata":{},"source":["# Draft"]}],"metadata":{},"nbformat":4,"nbformat_minor":5}`

// FakePipeline reports a thinking line, a milestone, and a draft, then
// returns Result or Err. Release, when set, is waited on before returning.
type FakePipeline struct {
	Result  []byte
	Err     error
	Release <-chan struct{}

	calls atomic.Int32
	last  atomic.Pointer[pipeline.Request]
}

// NewFakePipeline returns a pipeline that succeeds with Notebook.
func NewFakePipeline() *FakePipeline {
	return &FakePipeline{Result: []byte(Notebook)}
}

// Run implements pipeline.Pipeline.
func (f *FakePipeline) Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
	f.calls.Add(1)
	f.last.Store(&req)
	sink.Thinking("reading the abstract")
	sink.Progress(1, "Reading paper", "parsed", nil)
	sink.Draft(2, "Drafting notebook", "outline ready", nil, []byte(DraftNotebook))
	if f.Release != nil {
		select {
		case <-f.Release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

// Calls reports how many times Run was invoked.
func (f *FakePipeline) Calls() int { return int(f.calls.Load()) }

// LastRequest returns the most recent request, if any.
func (f *FakePipeline) LastRequest() (pipeline.Request, bool) {
	req := f.last.Load()
	if req == nil {
		return pipeline.Request{}, false
	}
	return *req, true
}
