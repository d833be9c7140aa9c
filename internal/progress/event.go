package progress

// Event is one item reported by a running pipeline.
type Event interface {
	event()
}

// Thinking carries free-form reasoning text.
type Thinking struct {
	Text string
}

// Milestone marks a discrete pipeline step.
type Milestone struct {
	Step   int
	Name   string
	Detail string
	Extra  map[string]any
}

// Draft is a milestone that also delivers an intermediate artifact.
type Draft struct {
	Step    int
	Name    string
	Detail  string
	Extra   map[string]any
	Payload []byte
}

// Failure reports an error raised on the execution path.
type Failure struct {
	Message string
}

func (Thinking) event()  {}
func (Milestone) event() {}
func (Draft) event()     {}
func (Failure) event()   {}

// DraftBytesKey is the legacy Extra key some pipelines use to attach a draft
// payload to an ordinary milestone.
const DraftBytesKey = "draft_bytes"

// FromMilestone converts a milestone into the matching event. A milestone whose
// Extra holds a []byte under DraftBytesKey becomes a Draft with that key
// removed. Any other value under the key is dropped so it never reaches the
// wire. The caller's map is never mutated.
func FromMilestone(step int, name, detail string, extra map[string]any) Event {
	raw, ok := extra[DraftBytesKey]
	if !ok {
		return Milestone{Step: step, Name: name, Detail: detail, Extra: extra}
	}
	payload, ok := raw.([]byte)
	if !ok {
		return Milestone{Step: step, Name: name, Detail: detail, Extra: without(extra, DraftBytesKey)}
	}
	return Draft{Step: step, Name: name, Detail: detail, Extra: without(extra, DraftBytesKey), Payload: payload}
}

// Stripped returns the milestone the client sees for this draft.
func (d Draft) Stripped() Milestone {
	return Milestone{Step: d.Step, Name: d.Name, Detail: d.Detail, Extra: d.Extra}
}

func without(m map[string]any, key string) map[string]any {
	if len(m) <= 1 {
		return nil
	}
	out := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}
