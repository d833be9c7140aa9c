// Package jobs runs notebook generation jobs and turns their progress into an
// ordered event stream.
//
// A Runner starts each job on its own goroutine behind the admission gate and
// exposes a Job handle: an event channel fed by the pipeline's sink and a
// single-resolution result. An Encoder consumes that handle for one client,
// persisting draft and final notebooks to the artifact store and writing
// thinking, progress, draft_ready, complete, and error frames with keepalives
// during silence.
//
// Client disconnects stop the encoder only. The pipeline keeps running and the
// runner releases its admission permit when the pipeline returns, unless the
// runner was built WithCancelOnDisconnect.
package jobs
