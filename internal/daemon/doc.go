// Package daemon coordinates the long-running notebookd process.
//
// It wires configuration, the artifact store, the admission gate, the
// generation pipeline, the job runner, and the stream encoder into the HTTP
// server, with flock-based locking on the artifact directory to prevent two
// instances from sharing it. Stop drains the HTTP server first and then waits
// for in-flight jobs so their artifacts are persisted before the store closes.
//
// Keep orchestration here: request handling lives in internal/api and job
// semantics in internal/jobs.
package daemon
