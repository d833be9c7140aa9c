// Package main hosts the notebook CLI entrypoint and command graph.
//
// The Cobra-based command tree either runs the service in-process (serve) or
// talks to a running notebookd over HTTP: generate uploads a paper and
// renders the event stream as it arrives, download fetches a stored notebook
// by job id, and status prints gate occupancy and active jobs. The config
// commands scaffold and validate the TOML file shared with notebookd.
//
// Keep this package lean: request handling and job semantics live in the
// internal packages, and commands here only translate flags into calls.
package main
