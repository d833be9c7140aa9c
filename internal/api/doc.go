// Package api is the HTTP boundary of the notebook service.
//
// Routes:
//
//	POST /api/generate            multipart upload (file, api_key, model); answers with an event stream
//	GET  /api/download/:job_id    stored notebook (final id or <id>_draft)
//	GET  /api/status              admission gate, active jobs, storage backend
//	GET  /health                  liveness
//
// Upload validation runs before any job is created, in this order: the file
// must be named *.pdf, api_key must be non-empty, and the body must fit the
// configured ceiling. Validation failures are plain JSON {"error": "..."}
// responses; everything after that point is reported inside the stream.
//
// The router is gin with gin-contrib/cors for the browser front end, a
// request-id middleware, and an access log written through slog.
package api
