// Package services defines shared utilities consumed by the job runner,
// pipeline adapters, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pipeline steps, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures raised by
//     pipeline adapters can be classified consistently (see Kind).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// stays uniform across adapters.
package services
