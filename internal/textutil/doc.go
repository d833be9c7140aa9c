// Package textutil provides small text helpers shared by the CLI and the
// pipeline adapters: filename sanitization and single-line truncation for
// terminal and log output.
package textutil
