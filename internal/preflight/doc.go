// Package preflight provides readiness checks for the filesystem paths,
// storage backend, and pipeline that the notebook service depends on.
//
// The daemon runs RunAll at startup and logs every failure; the CLI
// "notebook config validate" command prints the same results as a table.
// Checks are gated by configuration: a sqlite path is only checked with the
// sqlite backend, the converter only with the command pipeline.
package preflight
