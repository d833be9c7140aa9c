// Package config loads, normalizes, and validates notebook service
// configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MAX_UPLOAD_MB and the MinIO credentials. The Config type centralizes every
// knob the HTTP service and CLI need so artifact storage, admission limits, and
// pipeline settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
