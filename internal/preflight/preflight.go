package preflight

import (
	"context"
	"path/filepath"

	"github.com/Davygupta47/notebook/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes the checks that apply to the configured storage backend
// and pipeline kind.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Artifact directory also holds the instance lock, so it is always checked.
	results = append(results, CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir))

	switch cfg.Storage.Backend {
	case config.StorageSQLite:
		results = append(results, CheckDirectoryAccess("SQLite directory", filepath.Dir(cfg.Storage.SQLitePath)))
	case config.StorageMinio:
		results = append(results, CheckEndpoint(ctx, "MinIO", minioURL(cfg.Storage)))
	}

	switch cfg.Pipeline.Kind {
	case config.PipelineLLM:
		results = append(results, CheckEndpoint(ctx, "LLM endpoint", cfg.Pipeline.BaseURL))
	case config.PipelineCommand:
		results = append(results, CheckCommand("Converter", cfg.Pipeline.Command))
	}

	return results
}

func minioURL(s config.Storage) string {
	scheme := "http://"
	if s.MinioUseSSL {
		scheme = "https://"
	}
	return scheme + s.MinioEndpoint + "/minio/health/live"
}
