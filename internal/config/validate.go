package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"server.max_upload_mb":            c.Server.MaxUploadMB,
		"server.shutdown_timeout_seconds": c.Server.ShutdownTimeoutSeconds,
		"jobs.max_concurrent":             c.Jobs.MaxConcurrent,
		"stream.keepalive_seconds":        c.Stream.KeepaliveSeconds,
		"pipeline.timeout_seconds":        c.Pipeline.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Telemetry.SampleRatio <= 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in (0, 1]; got %v", c.Telemetry.SampleRatio)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ArtifactDir == "" {
		return errors.New("paths.artifact_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("server.allowed_origins entry %q must start with http:// or https://", origin)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Kind {
	case PipelineLLM:
		if c.Pipeline.BaseURL == "" {
			return errors.New("pipeline.base_url must be set when pipeline.kind is llm")
		}
	case PipelineCommand:
		if c.Pipeline.Command == "" {
			return errors.New("pipeline.command must be set when pipeline.kind is command")
		}
	default:
		return fmt.Errorf("pipeline.kind must be one of %q or %q, got %q", PipelineLLM, PipelineCommand, c.Pipeline.Kind)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must be set when storage.backend is sqlite")
		}
	case StorageMinio:
		if c.Storage.MinioEndpoint == "" {
			return errors.New("storage.minio_endpoint must be set when storage.backend is minio (or set MINIO_ENDPOINT)")
		}
		if c.Storage.MinioAccessKey == "" || c.Storage.MinioSecretKey == "" {
			return errors.New("storage.minio_access_key and storage.minio_secret_key must be set when storage.backend is minio")
		}
	default:
		return fmt.Errorf("storage.backend must be one of filesystem, sqlite, minio; got %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error; got %q", strings.TrimSpace(c.Logging.Level))
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
