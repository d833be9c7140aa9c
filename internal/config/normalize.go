package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeJobs()
	c.normalizePipeline()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeTelemetry()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := lookupTrimmed("NOTEBOOK_ARTIFACT_DIR"); ok {
		c.Paths.ArtifactDir = value
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	var err error
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := lookupTrimmed("NOTEBOOK_API_BIND"); ok {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeServer() error {
	if value, ok := lookupTrimmed("MAX_UPLOAD_MB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_MB: %w", err)
		}
		c.Server.MaxUploadMB = parsed
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	c.Server.AllowedOrigins = origins
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeJobs() {
	if c.Jobs.MaxConcurrent == 0 {
		c.Jobs.MaxConcurrent = defaultMaxConcurrent
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Kind = strings.ToLower(strings.TrimSpace(c.Pipeline.Kind))
	if c.Pipeline.Kind == "" {
		c.Pipeline.Kind = PipelineLLM
	}
	if value, ok := lookupTrimmed("OPENROUTER_BASE_URL"); ok && strings.TrimSpace(c.Pipeline.BaseURL) == "" {
		c.Pipeline.BaseURL = value
	}
	c.Pipeline.BaseURL = strings.TrimSpace(c.Pipeline.BaseURL)
	if c.Pipeline.BaseURL == "" {
		c.Pipeline.BaseURL = defaultPipelineBaseURL
	}
	c.Pipeline.Model = strings.TrimSpace(c.Pipeline.Model)
	if c.Pipeline.Model == "" {
		c.Pipeline.Model = defaultPipelineModel
	}
	c.Pipeline.Referer = strings.TrimSpace(c.Pipeline.Referer)
	if c.Pipeline.Referer == "" {
		c.Pipeline.Referer = defaultPipelineReferer
	}
	c.Pipeline.Title = strings.TrimSpace(c.Pipeline.Title)
	if c.Pipeline.Title == "" {
		c.Pipeline.Title = defaultPipelineTitle
	}
	if c.Pipeline.TimeoutSeconds <= 0 {
		c.Pipeline.TimeoutSeconds = defaultPipelineTimeoutSeconds
	}
	c.Pipeline.Command = strings.TrimSpace(c.Pipeline.Command)
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFilesystem
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
		return fmt.Errorf("storage.sqlite_path: %w", err)
	}
	if c.Storage.MinioEndpoint == "" {
		if value, ok := lookupTrimmed("MINIO_ENDPOINT"); ok {
			c.Storage.MinioEndpoint = value
		}
	}
	if c.Storage.MinioAccessKey == "" {
		if value, ok := lookupTrimmed("MINIO_ROOT_USER"); ok {
			c.Storage.MinioAccessKey = value
		}
	}
	if c.Storage.MinioSecretKey == "" {
		if value, ok := lookupTrimmed("MINIO_ROOT_PASSWORD"); ok {
			c.Storage.MinioSecretKey = value
		}
	}
	c.Storage.MinioEndpoint = strings.TrimSpace(c.Storage.MinioEndpoint)
	c.Storage.MinioBucket = strings.TrimSpace(c.Storage.MinioBucket)
	if c.Storage.MinioBucket == "" {
		c.Storage.MinioBucket = defaultMinioBucket
	}
	c.Storage.MinioPrefix = strings.TrimLeft(strings.TrimSpace(c.Storage.MinioPrefix), "/")
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTelemetry() {
	if c.Telemetry.OTLPEndpoint == "" {
		if value, ok := lookupTrimmed("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			c.Telemetry.OTLPEndpoint = value
		}
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
