package config

// Pipeline kinds.
const (
	PipelineLLM     = "llm"
	PipelineCommand = "command"
)

// Storage backends.
const (
	StorageFilesystem = "filesystem"
	StorageSQLite     = "sqlite"
	StorageMinio      = "minio"
)

const (
	defaultConfigPath             = "~/.config/notebook/config.toml"
	defaultArtifactDir            = "~/.local/share/notebook/artifacts"
	defaultLogDir                 = "~/.local/share/notebook/logs"
	defaultSQLitePath             = "~/.local/share/notebook/artifacts.db"
	defaultAPIBind                = "127.0.0.1:8000"
	defaultMaxUploadMB            = 10
	defaultShutdownTimeoutSeconds = 15
	defaultMaxConcurrent          = 3
	defaultKeepaliveSeconds       = 1
	defaultPipelineBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultPipelineModel          = "google/gemini-2.5-flash"
	defaultPipelineReferer        = "https://github.com/Davygupta47/notebook"
	defaultPipelineTitle          = "Paper to Notebook"
	defaultPipelineTimeoutSeconds = 600
	defaultMinioBucket            = "notebooks"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultServiceName            = "notebookd"
)

var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8000",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Server: Server{
			MaxUploadMB:            defaultMaxUploadMB,
			AllowedOrigins:         append([]string(nil), defaultAllowedOrigins...),
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Jobs: Jobs{
			MaxConcurrent: defaultMaxConcurrent,
		},
		Stream: Stream{
			KeepaliveSeconds: defaultKeepaliveSeconds,
		},
		Pipeline: Pipeline{
			Kind:           PipelineLLM,
			Model:          defaultPipelineModel,
			BaseURL:        defaultPipelineBaseURL,
			Referer:        defaultPipelineReferer,
			Title:          defaultPipelineTitle,
			TimeoutSeconds: defaultPipelineTimeoutSeconds,
		},
		Storage: Storage{
			Backend:     StorageFilesystem,
			SQLitePath:  defaultSQLitePath,
			MinioBucket: defaultMinioBucket,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			ServiceName: defaultServiceName,
			SampleRatio: 1,
		},
	}
}
