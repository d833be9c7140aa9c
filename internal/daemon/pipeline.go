package daemon

import (
	"fmt"
	"log/slog"

	"github.com/Davygupta47/notebook/internal/config"
	"github.com/Davygupta47/notebook/internal/pipeline"
	"github.com/Davygupta47/notebook/internal/pipeline/command"
	"github.com/Davygupta47/notebook/internal/services/llm"
)

// BuildPipeline returns the generation backend selected by pipeline.kind.
func BuildPipeline(cfg *config.Config, logger *slog.Logger) (pipeline.Pipeline, error) {
	switch cfg.Pipeline.Kind {
	case config.PipelineLLM, "":
		client := llm.NewClient(llm.Config{
			BaseURL:        cfg.Pipeline.BaseURL,
			Model:          cfg.Pipeline.Model,
			Referer:        cfg.Pipeline.Referer,
			Title:          cfg.Pipeline.Title,
			TimeoutSeconds: cfg.Pipeline.TimeoutSeconds,
		})
		return llm.NewGenerator(client, logger), nil
	case config.PipelineCommand:
		p, err := command.New(cfg.Pipeline.Command, cfg.Pipeline.Args, command.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported pipeline kind %q", cfg.Pipeline.Kind)
	}
}
