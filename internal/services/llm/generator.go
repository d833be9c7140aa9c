package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/notebook"
	"github.com/Davygupta47/notebook/internal/pipeline"
	"github.com/Davygupta47/notebook/internal/services"
)

const stageName = "llm"

// Milestone steps reported by the generator.
const (
	StepRead = iota + 1
	StepOutline
	StepDraft
	StepImplement
	StepAssemble
)

// Outline is the paper structure returned by the first model call.
type Outline struct {
	Title        string           `json:"title"`
	Summary      string           `json:"summary"`
	Sections     []OutlineSection `json:"sections"`
	Dependencies []string         `json:"dependencies"`
}

// OutlineSection is one planned tutorial section.
type OutlineSection struct {
	Heading string `json:"heading"`
	Summary string `json:"summary"`
}

type generatedCells struct {
	Cells []struct {
		Type   string `json:"cell_type"`
		Source string `json:"source"`
	} `json:"cells"`
}

// Generator turns a PDF into a notebook with two model calls: one for the
// outline, which is delivered as a draft, and one for the implementation.
type Generator struct {
	client *Client
	logger *slog.Logger
}

// NewGenerator wraps client as a pipeline.Pipeline.
func NewGenerator(client *Client, logger *slog.Logger) *Generator {
	return &Generator{
		client: client,
		logger: logging.NewComponentLogger(logger, "llm-pipeline"),
	}
}

// Run implements pipeline.Pipeline.
func (g *Generator) Run(ctx context.Context, req pipeline.Request, sink pipeline.Sink) ([]byte, error) {
	if sink == nil {
		sink = pipeline.Discard{}
	}
	ctx = services.WithJobID(ctx, req.JobID)

	if !bytes.HasPrefix(req.Input, []byte("%PDF-")) {
		return nil, services.Wrap(services.ErrValidation, stageName, "read", "input is not a PDF document", nil)
	}
	sink.Progress(StepRead, "Reading paper", fmt.Sprintf("Loaded %d KB PDF", len(req.Input)/1024), nil)

	attachment := &Attachment{Filename: "paper.pdf", MediaType: "application/pdf", Data: req.Input}

	outlineCtx := services.WithStep(ctx, "outline")
	var outline Outline
	completion, err := g.client.CompleteJSON(outlineCtx, Request{
		System:     OutlinePrompt,
		User:       "Outline this paper.",
		Attachment: attachment,
		APIKey:     req.Credential,
		Model:      req.Model,
		Reasoning:  true,
	}, &outline)
	if err != nil {
		return nil, classify("outline", err)
	}
	emitThinking(sink, completion.Reasoning)
	outline.normalize()
	if len(outline.Sections) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "outline", "model returned no sections", nil)
	}
	logging.WithContext(outlineCtx, g.logger).Info("paper outlined",
		logging.String("title", outline.Title),
		logging.Int("sections", len(outline.Sections)),
	)
	sink.Progress(StepOutline, "Analyzing paper",
		fmt.Sprintf("Identified %d sections", len(outline.Sections)),
		map[string]any{"title": outline.Title},
	)

	draft, err := DraftNotebook(outline).Marshal()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "draft", "encode draft", err)
	}
	sink.Draft(StepDraft, "Drafting notebook", "Outline notebook ready", nil, draft)

	outlineJSON, err := json.Marshal(outline)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "implement", "encode outline", err)
	}
	implementCtx := services.WithStep(ctx, "implement")
	var cells generatedCells
	completion, err = g.client.CompleteJSON(implementCtx, Request{
		System:     ImplementationPrompt,
		User:       string(outlineJSON),
		Attachment: attachment,
		APIKey:     req.Credential,
		Model:      req.Model,
		Reasoning:  true,
	}, &cells)
	if err != nil {
		return nil, classify("implement", err)
	}
	emitThinking(sink, completion.Reasoning)
	if len(cells.Cells) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "implement", "model returned no cells", nil)
	}
	logging.WithContext(implementCtx, g.logger).Info("implementation generated",
		logging.Int("cells", len(cells.Cells)),
		logging.String("finish_reason", completion.FinishReason),
	)
	sink.Progress(StepImplement, "Writing implementation", fmt.Sprintf("Generated %d cells", len(cells.Cells)), nil)

	final := finalNotebook(outline, cells)
	payload, err := final.Marshal()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "assemble", "encode notebook", err)
	}
	sink.Progress(StepAssemble, "Assembling notebook",
		fmt.Sprintf("%d code cells, %d markdown cells", final.Count(notebook.Code), final.Count(notebook.Markdown)),
		map[string]any{"cells": final.Len()},
	)
	return payload, nil
}

func (o *Outline) normalize() {
	o.Title = strings.TrimSpace(o.Title)
	if o.Title == "" {
		o.Title = "Paper Implementation"
	}
	o.Summary = strings.TrimSpace(o.Summary)
	sections := o.Sections[:0]
	for _, s := range o.Sections {
		s.Heading = strings.TrimSpace(s.Heading)
		if s.Heading == "" {
			continue
		}
		s.Summary = strings.TrimSpace(s.Summary)
		sections = append(sections, s)
	}
	o.Sections = sections
	deps := o.Dependencies[:0]
	for _, d := range o.Dependencies {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}
	o.Dependencies = deps
}

// DraftNotebook renders an outline as a notebook of headings and section
// summaries, with an install cell when dependencies are known.
func DraftNotebook(o Outline) *notebook.Notebook {
	nb := titled(o)
	for _, s := range o.Sections {
		text := "## " + s.Heading
		if s.Summary != "" {
			text += "\n\n" + s.Summary
		}
		nb.AddMarkdown(text)
	}
	return nb
}

func finalNotebook(o Outline, cells generatedCells) *notebook.Notebook {
	nb := titled(o)
	for _, c := range cells.Cells {
		if strings.TrimSpace(c.Source) == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(c.Type), string(notebook.Code)) {
			nb.AddCode(c.Source)
		} else {
			nb.AddMarkdown(c.Source)
		}
	}
	return nb
}

func titled(o Outline) *notebook.Notebook {
	nb := notebook.New(o.Title)
	header := "# " + o.Title
	if o.Summary != "" {
		header += "\n\n" + o.Summary
	}
	nb.AddMarkdown(header)
	if len(o.Dependencies) > 0 {
		nb.AddCode("%pip install -q " + strings.Join(o.Dependencies, " "))
	}
	return nb
}

func emitThinking(sink pipeline.Sink, text string) {
	if text = strings.TrimSpace(text); text != "" {
		sink.Thinking(text)
	}
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, op, "model request timed out", err)
	}
	if errors.Is(err, ErrProviderUnavailable) {
		return services.Wrap(services.ErrTransient, stageName, op, "model provider unavailable", err)
	}
	switch code := StatusCode(err); {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusPaymentRequired:
		return services.Wrap(services.ErrConfiguration, stageName, op, "model request rejected", err)
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, stageName, op, "model provider unavailable", err)
	}
	return services.Wrap(services.ErrExternalTool, stageName, op, "model request failed", err)
}
