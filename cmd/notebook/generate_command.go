package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Davygupta47/notebook/internal/api"
	"github.com/Davygupta47/notebook/internal/fileutil"
	"github.com/Davygupta47/notebook/internal/notebook"
	"github.com/Davygupta47/notebook/internal/textutil"
)

const apiKeyEnv = "OPENROUTER_API_KEY"

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var apiKey string
	var model string
	var outPath string
	var draftPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:         "generate <paper.pdf>",
		Short:       "Generate a notebook from a research paper",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(apiKey)
			if key == "" {
				key = strings.TrimSpace(os.Getenv(apiKeyEnv))
			}
			if key == "" {
				return fmt.Errorf("an API key is required (--api-key or $%s)", apiKeyEnv)
			}

			pdf, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read paper: %w", err)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderer := newProgressRenderer(out, verbose)
			result, err := client.Generate(cmd.Context(), generateRequest{
				Filename: args[0],
				PDF:      pdf,
				APIKey:   key,
				Model:    model,
			}, renderer.render)
			if draftPath != "" && result.DraftID != "" {
				if derr := saveNotebook(cmd, client, result.DraftID, draftPath); derr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: draft not saved: %v\n", derr)
				}
			}
			if err != nil {
				var se *streamError
				if errors.As(err, &se) {
					return se
				}
				return err
			}

			return saveNotebook(cmd, client, result.JobID, resolveOutPath(outPath, args[0]))
		},
	}

	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "Model provider API key (default: $"+apiKeyEnv+")")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model identifier (default: server configuration)")
	cmd.Flags().StringVarP(&outPath, "out", "o", api.DownloadFilename, "Where to write the finished notebook (a directory gets <paper>.ipynb)")
	cmd.Flags().StringVar(&draftPath, "draft-out", "", "Also write the draft notebook here when one is produced")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show model reasoning lines")
	return cmd
}

// resolveOutPath places the notebook inside out when out is an existing
// directory, naming it after the paper.
func resolveOutPath(out, paper string) string {
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, textutil.NotebookName(paper, api.DownloadFilename))
	}
	return out
}

// saveNotebook downloads id, writes it to path, and prints a cell summary.
func saveNotebook(cmd *cobra.Command, client *apiClient, id, path string) error {
	data, err := client.Download(cmd.Context(), id)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write notebook: %w", err)
	}
	summary := fmt.Sprintf("Wrote %s", path)
	if nb, err := notebook.Parse(data); err == nil {
		summary += fmt.Sprintf(" (%d cells: %d code, %d markdown)",
			nb.Len(), nb.Count(notebook.Code), nb.Count(notebook.Markdown))
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}
