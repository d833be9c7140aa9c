package main

import (
	"github.com/spf13/cobra"

	"github.com/Davygupta47/notebook/internal/api"
	"github.com/Davygupta47/notebook/internal/jobs"
)

// draftDownloadFilename is the default output name for draft ids.
const draftDownloadFilename = "draft_notebook.ipynb"

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:         "download <job_id>",
		Short:       "Download a generated notebook or draft by id",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := outPath
			if path == "" {
				path = defaultDownloadPath(args[0])
			}
			return saveNotebook(cmd, client, args[0], path)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination file (default "+api.DownloadFilename+", or "+draftDownloadFilename+" for drafts)")
	return cmd
}

func defaultDownloadPath(id string) string {
	if jobs.IsDraftID(id) {
		return draftDownloadFilename
	}
	return api.DownloadFilename
}
