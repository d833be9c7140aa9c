package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Davygupta47/notebook/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show service status and active jobs",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(status, time.Now()))
			return nil
		},
	}
}

func renderStatus(status api.StatusResponse, now time.Time) string {
	summary := renderTable(
		[]string{"Service", "Version", "Pipeline", "Storage", "Max Upload", "Capacity", "In Flight", "Waiting"},
		[][]string{{
			status.Service,
			status.Version,
			status.Pipeline,
			status.StorageBackend,
			fmt.Sprintf("%d MB", status.MaxUploadMB),
			strconv.Itoa(status.Gate.Capacity),
			strconv.Itoa(status.Gate.InFlight),
			strconv.Itoa(status.Gate.Waiting),
		}},
		4, 5, 6, 7,
	)
	if len(status.Jobs) == 0 {
		return summary + "\nNo active jobs\n"
	}

	rows := make([][]string, 0, len(status.Jobs))
	for _, job := range status.Jobs {
		running := "-"
		if !job.Started.IsZero() {
			running = now.Sub(job.Started).Round(time.Second).String()
		}
		rows = append(rows, []string{
			job.ID,
			string(job.State),
			now.Sub(job.Created).Round(time.Second).String(),
			running,
			strconv.Itoa(job.PendingEvents),
		})
	}
	return summary + "\n" + renderTable([]string{"Job", "State", "Age", "Running", "Pending"}, rows, 2, 3, 4) + "\n"
}
