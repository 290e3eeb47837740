package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the serving instance's session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Second}
			url := fmt.Sprintf("http://%s/api/status", cfg.Paths.APIBind)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("no muse instance reachable at %s (is `muse serve` running?): %w", cfg.Paths.APIBind, err)
			}
			defer resp.Body.Close()

			var status struct {
				SessionID string `json:"session_id"`
				Subject   string `json:"subject"`
				Status    string `json:"status"`
				Stage     string `json:"stage"`
				SaveError string `json:"save_error"`
				Error     string `json:"error"`
				ErrorKind string `json:"error_kind"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decode status response: %w", err)
			}

			rows := [][]string{
				{"Status", status.Status},
				{"Subject", status.Subject},
				{"Stage", status.Stage},
				{"Session", status.SessionID},
			}
			if status.SaveError != "" {
				rows = append(rows, []string{"Save error", status.SaveError})
			}
			if status.Error != "" {
				rows = append(rows, []string{"Error", fmt.Sprintf("%s (%s)", status.Error, status.ErrorKind)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
