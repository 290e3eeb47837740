package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"muse/internal/session"
	"muse/internal/stages"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "generate <subject>",
		Short: "Generate toy-page content for a subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			components, err := ctx.buildSession(logger)
			if err != nil {
				return err
			}
			defer components.Close()

			subject := strings.Join(args, " ")
			if _, err := components.sessions.Submit(cmd.Context(), subject); err != nil {
				return err
			}

			timeout := time.Duration(timeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 5 * time.Minute
			}
			snapshot, err := awaitSession(cmd, components.sessions, timeout)
			if err != nil {
				return err
			}
			return renderOutcome(cmd, snapshot)
		},
	}

	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "Seconds to wait for the session to finish (default 300)")
	return cmd
}

// awaitSession polls the session until it reaches a terminal status,
// echoing stage transitions as they happen.
func awaitSession(cmd *cobra.Command, sessions *session.Manager, timeout time.Duration) (session.Snapshot, error) {
	deadline := time.Now().Add(timeout)
	lastStage := ""
	for {
		snapshot := sessions.Snapshot()
		if snapshot.Stage != "" && snapshot.Stage != lastStage {
			fmt.Fprintf(cmd.OutOrStdout(), "▸ %s\n", snapshot.Stage)
			lastStage = snapshot.Stage
		}
		switch snapshot.Status {
		case session.StatusSucceeded, session.StatusFailed:
			return snapshot, nil
		}
		if time.Now().After(deadline) {
			return snapshot, fmt.Errorf("generation timed out after %s", timeout)
		}
		select {
		case <-cmd.Context().Done():
			return snapshot, cmd.Context().Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func renderOutcome(cmd *cobra.Command, snapshot session.Snapshot) error {
	out := cmd.OutOrStdout()
	if snapshot.Status == session.StatusFailed {
		if snapshot.FailedStage != "" {
			return fmt.Errorf("generation failed at %s: %s", snapshot.FailedStage, snapshot.Error)
		}
		return fmt.Errorf("generation failed: %s", snapshot.Error)
	}

	if content, ok := snapshot.Results[stages.IllustrateStage]; ok {
		pretty, err := json.MarshalIndent(json.RawMessage(content), "", "  ")
		if err != nil {
			pretty = content
		}
		fmt.Fprintln(out, string(pretty))
	}

	switch {
	case snapshot.SaveError != "":
		fmt.Fprintf(out, "content generated but not saved: %s\n", snapshot.SaveError)
	case snapshot.SavedRecordID != nil:
		fmt.Fprintf(out, "saved to library as record %d\n", *snapshot.SavedRecordID)
	}
	return nil
}
