package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"muse/internal/coalesce"
	"muse/internal/resultcache"
	"muse/internal/speech"
)

func newSpeakCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize narration audio for text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Speech.Enabled {
				return fmt.Errorf("narration is disabled; enable the [speech] section in the config")
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			cache := resultcache.New(cfg.ArtifactCachePath(), logger)
			narrator := speech.NewService(
				speech.NewHTTPSynthesizer(cfg.Speech, cfg.Generator.APIKey),
				coalesce.New(cache, logger),
				logger,
			)

			text := strings.Join(args, " ")
			audio, fromCache, err := narrator.Speak(cmd.Context(), text)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = "muse-narration.mp3"
			}
			if err := os.WriteFile(target, audio, 0o644); err != nil {
				return fmt.Errorf("write audio file: %w", err)
			}
			source := "synthesized"
			if fromCache {
				source = "cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes (%s) to %s\n", len(audio), source, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Audio output path (default muse-narration.mp3)")
	return cmd
}
