package stages

import (
	"context"
	"fmt"
	"log/slog"

	"muse/internal/generator"
	"muse/internal/logging"
	"muse/internal/pipeline"
	"muse/internal/services"
)

// Illustrator turns the subject and its analysis into the page content.
// It depends on the analyze stage's result being present on the draft.
type Illustrator struct {
	generator TextGenerator
	logger    *slog.Logger
}

// NewIllustrator constructs the illustration stage.
func NewIllustrator(gen TextGenerator, logger *slog.Logger) *Illustrator {
	return &Illustrator{
		generator: gen,
		logger:    logging.NewComponentLogger(logger, "stage-illustrate"),
	}
}

func (i *Illustrator) Name() string { return IllustrateStage }

func (i *Illustrator) Execute(ctx context.Context, draft *pipeline.Draft) error {
	analysis, ok := draft.Result(AnalyzeStage)
	if !ok {
		return services.Wrap(services.ErrValidation, IllustrateStage, "execute",
			"subject analysis is required before illustration", nil)
	}

	spec := generator.PromptSpec{
		System: illustrateSystemPrompt,
		User:   fmt.Sprintf("Subject: %s\nAnalysis: %s", draft.SubjectKey, analysis),
	}
	result, err := i.generator.Generate(ctx, spec)
	if err != nil {
		return wrapStageError(IllustrateStage, "generate", "content generation failed", err)
	}

	draft.SetResult(IllustrateStage, result)
	return nil
}
