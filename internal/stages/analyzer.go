package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"muse/internal/coalesce"
	"muse/internal/generator"
	"muse/internal/logging"
	"muse/internal/pipeline"
	"muse/internal/services"
)

// TextGenerator is the subset of the generator client the stages use.
type TextGenerator interface {
	Generate(ctx context.Context, spec generator.PromptSpec) (json.RawMessage, error)
}

// Analyzer derives mood, palette, and themes for the subject. Concurrent
// and repeat requests for the same subject share one generator call
// through the coalescer.
type Analyzer struct {
	generator TextGenerator
	coalescer *coalesce.Coalescer
	logger    *slog.Logger
}

// NewAnalyzer constructs the analysis stage. coalescer may be nil, in
// which case every run calls the generator directly.
func NewAnalyzer(gen TextGenerator, coalescer *coalesce.Coalescer, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		generator: gen,
		coalescer: coalescer,
		logger:    logging.NewComponentLogger(logger, "stage-analyze"),
	}
}

func (a *Analyzer) Name() string { return AnalyzeStage }

func (a *Analyzer) Execute(ctx context.Context, draft *pipeline.Draft) error {
	spec := generator.PromptSpec{
		System: analyzeSystemPrompt,
		User:   fmt.Sprintf("Subject: %s", draft.SubjectKey),
	}

	fetch := func(ctx context.Context) ([]byte, error) {
		result, err := a.generator.Generate(ctx, spec)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	var (
		result    []byte
		fromCache bool
		err       error
	)
	if a.coalescer != nil {
		result, fromCache, err = a.coalescer.Do(ctx, AnalyzeStage+":"+draft.SubjectKey, fetch)
	} else {
		result, err = fetch(ctx)
	}
	if err != nil {
		return wrapStageError(AnalyzeStage, "generate", "subject analysis failed", err)
	}
	if fromCache {
		a.logger.Info("analysis served from artifact cache",
			logging.String(logging.FieldEventType, "analysis_cache_hit"),
			logging.String(logging.FieldSubject, draft.SubjectKey))
	}

	draft.SetResult(AnalyzeStage, json.RawMessage(result))
	return nil
}

// wrapStageError classifies a stage failure, preserving an existing
// classification when the underlying error already carries one.
func wrapStageError(stage, operation, message string, err error) error {
	if services.Kind(err) != "" {
		return err
	}
	return services.Wrap(services.ErrTransient, stage, operation, message, err)
}
