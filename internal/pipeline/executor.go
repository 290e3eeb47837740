package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"muse/internal/logging"
	"muse/internal/services"
)

// EventKind labels a pipeline progress event.
type EventKind string

const (
	// StageStarted is emitted before a stage's Execute runs.
	StageStarted EventKind = "stage_started"
	// StageCompleted is emitted after a stage finishes without error.
	StageCompleted EventKind = "stage_completed"
	// StageFailed is emitted when a stage's Execute returns an error.
	StageFailed EventKind = "stage_failed"
	// PipelineCompleted is the terminal event of a successful run.
	PipelineCompleted EventKind = "pipeline_completed"
	// PipelineFailed is the terminal event of a failed run. The draft
	// carries whatever results the completed stages produced.
	PipelineFailed EventKind = "pipeline_failed"
)

// Event reports pipeline progress. Draft is a snapshot safe to retain; it
// is never mutated after the event is sent.
type Event struct {
	Kind  EventKind
	Stage string
	Draft *Draft
	Err   error
}

// Preflight runs before any stage and vetoes the run when it fails.
type Preflight func(ctx context.Context) error

// Executor runs a fixed stage sequence and streams events for each run.
type Executor struct {
	logger    *slog.Logger
	stages    []Handler
	preflight Preflight
}

// Option adjusts executor construction.
type Option func(*Executor)

// WithPreflight installs a check that runs before the first stage. A
// preflight failure produces a PipelineFailed event without starting any
// stage.
func WithPreflight(check Preflight) Option {
	return func(e *Executor) {
		e.preflight = check
	}
}

// New constructs an Executor over the given stages, run in order.
func New(logger *slog.Logger, stages []Handler, opts ...Option) *Executor {
	executor := &Executor{
		logger: logging.NewComponentLogger(logger, "pipeline"),
		stages: stages,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Run executes the stage sequence for subjectKey in a new goroutine and
// returns the event stream. The channel is closed after the terminal
// event. Stage errors are delivered as events, never returned or panicked;
// context cancellation between stages ends the run with PipelineFailed.
func (e *Executor) Run(ctx context.Context, subjectKey string) <-chan Event {
	events := make(chan Event, 2*len(e.stages)+2)
	go func() {
		defer close(events)
		e.run(ctx, subjectKey, events)
	}()
	return events
}

func (e *Executor) run(ctx context.Context, subjectKey string, events chan<- Event) {
	logger := logging.WithContext(ctx, e.logger)
	draft := NewDraft(subjectKey)

	if e.preflight != nil {
		if err := e.preflight(ctx); err != nil {
			logger.Error("pipeline preflight failed",
				logging.String(logging.FieldEventType, "pipeline_preflight_failed"),
				logging.Error(err))
			events <- Event{Kind: PipelineFailed, Draft: draft.Clone(), Err: err}
			return
		}
	}

	var runErr error
	for _, handler := range e.stages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		stageName := handler.Name()
		stageCtx := services.WithStage(ctx, stageName)
		stageLogger := logging.WithContext(stageCtx, e.logger)

		stageLogger.Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.String(logging.FieldStage, stageName),
			logging.String(logging.FieldSubject, subjectKey))
		events <- Event{Kind: StageStarted, Stage: stageName, Draft: draft.Clone()}

		err := e.executeStage(stageCtx, handler, draft)
		if err == nil {
			stageLogger.Info("stage completed",
				logging.String(logging.FieldEventType, "stage_complete"),
				logging.String(logging.FieldStage, stageName))
			events <- Event{Kind: StageCompleted, Stage: stageName, Draft: draft.Clone()}
			continue
		}

		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldStage, stageName),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err))
		events <- Event{Kind: StageFailed, Stage: stageName, Draft: draft.Clone(), Err: err}

		if stageIsNonFatal(handler) {
			continue
		}
		runErr = err
		break
	}

	if runErr != nil {
		events <- Event{Kind: PipelineFailed, Draft: draft.Clone(), Err: runErr}
		return
	}

	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String(logging.FieldSubject, subjectKey))
	events <- Event{Kind: PipelineCompleted, Draft: draft.Clone()}
}

// executeStage shields the run loop from panicking stages.
func (e *Executor) executeStage(ctx context.Context, handler Handler, draft *Draft) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = services.Wrap(services.ErrTransient, handler.Name(), "execute",
				strings.TrimSpace(panicMessage(recovered)), nil)
		}
	}()
	return handler.Execute(ctx, draft)
}

func panicMessage(recovered any) string {
	if err, ok := recovered.(error); ok {
		return "stage panicked: " + err.Error()
	}
	if msg, ok := recovered.(string); ok {
		return "stage panicked: " + msg
	}
	return "stage panicked"
}
