package stages

import (
	"context"
	"encoding/json"
	"log/slog"

	"muse/internal/logging"
	"muse/internal/pipeline"
	"muse/internal/services"
)

// ContentSaver is the subset of the library store the persist stage uses.
type ContentSaver interface {
	SaveIfAbsent(ctx context.Context, naturalKey string, payload json.RawMessage) (int64, bool, error)
}

// Persister writes the generated content to the library keyed by subject.
// Its failure is non-fatal: the page still has content to show, it just
// was not saved.
type Persister struct {
	store  ContentSaver
	logger *slog.Logger
}

// NewPersister constructs the persistence stage.
func NewPersister(store ContentSaver, logger *slog.Logger) *Persister {
	return &Persister{
		store:  store,
		logger: logging.NewComponentLogger(logger, "stage-persist"),
	}
}

func (p *Persister) Name() string { return PersistStage }

func (p *Persister) NonFatal() bool { return true }

type storedContent struct {
	Subject  string          `json:"subject"`
	Analysis json.RawMessage `json:"analysis,omitempty"`
	Content  json.RawMessage `json:"content"`
}

type persistResult struct {
	ID      int64 `json:"id"`
	Created bool  `json:"created"`
}

func (p *Persister) Execute(ctx context.Context, draft *pipeline.Draft) error {
	content, ok := draft.Result(IllustrateStage)
	if !ok {
		return services.Wrap(services.ErrValidation, PersistStage, "execute",
			"no generated content to save", nil)
	}
	analysis, _ := draft.Result(AnalyzeStage)

	payload, err := json.Marshal(storedContent{
		Subject:  draft.SubjectKey,
		Analysis: analysis,
		Content:  content,
	})
	if err != nil {
		return services.Wrap(services.ErrPersistence, PersistStage, "marshal",
			"encode content record", err)
	}

	id, created, err := p.store.SaveIfAbsent(ctx, draft.SubjectKey, payload)
	if err != nil {
		return wrapPersistError(err)
	}
	if !created {
		p.logger.Info("subject already in library, kept existing record",
			logging.String(logging.FieldEventType, "persist_existing"),
			logging.String(logging.FieldSubject, draft.SubjectKey),
			logging.Int64("record_id", id))
	}

	result, err := json.Marshal(persistResult{ID: id, Created: created})
	if err != nil {
		return services.Wrap(services.ErrPersistence, PersistStage, "marshal",
			"encode persist result", err)
	}
	draft.SetResult(PersistStage, result)
	return nil
}

func wrapPersistError(err error) error {
	if services.Kind(err) != "" {
		return err
	}
	return services.Wrap(services.ErrPersistence, PersistStage, "save",
		"save content record", err)
}
