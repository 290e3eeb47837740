package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"muse/internal/logging"
	"muse/internal/pipeline"
	"muse/internal/services"
	"muse/internal/stages"
	"muse/internal/subjectkey"
)

// Status describes where a session is in its lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Runner starts a pipeline run and streams its events.
type Runner interface {
	Run(ctx context.Context, subjectKey string) <-chan pipeline.Event
}

// Snapshot is a point-in-time copy of the current session, safe to retain.
type Snapshot struct {
	SessionID string
	Subject   string
	Status    Status
	// Stage is the currently running stage; FailedStage names the stage a
	// failed session stopped at.
	Stage         string
	FailedStage   string
	Results       map[string]json.RawMessage
	SavedRecordID *int64
	SaveError     string
	Error         string
	ErrorKind     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type sessionState struct {
	id          string
	subject     string
	status      Status
	stage       string
	failedStage string
	results     map[string]json.RawMessage
	savedID     *int64
	saveErr     string
	finalErr    error
	createdAt   time.Time
	updatedAt   time.Time
	cancel      context.CancelFunc
}

// Manager owns the current session and applies pipeline events to it.
// Events carry the session ID they were produced for; events from a
// session that has since been superseded are discarded.
type Manager struct {
	runner Runner
	logger *slog.Logger

	mu      sync.RWMutex
	current *sessionState
	wg      sync.WaitGroup
}

// NewManager constructs a session manager over the given pipeline runner.
func NewManager(runner Runner, logger *slog.Logger) *Manager {
	return &Manager{
		runner: runner,
		logger: logging.NewComponentLogger(logger, "session"),
	}
}

// Submit starts a generation session for the raw subject and returns the
// new session ID. Any session already running is superseded: its context
// is cancelled best-effort and its remaining events are dropped. A blank
// subject is rejected without touching the current session.
func (m *Manager) Submit(ctx context.Context, rawSubject string) (string, error) {
	subject := subjectkey.Normalize(rawSubject)
	if subject == "" {
		return "", services.Wrap(services.ErrValidation, "session", "submit", "subject must not be empty", nil)
	}

	sessionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = services.WithSessionID(runCtx, sessionID)
	runCtx = services.WithSubject(runCtx, subject)

	now := time.Now().UTC()
	next := &sessionState{
		id:        sessionID,
		subject:   subject,
		status:    StatusRunning,
		results:   map[string]json.RawMessage{},
		createdAt: now,
		updatedAt: now,
		cancel:    cancel,
	}

	m.mu.Lock()
	previous := m.current
	m.current = next
	m.mu.Unlock()

	if previous != nil && previous.cancel != nil {
		previous.cancel()
	}

	logger := logging.WithContext(runCtx, m.logger)
	logger.Info("session started",
		logging.String(logging.FieldEventType, "session_start"),
		logging.String(logging.FieldSubject, subject))

	events := m.runner.Run(runCtx, subject)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		for ev := range events {
			m.apply(sessionID, ev)
		}
	}()

	return sessionID, nil
}

// apply folds one pipeline event into the current session's state. Events
// whose session has been superseded are dropped; the running pipeline
// keeps going, its results just never land.
func (m *Manager) apply(sessionID string, ev pipeline.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.current
	if state == nil || state.id != sessionID {
		m.logger.Debug("dropping event from superseded session",
			logging.String(logging.FieldEventType, "session_event_dropped"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("event_kind", string(ev.Kind)))
		return
	}

	state.updatedAt = time.Now().UTC()
	if ev.Draft != nil {
		state.results = ev.Draft.Results
	}

	switch ev.Kind {
	case pipeline.StageStarted:
		state.stage = ev.Stage
	case pipeline.StageCompleted:
		if ev.Stage == stages.PersistStage {
			state.savedID = decodeSavedRecordID(ev.Draft)
		}
	case pipeline.StageFailed:
		if ev.Stage == stages.PersistStage {
			// Content was generated but not saved. The session still
			// succeeds; the save failure is surfaced alongside.
			state.saveErr = ev.Err.Error()
		}
	case pipeline.PipelineCompleted:
		state.status = StatusSucceeded
		state.stage = ""
	case pipeline.PipelineFailed:
		state.status = StatusFailed
		state.failedStage = state.stage
		state.stage = ""
		state.finalErr = ev.Err
	}
}

func decodeSavedRecordID(draft *pipeline.Draft) *int64 {
	if draft == nil {
		return nil
	}
	raw, ok := draft.Result(stages.PersistStage)
	if !ok {
		return nil
	}
	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return &result.ID
}

// Snapshot returns a deep copy of the current session state. With no
// session submitted yet it reports StatusIdle.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := m.current
	if state == nil {
		return Snapshot{Status: StatusIdle}
	}

	snapshot := Snapshot{
		SessionID:   state.id,
		Subject:     state.subject,
		Status:      state.status,
		Stage:       state.stage,
		FailedStage: state.failedStage,
		Results:     make(map[string]json.RawMessage, len(state.results)),
		SaveError:   state.saveErr,
		CreatedAt:   state.createdAt,
		UpdatedAt:   state.updatedAt,
	}
	for stage, result := range state.results {
		buf := make(json.RawMessage, len(result))
		copy(buf, result)
		snapshot.Results[stage] = buf
	}
	if state.savedID != nil {
		id := *state.savedID
		snapshot.SavedRecordID = &id
	}
	if state.finalErr != nil {
		snapshot.Error = state.finalErr.Error()
		snapshot.ErrorKind = services.Kind(state.finalErr)
	}
	return snapshot
}

// Reset cancels any running session and returns the manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	previous := m.current
	m.current = nil
	m.mu.Unlock()

	if previous != nil && previous.cancel != nil {
		previous.cancel()
	}
}

// Close cancels the current session and waits for event consumers to
// drain. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.Reset()
	m.wg.Wait()
}
