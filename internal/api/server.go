package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"muse/internal/library"
	"muse/internal/logging"
	"muse/internal/services"
	"muse/internal/session"
	"muse/internal/speech"
)

// Server routes page requests to the session manager, library store, and
// narration service.
type Server struct {
	sessions *session.Manager
	store    *library.Store
	speech   *speech.Service
	logger   *slog.Logger
}

// NewServer constructs the HTTP surface. speechService may be nil when
// narration is disabled.
func NewServer(sessions *session.Manager, store *library.Store, speechService *speech.Service, logger *slog.Logger) *Server {
	return &Server{
		sessions: sessions,
		store:    store,
		speech:   speechService,
		logger:   logging.NewComponentLogger(logger, "api"),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/library", s.handleLibraryList)
	mux.HandleFunc("GET /api/library/{id}", s.handleLibraryGet)
	mux.HandleFunc("DELETE /api/library/{id}", s.handleLibraryRemove)
	mux.HandleFunc("GET /api/speech", s.handleSpeech)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.store.CheckHealth(r.Context())
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrPersistence, "api", "healthz", "library health check failed", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"library": health,
	})
}

type statusResponse struct {
	SessionID     string                     `json:"session_id,omitempty"`
	Subject       string                     `json:"subject,omitempty"`
	Status        session.Status             `json:"status"`
	Stage         string                     `json:"stage,omitempty"`
	FailedStage   string                     `json:"failed_stage,omitempty"`
	Results       map[string]json.RawMessage `json:"results,omitempty"`
	SavedRecordID *int64                     `json:"saved_record_id,omitempty"`
	SaveError     string                     `json:"save_error,omitempty"`
	Error         string                     `json:"error,omitempty"`
	ErrorKind     string                     `json:"error_kind,omitempty"`
	UpdatedAt     *time.Time                 `json:"updated_at,omitempty"`
}

func statusFromSnapshot(snapshot session.Snapshot) statusResponse {
	resp := statusResponse{
		SessionID:     snapshot.SessionID,
		Subject:       snapshot.Subject,
		Status:        snapshot.Status,
		Stage:         snapshot.Stage,
		FailedStage:   snapshot.FailedStage,
		Results:       snapshot.Results,
		SavedRecordID: snapshot.SavedRecordID,
		SaveError:     snapshot.SaveError,
		Error:         snapshot.Error,
		ErrorKind:     snapshot.ErrorKind,
	}
	if !snapshot.UpdatedAt.IsZero() {
		updated := snapshot.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusFromSnapshot(s.sessions.Snapshot()))
}

type generateRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "api", "generate", "request body must be JSON with a subject field", err))
		return
	}
	sessionID, err := s.sessions.Submit(r.Context(), req.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sessions.Reset()
	w.WriteHeader(http.StatusNoContent)
}

type recordResponse struct {
	ID         int64           `json:"id"`
	NaturalKey string          `json:"natural_key"`
	Payload    json.RawMessage `json:"payload"`
	SavedAt    time.Time       `json:"saved_at"`
}

func recordFromStore(record *library.Record) recordResponse {
	return recordResponse{
		ID:         record.ID,
		NaturalKey: record.NaturalKey,
		Payload:    record.Payload,
		SavedAt:    record.SavedAt,
	}
}

func (s *Server) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]recordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, recordFromStore(record))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": resp})
}

func (s *Server) handleLibraryGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if record == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "library", "content record not found", nil))
		return
	}
	s.writeJSON(w, http.StatusOK, recordFromStore(record))
}

func (s *Server) handleLibraryRemove(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	removed, err := s.store.Remove(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !removed {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "library", "content record not found", nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "api", "speech", "narration is not enabled", nil))
		return
	}
	audio, fromCache, err := s.speech.Speak(r.Context(), r.URL.Query().Get("text"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	if fromCache {
		w.Header().Set("X-Cache", "hit")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		s.logger.Debug("write speech response", logging.Error(err))
	}
}

func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "library", "record ID must be a positive integer", err)
	}
	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err))
	}
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  services.Kind(err),
	})
}

func statusForError(err error) int {
	switch {
	case services.Kind(err) == "validation":
		return http.StatusBadRequest
	case services.Kind(err) == "not_found":
		return http.StatusNotFound
	case services.Kind(err) == "configuration":
		return http.StatusServiceUnavailable
	case services.Kind(err) == "transient":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
