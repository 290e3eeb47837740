// Package speech narrates generated content through a text-to-speech
// endpoint, caching synthesized audio per normalized utterance.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"muse/internal/coalesce"
	"muse/internal/config"
	"muse/internal/logging"
	"muse/internal/services"
	"muse/internal/subjectkey"
)

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// HTTPSynthesizer talks to an OpenAI-compatible audio/speech endpoint.
type HTTPSynthesizer struct {
	cfg        config.Speech
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSynthesizer constructs a synthesizer from config. The generator
// API key is reused when the speech section does not carry its own.
func NewHTTPSynthesizer(cfg config.Speech, apiKey string) *HTTPSynthesizer {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSynthesizer{
		cfg:        cfg,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// Synthesize posts the utterance and returns the audio payload as-is.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(s.cfg.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "synthesize", "speech base URL is not configured", nil)
	}

	body, err := json.Marshal(speechRequest{
		Model: s.cfg.Model,
		Voice: s.cfg.Voice,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "speech request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize",
			fmt.Sprintf("speech endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "read speech response", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "speech", "synthesize", "speech endpoint returned no audio", nil)
	}
	return audio, nil
}

// Service narrates text, deduplicating concurrent requests and reusing
// cached audio for repeated utterances.
type Service struct {
	synth     Synthesizer
	coalescer *coalesce.Coalescer
	logger    *slog.Logger
}

// NewService constructs the narration service. coalescer may be nil, in
// which case every call synthesizes fresh audio.
func NewService(synth Synthesizer, coalescer *coalesce.Coalescer, logger *slog.Logger) *Service {
	return &Service{
		synth:     synth,
		coalescer: coalescer,
		logger:    logging.NewComponentLogger(logger, "speech"),
	}
}

// Speak returns audio for the text. fromCache reports whether the audio
// was served from the artifact cache.
func (s *Service) Speak(ctx context.Context, text string) (audio []byte, fromCache bool, err error) {
	normalized := subjectkey.Normalize(text)
	if normalized == "" {
		return nil, false, services.Wrap(services.ErrValidation, "speech", "speak", "text must not be empty", nil)
	}

	fetch := func(ctx context.Context) ([]byte, error) {
		return s.synth.Synthesize(ctx, text)
	}
	if s.coalescer == nil {
		audio, err = fetch(ctx)
		return audio, false, err
	}
	return s.coalescer.Do(ctx, "speech:"+normalized, fetch)
}
