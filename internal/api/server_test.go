package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"muse/internal/coalesce"
	"muse/internal/generator"
	"muse/internal/library"
	"muse/internal/pipeline"
	"muse/internal/session"
	"muse/internal/speech"
	"muse/internal/stages"
	"muse/internal/testsupport"
)

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, spec generator.PromptSpec) (json.RawMessage, error) {
	return json.RawMessage(`{"title":"Tidepools","body":"Small worlds at low tide."}`), nil
}

type staticSynth struct{}

func (staticSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("audio:" + text), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *library.Store, *session.Manager) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	cache := testsupport.NewArtifactCache(t, cfg)
	coalescer := coalesce.New(cache, nil)

	executor := pipeline.New(nil, []pipeline.Handler{
		stages.NewAnalyzer(staticGenerator{}, coalescer, nil),
		stages.NewIllustrator(staticGenerator{}, nil),
		stages.NewPersister(store, nil),
	})
	sessions := session.NewManager(executor, nil)
	t.Cleanup(sessions.Close)

	narrator := speech.NewService(staticSynth{}, coalescer, nil)
	server := httptest.NewServer(NewServer(sessions, store, narrator, nil).Handler())
	t.Cleanup(server.Close)
	return server, store, sessions
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func waitForSessionStatus(t *testing.T, serverURL string, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var status map[string]any
	for time.Now().Before(deadline) {
		getJSON(t, serverURL+"/api/status", &status)
		if status["status"] == want {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached %q, last status: %v", want, status)
	return nil
}

func TestGenerateStatusAndLibraryFlow(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/generate", "application/json",
		strings.NewReader(`{"subject":"Tidepools"}`))
	if err != nil {
		t.Fatalf("POST generate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode generate response: %v", err)
	}
	if accepted["session_id"] == "" {
		t.Fatal("expected session_id in response")
	}

	status := waitForSessionStatus(t, server.URL, "succeeded")
	if status["subject"] != "tidepools" {
		t.Fatalf("expected normalized subject, got %v", status["subject"])
	}
	if status["saved_record_id"] == nil {
		t.Fatal("expected saved_record_id once persisted")
	}

	var listing struct {
		Records []struct {
			ID         int64  `json:"id"`
			NaturalKey string `json:"natural_key"`
		} `json:"records"`
	}
	if code := getJSON(t, server.URL+"/api/library", &listing); code != http.StatusOK {
		t.Fatalf("list library: status %d", code)
	}
	if len(listing.Records) != 1 || listing.Records[0].NaturalKey != "tidepools" {
		t.Fatalf("unexpected library listing %+v", listing.Records)
	}

	var record map[string]any
	url := fmt.Sprintf("%s/api/library/%d", server.URL, listing.Records[0].ID)
	if code := getJSON(t, url, &record); code != http.StatusOK {
		t.Fatalf("get record: status %d", code)
	}
	if record["natural_key"] != "tidepools" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestGenerateRejectsBlankSubject(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/generate", "application/json",
		strings.NewReader(`{"subject":"   "}`))
	if err != nil {
		t.Fatalf("POST generate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["kind"] != "validation" {
		t.Fatalf("expected validation kind, got %q", body["kind"])
	}
}

func TestLibraryGetUnknownRecord(t *testing.T) {
	server, _, _ := newTestServer(t)

	if code := getJSON(t, server.URL+"/api/library/999", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := getJSON(t, server.URL+"/api/library/abc", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed ID, got %d", code)
	}
}

func TestLibraryRemove(t *testing.T) {
	server, store, _ := newTestServer(t)

	id, _, err := store.SaveIfAbsent(context.Background(), "moss", json.RawMessage(`{"title":"Moss"}`))
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/library/%d", server.URL, id), nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete record: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", resp.StatusCode)
	}
}

func TestSpeechEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/speech?text=hello+there")
	if err != nil {
		t.Fatalf("GET speech: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestSpeechDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLibrary(t, cfg)
	sessions := session.NewManager(pipeline.New(nil, nil), nil)
	t.Cleanup(sessions.Close)

	server := httptest.NewServer(NewServer(sessions, store, nil, nil).Handler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/speech?text=hello")
	if err != nil {
		t.Fatalf("GET speech: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	var health map[string]any
	if code := getJSON(t, server.URL+"/api/healthz", &health); code != http.StatusOK {
		t.Fatalf("healthz: status %d", code)
	}
	if health["status"] != "ok" {
		t.Fatalf("unexpected health payload %v", health)
	}
}
