package stages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"muse/internal/coalesce"
	"muse/internal/generator"
	"muse/internal/pipeline"
	"muse/internal/services"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	result  json.RawMessage
	err     error
	lastGen generator.PromptSpec
}

func (f *fakeGenerator) Generate(ctx context.Context, spec generator.PromptSpec) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastGen = spec
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok
}

func (m *memoryCache) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func TestAnalyzerRecordsResult(t *testing.T) {
	gen := &fakeGenerator{result: json.RawMessage(`{"mood":"wistful"}`)}
	analyzer := NewAnalyzer(gen, coalesce.New(newMemoryCache(), nil), nil)

	draft := pipeline.NewDraft("sea otters")
	if err := analyzer.Execute(context.Background(), draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, ok := draft.Result(AnalyzeStage)
	if !ok || string(result) != `{"mood":"wistful"}` {
		t.Fatalf("unexpected analyze result %q (ok=%v)", result, ok)
	}
}

func TestAnalyzerRepeatSubjectUsesCache(t *testing.T) {
	gen := &fakeGenerator{result: json.RawMessage(`{"mood":"calm"}`)}
	analyzer := NewAnalyzer(gen, coalesce.New(newMemoryCache(), nil), nil)

	for i := 0; i < 3; i++ {
		draft := pipeline.NewDraft("moss gardens")
		if err := analyzer.Execute(context.Background(), draft); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if result, _ := draft.Result(AnalyzeStage); string(result) != `{"mood":"calm"}` {
			t.Fatalf("run %d: unexpected result %q", i, result)
		}
	}
	if got := gen.callCount(); got != 1 {
		t.Fatalf("expected single generator call across repeats, got %d", got)
	}
}

func TestAnalyzerClassifiesFailureTransient(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection reset")}
	analyzer := NewAnalyzer(gen, nil, nil)

	err := analyzer.Execute(context.Background(), pipeline.NewDraft("ferns"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestAnalyzerPreservesExistingClassification(t *testing.T) {
	cfgErr := services.Wrap(services.ErrConfiguration, "generator", "ready", "API key missing", nil)
	gen := &fakeGenerator{err: cfgErr}
	analyzer := NewAnalyzer(gen, nil, nil)

	err := analyzer.Execute(context.Background(), pipeline.NewDraft("ferns"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error preserved, got %v", err)
	}
	if errors.Is(err, services.ErrTransient) {
		t.Fatalf("configuration error must not be reclassified transient: %v", err)
	}
}

func TestIllustratorRequiresAnalysis(t *testing.T) {
	illustrator := NewIllustrator(&fakeGenerator{}, nil)

	err := illustrator.Execute(context.Background(), pipeline.NewDraft("ferns"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIllustratorIncludesAnalysisInPrompt(t *testing.T) {
	gen := &fakeGenerator{result: json.RawMessage(`{"title":"Otter Cove"}`)}
	illustrator := NewIllustrator(gen, nil)

	draft := pipeline.NewDraft("sea otters")
	draft.SetResult(AnalyzeStage, json.RawMessage(`{"mood":"wistful"}`))
	if err := illustrator.Execute(context.Background(), draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, _ := draft.Result(IllustrateStage)
	if string(result) != `{"title":"Otter Cove"}` {
		t.Fatalf("unexpected illustrate result %q", result)
	}
	if want := `{"mood":"wistful"}`; !strings.Contains(gen.lastGen.User, want) {
		t.Fatalf("expected analysis in prompt, got %q", gen.lastGen.User)
	}
}

type fakeSaver struct {
	id      int64
	created bool
	err     error
	lastKey string
}

func (f *fakeSaver) SaveIfAbsent(ctx context.Context, naturalKey string, payload json.RawMessage) (int64, bool, error) {
	f.lastKey = naturalKey
	if f.err != nil {
		return 0, false, f.err
	}
	return f.id, f.created, nil
}

func TestPersisterWritesSaveResult(t *testing.T) {
	saver := &fakeSaver{id: 7, created: true}
	persister := NewPersister(saver, nil)

	draft := pipeline.NewDraft("sea otters")
	draft.SetResult(AnalyzeStage, json.RawMessage(`{"mood":"wistful"}`))
	draft.SetResult(IllustrateStage, json.RawMessage(`{"title":"Otter Cove"}`))
	if err := persister.Execute(context.Background(), draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saver.lastKey != "sea otters" {
		t.Fatalf("unexpected natural key %q", saver.lastKey)
	}

	raw, ok := draft.Result(PersistStage)
	if !ok {
		t.Fatal("expected persist result on draft")
	}
	var result struct {
		ID      int64 `json:"id"`
		Created bool  `json:"created"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode persist result: %v", err)
	}
	if result.ID != 7 || !result.Created {
		t.Fatalf("unexpected persist result %+v", result)
	}
}

func TestPersisterIsNonFatal(t *testing.T) {
	persister := NewPersister(&fakeSaver{}, nil)
	var marker pipeline.NonFatal = persister
	if !marker.NonFatal() {
		t.Fatal("persist stage must be non-fatal")
	}
}

func TestPersisterClassifiesSaveFailure(t *testing.T) {
	saver := &fakeSaver{err: errors.New("database is locked")}
	persister := NewPersister(saver, nil)

	draft := pipeline.NewDraft("sea otters")
	draft.SetResult(IllustrateStage, json.RawMessage(`{"title":"Otter Cove"}`))
	err := persister.Execute(context.Background(), draft)
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestPersisterRequiresContent(t *testing.T) {
	persister := NewPersister(&fakeSaver{}, nil)
	err := persister.Execute(context.Background(), pipeline.NewDraft("sea otters"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
