package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"muse/internal/services"
)

type stubStage struct {
	name     string
	nonFatal bool
	execute  func(ctx context.Context, draft *Draft) error
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, draft *Draft) error {
	if s.execute == nil {
		draft.SetResult(s.name, json.RawMessage(`{}`))
		return nil
	}
	return s.execute(ctx, draft)
}

func (s *stubStage) NonFatal() bool { return s.nonFatal }

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var collected []Event
	for ev := range events {
		collected = append(collected, ev)
	}
	return collected
}

func eventKinds(events []Event) []EventKind {
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func requireKinds(t *testing.T, events []Event, want ...EventKind) {
	t.Helper()
	got := eventKinds(events)
	if len(got) != len(want) {
		t.Fatalf("expected %d events %v, got %d: %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestRunHappyPath(t *testing.T) {
	stages := []Handler{
		&stubStage{name: "analyze"},
		&stubStage{name: "illustrate"},
	}
	executor := New(nil, stages)

	events := collectEvents(t, executor.Run(context.Background(), "otters"))
	requireKinds(t, events,
		StageStarted, StageCompleted,
		StageStarted, StageCompleted,
		PipelineCompleted)

	final := events[len(events)-1]
	if final.Err != nil {
		t.Fatalf("unexpected terminal error: %v", final.Err)
	}
	if _, ok := final.Draft.Result("analyze"); !ok {
		t.Fatal("expected analyze result on final draft")
	}
	if _, ok := final.Draft.Result("illustrate"); !ok {
		t.Fatal("expected illustrate result on final draft")
	}
}

func TestRunFatalFailureKeepsEarlierResults(t *testing.T) {
	boom := services.Wrap(services.ErrTransient, "illustrate", "generate", "upstream unavailable", nil)
	stages := []Handler{
		&stubStage{name: "analyze"},
		&stubStage{name: "illustrate", execute: func(ctx context.Context, draft *Draft) error {
			return boom
		}},
		&stubStage{name: "persist"},
	}
	executor := New(nil, stages)

	events := collectEvents(t, executor.Run(context.Background(), "otters"))
	requireKinds(t, events,
		StageStarted, StageCompleted,
		StageStarted, StageFailed,
		PipelineFailed)

	final := events[len(events)-1]
	if !errors.Is(final.Err, services.ErrTransient) {
		t.Fatalf("expected transient terminal error, got %v", final.Err)
	}
	if _, ok := final.Draft.Result("analyze"); !ok {
		t.Fatal("expected earlier result preserved on failure")
	}
	if _, ok := final.Draft.Result("persist"); ok {
		t.Fatal("persist must not run after a fatal failure")
	}
}

func TestRunNonFatalFailureContinues(t *testing.T) {
	saveErr := services.Wrap(services.ErrPersistence, "persist", "save", "disk unavailable", nil)
	executed := false
	stages := []Handler{
		&stubStage{name: "analyze"},
		&stubStage{name: "persist", nonFatal: true, execute: func(ctx context.Context, draft *Draft) error {
			return saveErr
		}},
		&stubStage{name: "narrate", execute: func(ctx context.Context, draft *Draft) error {
			executed = true
			draft.SetResult("narrate", json.RawMessage(`{}`))
			return nil
		}},
	}
	executor := New(nil, stages)

	events := collectEvents(t, executor.Run(context.Background(), "otters"))
	requireKinds(t, events,
		StageStarted, StageCompleted,
		StageStarted, StageFailed,
		StageStarted, StageCompleted,
		PipelineCompleted)

	if !executed {
		t.Fatal("expected stage after non-fatal failure to run")
	}
	var failed Event
	for _, ev := range events {
		if ev.Kind == StageFailed {
			failed = ev
		}
	}
	if !errors.Is(failed.Err, services.ErrPersistence) {
		t.Fatalf("expected persistence error on StageFailed, got %v", failed.Err)
	}
}

func TestRunPreflightFailureSkipsStages(t *testing.T) {
	cfgErr := services.Wrap(services.ErrConfiguration, "pipeline", "preflight", "generator API key missing", nil)
	started := false
	stages := []Handler{
		&stubStage{name: "analyze", execute: func(ctx context.Context, draft *Draft) error {
			started = true
			return nil
		}},
	}
	executor := New(nil, stages, WithPreflight(func(ctx context.Context) error {
		return cfgErr
	}))

	events := collectEvents(t, executor.Run(context.Background(), "otters"))
	requireKinds(t, events, PipelineFailed)
	if !errors.Is(events[0].Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", events[0].Err)
	}
	if started {
		t.Fatal("no stage may start after a preflight failure")
	}
}

func TestRunContextCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stages := []Handler{
		&stubStage{name: "analyze", execute: func(ctx context.Context, draft *Draft) error {
			cancel()
			draft.SetResult("analyze", json.RawMessage(`{}`))
			return nil
		}},
		&stubStage{name: "illustrate"},
	}
	executor := New(nil, stages)

	events := collectEvents(t, executor.Run(ctx, "otters"))
	requireKinds(t, events, StageStarted, StageCompleted, PipelineFailed)
	if !errors.Is(events[len(events)-1].Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", events[len(events)-1].Err)
	}
}

func TestRunRecoversPanickingStage(t *testing.T) {
	stages := []Handler{
		&stubStage{name: "analyze", execute: func(ctx context.Context, draft *Draft) error {
			panic("malformed response")
		}},
	}
	executor := New(nil, stages)

	events := collectEvents(t, executor.Run(context.Background(), "otters"))
	requireKinds(t, events, StageStarted, StageFailed, PipelineFailed)
	if !errors.Is(events[len(events)-1].Err, services.ErrTransient) {
		t.Fatalf("expected transient error from recovered panic, got %v", events[len(events)-1].Err)
	}
}

func TestEventDraftIsSnapshot(t *testing.T) {
	stages := []Handler{
		&stubStage{name: "analyze", execute: func(ctx context.Context, draft *Draft) error {
			draft.SetResult("analyze", json.RawMessage(`{"v":1}`))
			return nil
		}},
		&stubStage{name: "illustrate", execute: func(ctx context.Context, draft *Draft) error {
			draft.SetResult("analyze", json.RawMessage(`{"v":2}`))
			return nil
		}},
	}
	executor := New(nil, stages)

	events := collectEvents(t, executor.Run(context.Background(), "otters"))
	var afterAnalyze Event
	for _, ev := range events {
		if ev.Kind == StageCompleted && ev.Stage == "analyze" {
			afterAnalyze = ev
		}
	}
	result, ok := afterAnalyze.Draft.Result("analyze")
	if !ok || string(result) != `{"v":1}` {
		t.Fatalf("expected snapshot to keep value from analyze stage, got %q", result)
	}
}
