package pipeline

import "context"

// Handler is the contract each generation stage implements.
type Handler interface {
	// Name identifies the stage in events, logs, and draft results.
	Name() string
	// Execute runs the stage against the draft, recording its output with
	// Draft.SetResult on success.
	Execute(ctx context.Context, draft *Draft) error
}

// NonFatal marks a stage whose failure should not stop the pipeline. The
// failure is still reported as a StageFailed event.
type NonFatal interface {
	NonFatal() bool
}

func stageIsNonFatal(handler Handler) bool {
	marker, ok := handler.(NonFatal)
	return ok && marker.NonFatal()
}
