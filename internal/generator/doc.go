// Package generator wraps the remote generation endpoint muse depends on.
//
// The orchestration layers treat the endpoint as an opaque, fallible,
// possibly-slow remote collaborator: prompts go in, a JSON payload comes
// back, and nothing above this package inspects the payload's schema.
// Transient failures (timeouts, rate limits, empty completions) are retried
// here with exponential backoff; the session layer performs no retries of
// its own.
package generator
