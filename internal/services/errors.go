package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks recoverable failures (network, rate limit, malformed
	// generator output). Retry is a user-initiated resubmit.
	ErrTransient = errors.New("transient failure")
	// ErrConfiguration marks missing or invalid credentials/settings. The
	// pipeline fails before the first stage and callers should prompt for
	// configuration rather than offer a retry.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks rejected input (blank subject, missing upstream
	// stage result).
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups that came back empty.
	ErrNotFound = errors.New("not found")
	// ErrPersistence marks library write failures. A persist failure does not
	// fail the pipeline; it is reported separately as "generated but not
	// saved".
	ErrPersistence = errors.New("persistence error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind classifies an error into the taxonomy name surfaced to callers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
