package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a missing collection, node or session. Callers map
// it to a client error; it is never retried.
var ErrNotFound = errors.New("not found")

// ErrNotReady marks an upstream model that has not finished loading.
// Callers map it to a retryable service-unavailable condition.
var ErrNotReady = errors.New("service not ready")

// StructuredOutputError is returned when the model never produced a
// schema-valid structured object, even after repair retries. LastOutput
// carries the final invalid text for diagnostics.
type StructuredOutputError struct {
	Attempts   int
	LastOutput string
	Err        error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("no valid structured output after %d attempts: %v", e.Attempts, e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// RefactorPartialError reports a bulk refactor where some nodes were
// recomputed and others were not. It is never collapsed into a success.
type RefactorPartialError struct {
	Collection string
	Failed     map[string]error
}

func (e *RefactorPartialError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	return fmt.Sprintf("refactor of %s failed for %d node(s): %s",
		e.Collection, len(e.Failed), strings.Join(ids, ", "))
}
