package domain

import (
	"errors"
	"fmt"
)

// ErrDependencyTimeout indicates the history store or configuration model did
// not respond within the evaluation bound. Nothing was persisted.
var ErrDependencyTimeout = errors.New("dependency timeout")

// ValidationError reports a malformed or incomplete request. Raised before
// any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

// ConfigError reports an invalid configuration document. A failed reload
// leaves the previous snapshot active.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

// PersistenceError reports a history store failure. When returned after
// scoring, the evaluation result may not be durably recorded; retrying the
// whole evaluation is safe because appends are idempotent on transaction id.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
