package agenda

import (
	"errors"
	"fmt"
)

var (
	// ErrAgendaNotFound is returned when the agenda id does not exist.
	ErrAgendaNotFound = errors.New("agenda not found")

	// ErrAgendaInactive is returned when the agenda exists but was deactivated.
	ErrAgendaInactive = errors.New("agenda inactive")

	// ErrConfigurationConflict is the sentinel behind every rejected
	// configuration write; wrap details with ConflictError.
	ErrConfigurationConflict = errors.New("configuration conflict")
)

// ConflictError carries the field and detail of a rejected configuration
// write. It unwraps to ErrConfigurationConflict so callers can branch with
// errors.Is without inspecting message text.
type ConflictError struct {
	Field  string
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("agenda: configuration conflict: %s", e.Detail)
	}
	return fmt.Sprintf("agenda: configuration conflict on %s: %s", e.Field, e.Detail)
}

func (e *ConflictError) Unwrap() error {
	return ErrConfigurationConflict
}

func conflictf(field, format string, args ...any) error {
	return &ConflictError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
