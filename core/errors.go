package core

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is a sentinel error for "not found" cases
var ErrNotFound = errors.New("not found")

var notFoundPattern = regexp.MustCompile(`(?i)not found`)

// ErrorKind classifies engine failures for the command layer
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindNotFound    ErrorKind = "not_found"
	KindTransport   ErrorKind = "transport"
	KindPersistence ErrorKind = "persistence"
	KindValidation  ErrorKind = "validation"
	KindInternal    ErrorKind = "internal"
)

// NotFoundError is returned when an event, guild, user or platform message is absent
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransportError wraps a failed call to the messaging platform (network, permission, rate limit)
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed repository read or write
type PersistenceError struct {
	Op      string
	EventID string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s event %s: %v", e.Op, e.EventID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed command input. It never mutates cache state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func NewPersistenceError(op, eventID string, err error) error {
	return &PersistenceError{Op: op, EventID: eventID, Err: err}
}

func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsNotFoundError checks if an error is a "not found" error
// This handles both the ErrNotFound sentinel and string-based errors from storage drivers
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	return notFoundPattern.MatchString(err.Error())
}

func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsPersistenceError(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// KindOf classifies err. Typed errors win over the string-based not-found fallback.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case IsValidationError(err):
		return KindValidation
	case IsTransportError(err):
		return KindTransport
	case IsPersistenceError(err):
		return KindPersistence
	case IsNotFoundError(err):
		return KindNotFound
	default:
		return KindInternal
	}
}

// Outcome is the structured result handed to the command layer
type Outcome struct {
	Success bool
	Kind    ErrorKind
	Reason  string
}

func OutcomeSuccess(reason string) Outcome {
	return Outcome{Success: true, Reason: reason}
}

// OutcomeFromError converts an engine error into an Outcome; a nil error is a success
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return Outcome{Success: true}
	}
	return Outcome{Success: false, Kind: KindOf(err), Reason: err.Error()}
}
