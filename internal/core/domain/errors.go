package domain

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Pipeline failure taxonomy. Every failure inside the pipeline is one of
// these categories; components log and continue rather than propagate.
var (
	ErrValidation  = errors.New("validation error")
	ErrEvaluation  = errors.New("evaluation error")
	ErrPersistence = errors.New("persistence error")
	ErrAction      = errors.New("action error")
	ErrLifecycle   = errors.New("lifecycle error")
)

// ErrorRecord captures a non-fatal component failure for the error log.
type ErrorRecord struct {
	Component    string    `json:"component"`
	ErrorType    string    `json:"error_type"`
	Severity     Severity  `json:"severity"`
	Description  string    `json:"description"`
	StackContext string    `json:"stack_context,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewErrorRecord tags a failure with its taxonomy category so the error
// log stays queryable by type.
func NewErrorRecord(component string, category error, severity Severity, err error) ErrorRecord {
	desc := ""
	if err != nil {
		desc = err.Error()
	}
	if !isValidSeverity(severity) {
		severity = SeverityLow
	}
	return ErrorRecord{
		Component:    component,
		ErrorType:    category.Error(),
		Severity:     severity,
		Description:  desc,
		StackContext: callerStack(),
		Timestamp:    time.Now().UTC(),
	}
}

// callerStack snapshots the stack at the failure site for the error
// log, without the capture frames themselves and capped so a deep call
// chain cannot bloat a row.
func callerStack() string {
	const maxStack = 4096

	lines := strings.Split(string(debug.Stack()), "\n")
	// Line 0 is the goroutine header; the next three two-line frames
	// are debug.Stack, callerStack and NewErrorRecord.
	if len(lines) > 7 {
		lines = append(lines[:1], lines[7:]...)
	}
	s := strings.Join(lines, "\n")
	if len(s) > maxStack {
		s = s[:maxStack]
	}
	return s
}

// WrapEvaluation marks a rule failure so callers can classify it with
// errors.Is while keeping the original cause.
func WrapEvaluation(rule string, err error) error {
	return fmt.Errorf("%w: rule %s: %v", ErrEvaluation, rule, err)
}

// WrapAction marks a protection action failure.
func WrapAction(action string, err error) error {
	return fmt.Errorf("%w: action %s: %v", ErrAction, action, err)
}
