package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/ados/agent/pkg/validator"
)

// Kind classifies why a run failed.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindUnreachable       Kind = "unreachable"
	KindMalformedResponse Kind = "malformed_response"
	KindValidationBlocked Kind = "validation_blocked"
	KindExecution         Kind = "execution"
)

// NotFoundError reports that none of the requested datasets exist.
type NotFoundError struct {
	Requested []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("none of the requested datasets exist in the catalog: %s", strings.Join(e.Requested, ", "))
}

// UnreachableError reports two required datasets with no join path between them.
type UnreachableError struct {
	From, To string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("no join path between %q and %q", e.From, e.To)
}

// MalformedResponseError reports a reasoning call that produced no usable record,
// either because the output did not decode or because the call itself failed.
type MalformedResponseError struct {
	Stage Stage
	Err   error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ValidationBlockedError carries the blocking findings that stopped a plan.
type ValidationBlockedError struct {
	Findings []validator.Finding
}

func (e *ValidationBlockedError) Error() string {
	parts := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Rule, f.Message))
	}
	return fmt.Sprintf("plan blocked by %d finding(s): %s", len(e.Findings), strings.Join(parts, "; "))
}

// ExecutionError wraps a failure reported by the execution engine.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when it is not a pipeline error.
func KindOf(err error) Kind {
	var (
		notFound    *NotFoundError
		unreachable *UnreachableError
		malformed   *MalformedResponseError
		blocked     *ValidationBlockedError
		execution   *ExecutionError
	)
	switch {
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &unreachable):
		return KindUnreachable
	case errors.As(err, &malformed):
		return KindMalformedResponse
	case errors.As(err, &blocked):
		return KindValidationBlocked
	case errors.As(err, &execution):
		return KindExecution
	}
	return ""
}
