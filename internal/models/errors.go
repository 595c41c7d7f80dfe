package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the normalized failure taxonomy of the pipeline.
type ErrorKind string

const (
	// ErrorNone marks the absence of an error on a series entry.
	ErrorNone ErrorKind = ""

	// ErrorInvalidInput indicates a malformed company name or reference period
	ErrorInvalidInput ErrorKind = "invalid_input"

	// ErrorNotFound indicates no directory entry matched the company name
	ErrorNotFound ErrorKind = "not_found"

	// ErrorAmbiguous indicates several equally strong directory matches
	ErrorAmbiguous ErrorKind = "ambiguous"

	// ErrorUpstreamUnavailable indicates a network or service failure upstream
	ErrorUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// ErrorRateLimited indicates the upstream API asked us to back off
	ErrorRateLimited ErrorKind = "rate_limited"

	// ErrorNoDisclosure indicates the entity filed nothing for the fiscal year
	ErrorNoDisclosure ErrorKind = "no_disclosure"

	// ErrorIncompleteData indicates a cumulative baseline needed for subtraction is missing
	ErrorIncompleteData ErrorKind = "incomplete_data"

	// ErrorCache indicates the local store failed to read or write
	ErrorCache ErrorKind = "cache_error"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorKind = "internal"
)

// PipelineError wraps failures with a normalized kind.
type PipelineError struct {
	Kind       ErrorKind
	Op         string
	Message    string
	Err        error
	Retryable  bool
	Candidates []string // populated for ErrorAmbiguous
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (candidates: %s)", strings.Join(e.Candidates, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap supports error unwrapping
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError creates a pipeline error. Upstream outages and rate limiting are retryable by default.
func NewError(kind ErrorKind, op, message string, err error) *PipelineError {
	return &PipelineError{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Err:       err,
		Retryable: kind == ErrorUpstreamUnavailable || kind == ErrorRateLimited,
	}
}

// NewAmbiguousError reports several equally good directory matches.
func NewAmbiguousError(op, name string, candidates []string) *PipelineError {
	e := NewError(ErrorAmbiguous, op, fmt.Sprintf("company name %q matches several entities", name), nil)
	e.Candidates = candidates
	return e
}

// NonRetryable clears the retry flag, e.g. for an upstream rejection of our credentials.
func (e *PipelineError) NonRetryable() *PipelineError {
	e.Retryable = false
	return e
}

// KindOf extracts the error kind, defaulting to ErrorInternal for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
