// Package source holds the candidate source adapters used by the resolver.
package source

import (
	"errors"
	"fmt"
)

// Error codes for source failures.
const (
	ErrCodeNetwork = "NETWORK_ERROR"
	ErrCodeStatus  = "STATUS_ERROR"
	ErrCodeParse   = "PARSE_ERROR"
)

// ErrSourceUnavailable matches every SourceError. The resolver treats it as
// "no candidates from this tier".
var ErrSourceUnavailable = errors.New("source unavailable")

// SourceError is a categorized adapter failure.
type SourceError struct {
	Code    string
	Source  string
	Message string
	Cause   error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Source, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Is matches ErrSourceUnavailable and any SourceError with the same code.
func (e *SourceError) Is(target error) bool {
	if target == ErrSourceUnavailable {
		return true
	}
	var t *SourceError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func networkError(source string, err error) error {
	return &SourceError{Code: ErrCodeNetwork, Source: source, Message: "request failed", Cause: err}
}

func statusError(source string, status int) error {
	return &SourceError{Code: ErrCodeStatus, Source: source, Message: fmt.Sprintf("unexpected status code: %d", status)}
}

func parseError(source, msg string, err error) error {
	return &SourceError{Code: ErrCodeParse, Source: source, Message: msg, Cause: err}
}
