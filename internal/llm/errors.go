package llm

import (
	"errors"
	"fmt"
)

// UpstreamGenerationError reports that the completion model produced no usable
// structured output: the call failed, returned nothing, or returned content that
// does not parse into the requested shape.
type UpstreamGenerationError struct {
	Op     string // logical operation, e.g. "templates"
	Status int    // upstream HTTP status when known
	Msg    string
	Err    error
}

func (e *UpstreamGenerationError) Error() string {
	s := "upstream generation failed"
	if e.Op != "" {
		s += " (" + e.Op + ")"
	}
	if e.Status != 0 {
		s += fmt.Sprintf(": http %d", e.Status)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *UpstreamGenerationError) Unwrap() error { return e.Err }

// ErrUpstreamGeneration builds an UpstreamGenerationError without a cause.
func ErrUpstreamGeneration(op, msg string) error {
	return &UpstreamGenerationError{Op: op, Msg: msg}
}

// IsUpstreamGeneration reports whether err (or anything it wraps) is an
// UpstreamGenerationError.
func IsUpstreamGeneration(err error) bool {
	var ue *UpstreamGenerationError
	return errors.As(err, &ue)
}

// ErrMissingAPIKey is returned by New when no key is configured or found in the environment.
var ErrMissingAPIKey = errors.New("missing api key")
