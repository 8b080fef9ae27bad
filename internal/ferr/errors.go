// Package ferr defines the error taxonomy shared across forge's components:
// config_error, input_error, llm_transient, llm_permanent, parse_error,
// merge_error, io_error, and routing_error, each a sentinel wrapped by a
// typed Error carrying the component/operation that raised it.
package ferr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one of the taxonomy's error classes.
type Kind string

const (
	KindConfig  Kind = "config_error"
	KindInput   Kind = "input_error"
	KindTransient Kind = "llm_transient"
	KindPermanent Kind = "llm_permanent"
	KindParse   Kind = "parse_error"
	KindMerge   Kind = "merge_error"
	KindIO      Kind = "io_error"
	KindRouting Kind = "routing_error"
)

// Sentinel errors for errors.Is comparisons against a Kind.
var (
	ErrConfig    = errors.New(string(KindConfig))
	ErrInput     = errors.New(string(KindInput))
	ErrTransient = errors.New(string(KindTransient))
	ErrPermanent = errors.New(string(KindPermanent))
	ErrParse     = errors.New(string(KindParse))
	ErrMerge     = errors.New(string(KindMerge))
	ErrIO        = errors.New(string(KindIO))
	ErrRouting   = errors.New(string(KindRouting))
)

func sentinelFor(k Kind) error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindInput:
		return ErrInput
	case KindTransient:
		return ErrTransient
	case KindPermanent:
		return ErrPermanent
	case KindParse:
		return ErrParse
	case KindMerge:
		return ErrMerge
	case KindIO:
		return ErrIO
	case KindRouting:
		return ErrRouting
	default:
		return errors.New(string(k))
	}
}

// Error is the taxonomy's concrete error type: a component, the operation
// that was attempted, a human message, an optional wrapped cause, and the
// moment it was raised.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Err       error
	Timestamp time.Time
}

func New(kind Kind, component, operation, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       cause,
		Timestamp: time.Now(),
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s.%s: %s: %v", e.Kind, e.Component, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s.%s: %s", e.Kind, e.Component, e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelFor(e.Kind)
}

// Is lets errors.Is(err, ferr.ErrConfig) match regardless of cause, since
// Unwrap only exposes one of Err or the sentinel.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// Summary renders the single-sentence human summary the HTTP boundary
// exposes in WorkflowResponse.error — never the wrapped cause, which may
// carry provider details that should stay out of client-visible text.
func (e *Error) Summary() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}
