// Package perrors defines the closed error taxonomy used across the penguin
// core, grounded on the struct-error-with-Unwrap style of hector's
// pkg/rag/errors.go. Each kind carries its own fields relevant to recovery
// policy (see pkg/engine for how RateLimitError/NetworkError trigger retry).
package perrors

import (
	"fmt"
	"time"
)

// Kind identifies one of the closed error categories from the spec's error
// taxonomy. It is used by the engine and dispatcher to decide recovery
// policy without type-switching on concrete types.
type Kind string

const (
	KindConfig                Kind = "config_error"
	KindAuth                  Kind = "auth_error"
	KindRateLimit              Kind = "rate_limit"
	KindNetwork               Kind = "network_error"
	KindProvider               Kind = "provider_error"
	KindContextLengthExceeded Kind = "context_length_exceeded"
	KindInvalidRequest        Kind = "invalid_request"
	KindTool                  Kind = "tool_error"
	KindToolRefused           Kind = "tool_refused"
	KindInterrupted           Kind = "interrupted"
	KindPersistence           Kind = "persistence_error"
)

// Classified is implemented by every error type in this package so callers
// can recover the Kind without a type switch.
type Classified interface {
	error
	Kind() Kind
}

// baseError carries the fields common to every taxonomy member.
type baseError struct {
	kind      Kind
	Component string
	Message   string
	Err       error
	Timestamp time.Time
}

func newBase(kind Kind, component, message string, err error) baseError {
	return baseError{
		kind:      kind,
		Component: component,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

func (e *baseError) Kind() Kind { return e.kind }

func (e *baseError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.kind, e.Component, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *baseError) Unwrap() error { return e.Err }

// ConfigError signals bad or missing configuration. Fatal at boot.
type ConfigError struct{ baseError }

func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{newBase(KindConfig, component, message, err)}
}

// AuthError signals a provider authentication failure. Fatal for the turn;
// the engine never retries it.
type AuthError struct{ baseError }

func NewAuthError(component, message string, err error) *AuthError {
	return &AuthError{newBase(KindAuth, component, message, err)}
}

// RateLimitError signals the provider throttled the request. The engine
// retries with exponential backoff up to 3 times.
type RateLimitError struct {
	baseError
	RetryAfter time.Duration
}

func NewRateLimitError(component, message string, retryAfter time.Duration, err error) *RateLimitError {
	return &RateLimitError{newBase(KindRateLimit, component, message, err), retryAfter}
}

// NetworkError signals a transport-level failure talking to the provider.
// Retried with backoff like RateLimitError.
type NetworkError struct{ baseError }

func NewNetworkError(component, message string, err error) *NetworkError {
	return &NetworkError{newBase(KindNetwork, component, message, err)}
}

// ProviderError signals a provider 5xx or other opaque provider failure.
// Retried once, then surfaced.
type ProviderError struct {
	baseError
	StatusCode int
}

func NewProviderError(component, message string, statusCode int, err error) *ProviderError {
	return &ProviderError{newBase(KindProvider, component, message, err), statusCode}
}

// ContextLengthExceededError signals the conversation no longer fits the
// model's context window even after trimming. The engine surfaces it with
// guidance rather than retrying blindly.
type ContextLengthExceededError struct {
	baseError
	CurrentTokens int
	MaxTokens     int
}

func NewContextLengthExceededError(component string, current, max int, err error) *ContextLengthExceededError {
	return &ContextLengthExceededError{
		newBase(KindContextLengthExceeded, component, "context length exceeded", err),
		current, max,
	}
}

// InvalidRequestError signals a provider validator rejection. Never retried;
// per spec.md §7 the most common cause is a tool-call sanitization bug, so
// callers are expected to log a full repro alongside this error.
type InvalidRequestError struct{ baseError }

func NewInvalidRequestError(component, message string, err error) *InvalidRequestError {
	return &InvalidRequestError{newBase(KindInvalidRequest, component, message, err)}
}

// ToolError wraps a tool handler failure. It never bubbles as a Go panic;
// the dispatcher captures it into a structured TOOL_RESULT.
type ToolError struct {
	baseError
	Action  string
	Timeout bool
}

func NewToolError(action, message string, timeout bool, err error) *ToolError {
	return &ToolError{newBase(KindTool, "dispatcher", message, err), action, timeout}
}

// ToolRefusedError signals the dispatcher refused to run a tool due to
// policy (path scope, write-root, unknown action).
type ToolRefusedError struct {
	baseError
	Action string
}

func NewToolRefusedError(action, message string) *ToolRefusedError {
	return &ToolRefusedError{newBase(KindToolRefused, "dispatcher", message, nil), action}
}

// InterruptedError signals an external cancellation. State is guaranteed
// consistent when this is returned (see pkg/engine P9).
type InterruptedError struct{ baseError }

func NewInterruptedError(component, message string) *InterruptedError {
	return &InterruptedError{newBase(KindInterrupted, component, message, nil)}
}

// PersistenceError signals a session or checkpoint store failure. It is
// returned to the caller as is; no write to a fallback location is attempted.
type PersistenceError struct{ baseError }

func NewPersistenceError(component, message string, err error) *PersistenceError {
	return &PersistenceError{newBase(KindPersistence, component, message, err)}
}

// IsRetryable reports whether the engine's retry policy applies to err.
func IsRetryable(err error) bool {
	var c Classified
	if !asClassified(err, &c) {
		return false
	}
	switch c.Kind() {
	case KindRateLimit, KindNetwork:
		return true
	default:
		return false
	}
}

func asClassified(err error, out *Classified) bool {
	c, ok := err.(Classified)
	if ok {
		*out = c
	}
	return ok
}
