package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing caller input.
	ErrValidation = errors.New("calendar: validation failed")
	// ErrUnauthorized marks a missing or malformed bearer credential.
	ErrUnauthorized = errors.New("calendar: unauthorized")
	// ErrUpstreamAuth marks a provider rejecting an OAuth call.
	ErrUpstreamAuth = errors.New("calendar: upstream auth failed")
	// ErrUpstreamAPI marks a provider rejecting a calendar API call.
	ErrUpstreamAPI = errors.New("calendar: upstream api failed")
	// ErrNotConnected signals there is no stored credential for the user and provider.
	ErrNotConnected = errors.New("calendar: account not connected")
	// ErrConfiguration signals a required setting is missing.
	ErrConfiguration = errors.New("calendar: configuration missing")
	// ErrUnsupported signals the provider lacks the requested capability.
	ErrUnsupported = errors.New("calendar: operation not supported")
	// ErrUnknownProvider signals a provider name outside the supported set.
	ErrUnknownProvider = errors.New("calendar: unknown provider")
)

// ValidationError names the offending field. Message is caller facing.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Required is the standard missing-field error.
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: field + " is required"}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Field + " is invalid"
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports a setting missing for a provider.
type ConfigurationError struct {
	Provider Provider
	Setting  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s is not configured", e.Provider, e.Setting)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// UpstreamError carries a provider failure. Kind is ErrUpstreamAuth or ErrUpstreamAPI.
type UpstreamError struct {
	Provider Provider
	Op       string
	Status   int
	Code     string
	Message  string
	Kind     error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status=%d: %s", e.Provider, e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}

func (e *UpstreamError) Is(target error) bool {
	if e.Kind == nil {
		return target == ErrUpstreamAPI
	}
	return target == e.Kind
}

// Unsupported wraps ErrUnsupported with the provider and operation name.
func Unsupported(p Provider, op string) error {
	return fmt.Errorf("%s does not support %s: %w", p.DisplayName(), op, ErrUnsupported)
}
