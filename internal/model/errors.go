package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrConfig        = errors.New("configuration error")
	ErrKeyResolution = errors.New("meta key resolution failed")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUpstreamError = errors.New("upstream error")
	ErrRateLimited   = errors.New("rate limited")
)

// APIError represents a failed call against the remote catalog.
// StatusCode is zero when the request never produced a response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status,omitempty"`
	Err        error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Woo API error %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewStatusError maps a non-2xx response to an APIError.
// code and message come from the best-effort parse of the response body.
func NewStatusError(status int, code, message string) *APIError {
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	if code == "" {
		code = "HTTP_ERROR"
	}

	sentinel := ErrUpstreamError
	switch status {
	case 401, 403:
		sentinel = ErrUnauthorized
	case 404:
		sentinel = ErrNotFound
	case 429:
		sentinel = ErrRateLimited
	}

	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: status,
		Err:        sentinel,
	}
}

// NewUpstreamError wraps a transport-level failure (DNS, TLS, reset, decode).
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:    "UPSTREAM_ERROR",
		Message: fmt.Sprintf("%s request failed", service),
		Err:     fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// ConfigError reports missing or conflicting configuration.
// Always raised before any network activity.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// KeyResolutionError is returned when a meta key could not be detected
// anywhere in the catalog.
type KeyResolutionError struct {
	What string // "cost" or "wholesale"
	Flag string // override flag to suggest to the operator
	Hint string // optional example values
}

func (e *KeyResolutionError) Error() string {
	msg := fmt.Sprintf("could not detect %s meta key. Pass %s=<key>", e.What, e.Flag)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg + "."
}

func (e *KeyResolutionError) Unwrap() error {
	return ErrKeyResolution
}
