// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"errors"
	"fmt"

	"github.com/microsoft/apim-chat/go/azureauth"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrValidation indicates invalid configuration or per-call options,
	// detected before any network traffic.
	ErrValidation = errors.New("validation error")

	// ErrConnection indicates a network-level failure reaching the identity
	// provider or the gateway.
	ErrConnection = errors.New("connection error")

	// ErrStatus is the base error for non-2xx gateway responses.
	ErrStatus = errors.New("gateway status error")

	// ErrStreamIncomplete indicates the response stream dropped before the
	// terminal sentinel arrived.
	ErrStreamIncomplete = errors.New("stream incomplete")

	// ErrTimeout indicates a deadline or stall expired at one of the
	// suspension points: the token call, the request, or a body read.
	ErrTimeout = errors.New("timeout")

	// ErrAuthentication mirrors [azureauth.ErrAuthentication] so callers can
	// check query errors without importing the auth package.
	ErrAuthentication = azureauth.ErrAuthentication
)

// AuthenticationError is the identity-provider rejection raised by the token
// manager, re-exported for convenience.
type AuthenticationError = azureauth.AuthenticationError

// ValidationError reports a field that failed construction-time checks.
// Use errors.As to extract it from a wrapped error chain.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StatusError provides rich context for non-2xx gateway responses.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// StreamIncompleteError reports a stream that terminated abruptly, after
// every message decoded before the drop was delivered. Messages counts the
// deliveries.
type StreamIncompleteError struct {
	Messages int
	Err      error
}

func (e *StreamIncompleteError) Error() string {
	return fmt.Sprintf("stream incomplete after %d messages: %v", e.Messages, e.Err)
}

func (e *StreamIncompleteError) Unwrap() []error { return []error{ErrStreamIncomplete, e.Err} }
