// Copyright (c) Microsoft. All rights reserved.

package azureauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrAuthentication is the base error for token requests the identity
	// provider refused.
	ErrAuthentication = errors.New("authentication error")

	// ErrCredentials indicates incomplete credentials at construction.
	ErrCredentials = errors.New("credentials error")
)

// AuthenticationError reports a token request the identity provider rejected.
// ErrorCode and Description carry the RFC 6749 error fields when the response
// included them. The error text never contains the client secret or a token.
type AuthenticationError struct {
	StatusCode  int
	ErrorCode   string
	Description string
}

func (e *AuthenticationError) Error() string {
	msg := "token request failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s with status %d", msg, e.StatusCode)
	}
	if e.ErrorCode != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ErrorCode)
	}
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Description)
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// classifyTokenError separates identity-provider rejections from transport
// failures. Network errors return unchanged so callers can apply their own
// connection/timeout taxonomy; everything else means the endpoint answered
// but the exchange failed, which is an authentication problem.
func classifyTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		ae := &AuthenticationError{
			ErrorCode:   rerr.ErrorCode,
			Description: rerr.ErrorDescription,
		}
		if rerr.Response != nil {
			ae.StatusCode = rerr.Response.StatusCode
		}
		if ae.Description == "" {
			ae.Description = strings.TrimSpace(string(rerr.Body))
		}
		return ae
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return err
	}
	return &AuthenticationError{Description: err.Error()}
}
