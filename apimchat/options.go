// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/go-playground/validator/v10"
)

// Config carries the connection settings for a [Client]. Endpoint and
// SubscriptionKey are always required; the three Azure AD fields are required
// unless an external credential is supplied with [WithTokenCredential].
type Config struct {
	TenantID        string
	ClientID        string
	ClientSecret    string
	Scope           string
	Endpoint        string `validate:"required,url"`
	SubscriptionKey string `validate:"required"`
}

// QueryOptions adjusts a single query. A nil value uses the client defaults.
// The options are read once when the query starts; later mutation has no
// effect on an in-flight stream.
type QueryOptions struct {
	// Model overrides the client's default deployment name.
	Model string

	// MaxTokens caps the completion length. Zero selects the default of 4096.
	MaxTokens int `validate:"gte=0"`

	// Temperature, when non-nil, must lie within [0, 2]. Nil omits the field
	// from the request entirely.
	Temperature *float64 `validate:"omitempty,gte=0,lte=2"`

	// Tools is an ordered list of opaque tool schemas passed through to the
	// gateway unchanged.
	Tools []json.RawMessage

	// CWD advises tool-executing callers of the workspace path. It is never
	// transmitted.
	CWD string
}

// clientConfig holds resolved configuration for a [Client].
type clientConfig struct {
	model          string
	httpClient     *http.Client
	requestTimeout time.Duration
	stallTimeout   time.Duration
	authorityHost  string
	credential     azcore.TokenCredential
}

// Option configures a [Client].
type Option func(*clientConfig)

// WithModel sets the default deployment name for queries.
func WithModel(model string) Option {
	return func(c *clientConfig) { c.model = model }
}

// WithHTTPClient provides a custom http.Client for both the token endpoint
// and the gateway. Leave Timeout at zero; streams outlive any fixed client
// timeout and the per-phase deadlines are managed separately.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithRequestTimeout bounds token acquisition plus time-to-response-headers
// for each query. The default is 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.requestTimeout = d }
}

// WithStallTimeout bounds the gap between body reads once a stream is live.
// The default is 2 minutes.
func WithStallTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.stallTimeout = d }
}

// WithAuthorityHost points token acquisition at a sovereign-cloud login
// endpoint instead of the public https://login.microsoftonline.com/.
func WithAuthorityHost(host string) Option {
	return func(c *clientConfig) { c.authorityHost = host }
}

// WithTokenCredential substitutes any [azcore.TokenCredential] for the
// built-in client-credentials manager, e.g. an azidentity credential chain.
// The Azure AD fields of [Config] become optional when set.
func WithTokenCredential(cred azcore.TokenCredential) Option {
	return func(c *clientConfig) { c.credential = cred }
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the validator tags of v and converts the first failure
// into a *ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:  fe.Field(),
			Value:  fe.Value(),
			Reason: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return &ValidationError{Reason: err.Error()}
}
