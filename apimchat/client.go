// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"

	"github.com/microsoft/apim-chat/go/azureauth"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultStallTimeout   = 2 * time.Minute
)

// Watchdog causes, distinguishable from caller cancellation via
// context.Cause.
var (
	errRequestDeadline = errors.New("request deadline elapsed")
	errStallDeadline   = errors.New("stall deadline elapsed")
)

// Client issues streaming chat queries to an Azure OpenAI deployment behind
// an APIM gateway. Use [New] to create one. A single Client is safe for
// concurrent use and shares one token cache across all its queries.
type Client struct {
	tp             transport
	cred           azcore.TokenCredential
	scope          string
	model          string
	requestTimeout time.Duration
	stallTimeout   time.Duration
}

// New validates cfg and returns a Client. Unless [WithTokenCredential]
// overrides it, tokens come from an [azureauth.Manager] built from the
// Azure AD fields of cfg. No network traffic happens until the first query.
func New(cfg Config, opts ...Option) (*Client, error) {
	cc := &clientConfig{
		requestTimeout: defaultRequestTimeout,
		stallTimeout:   defaultStallTimeout,
	}
	for _, o := range opts {
		o(cc)
	}

	if err := validateStruct(&cfg); err != nil {
		return nil, err
	}

	scope := cfg.Scope
	if scope == "" {
		scope = azureauth.DefaultScope
	}

	cred := cc.credential
	if cred == nil {
		switch {
		case cfg.TenantID == "":
			return nil, &ValidationError{Field: "TenantID", Reason: "required when no token credential is supplied"}
		case cfg.ClientID == "":
			return nil, &ValidationError{Field: "ClientID", Reason: "required when no token credential is supplied"}
		case cfg.ClientSecret == "":
			return nil, &ValidationError{Field: "ClientSecret", Reason: "required when no token credential is supplied"}
		}
		var mgrOpts []azureauth.Option
		if cc.authorityHost != "" {
			mgrOpts = append(mgrOpts, azureauth.WithAuthorityHost(cc.authorityHost))
		}
		if cc.httpClient != nil {
			mgrOpts = append(mgrOpts, azureauth.WithHTTPClient(cc.httpClient))
		}
		mgr, err := azureauth.New(azureauth.Credentials{
			TenantID:     cfg.TenantID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scope:        scope,
		}, mgrOpts...)
		if err != nil {
			return nil, err
		}
		cred = mgr
	}

	model := cc.model
	if model == "" {
		model = defaultModel
	}

	return &Client{
		tp:             newHTTPTransport(cfg.Endpoint, cfg.SubscriptionKey, cc.httpClient),
		cred:           cred,
		scope:          scope,
		model:          model,
		requestTimeout: cc.requestTimeout,
		stallTimeout:   cc.stallTimeout,
	}, nil
}

// Query sends prompt as a single user message and returns the live stream of
// messages. Configuration and authentication failures surface here, before
// any message is emitted; the stream carries only decode-time events.
func (c *Client) Query(ctx context.Context, prompt string, opts *QueryOptions) (*MessageStream, error) {
	return c.query(ctx, []ChatMessage{NewUserMessage(prompt)}, opts)
}

// QueryMessages sends a caller-assembled conversation unchanged.
func (c *Client) QueryMessages(ctx context.Context, messages []ChatMessage, opts *QueryOptions) (*MessageStream, error) {
	return c.query(ctx, messages, opts)
}

// Query performs a one-shot streaming query with a throwaway client. Prefer
// [New] plus [Client.Query] when issuing several queries, so the token cache
// is shared between them.
func Query(ctx context.Context, prompt string, cfg Config, opts *QueryOptions) (*MessageStream, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, prompt, opts)
}

// query drives one request through its phases: build, token, send (with a
// single transparent refresh-and-retry on a 401), then hand the body to the
// decoder inside the stream's producer goroutine.
func (c *Client) query(ctx context.Context, messages []ChatMessage, opts *QueryOptions) (*MessageStream, error) {
	req, err := buildRequest(messages, opts, c.model)
	if err != nil {
		return nil, err
	}
	names := declaredToolNames(req.Tools)
	start := time.Now()

	reqCtx, cancel := context.WithCancelCause(ctx)
	streaming := false
	defer func() {
		if !streaming {
			cancel(nil)
		}
	}()

	timer := time.AfterFunc(c.requestTimeout, func() { cancel(errRequestDeadline) })
	defer timer.Stop()

	token, err := c.token(reqCtx)
	if err != nil {
		return nil, c.deadlineErr(reqCtx, err)
	}

	slog.DebugContext(ctx, "sending chat request", "model", req.Model, "messages", len(req.Messages))
	apiStart := time.Now()
	resp, err := c.tp.do(reqCtx, token, req)
	if isUnauthorized(err) {
		// The cached token may have been revoked; refresh once and resend.
		// A second 401 is terminal.
		slog.DebugContext(ctx, "gateway rejected token, refreshing and retrying once")
		if inv, ok := c.cred.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
		if token, err = c.token(reqCtx); err == nil {
			resp, err = c.tp.do(reqCtx, token, req)
		}
	}
	if err != nil {
		return nil, c.deadlineErr(reqCtx, err)
	}
	timer.Stop()

	sessionID := uuid.NewString()
	streaming = true
	stream := newMessageStream(reqCtx, func(sctx context.Context, ch chan<- Message) error {
		defer cancel(nil)
		defer resp.Body.Close()
		// Unblock a pending body read as soon as the stream is abandoned.
		stop := context.AfterFunc(sctx, func() { resp.Body.Close() })
		defer stop()

		stallTimer := time.AfterFunc(c.stallTimeout, func() { cancel(errStallDeadline) })
		defer stallTimer.Stop()

		d := newFrameDecoder(&stallReader{r: resp.Body, timer: stallTimer, reset: c.stallTimeout},
			req.Model, sessionID, names)
		d.started, d.apiStarted = start, apiStart

		err := d.run(sctx, ch)
		if err == nil {
			return nil
		}
		cause := context.Cause(sctx)
		switch {
		case errors.Is(cause, errStallDeadline):
			return fmt.Errorf("%w: no data received for %s", ErrTimeout, c.stallTimeout)
		case errors.Is(cause, context.DeadlineExceeded):
			return fmt.Errorf("%w: %v", ErrTimeout, cause)
		case sctx.Err() != nil:
			return sctx.Err()
		}
		return err
	})
	return stream, nil
}

// token acquires a bearer token for the configured scope, classifying
// failures per the error taxonomy. Token contents never appear in errors or
// logs.
func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{c.scope}})
	if err != nil {
		var authErr *azureauth.AuthenticationError
		if errors.As(err, &authErr) {
			return "", err
		}
		var extAuthErr *azidentity.AuthenticationFailedError
		if errors.As(err, &extAuthErr) {
			return "", fmt.Errorf("%w: %v", azureauth.ErrAuthentication, err)
		}
		return "", fmt.Errorf("acquire token: %w", wrapTransportError(err))
	}
	return tok.Token, nil
}

// deadlineErr substitutes the request-deadline cause for the generic
// cancellation error it produced.
func (c *Client) deadlineErr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errRequestDeadline) {
		return fmt.Errorf("%w: no response within %s", ErrTimeout, c.requestTimeout)
	}
	return err
}

func isUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == 401
}
