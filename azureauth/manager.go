// Copyright (c) Microsoft. All rights reserved.

package azureauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultScope requests access to Azure Cognitive Services, the resource
	// that fronts Azure OpenAI deployments.
	DefaultScope = "https://cognitiveservices.azure.com/.default"

	// DefaultAuthorityHost is the Microsoft Entra endpoint for the Azure
	// public cloud.
	DefaultAuthorityHost = "https://login.microsoftonline.com/"

	// refreshBuffer is how long before expiry a cached token stops being
	// served, so a request that starts with it stays authorized end to end.
	refreshBuffer = 5 * time.Minute

	// defaultExpiry applies when the token response omits expires_in.
	defaultExpiry = time.Hour

	defaultTimeout = 30 * time.Second
)

// Manager acquires Azure AD tokens via the OAuth2 client-credentials grant
// and caches them per scope until they near expiry. It implements
// [azcore.TokenCredential], so it slots anywhere an azidentity credential
// would. Safe for concurrent use; simultaneous callers needing the same
// scope share a single outbound token request.
type Manager struct {
	creds         Credentials
	authorityHost string
	client        *http.Client

	mu     sync.RWMutex
	tokens map[string]azcore.AccessToken
	group  singleflight.Group
}

var _ azcore.TokenCredential = (*Manager)(nil)

// Option configures a [Manager].
type Option func(*Manager)

// WithAuthorityHost points token requests at a different Entra endpoint,
// e.g. a sovereign cloud.
func WithAuthorityHost(host string) Option {
	return func(m *Manager) { m.authorityHost = host }
}

// WithHTTPClient provides a custom http.Client for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// New validates creds and returns a Manager. No token is requested until the
// first call to GetToken or Token.
func New(creds Credentials, opts ...Option) (*Manager, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if creds.Scope == "" {
		creds.Scope = DefaultScope
	}
	m := &Manager{
		creds:         creds,
		authorityHost: DefaultAuthorityHost,
		client:        &http.Client{Timeout: defaultTimeout},
		tokens:        make(map[string]azcore.AccessToken),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// GetToken implements [azcore.TokenCredential]. It returns the cached token
// when one is valid for more than refreshBuffer, otherwise it fetches a new
// one. A fetch that fails caches nothing. When options names no scopes the
// configured one applies.
func (m *Manager) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	scope := m.creds.Scope
	if len(options.Scopes) > 0 {
		scope = strings.Join(options.Scopes, " ")
	}
	if tok, ok := m.cached(scope); ok {
		return tok, nil
	}
	v, err, _ := m.group.Do(scope, func() (any, error) {
		// A concurrent caller may have refreshed while we queued.
		if tok, ok := m.cached(scope); ok {
			return tok, nil
		}
		tok, err := m.fetch(ctx, scope)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.tokens[scope] = tok
		m.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return v.(azcore.AccessToken), nil
}

// Token returns a bearer token string for the configured scope.
func (m *Manager) Token(ctx context.Context) (string, error) {
	tok, err := m.GetToken(ctx, policy.TokenRequestOptions{})
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

// Invalidate drops every cached token. The next GetToken for any scope goes
// back to the identity provider. Called after a gateway rejects a token that
// looked valid locally, e.g. when the secret was rotated or access revoked.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	clear(m.tokens)
	m.mu.Unlock()
}

func (m *Manager) cached(scope string) (azcore.AccessToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[scope]
	if !ok || time.Until(tok.ExpiresOn) <= refreshBuffer {
		return azcore.AccessToken{}, false
	}
	return tok, true
}

func (m *Manager) fetch(ctx context.Context, scope string) (azcore.AccessToken, error) {
	slog.DebugContext(ctx, "requesting token",
		"tenant_id", m.creds.TenantID,
		"client_id", m.creds.ClientID,
		"scope", scope)

	cfg := clientcredentials.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		TokenURL:     m.tokenURL(),
		Scopes:       strings.Fields(scope),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, m.client))
	if err != nil {
		return azcore.AccessToken{}, classifyTokenError(err)
	}

	expiresOn := tok.Expiry
	if expiresOn.IsZero() {
		expiresOn = time.Now().Add(defaultExpiry)
	}
	slog.DebugContext(ctx, "token acquired", "scope", scope, "expires_on", expiresOn)
	return azcore.AccessToken{
		Token:     tok.AccessToken,
		ExpiresOn: expiresOn,
		RefreshOn: expiresOn.Add(-refreshBuffer),
	}, nil
}

func (m *Manager) tokenURL() string {
	return strings.TrimRight(m.authorityHost, "/") + "/" + m.creds.TenantID + "/oauth2/v2.0/token"
}
