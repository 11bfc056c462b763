// Copyright (c) Microsoft. All rights reserved.

package azureauth

import "fmt"

// Credentials carries the Azure AD application identity for the
// client-credentials grant. All fields except Scope are required.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Scope defaults to [DefaultScope] when empty. Multiple scopes are
	// space-separated, per RFC 6749.
	Scope string
}

func (c Credentials) validate() error {
	switch {
	case c.TenantID == "":
		return fmt.Errorf("%w: tenant ID is required", ErrCredentials)
	case c.ClientID == "":
		return fmt.Errorf("%w: client ID is required", ErrCredentials)
	case c.ClientSecret == "":
		return fmt.Errorf("%w: client secret is required", ErrCredentials)
	}
	return nil
}

// String implements [fmt.Stringer] with the secret redacted, so credentials
// can appear in logs and error messages safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{TenantID: %s, ClientID: %s, Scope: %s, ClientSecret: REDACTED}",
		c.TenantID, c.ClientID, c.Scope)
}
