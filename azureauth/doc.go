// Copyright (c) Microsoft. All rights reserved.

// Package azureauth acquires Azure AD access tokens through the OAuth2
// client-credentials grant and caches them until shortly before expiry.
//
// Create a [Manager] from application credentials:
//
//	mgr, err := azureauth.New(azureauth.Credentials{
//	    TenantID:     os.Getenv("AZURE_TENANT_ID"),
//	    ClientID:     os.Getenv("AZURE_CLIENT_ID"),
//	    ClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := mgr.Token(ctx)
//
// Manager implements [azcore.TokenCredential], so it can stand in wherever
// the Azure SDK accepts an azidentity credential, and vice versa: callers
// who prefer azidentity's richer credential chain can skip this package
// entirely.
//
// Tokens are cached per scope and reused until less than five minutes of
// lifetime remain. Concurrent callers that miss the cache share one token
// request. [Manager.Invalidate] empties the cache when a downstream service
// rejects a token that has not expired locally.
package azureauth
