// Copyright (c) Microsoft. All rights reserved.

// Package apimchat streams chat completions from an Azure OpenAI deployment
// published behind an Azure API Management gateway.
//
// Create a client and query it:
//
//	client, err := apimchat.New(apimchat.Config{
//	    TenantID:        os.Getenv("AZURE_TENANT_ID"),
//	    ClientID:        os.Getenv("AZURE_CLIENT_ID"),
//	    ClientSecret:    os.Getenv("AZURE_CLIENT_SECRET"),
//	    Endpoint:        "https://contoso.azure-api.net/openai",
//	    SubscriptionKey: os.Getenv("AZURE_APIM_SUBSCRIPTION_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, err := client.Query(ctx, "What is the capital of France?", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//
//	for {
//	    msg, ok, err := stream.Next(ctx)
//	    if err != nil || !ok {
//	        break
//	    }
//	    if a, isText := msg.(*apimchat.AssistantMessage); isText {
//	        fmt.Print(a.Text())
//	    }
//	}
//
// The client authenticates with Azure AD client credentials through
// [azureauth.Manager] and caches the token across queries on the same
// client. Any [azcore.TokenCredential], such as the azidentity credential
// types, can be substituted via [WithTokenCredential].
//
// # Configuration
//
// Use functional options to configure the client:
//
//   - [WithModel]: set the default deployment name
//   - [WithTokenCredential]: replace the built-in client-credentials flow
//   - [WithHTTPClient]: provide a custom http.Client
//   - [WithRequestTimeout]: cap token acquisition plus response headers
//   - [WithStallTimeout]: cap the silence between stream reads
//   - [WithAuthorityHost]: point token requests at a sovereign cloud
//
// # Errors
//
// Failures before the stream starts return synchronously from Query and
// match the package sentinels with [errors.Is]: [ErrValidation],
// [ErrAuthentication], [ErrConnection], [ErrStatus], [ErrTimeout]. A stream
// that dies mid-flight ends with a *[StreamIncompleteError] carrying the
// count of messages already delivered.
package apimchat
