// Copyright (c) Microsoft. All rights reserved.

// Command azcred demonstrates substituting an azidentity credential for the
// built-in client-credentials flow. DefaultAzureCredential walks environment
// variables, managed identity, and az login, so the sample needs no client
// secret of its own.
//
// Usage:
//
//	export AZURE_APIM_ENDPOINT=https://<gateway>.azure-api.net/openai
//	export AZURE_APIM_SUBSCRIPTION_KEY=<key>
//	az login
//	go run . "What is the capital of France?"
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/joho/godotenv"

	"github.com/microsoft/apim-chat/go/apimchat"
)

func main() {
	// Load .env file if present (ignored if missing).
	_ = godotenv.Load()

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		log.Fatalf("Failed to create Azure credential: %v", err)
	}

	client, err := apimchat.New(apimchat.Config{
		Endpoint:        os.Getenv("AZURE_APIM_ENDPOINT"),
		SubscriptionKey: os.Getenv("AZURE_APIM_SUBSCRIPTION_KEY"),
	}, apimchat.WithTokenCredential(cred))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	prompt := strings.Join(os.Args[1:], " ")
	if prompt == "" {
		prompt = "What is the capital of France?"
	}

	ctx := context.Background()
	stream, err := client.Query(ctx, prompt, nil)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer stream.Close()

	text, result, err := stream.CollectText(ctx)
	if err != nil {
		log.Fatalf("Stream failed: %v", err)
	}

	fmt.Println(text)
	if result != nil && result.Usage != nil {
		fmt.Printf("[model %s, %d tokens total]\n", result.Model, result.Usage.TotalTokens)
	}
}
