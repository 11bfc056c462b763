// Copyright (c) Microsoft. All rights reserved.

// Command ask demonstrates an interactive streaming chat session with an
// Azure OpenAI deployment published behind API Management.
//
// Usage:
//
//	export AZURE_TENANT_ID=<tenant>
//	export AZURE_CLIENT_ID=<app-registration>
//	export AZURE_CLIENT_SECRET=<secret>
//	export AZURE_APIM_ENDPOINT=https://<gateway>.azure-api.net/openai
//	export AZURE_APIM_SUBSCRIPTION_KEY=<key>
//	export AZURE_MODEL=gpt-4o                  # optional, defaults to gpt-4
//	go run .
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/microsoft/apim-chat/go/apimchat"
)

func main() {
	// Load .env file if present (ignored if missing).
	_ = godotenv.Load()

	// Enable debug logging if requested
	if os.Getenv("DEBUG") != "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	var opts []apimchat.Option
	if model := os.Getenv("AZURE_MODEL"); model != "" {
		opts = append(opts, apimchat.WithModel(model))
	}

	client, err := apimchat.New(apimchat.Config{
		TenantID:        os.Getenv("AZURE_TENANT_ID"),
		ClientID:        os.Getenv("AZURE_CLIENT_ID"),
		ClientSecret:    os.Getenv("AZURE_CLIENT_SECRET"),
		Endpoint:        os.Getenv("AZURE_APIM_ENDPOINT"),
		SubscriptionKey: os.Getenv("AZURE_APIM_SUBSCRIPTION_KEY"),
	}, opts...)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	fmt.Println("Chat with the assistant (type 'quit' to exit)")
	fmt.Println()

	history := []apimchat.ChatMessage{
		apimchat.NewSystemMessage("You are a helpful assistant. Keep responses concise."),
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			break
		}

		ctx := context.Background()
		history = append(history, apimchat.NewUserMessage(input))

		stream, err := client.QueryMessages(ctx, history, nil)
		if err != nil {
			log.Printf("Error: %v", err)
			history = history[:len(history)-1]
			continue
		}

		fmt.Print("Assistant: ")
		var reply strings.Builder
		var result *apimchat.ResultMessage
		for {
			msg, ok, err := stream.Next(ctx)
			if err != nil {
				log.Printf("\nStream error: %v", err)
				break
			}
			if !ok {
				break
			}
			switch m := msg.(type) {
			case *apimchat.AssistantMessage:
				fmt.Print(m.Text())
				reply.WriteString(m.Text())
			case *apimchat.ResultMessage:
				result = m
			case *apimchat.ErrorMessage:
				log.Printf("\nStream notice (%s): %s", m.Code, m.Message)
			case *apimchat.ToolUseMessage:
			}
		}
		fmt.Println()
		stream.Close()

		// Keep the assistant turn so the next question has context.
		if reply.Len() > 0 {
			history = append(history, apimchat.ChatMessage{
				Role:    apimchat.RoleAssistant,
				Content: reply.String(),
			})
		}
		if result != nil && result.Usage != nil {
			fmt.Printf("  [tokens: %d in, %d out]\n",
				result.Usage.InputTokens, result.Usage.OutputTokens)
		}
		fmt.Println()
	}
}
