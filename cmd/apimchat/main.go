// Copyright (c) Microsoft. All rights reserved.

// Command apimchat is a terminal client for Azure OpenAI deployments
// published behind Azure API Management.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/microsoft/apim-chat/go/cmd/apimchat/commands"
)

func main() {
	// Ctrl+C cancels the context, which aborts an in-flight stream.
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		slog.ErrorContext(ctx, "command failed", "error", err)
		os.Exit(1)
	}
}
