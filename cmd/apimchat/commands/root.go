// Copyright (c) Microsoft. All rights reserved.

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "apimchat",
		Usage: "Chat with an Azure OpenAI deployment behind API Management",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("APIMCHAT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelWarn.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: "text",
			},
		},
		Before: instrument,
		Commands: []*cli.Command{
			askCommand(),
			authCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// instrument installs the process-wide slog handler before any command runs.
// Logs go to stderr so assistant output on stdout stays clean.
func instrument(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return ctx, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return ctx, fmt.Errorf("unsupported log format %q (expected: json, text)", cmd.String("log-format"))
	}

	slog.SetDefault(slog.New(handler))
	return ctx, nil
}
