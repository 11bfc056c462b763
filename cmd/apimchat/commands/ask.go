// Copyright (c) Microsoft. All rights reserved.

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/urfave/cli/v3"

	"github.com/microsoft/apim-chat/go/apimchat"
)

// askCommand returns the 'ask' subcommand.
func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a prompt and stream the reply to stdout",
		ArgsUsage: "\"prompt\"",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "APIM gateway endpoint, e.g. https://contoso.azure-api.net/openai",
			},
			&cli.StringFlag{
				Name:  "subscription-key",
				Usage: "APIM subscription key",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "deployment name",
			},
			&cli.StringFlag{
				Name:  "scope",
				Usage: "OAuth scope for the token request",
			},
			&cli.StringFlag{
				Name:  "system",
				Usage: "system prompt prepended to the conversation",
			},
			&cli.IntFlag{
				Name:  "max-tokens",
				Usage: "completion token cap",
			},
			&cli.FloatFlag{
				Name:  "temperature",
				Usage: "sampling temperature (0..2)",
			},
			&cli.BoolFlag{
				Name:  "azure-credential",
				Usage: "authenticate with the default Azure credential chain instead of client-credentials",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "emit every message as a JSON line instead of plain text",
			},
			&cli.BoolFlag{
				Name:  "usage",
				Usage: "report token usage on stderr when the stream completes",
			},
		},
		Action: askAction,
	}
}

func askAction(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if prompt == "" {
		return fmt.Errorf("no prompt given; usage: apimchat ask \"prompt\"")
	}

	cfg, err := loadConfig(cmd.String("config"), cmd)
	if err != nil {
		return err
	}
	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return err
	}

	var clientOpts []apimchat.Option
	if cfg.Model != "" {
		clientOpts = append(clientOpts, apimchat.WithModel(cfg.Model))
	}
	if cmd.Bool("azure-credential") {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return fmt.Errorf("default azure credential: %w", err)
		}
		clientOpts = append(clientOpts, apimchat.WithTokenCredential(cred))
	}
	client, err := apimchat.New(clientCfg, clientOpts...)
	if err != nil {
		return err
	}

	opts := &apimchat.QueryOptions{}
	if cmd.IsSet("max-tokens") {
		opts.MaxTokens = int(cmd.Int("max-tokens"))
	}
	if cmd.IsSet("temperature") {
		t := cmd.Float("temperature")
		opts.Temperature = &t
	}

	var messages []apimchat.ChatMessage
	if sys := cmd.String("system"); sys != "" {
		messages = append(messages, apimchat.NewSystemMessage(sys))
	}
	messages = append(messages, apimchat.NewUserMessage(prompt))

	stream, err := client.QueryMessages(ctx, messages, opts)
	if err != nil {
		return err
	}
	defer stream.Close()

	asJSON := cmd.Bool("json")
	var result *apimchat.ResultMessage
	for {
		msg, ok, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if asJSON {
			line, err := apimchat.MarshalMessageJSON(msg)
			if err != nil {
				return err
			}
			fmt.Println(string(line))
			continue
		}
		switch m := msg.(type) {
		case *apimchat.AssistantMessage:
			fmt.Print(m.Text())
		case *apimchat.ToolUseMessage:
			printToolCalls(m)
		case *apimchat.ErrorMessage:
			fmt.Fprintf(os.Stderr, "stream error (%s): %s\n", m.Code, m.Message)
		case *apimchat.ResultMessage:
			result = m
		}
	}

	if !asJSON {
		fmt.Println()
		if cmd.Bool("usage") && result != nil && result.Usage != nil {
			fmt.Fprintf(os.Stderr, "tokens: %d in, %d out, %d total\n",
				result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.TotalTokens)
		}
	}
	return nil
}

// printToolCalls reports tool-call deltas on stderr; this CLI declares no
// tools itself, so they only appear when a tool schema came in via config.
func printToolCalls(m *apimchat.ToolUseMessage) {
	for _, block := range m.Content {
		if tc, ok := block.(*apimchat.ToolCallBlock); ok {
			fmt.Fprintf(os.Stderr, "tool call: %s %s\n", tc.Name, tc.Arguments)
		}
	}
}
