// Copyright (c) Microsoft. All rights reserved.

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	"github.com/microsoft/apim-chat/go/azureauth"
)

// authCommand returns the 'auth' subcommand for managing the client secret.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the stored Azure AD client secret",
		Commands: []*cli.Command{
			authSetCommand(),
			authClearCommand(),
			authCheckCommand(),
		},
	}
}

func authSetCommand() *cli.Command {
	return &cli.Command{
		Name:   "set",
		Usage:  "Prompt for a client secret and store it in the OS keyring",
		Action: authSetAction,
	}
}

func authClearCommand() *cli.Command {
	return &cli.Command{
		Name:   "clear",
		Usage:  "Remove the stored client secret from the OS keyring",
		Action: authClearAction,
	}
}

func authCheckCommand() *cli.Command {
	return &cli.Command{
		Name:   "check",
		Usage:  "Request a token with the configured credentials and report the result",
		Action: authCheckAction,
	}
}

func authSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd)
	if err != nil {
		return err
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("a client ID is required to store a secret; set AZURE_CLIENT_ID or the config file")
	}

	secret, err := readSecureInput(ctx, fmt.Sprintf("Client secret for %s: ", cfg.ClientID))
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("client secret cannot be empty")
	}

	if err := keyring.Set(keyringService, cfg.ClientID, secret); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}

	fmt.Println("Secret stored in the OS keyring")
	return nil
}

func authClearAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd)
	if err != nil {
		return err
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("a client ID is required to know which secret to clear")
	}

	switch err := keyring.Delete(keyringService, cfg.ClientID); {
	case err == nil:
		fmt.Println("Secret removed from the OS keyring")
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		fmt.Println("No secret was stored")
		return nil
	default:
		return fmt.Errorf("clear secret: %w", err)
	}
}

func authCheckAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd)
	if err != nil {
		return err
	}
	clientCfg, err := cfg.clientConfig()
	if err != nil {
		return err
	}

	mgr, err := azureauth.New(azureauth.Credentials{
		TenantID:     clientCfg.TenantID,
		ClientID:     clientCfg.ClientID,
		ClientSecret: clientCfg.ClientSecret,
		Scope:        clientCfg.Scope,
	})
	if err != nil {
		return err
	}

	tok, err := mgr.GetToken(ctx, policy.TokenRequestOptions{})
	if err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}

	fmt.Printf("Token acquired; valid until %s\n", tok.ExpiresOn.Local().Format(time.RFC1123))
	return nil
}

// readSecureInput reads user input with hidden display and context
// cancellation support. The goroutine+select shape is needed because
// term.ReadPassword cannot be interrupted directly.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("read input: %w", res.err)
		}
		return res.value, nil
	}
}
