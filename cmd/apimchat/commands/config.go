// Copyright (c) Microsoft. All rights reserved.

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"

	"github.com/microsoft/apim-chat/go/apimchat"
	"github.com/microsoft/apim-chat/go/azureauth"
)

// keyringService names the OS keyring entry group; the account within it is
// the Azure AD client ID the secret belongs to.
const keyringService = "apimchat"

// config is the CLI-side configuration, merged from defaults, an optional
// TOML file, AZURE_-prefixed environment variables, and flags.
type config struct {
	TenantID            string `koanf:"tenant_id"`
	ClientID            string `koanf:"client_id"`
	ClientSecret        string `koanf:"client_secret"`
	Scope               string `koanf:"scope"`
	APIMEndpoint        string `koanf:"apim_endpoint"`
	APIMSubscriptionKey string `koanf:"apim_subscription_key"`
	Model               string `koanf:"model"`
}

// loadConfig merges configuration sources, later sources winning: built-in
// defaults, the TOML file at path (when given), the environment, then
// command-line flags.
func loadConfig(path string, cmd *cli.Command) (config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"scope": azureauth.DefaultScope,
	}, "."), nil); err != nil {
		return config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "AZURE_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "AZURE_")), value
		},
	}), nil); err != nil {
		return config{}, fmt.Errorf("load environment: %w", err)
	}

	overrides := map[string]any{}
	for flag, key := range map[string]string{
		"endpoint":         "apim_endpoint",
		"subscription-key": "apim_subscription_key",
		"model":            "model",
		"scope":            "scope",
	} {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return config{}, fmt.Errorf("apply flags: %w", err)
		}
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// clientConfig maps the CLI config onto the library [apimchat.Config],
// pulling the client secret from the OS keyring when no other source
// supplied one.
func (c config) clientConfig() (apimchat.Config, error) {
	secret := c.ClientSecret
	if secret == "" && c.ClientID != "" {
		stored, err := keyring.Get(keyringService, c.ClientID)
		switch {
		case err == nil:
			secret = stored
		case errors.Is(err, keyring.ErrNotFound):
			// Leave empty; construction reports the missing secret.
		default:
			return apimchat.Config{}, fmt.Errorf("read keyring: %w", err)
		}
	}
	return apimchat.Config{
		TenantID:        c.TenantID,
		ClientID:        c.ClientID,
		ClientSecret:    secret,
		Scope:           c.Scope,
		Endpoint:        c.APIMEndpoint,
		SubscriptionKey: c.APIMSubscriptionKey,
	}, nil
}
