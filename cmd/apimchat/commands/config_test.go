// Copyright (c) Microsoft. All rights reserved.

package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"

	"github.com/microsoft/apim-chat/go/azureauth"
)

// runWithFlags parses args against the shared query flags and hands the bound
// command to fn, so loadConfig sees real flag state.
func runWithFlags(t *testing.T, args []string, fn func(cmd *cli.Command)) {
	t.Helper()
	cmd := &cli.Command{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint"},
			&cli.StringFlag{Name: "subscription-key"},
			&cli.StringFlag{Name: "model"},
			&cli.StringFlag{Name: "scope"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fn(cmd)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestLoadConfig_LayersSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `tenant_id = "file-tenant"
apim_endpoint = "https://file.example/openai"
model = "file-model"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AZURE_TENANT_ID", "env-tenant")
	t.Setenv("AZURE_APIM_SUBSCRIPTION_KEY", "env-key")

	runWithFlags(t, []string{"--model", "flag-model"}, func(cmd *cli.Command) {
		cfg, err := loadConfig(path, cmd)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}

		if cfg.TenantID != "env-tenant" {
			t.Errorf("TenantID = %q, want env to beat file", cfg.TenantID)
		}
		if cfg.APIMEndpoint != "https://file.example/openai" {
			t.Errorf("APIMEndpoint = %q, want file value", cfg.APIMEndpoint)
		}
		if cfg.APIMSubscriptionKey != "env-key" {
			t.Errorf("APIMSubscriptionKey = %q", cfg.APIMSubscriptionKey)
		}
		if cfg.Model != "flag-model" {
			t.Errorf("Model = %q, want flag to beat file", cfg.Model)
		}
		if cfg.Scope != azureauth.DefaultScope {
			t.Errorf("Scope = %q, want built-in default", cfg.Scope)
		}
	})
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("AZURE_TENANT_ID", "tenant")
	t.Setenv("AZURE_CLIENT_ID", "client")
	t.Setenv("AZURE_APIM_ENDPOINT", "https://env.example/openai")

	runWithFlags(t, nil, func(cmd *cli.Command) {
		cfg, err := loadConfig("", cmd)
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.TenantID != "tenant" || cfg.ClientID != "client" {
			t.Errorf("identity = %q/%q", cfg.TenantID, cfg.ClientID)
		}
		if cfg.APIMEndpoint != "https://env.example/openai" {
			t.Errorf("APIMEndpoint = %q", cfg.APIMEndpoint)
		}
	})
}

func TestLoadConfig_MissingFile(t *testing.T) {
	runWithFlags(t, nil, func(cmd *cli.Command) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"), cmd); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestClientConfig_Mapping(t *testing.T) {
	c := config{
		TenantID:            "tenant",
		ClientID:            "client",
		ClientSecret:        "direct-secret",
		Scope:               "https://custom/.default",
		APIMEndpoint:        "https://gw.example/openai",
		APIMSubscriptionKey: "sub-key",
	}

	cfg, err := c.clientConfig()
	if err != nil {
		t.Fatalf("clientConfig: %v", err)
	}
	if cfg.ClientSecret != "direct-secret" {
		t.Errorf("ClientSecret = %q", cfg.ClientSecret)
	}
	if cfg.Endpoint != "https://gw.example/openai" || cfg.SubscriptionKey != "sub-key" {
		t.Errorf("gateway fields = %q/%q", cfg.Endpoint, cfg.SubscriptionKey)
	}
	if cfg.Scope != "https://custom/.default" {
		t.Errorf("Scope = %q", cfg.Scope)
	}
}

func TestClientConfig_KeyringFallback(t *testing.T) {
	keyring.MockInit()
	if err := keyring.Set(keyringService, "client", "stored-secret"); err != nil {
		t.Fatal(err)
	}

	c := config{ClientID: "client"}
	cfg, err := c.clientConfig()
	if err != nil {
		t.Fatalf("clientConfig: %v", err)
	}
	if cfg.ClientSecret != "stored-secret" {
		t.Errorf("ClientSecret = %q, want keyring value", cfg.ClientSecret)
	}
}

func TestClientConfig_KeyringMissingLeavesEmpty(t *testing.T) {
	keyring.MockInit()

	c := config{ClientID: "client"}
	cfg, err := c.clientConfig()
	if err != nil {
		t.Fatalf("clientConfig: %v", err)
	}
	if cfg.ClientSecret != "" {
		t.Errorf("ClientSecret = %q, want empty when keyring has no entry", cfg.ClientSecret)
	}
}
