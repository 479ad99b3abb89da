package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policykit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestSecretsAndPrecedence covers the environment-only secret rule and the
// env > file > defaults ordering.
func TestSecretsAndPrecedence(t *testing.T) {
	t.Run("secret env vars do not trip the config-file check", func(t *testing.T) {
		t.Setenv("PK_HMAC_SECRET", testSecretID+":"+testSecretB64)
		t.Setenv("PK_BACKEND_API_KEY", "key")

		if _, err := LoadConfig(""); err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets error: %v", err)
		}
		if _, ok := secrets[testSecretID]; !ok {
			t.Fatal("secret not accessible")
		}
	})

	rejected := []struct {
		name    string
		content string
	}{
		{"hmac secret under server", "server:\n  host: localhost\n  hmac_secret: should_be_rejected\n"},
		{"top-level hmac secret", "hmac_secret: should_be_rejected\n"},
		{"backend api key", "backend:\n  base_url: https://backend.internal\n  api_key: should_be_rejected\n"},
	}
	for _, tt := range rejected {
		t.Run("config file with "+tt.name+" rejected", func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if !errors.Is(err, ErrSecretInConfig) {
				t.Fatalf("expected ErrSecretInConfig, got %v", err)
			}
		})
	}

	t.Run("config file values apply", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\npredicate:\n  timezone: UTC\ncatalog:\n  seed_file: ./catalog.yaml\n"))
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Catalog.SeedFile != "./catalog.yaml" {
			t.Errorf("expected seed file, got %q", cfg.Catalog.SeedFile)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		t.Setenv("PK_SERVER_PORT", "7070")

		cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Fatalf("environment should override config file, expected 7070, got %d", cfg.Server.Port)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}
