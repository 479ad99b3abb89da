// Package config provides configuration management for policykit services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables holding secrets. Secrets never come from config files.
const (
	EnvHMACSecret    = "PK_HMAC_SECRET"
	EnvBackendAPIKey = "PK_BACKEND_API_KEY"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Catalog   CatalogConfig
	Predicate PredicateConfig
}

// ServerConfig holds listener settings for the gRPC and HTTP servers.
type ServerConfig struct {
	Host           string
	Port           int
	HTTPPort       int
	MaxConnections int
	RequestTimeout time.Duration
}

// BackendConfig locates the external REST backend. An empty BaseURL selects
// the local database store instead.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CatalogConfig controls reference-data caching.
type CatalogConfig struct {
	StaleTime time.Duration
	SeedFile  string
}

// PredicateConfig controls predicate construction.
type PredicateConfig struct {
	// Timezone interprets datetime condition values entered without offset.
	Timezone string
}

// Location resolves Timezone. Empty means UTC.
func (p PredicateConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			HTTPPort:       8080,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			StaleTime: 5 * time.Minute,
		},
		Predicate: PredicateConfig{
			Timezone: "UTC",
		},
	}
}

// BackendAPIKey returns the backend API key from the environment.
func BackendAPIKey() string {
	return strings.TrimSpace(os.Getenv(EnvBackendAPIKey))
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports PK_HMAC_SECRET (single) and PK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s and %s_* for conflicts)", secretID, EnvHMACSecret, EnvHMACSecret)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv(EnvHMACSecret); val != "" {
		if err := add(EnvHMACSecret, val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", EnvHMACSecret, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes base64-encoded HMAC secret from environment variable.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
