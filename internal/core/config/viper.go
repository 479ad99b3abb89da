package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// ErrSecretInConfig is returned when a config file carries a secret.
var ErrSecretInConfig = errors.New("secrets not allowed in config files (use PK_HMAC_SECRET and PK_BACKEND_API_KEY environment variables)")

// secretKeys may only come from the environment.
var secretKeys = []string{
	"hmac_secret",
	"server.hmac_secret",
	"api_key",
	"backend.api_key",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout.String())
	v.SetDefault("catalog.stale_time", d.Catalog.StaleTime.String())
	v.SetDefault("catalog.seed_file", d.Catalog.SeedFile)
	v.SetDefault("predicate.timezone", d.Predicate.Timezone)

	// Bind environment variables with PK_ prefix
	v.SetEnvPrefix("PK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			HTTPPort:       v.GetInt("server.http_port"),
			MaxConnections: v.GetInt("server.max_connections"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimSpace(v.GetString("backend.base_url")),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Catalog: CatalogConfig{
			StaleTime: v.GetDuration("catalog.stale_time"),
			SeedFile:  v.GetString("catalog.seed_file"),
		},
		Predicate: PredicateConfig{
			Timezone: v.GetString("predicate.timezone"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges, positive limits and timeouts, the
// backend URL and the timezone.
func validateConfig(cfg *Config) error {
	if err := validatePort("port", cfg.Server.Port); err != nil {
		return err
	}
	if err := validatePort("http_port", cfg.Server.HTTPPort); err != nil {
		return err
	}
	if cfg.Server.Port == cfg.Server.HTTPPort {
		return fmt.Errorf("port and http_port must differ, both are %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive, got %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.BaseURL != "" {
		u, err := url.Parse(cfg.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("backend base_url must be an http(s) URL, got %q", cfg.Backend.BaseURL)
		}
	}
	if cfg.Catalog.StaleTime < 0 {
		return fmt.Errorf("catalog stale_time must not be negative, got %v", cfg.Catalog.StaleTime)
	}
	if _, err := cfg.Predicate.Location(); err != nil {
		return err
	}
	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
// Only the config file is inspected; PK_* environment variables are allowed.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range secretKeys {
		if v.InConfig(key) {
			return ErrSecretInConfig
		}
	}
	return nil
}
