package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Environment variables that override file settings.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvOllamaHost  = "OLLAMA_HOST"
	EnvPort        = "LOCALASSIST_PORT"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// loadConfigFromFile reads a JSON config file, replacing ${VAR} placeholders with environment values.
// The file is decoded over the default config, so keys it omits keep their defaults.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // Return original if env var not found
	})

	cfg := createDefaultConfig()
	if err := json.Unmarshal([]byte(dataStr), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of file settings.
func applyEnvOverrides(cfg *Config) error {
	if raw := os.Getenv(EnvDatabaseURL); raw != "" {
		path, err := DatabasePathFromURL(raw)
		if err != nil {
			return err
		}
		cfg.Database.Path = path
	}

	if host := os.Getenv(EnvOllamaHost); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		cfg.Models.OllamaHost = host
	}

	if raw := os.Getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, raw, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// DatabasePathFromURL converts a sqlite URL (sqlite:///./prompts.db, sqlite:////abs/path.db)
// or a bare file path into the file path the store opens.
func DatabasePathFromURL(raw string) (string, error) {
	const prefix = "sqlite:///"
	switch {
	case strings.HasPrefix(raw, prefix):
		path := strings.TrimPrefix(raw, prefix)
		if path == "" {
			return "", fmt.Errorf("%s has no database path: %q", EnvDatabaseURL, raw)
		}
		return path, nil
	case strings.Contains(raw, "://"):
		return "", fmt.Errorf("unsupported %s %q: only sqlite:/// URLs are supported", EnvDatabaseURL, raw)
	default:
		return raw, nil
	}
}
