// Package config provides configuration loading, validation, and management for the assistant service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"localassist/pkg/logx"
)

// Global config instance with mutex protection.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	configPath string
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// Mode is the deployment mode echoed in API responses.
// Only ModeLocal has behavior behind it; the others are accepted for compatibility.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeCloud  Mode = "cloud"
	ModeHybrid Mode = "hybrid"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeLocal, ModeCloud, ModeHybrid:
		return true
	default:
		return false
	}
}

// All constants bundled together for easy maintenance.
const (
	SchemaVersion = "1.0"

	DefaultMode = ModeLocal

	// Models served by the local Ollama runtime.
	DefaultOllamaHost    = "http://localhost:11434"
	DefaultReasonerModel = "qwen2.5:7b-instruct"
	DefaultVerifierModel = "mistral:7b-instruct"
	DefaultTemperature   = 0.7
	DefaultRequestTimout = 120 // seconds per chat call

	// HTTP server.
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8000
	DefaultShutdownTimeoutSec = 10

	// Correction loop.
	DefaultMaxCorrections = 1

	// Storage.
	DefaultDatabasePath = "./prompts.db"
)

// DefaultCORSOrigins are the browser origins allowed to call the API out of the box.
//
//nolint:gochecknoglobals // Default list, copied into new configs
var DefaultCORSOrigins = []string{
	"http://localhost",
	"http://localhost:5173",
	"http://localhost:8000",
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string   `json:"host"`                 // Interface to bind (default: 0.0.0.0)
	Port               int      `json:"port"`                 // Port to listen on (default: 8000)
	CORSOrigins        []string `json:"cors_origins"`         // Allowed browser origins
	ShutdownTimeoutSec int      `json:"shutdown_timeout_sec"` // Graceful shutdown budget
}

// ModelsConfig defines which local models serve each role and how they are called.
type ModelsConfig struct {
	OllamaHost        string  `json:"ollama_host"`         // Ollama server URL
	ReasonerModel     string  `json:"reasoner_model"`      // Model for the reasoner role
	VerifierModel     string  `json:"verifier_model"`      // Model for the verifier role
	Temperature       float32 `json:"temperature"`         // Sampling temperature
	MaxTokens         int     `json:"max_tokens"`          // num_predict passed to Ollama (0 = model default)
	RequestTimeoutSec int     `json:"request_timeout_sec"` // Per chat call timeout
}

// CorrectionConfig controls the reasoner/verifier correction loop.
type CorrectionConfig struct {
	MaxCorrections     int  `json:"max_corrections"`       // Upper bound on verify+correct rounds
	EarlyExitOnSuccess bool `json:"early_exit_on_success"` // Stop when the verifier reports ok=true
}

// DatabaseConfig contains prompt store settings.
type DatabaseConfig struct {
	Path string `json:"path"` // SQLite file path
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled bool `json:"enabled"` // Expose /metrics and record LLM metrics
}

// DebugConfig defines configuration for debug logging.
type DebugConfig struct {
	Enabled bool     `json:"enabled"`
	Domains []string `json:"domains,omitempty"`
}

// Config represents the main configuration for the assistant service.
type Config struct {
	SchemaVersion string            `json:"schema_version"`
	Mode          Mode              `json:"mode"`
	Server        *ServerConfig     `json:"server"`
	Models        *ModelsConfig     `json:"models"`
	Correction    *CorrectionConfig `json:"correction"`
	Database      *DatabaseConfig   `json:"database"`
	Metrics       *MetricsConfig    `json:"metrics"`
	Debug         *DebugConfig      `json:"debug"`
	SeedFile      string            `json:"seed_file,omitempty"` // Optional YAML prompt seed applied at startup
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// Must call LoadConfig first to initialize the global config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		configPath = ""
	}
}

// LoadConfig loads configuration from path into the global singleton.
//
// Behavior:
// - Empty path: defaults only, nothing is written
// - Missing file: creates the file with defaults
// - Existing file: decoded over the defaults, so missing keys keep default values
// - Unparseable file: returns error to avoid overwriting user changes
//
// Environment overrides (DATABASE_URL, OLLAMA_HOST, LOCALASSIST_PORT) are applied last.
func LoadConfig(path string) (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	configPath = path
	var cfg *Config

	switch {
	case path == "":
		cfg = createDefaultConfig()
	default:
		if _, err := os.Stat(path); os.IsNotExist(err) {
			getLogger().Info("Config file not found, creating new config at %s", path)
			cfg = createDefaultConfig()
			if err := saveConfig(cfg, path); err != nil {
				return Config{}, fmt.Errorf("failed to save initial config: %w", err)
			}
		} else {
			getLogger().Info("Loading config from %s", path)
			loaded, err := loadConfigFromFile(path)
			if err != nil {
				return Config{}, fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
			}
			cfg = loaded
		}
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	config = cfg
	return *cfg, nil
}

// Default returns a fully populated default configuration without touching the singleton.
func Default() Config {
	return *createDefaultConfig()
}

func createDefaultConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Mode:          DefaultMode,
		Server:        defaultServerConfig(),
		Models:        defaultModelsConfig(),
		Correction:    &CorrectionConfig{MaxCorrections: DefaultMaxCorrections},
		Database:      &DatabaseConfig{Path: DefaultDatabasePath},
		Metrics:       &MetricsConfig{Enabled: true},
		Debug:         &DebugConfig{},
	}
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:               DefaultHost,
		Port:               DefaultPort,
		CORSOrigins:        append([]string(nil), DefaultCORSOrigins...),
		ShutdownTimeoutSec: DefaultShutdownTimeoutSec,
	}
}

func defaultModelsConfig() *ModelsConfig {
	return &ModelsConfig{
		OllamaHost:        DefaultOllamaHost,
		ReasonerModel:     DefaultReasonerModel,
		VerifierModel:     DefaultVerifierModel,
		Temperature:       DefaultTemperature,
		RequestTimeoutSec: DefaultRequestTimout,
	}
}

// applyDefaults restores sections set to null and fills settings whose zero value is unusable.
// Settings where zero is meaningful (temperature, max_corrections, max_tokens) are left alone;
// files are decoded over createDefaultConfig, so a missing key already holds its default.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}

	if cfg.Server == nil {
		cfg.Server = defaultServerConfig()
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = append([]string(nil), DefaultCORSOrigins...)
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = DefaultShutdownTimeoutSec
	}

	if cfg.Models == nil {
		cfg.Models = defaultModelsConfig()
	}
	if cfg.Models.OllamaHost == "" {
		cfg.Models.OllamaHost = DefaultOllamaHost
	}
	if cfg.Models.ReasonerModel == "" {
		cfg.Models.ReasonerModel = DefaultReasonerModel
	}
	if cfg.Models.VerifierModel == "" {
		cfg.Models.VerifierModel = DefaultVerifierModel
	}
	if cfg.Models.RequestTimeoutSec == 0 {
		cfg.Models.RequestTimeoutSec = DefaultRequestTimout
	}

	if cfg.Correction == nil {
		cfg.Correction = &CorrectionConfig{MaxCorrections: DefaultMaxCorrections}
	}

	if cfg.Database == nil {
		cfg.Database = &DatabaseConfig{}
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: true}
	}
	if cfg.Debug == nil {
		cfg.Debug = &DebugConfig{}
	}
}

func validateConfig(cfg *Config) error {
	if !cfg.Mode.Valid() {
		return fmt.Errorf("invalid mode %q (expected local, cloud or hybrid)", cfg.Mode)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Models.ReasonerModel) == "" || strings.TrimSpace(cfg.Models.VerifierModel) == "" {
		return fmt.Errorf("models.reasoner_model and models.verifier_model are required")
	}
	if cfg.Models.Temperature < 0.0 || cfg.Models.Temperature > 2.0 {
		return fmt.Errorf("models.temperature must be between 0.0 and 2.0")
	}
	if cfg.Models.MaxTokens < 0 {
		return fmt.Errorf("models.max_tokens cannot be negative")
	}
	if cfg.Models.RequestTimeoutSec < 0 {
		return fmt.Errorf("models.request_timeout_sec cannot be negative")
	}
	if cfg.Correction.MaxCorrections < 0 {
		return fmt.Errorf("correction.max_corrections cannot be negative")
	}
	return nil
}

func saveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
