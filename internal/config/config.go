package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of one server instance. A Config value handed
// to a running server is never mutated; reconfiguration replaces the whole
// value and restarts the server.
type Config struct {
	Port          int     `yaml:"port" json:"port"`
	OllamaBaseURL string  `yaml:"ollama_base_url" json:"ollama_base_url"`
	Timeout       float64 `yaml:"timeout" json:"timeout"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Port:          8000,
		OllamaBaseURL: "http://localhost:11434",
		Timeout:       60.0,
	}
}

// TimeoutDuration converts the timeout in seconds to a time.Duration.
func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// Validate checks that the configuration can be used to start a server.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than zero, got %g", c.Timeout)
	}
	u, err := url.Parse(c.OllamaBaseURL)
	if err != nil {
		return fmt.Errorf("invalid ollama_base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ollama_base_url must use http or https, got %q", c.OllamaBaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("ollama_base_url is missing a host: %q", c.OllamaBaseURL)
	}
	return nil
}

// Load reads the configuration from a YAML file. When the file does not
// exist, the default configuration is written to that path and returned,
// so a first run leaves an editable file behind.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithEnvOverrides applies environment overrides on top of a loaded
// configuration. OLLAMA_BASE_URL wins over the file value no matter where
// the config came from, so reloads do not silently revert it.
func WithEnvOverrides(cfg Config) Config {
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		cfg.OllamaBaseURL = base
	}
	return cfg
}

// Save writes the configuration to a YAML file.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
