// Package config loads the certwizard configuration file.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then CERTWIZARD_* environment variables. Command-line flags are applied
// on top by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server       Server       `yaml:"server"`
	Capabilities Capabilities `yaml:"capabilities"`
	Audit        Audit        `yaml:"audit"`
	Log          Log          `yaml:"log"`
}

// Server holds HTTP listener settings.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Capabilities locates the algorithm tables. Empty paths select the
// embedded defaults.
type Capabilities struct {
	SignaturesCSV string        `yaml:"signatures_csv"`
	KeySizesCSV   string        `yaml:"key_sizes_csv"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
	RetryAttempts uint          `yaml:"retry_attempts"`
}

// Audit configures the tamper-evident audit trail.
type Audit struct {
	Log string `yaml:"log"`
}

// Log configures technical logging.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Capabilities: Capabilities{
			LoadTimeout:   10 * time.Second,
			RetryAttempts: 3,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CERTWIZARD_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("CERTWIZARD_HOST", &c.Server.Host)
	str("CERTWIZARD_TLS_CERT", &c.Server.TLSCert)
	str("CERTWIZARD_TLS_KEY", &c.Server.TLSKey)
	str("CERTWIZARD_SIGNATURES_CSV", &c.Capabilities.SignaturesCSV)
	str("CERTWIZARD_KEY_SIZES_CSV", &c.Capabilities.KeySizesCSV)
	str("CERTWIZARD_AUDIT_LOG", &c.Audit.Log)
	str("CERTWIZARD_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("CERTWIZARD_PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CERTWIZARD_PORT %q: %w", v, err)
		}
		c.Server.Port = p
	}
	if v, ok := lookup("CERTWIZARD_LOAD_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CERTWIZARD_LOAD_TIMEOUT %q: %w", v, err)
		}
		c.Capabilities.LoadTimeout = d
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.Capabilities.LoadTimeout <= 0 {
		return fmt.Errorf("capabilities.load_timeout must be positive")
	}
	if c.Capabilities.RetryAttempts == 0 {
		c.Capabilities.RetryAttempts = 1
	}
	return nil
}

// Address returns the listen address.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
