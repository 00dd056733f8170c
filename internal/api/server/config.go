// Package server provides HTTP server configuration and lifecycle management.
package server

import (
	"fmt"
	"time"

	"github.com/remiblancher/certwizard/internal/config"
)

// Config holds the server configuration.
type Config struct {
	// Host is the address to bind to (default: "").
	Host string

	// Port is the HTTP port.
	Port int

	// TLS configuration (optional)
	TLSCert string
	TLSKey  string

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SessionIdleTimeout removes sessions untouched for this long.
	SessionIdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:               8080,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		SessionIdleTimeout: 30 * time.Minute,
	}
}

// FromConfig builds a Config from the server section of the file config.
func FromConfig(c config.Server) *Config {
	cfg := DefaultConfig()
	cfg.Host = c.Host
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	cfg.TLSCert = c.TLSCert
	cfg.TLSKey = c.TLSKey
	if c.ReadTimeout > 0 {
		cfg.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		cfg.WriteTimeout = c.WriteTimeout
	}
	if c.IdleTimeout > 0 {
		cfg.IdleTimeout = c.IdleTimeout
	}
	if c.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = c.ShutdownTimeout
	}
	return cfg
}

// Address returns the full listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
