// Package config holds the runtime settings of the relay server, their
// defaults, and how they are read from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transports accepted by Config.Transport.
const (
	TransportTCP  = "tcp"
	TransportWS   = "ws"
	TransportAuto = "auto"
)

// Config holds the server configuration settings.
type Config struct {
	// Address is the listening endpoint, host:port.
	Address string
	// Transport selects how accepted connections are framed.
	Transport string
	// IdleTimeout closes connections silent for that long. Zero disables it.
	IdleTimeout time.Duration
	// WriteTimeout bounds every write to a connection. It must be positive.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds protocol detection and the WebSocket handshake.
	HandshakeTimeout time.Duration
	// MaxMessageSize is the largest accepted inbound frame in bytes.
	MaxMessageSize int
	// ReportInterval is the period of the throughput report.
	ReportInterval time.Duration
	// Presence enables LoginEvent and LogoutEvent broadcasts.
	Presence bool
}

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Address:          ":2812",
		Transport:        TransportTCP,
		IdleTimeout:      0,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
		ReportInterval:   time.Second,
		Presence:         false,
	}
}

// FromEnv creates a Config from environment variables.
// Falls back to default values if variables are not set or do not parse.
func FromEnv() Config {
	cfg := Default()

	if addr := os.Getenv("RELAY_ADDRESS"); addr != "" {
		cfg.Address = addr
	}

	if transport := os.Getenv("RELAY_TRANSPORT"); transport != "" {
		cfg.Transport = strings.ToLower(strings.TrimSpace(transport))
	}

	if v := os.Getenv("RELAY_IDLE_TIMEOUT"); v != "" {
		cfg.IdleTimeout = parseDuration(v, cfg.IdleTimeout)
	}

	if v := os.Getenv("RELAY_WRITE_TIMEOUT"); v != "" {
		cfg.WriteTimeout = parseDuration(v, cfg.WriteTimeout)
	}

	if v := os.Getenv("RELAY_HANDSHAKE_TIMEOUT"); v != "" {
		cfg.HandshakeTimeout = parseDuration(v, cfg.HandshakeTimeout)
	}

	if v := os.Getenv("RELAY_MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = parseSize(v, cfg.MaxMessageSize)
	}

	if v := os.Getenv("RELAY_REPORT_INTERVAL"); v != "" {
		cfg.ReportInterval = parseDuration(v, cfg.ReportInterval)
	}

	if v := os.Getenv("RELAY_PRESENCE"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Presence = enabled
		}
	}

	return cfg
}

// parseDuration accepts Go durations ("1m30s") and plain seconds ("90").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseSize(value string, defaultValue int) int {
	if size, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Address == "" {
		errs = append(errs, errors.New("address is empty"))
	}

	switch c.Transport {
	case TransportTCP, TransportWS, TransportAuto:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %s, %s or %s)",
			c.Transport, TransportTCP, TransportWS, TransportAuto))
	}

	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle timeout %v is negative", c.IdleTimeout))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write timeout %v must be positive", c.WriteTimeout))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("handshake timeout %v must be positive", c.HandshakeTimeout))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max message size %d must be positive", c.MaxMessageSize))
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("report interval %v must be positive", c.ReportInterval))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
