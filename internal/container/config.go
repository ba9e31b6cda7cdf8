// Package container provides dependency injection and lifecycle management
// for the crane billing service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// DefaultAuditHistorySize is how many audit entries are kept per measurement
const DefaultAuditHistorySize = 50

// DefaultAuditMeasurements is how many measurements keep an in-memory audit trail
const DefaultAuditMeasurements = 1000

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Storage configuration
	Storage StorageConfig

	// Server configuration
	Server ServerConfig

	// AuditHistorySize bounds the in-memory audit trail per measurement
	AuditHistorySize int

	// AuditMaxMeasurements bounds how many measurements keep an audit trail
	AuditMaxMeasurements int
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout bounds how long a writer waits for the database lock
	BusyTimeout time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// DocumentDir is the base directory for uploaded documents
	DocumentDir string

	// MaxUploadBytes limits a single upload; zero disables the limit
	MaxUploadBytes int64
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/billing.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Storage: StorageConfig{
			DocumentDir:    "documents",
			MaxUploadBytes: 10 << 20,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		AuditHistorySize:     DefaultAuditHistorySize,
		AuditMaxMeasurements: DefaultAuditMeasurements,
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.DocumentDir == "" {
		return fmt.Errorf("storage.document_dir is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}
