// Package config defines the configuration schema for sensebridge.
//
// JSON keys use camelCase. Every server setting can also come from a
// QLIK_* environment variable, which wins over the file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sensebridge/sensebridge/internal/engine"
	"github.com/sensebridge/sensebridge/internal/repository"
)

// ServerConfig locates the target server and the session identity.
type ServerConfig struct {
	Host           string `json:"host" yaml:"host"`
	EnginePort     int    `json:"enginePort" yaml:"enginePort"`
	RepositoryPort int    `json:"repositoryPort" yaml:"repositoryPort"`
	UserDirectory  string `json:"userDirectory" yaml:"userDirectory"`
	UserID         string `json:"userId" yaml:"userId"`
	VerifySSL      bool   `json:"verifySsl" yaml:"verifySsl"`
	TimeoutSec     int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "localhost",
		EnginePort:     4747,
		RepositoryPort: 4242,
		UserDirectory:  "INTERNAL",
		UserID:         "sa_engine",
		TimeoutSec:     30,
	}
}

// TLSConfig points at the PEM material for mutual TLS.
type TLSConfig struct {
	CertFile string `json:"certFile" yaml:"certFile"`
	KeyFile  string `json:"keyFile" yaml:"keyFile"`
	CAFile   string `json:"caFile" yaml:"caFile"`
}

// EngineConfig tunes the engine session defaults.
type EngineConfig struct {
	PageSize int `json:"pageSize" yaml:"pageSize"`
	MaxRows  int `json:"maxRows" yaml:"maxRows"`

	// Statistics overrides individual field-statistics expression
	// templates, keyed by statistic name with %s as the field.
	Statistics map[string]string `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

func defaultEngineConfig() EngineConfig {
	return EngineConfig{PageSize: 1000, MaxRows: 1000}
}

// CacheConfig tunes the metadata cache.
type CacheConfig struct {
	TTLSec          int    `json:"ttlSeconds" yaml:"ttlSeconds"`
	CleanupSchedule string `json:"cleanupSchedule" yaml:"cleanupSchedule"`
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{TTLSec: 300, CleanupSchedule: "@every 1m"}
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
}

// Config is the root configuration document.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	TLS    TLSConfig    `json:"tls" yaml:"tls"`
	Engine EngineConfig `json:"engine" yaml:"engine"`
	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Server: defaultServerConfig(),
		Engine: defaultEngineConfig(),
		Cache:  defaultCacheConfig(),
		Log:    LogConfig{Level: "info"},
	}
}

// ApplyEnv overlays QLIK_* environment variables onto cfg.
// QLIK_SERVER_URL may carry a scheme; only the host part is kept.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QLIK_SERVER_URL"); v != "" {
		c.Server.Host = stripScheme(v)
	}
	setString(&c.Server.Host, "QLIK_HOST")
	setInt(&c.Server.EnginePort, "QLIK_ENGINE_PORT")
	setInt(&c.Server.RepositoryPort, "QLIK_REPOSITORY_PORT")
	setString(&c.Server.UserDirectory, "QLIK_USER_DIRECTORY")
	setString(&c.Server.UserID, "QLIK_USER_ID")
	setBool(&c.Server.VerifySSL, "QLIK_VERIFY_SSL")
	setInt(&c.Server.TimeoutSec, "QLIK_TIMEOUT")
	setString(&c.TLS.CertFile, "QLIK_CLIENT_CERT_PATH")
	setString(&c.TLS.KeyFile, "QLIK_CLIENT_KEY_PATH")
	setString(&c.TLS.CAFile, "QLIK_CA_CERT_PATH")
	setString(&c.Log.Level, "QLIK_LOG_LEVEL")
}

func stripScheme(v string) string {
	v = strings.TrimPrefix(strings.TrimPrefix(v, "https://"), "http://")
	return strings.TrimSuffix(v, "/")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// EngineOptions translates the config into an engine session Options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Host:          c.Server.Host,
		Port:          c.Server.EnginePort,
		UserDirectory: c.Server.UserDirectory,
		UserID:        c.Server.UserID,
		CertFile:      c.TLS.CertFile,
		KeyFile:       c.TLS.KeyFile,
		CAFile:        c.TLS.CAFile,
		VerifySSL:     c.Server.VerifySSL,
		Timeout:       time.Duration(c.Server.TimeoutSec) * time.Second,
		PageSize:      c.Engine.PageSize,
		Statistics:    c.Engine.Statistics,
	}
}

// RepositoryOptions translates the config into repository client Options.
func (c *Config) RepositoryOptions() repository.Options {
	return repository.Options{
		Host:          c.Server.Host,
		Port:          c.Server.RepositoryPort,
		UserDirectory: c.Server.UserDirectory,
		UserID:        c.Server.UserID,
		CertFile:      c.TLS.CertFile,
		KeyFile:       c.TLS.KeyFile,
		CAFile:        c.TLS.CAFile,
		VerifySSL:     c.Server.VerifySSL,
		Timeout:       time.Duration(c.Server.TimeoutSec) * time.Second,
	}
}
