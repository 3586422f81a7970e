// Package config provides configuration loading for treegate.
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/treegate/pkg/limits"
	"github.com/fyrsmithlabs/treegate/pkg/sandbox"
	"github.com/fyrsmithlabs/treegate/pkg/sanitize"
	"github.com/fyrsmithlabs/treegate/pkg/securefs"
	"github.com/fyrsmithlabs/treegate/pkg/security"
)

// Config is the full treegate configuration tree.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Security  SecurityConfig  `koanf:"security"`
	Limits    LimitsConfig    `koanf:"limits"`
	Parser    ParserConfig    `koanf:"parser"`
}

// ServerConfig configures the introspection HTTP server.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
	Output string `koanf:"output"` // "stdout", "stderr", or a file path
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPProtocol string `koanf:"otlp_protocol"` // "grpc" or "http"
}

// SecurityConfig configures the path and field validation layers.
type SecurityConfig struct {
	AllowedRoots    []string `koanf:"allowed_roots"`
	MaxPathLength   int      `koanf:"max_path_length"`
	ResolveSymlinks bool     `koanf:"resolve_symlinks"`
	RequireExists   bool     `koanf:"require_exists"`
	MaxStringLength int      `koanf:"max_string_length"`
	MaxArrayLength  int      `koanf:"max_array_length"`
	// SecretScan enables the advisory secret scan in the parse precheck.
	SecretScan    bool   `koanf:"secret_scan"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// LimitsConfig configures the resource ledger ceilings.
type LimitsConfig struct {
	MaxFileSize             int64         `koanf:"max_file_size"`
	MaxTotalSize            int64         `koanf:"max_total_size"`
	MaxProcessingTime       time.Duration `koanf:"max_processing_time"`
	MaxFileCount            int64         `koanf:"max_file_count"`
	MaxConcurrentOperations int           `koanf:"max_concurrent_operations"`
	MaxMemoryUsage          uint64        `koanf:"max_memory_usage"`
	MemoryCheckInterval     time.Duration `koanf:"memory_check_interval"`
	MaxASTDepth             int           `koanf:"max_ast_depth"`
	MaxASTNodes             int           `koanf:"max_ast_nodes"`
	MaxDirectoryDepth       int           `koanf:"max_directory_depth"`
	MaxDirectoriesScanned   int64         `koanf:"max_directories_scanned"`
}

// ParserConfig configures the sandboxed parser.
type ParserConfig struct {
	ParseTimeout     time.Duration `koanf:"parse_timeout"`
	MaxParseAttempts int           `koanf:"max_parse_attempts"`
	MaxLineLength    int           `koanf:"max_line_length"`
}

// applyDefaults sets default values for missing configuration fields. The
// gating layers default their own ceilings on zero values, so only the
// surfaces above them need filling in here.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "treegate"
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.OTLPProtocol == "" {
		cfg.Telemetry.OTLPProtocol = "grpc"
	}
}

var levelPattern = regexp.MustCompile(`^(debug|info|warn|error)$`)

// Validate rejects configurations that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if !levelPattern.MatchString(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format %q is not json or console", c.Logging.Format)
	}
	if c.Telemetry.OTLPProtocol != "grpc" && c.Telemetry.OTLPProtocol != "http" {
		return fmt.Errorf("telemetry.otlp_protocol %q is not grpc or http", c.Telemetry.OTLPProtocol)
	}
	for name, v := range map[string]int64{
		"limits.max_file_size":   c.Limits.MaxFileSize,
		"limits.max_total_size":  c.Limits.MaxTotalSize,
		"limits.max_file_count":  c.Limits.MaxFileCount,
		"limits.max_ast_depth":   int64(c.Limits.MaxASTDepth),
		"limits.max_ast_nodes":   int64(c.Limits.MaxASTNodes),
		"parser.max_line_length": int64(c.Parser.MaxLineLength),
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// SecurityConfig assembles the gating-layer configuration from the tree.
func (c *Config) SecurityConfig() security.Config {
	return security.Config{
		Paths: securefs.Options{
			AllowedRoots:    c.Security.AllowedRoots,
			MaxPathLength:   c.Security.MaxPathLength,
			ResolveSymlinks: c.Security.ResolveSymlinks,
			RequireExists:   c.Security.RequireExists,
		},
		Sanitize: sanitize.Options{
			MaxStringLength: c.Security.MaxStringLength,
			MaxArrayLength:  c.Security.MaxArrayLength,
		},
		Limits: limits.Config{
			MaxFileSize:             c.Limits.MaxFileSize,
			MaxTotalSize:            c.Limits.MaxTotalSize,
			MaxProcessingTime:       c.Limits.MaxProcessingTime,
			MaxFileCount:            c.Limits.MaxFileCount,
			MaxConcurrentOperations: c.Limits.MaxConcurrentOperations,
			MaxMemoryUsage:          c.Limits.MaxMemoryUsage,
			MemoryCheckInterval:     c.Limits.MemoryCheckInterval,
			MaxASTDepth:             c.Limits.MaxASTDepth,
			MaxASTNodes:             c.Limits.MaxASTNodes,
			MaxDirectoryDepth:       c.Limits.MaxDirectoryDepth,
			MaxDirectoriesScanned:   c.Limits.MaxDirectoriesScanned,
		},
		Parser: sandbox.Config{
			ParseTimeout:     c.Parser.ParseTimeout,
			MaxParseAttempts: c.Parser.MaxParseAttempts,
			MaxLineLength:    c.Parser.MaxLineLength,
		},
	}
}
