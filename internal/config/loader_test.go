package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a fresh temp dir and returns the treegate
// config dir inside it, created with the expected permissions.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".config", "treegate")
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	return configDir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFileValidYAML(t *testing.T) {
	configDir := setupTestHome(t)
	path := writeConfig(t, configDir, `server:
  enabled: true
  port: 9191

security:
  allowed_roots:
    - /srv/code
  resolve_symlinks: true

limits:
  max_file_size: 1048576
  max_ast_depth: 25

parser:
  parse_timeout: 2s
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, []string{"/srv/code"}, cfg.Security.AllowedRoots)
	assert.True(t, cfg.Security.ResolveSymlinks)
	assert.Equal(t, int64(1048576), cfg.Limits.MaxFileSize)
	assert.Equal(t, 25, cfg.Limits.MaxASTDepth)
	assert.Equal(t, "2s", cfg.Parser.ParseTimeout.String())

	// Defaults fill what the file omitted.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "treegate", cfg.Telemetry.ServiceName)
}

func TestLoadWithFileEnvironmentOverride(t *testing.T) {
	configDir := setupTestHome(t)
	path := writeConfig(t, configDir, "server:\n  port: 9191\n", 0o600)

	t.Setenv("TREEGATE_SERVER_PORT", "9999")
	t.Setenv("TREEGATE_LOGGING_LEVEL", "debug")
	t.Setenv("TREEGATE_LIMITS_MAX_FILE_COUNT", "42")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int64(42), cfg.Limits.MaxFileCount)
}

func TestLoadWithFileMissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "grpc", cfg.Telemetry.OTLPProtocol)
}

func TestLoadWithFileInvalidYAML(t *testing.T) {
	configDir := setupTestHome(t)
	path := writeConfig(t, configDir, "server: [unclosed\n", 0o600)

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFilePathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("server:\n  port: 1\n"), 0o600))

	_, err := LoadWithFile(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path validation failed")
}

func TestLoadWithFileInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}
	configDir := setupTestHome(t)
	path := writeConfig(t, configDir, "server:\n  port: 9191\n", 0o644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFileTooLarge(t *testing.T) {
	configDir := setupTestHome(t)
	big := "# pad\n" + strings.Repeat("# padding line\n", maxConfigFileSize/8)
	path := writeConfig(t, configDir, big, 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadWithFileValidationFailure(t *testing.T) {
	configDir := setupTestHome(t)
	path := writeConfig(t, configDir, "logging:\n  level: loud\n", 0o600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TREEGATE_SERVER_PORT", "server.port"},
		{"TREEGATE_LOGGING_LEVEL", "logging.level"},
		{"TREEGATE_LIMITS_MAX_FILE_SIZE", "limits.max_file_size"},
		{"TREEGATE_PARSER_PARSE_TIMEOUT", "parser.parse_timeout"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransform(tt.in))
	}
}
