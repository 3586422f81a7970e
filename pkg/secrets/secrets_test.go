package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testToken assembles a GitHub-PAT-shaped token at runtime so the test file
// itself does not trip secret scanners.
func testToken() string {
	return "ghp_" + strings.Repeat("A1b2C3d4E5", 4)[:36]
}

func TestScannerFindsTokens(t *testing.T) {
	s, err := NewScanner(nil)
	require.NoError(t, err)

	content := "package cfg\n\nconst apiToken = \"" + testToken() + "\"\n"
	findings := s.Scan(content)
	require.NotEmpty(t, findings)
	assert.Equal(t, "github-pat", findings[0].RuleID)
	assert.Equal(t, 3, findings[0].Line)
}

func TestScannerCleanContent(t *testing.T) {
	s, err := NewScanner(nil)
	require.NoError(t, err)

	findings := s.Scan("package ui\n\nfunc Render() string { return \"label\" }\n")
	assert.Empty(t, findings)
}

func TestScannerInspectOmitsSecretValue(t *testing.T) {
	s, err := NewScanner(nil)
	require.NoError(t, err)

	token := testToken()
	notes := s.Inspect("cfg.go", "token := \""+token+"\"\n")
	require.NotEmpty(t, notes)
	for _, note := range notes {
		assert.NotContains(t, note, token)
	}
}

func TestScannerAllowlistSuppresses(t *testing.T) {
	s, err := NewScanner(&Allowlist{Regexes: []string{"ghp_[A-Za-z0-9]+"}})
	require.NoError(t, err)

	findings := s.Scan("token := \"" + testToken() + "\"\n")
	assert.Empty(t, findings)
}

func TestLoadAllowlist(t *testing.T) {
	t.Run("missing file is empty allowlist", func(t *testing.T) {
		al, err := LoadAllowlist(filepath.Join(t.TempDir(), "absent.toml"))
		require.NoError(t, err)
		assert.Empty(t, al.Paths)
		assert.Empty(t, al.Regexes)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "allowlist.toml")
		require.NoError(t, os.WriteFile(path, []byte(
			"[allowlist]\npaths = [\"testdata/.*\"]\nregexes = [\"EXAMPLE_[0-9]+\"]\n"), 0o600))

		al, err := LoadAllowlist(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"testdata/.*"}, al.Paths)
		assert.Equal(t, []string{"EXAMPLE_[0-9]+"}, al.Regexes)
	})

	t.Run("invalid TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.toml")
		require.NoError(t, os.WriteFile(path, []byte("[allowlist\n"), 0o600))

		_, err := LoadAllowlist(path)
		assert.ErrorIs(t, err, ErrInvalidTOML)
	})

	t.Run("invalid regex", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "badre.toml")
		require.NoError(t, os.WriteFile(path, []byte(
			"[allowlist]\nregexes = [\"([a-z\"]\n"), 0o600))

		_, err := LoadAllowlist(path)
		assert.ErrorIs(t, err, ErrInvalidRegex)
	})
}
