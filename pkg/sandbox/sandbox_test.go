package sandbox

import (
	"context"
	"go/ast"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
	"github.com/fyrsmithlabs/treegate/pkg/limits"
)

const validSource = `package ui

type Button struct {
	Label   string
	OnClick func()
}

func Render(b Button) string {
	return b.Label
}
`

func newParser(t *testing.T, cfg Config, limCfg limits.Config, opts ...Option) (*Parser, *limits.Limiter) {
	t.Helper()
	lim := limits.New(limCfg)
	t.Cleanup(lim.Destroy)
	p, err := New(cfg, lim, opts...)
	require.NoError(t, err)
	return p, lim
}

func TestParseValidSource(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{})

	res, err := p.Parse(context.Background(), "button.go", validSource)
	require.NoError(t, err)
	require.NotNil(t, res.File)
	assert.Equal(t, "ui", res.File.Name.Name)
	assert.Equal(t, SourceMemory, res.Meta.SourceKind)
	assert.True(t, res.Meta.InMemory)
	assert.Equal(t, 1, res.Meta.Attempts)
	assert.Positive(t, res.Meta.TreeStats.NodeCount)

	// Reported node count matches an independent structural count.
	independent := 0
	ast.Inspect(res.File, func(n ast.Node) bool {
		if n != nil {
			independent++
		}
		return true
	})
	assert.Equal(t, independent, res.Meta.TreeStats.NodeCount)
}

func TestParseFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "button.go")
	require.NoError(t, os.WriteFile(path, []byte(validSource), 0o600))

	p, lim := newParser(t, Config{}, limits.Config{})

	res, err := p.Parse(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, SourceFile, res.Meta.SourceKind)
	assert.False(t, res.Meta.InMemory)

	stats := lim.UsageStats()
	assert.Equal(t, int64(1), stats.Files.Processed)
	assert.Equal(t, int64(len(validSource)), stats.Files.SizeProcessed)
}

func TestParseNulByteRejectedBeforeGrammar(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{})

	_, err := p.Parse(context.Background(), "bad.go", "package p\x00")
	assert.ErrorIs(t, err, fault.ErrParseFailure)
}

func TestParseOversizedLineRejected(t *testing.T) {
	p, _ := newParser(t, Config{MaxLineLength: 40}, limits.Config{})

	src := "package p\n// " + strings.Repeat("x", 80) + "\n"
	_, err := p.Parse(context.Background(), "long.go", src)
	require.ErrorIs(t, err, fault.ErrResourceExceeded)

	le, ok := fault.AsLimit(err)
	require.True(t, ok)
	assert.Equal(t, int64(40), le.Limit)
}

func TestParseSizeCeilingInMemory(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{MaxFileSize: 16})

	_, err := p.Parse(context.Background(), "big.go", validSource)
	assert.ErrorIs(t, err, fault.ErrResourceExceeded)
}

func TestParsePermissiveRetryOnSyntaxError(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{})

	// Broken tail after a valid declaration: the strict parse fails, the
	// permissive retry still yields a usable partial tree.
	src := "package ui\n\nfunc Render() string { return \"x\" }\n\nfunc broken( {\n"
	res, err := p.Parse(context.Background(), "broken.go", src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Meta.Attempts)
	require.NotNil(t, res.File)
	assert.Equal(t, "ui", res.File.Name.Name)
}

func TestParseTerminalFailure(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{})

	_, err := p.Parse(context.Background(), "garbage.go", "\x01\x02 not go at all")
	require.ErrorIs(t, err, fault.ErrParseFailure)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Failures)
	assert.Zero(t, stats.Parses)
}

func TestParseStructuralCeilingRewrapped(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{MaxASTNodes: 5})

	_, err := p.Parse(context.Background(), "deep.go", validSource)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrResourceExceeded)
	assert.Contains(t, err.Error(), "structural validation")
}

func TestParseReleasesOperationOnFailure(t *testing.T) {
	p, lim := newParser(t, Config{}, limits.Config{MaxConcurrentOperations: 1})

	_, err := p.Parse(context.Background(), "bad.go", "package p\x00")
	require.Error(t, err)

	// The slot was released despite the failure.
	assert.Zero(t, lim.UsageStats().Operations.Current)

	_, err = p.Parse(context.Background(), "ok.go", validSource)
	assert.NoError(t, err)
	assert.Zero(t, lim.UsageStats().Operations.Current)
}

func TestParseAdmissionCeiling(t *testing.T) {
	p, lim := newParser(t, Config{}, limits.Config{MaxConcurrentOperations: 1})

	// Occupy the single slot out-of-band.
	_, err := lim.StartOperation("held")
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), "x.go", validSource)
	assert.ErrorIs(t, err, fault.ErrResourceExceeded)

	_, err = lim.EndOperation("held")
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), "x.go", validSource)
	assert.NoError(t, err)
}

func TestParseAdvisoriesDoNotBlock(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{})

	src := `package runner

import "os/exec"

func Run() error {
	return exec.Command("ls").Run()
}
`
	res, err := p.Parse(context.Background(), "runner.go", src)
	require.NoError(t, err)
	assert.Contains(t, res.Meta.Advisories, "dynamic execution")
}

func TestParseCustomInspector(t *testing.T) {
	insp := inspectorFunc(func(path, source string) []string {
		return []string{"custom finding"}
	})
	p, _ := newParser(t, Config{}, limits.Config{}, WithInspector(insp))

	res, err := p.Parse(context.Background(), "x.go", validSource)
	require.NoError(t, err)
	assert.Contains(t, res.Meta.Advisories, "custom finding")
}

type inspectorFunc func(path, source string) []string

func (f inspectorFunc) Inspect(path, source string) []string { return f(path, source) }

func TestParseDeadline(t *testing.T) {
	p, _ := newParser(t, Config{ParseTimeout: time.Nanosecond}, limits.Config{})

	// Large enough that the parse cannot finish before the expired
	// deadline is observed.
	src := "package p\n\nfunc f() {\n" + strings.Repeat("\tx = x + 1\n", 20000) + "}\n"
	_, err := p.Parse(context.Background(), "slow.go", src)
	require.ErrorIs(t, err, fault.ErrTimeout)
	assert.Equal(t, int64(1), p.Stats().Timeouts)
}

func TestStatsResetIndependentOfLimiter(t *testing.T) {
	p, _ := newParser(t, Config{}, limits.Config{})

	_, err := p.Parse(context.Background(), "a.go", validSource)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Stats().Parses)

	p.ResetStats()
	assert.Zero(t, p.Stats().Parses)
}
