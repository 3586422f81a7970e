// Package sandbox wraps source parsing with defensive gating.
//
// Sandboxing here means input and resource gating around the parser, not
// OS-level process isolation. Each Parse call runs a fixed pipeline:
// admission, size check, safety precheck, parse under a deadline, one
// permissive retry on a recoverable syntax failure, structural validation
// of the produced tree, success accounting. The admitted operation is
// released on every exit path.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
	"github.com/fyrsmithlabs/treegate/pkg/limits"
)

// Defaults for the parser layer.
const (
	DefaultParseTimeout     = 5 * time.Second
	DefaultMaxParseAttempts = 2
	DefaultMaxLineLength    = 10000
)

// SourceKind reports where the parsed text came from.
type SourceKind string

const (
	SourceFile   SourceKind = "file"
	SourceMemory SourceKind = "memory"
)

// suspiciousConstructs are scanned for before parsing. The scan is
// informational only: analysis never executes the input, so parsing text
// containing these shapes is not itself unsafe, and the scan never blocks
// parsing.
var suspiciousConstructs = []struct {
	name string
	re   *regexp.Regexp
}{
	{"dynamic execution", regexp.MustCompile(`\bexec\.Command\s*\(|\bsyscall\.Exec\s*\(|\bplugin\.Open\s*\(`)},
	{"unsafe pointer access", regexp.MustCompile(`\bunsafe\.Pointer\b`)},
	{"process environment access", regexp.MustCompile(`\bos\.(Environ|Setenv|Getenv)\s*\(`)},
	{"linkname directive", regexp.MustCompile(`//go:linkname\b`)},
}

// Inspector runs an additional advisory scan over source text before
// parsing. Findings are surfaced in the result metadata; they never block.
type Inspector interface {
	Inspect(path, source string) []string
}

// Config holds the parser-layer ceilings.
type Config struct {
	// ParseTimeout bounds one parse attempt.
	ParseTimeout time.Duration
	// MaxParseAttempts bounds strict-then-permissive retries.
	MaxParseAttempts int
	// MaxLineLength rejects any single line longer than this before the
	// grammar is invoked.
	MaxLineLength int
}

func (c Config) withDefaults() Config {
	if c.ParseTimeout <= 0 {
		c.ParseTimeout = DefaultParseTimeout
	}
	if c.MaxParseAttempts <= 0 {
		c.MaxParseAttempts = DefaultMaxParseAttempts
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	return c
}

// Metadata describes a successful parse.
type Metadata struct {
	ParseTime  time.Duration    `json:"parse_time"`
	TreeStats  limits.TreeStats `json:"tree_stats"`
	SourceKind SourceKind       `json:"source_kind"`
	InMemory   bool             `json:"in_memory"`
	Attempts   int              `json:"attempts"`
	// Advisories are informational findings from the safety precheck.
	Advisories []string `json:"advisories,omitempty"`
}

// Result is a parsed tree plus metadata, owned by the caller.
type Result struct {
	File *ast.File
	Fset *token.FileSet
	Meta Metadata
}

// Stats counts parser outcomes since construction or the last Reset.
type Stats struct {
	Parses    int64 `json:"parses"`
	Failures  int64 `json:"failures"`
	Retries   int64 `json:"retries"`
	Timeouts  int64 `json:"timeouts"`
	LastParse int64 `json:"last_parse_unix_ms"`
}

// Parser gates a source-to-syntax-tree transformation behind the limiter.
// Safe for concurrent use.
type Parser struct {
	cfg       Config
	limiter   *limits.Limiter
	logger    *zap.Logger
	inspector Inspector

	mu    sync.Mutex
	stats Stats
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger attaches a logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInspector attaches an advisory content inspector.
func WithInspector(i Inspector) Option {
	return func(p *Parser) {
		p.inspector = i
	}
}

// New creates a Parser bound to a limiter.
func New(cfg Config, limiter *limits.Limiter, opts ...Option) (*Parser, error) {
	if limiter == nil {
		return nil, fmt.Errorf("limiter is required")
	}
	p := &Parser{
		cfg:     cfg.withDefaults(),
		limiter: limiter,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse gates and parses one source unit. When source is empty the file at
// path is read from disk; otherwise source is parsed in memory and path
// serves only as the position label.
func (p *Parser) Parse(ctx context.Context, path, source string) (*Result, error) {
	opID, err := p.limiter.StartOperation("")
	if err != nil {
		return nil, fmt.Errorf("admission: %w", err)
	}
	// Release on every exit path, success or failure.
	defer func() {
		if _, endErr := p.limiter.EndOperation(opID); endErr != nil {
			p.logger.Warn("releasing parse operation", zap.Error(endErr))
		}
	}()

	res, err := p.parseAdmitted(ctx, opID, path, source)
	if err != nil {
		p.bumpFailure()
		return nil, err
	}
	return res, nil
}

func (p *Parser) parseAdmitted(ctx context.Context, opID, path, source string) (*Result, error) {
	kind := SourceMemory
	if source == "" {
		if err := p.limiter.CheckFileSize(path); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", fault.ErrInvalidInput, path, err)
		}
		source = string(raw)
		kind = SourceFile
	} else if err := p.limiter.CheckSize(int64(len(source))); err != nil {
		return nil, err
	}

	advisories, err := p.precheck(path, source)
	if err != nil {
		return nil, err
	}

	if err := p.limiter.CheckOperationTimeout(opID); err != nil {
		return nil, err
	}

	start := time.Now()
	file, fset, attempts, err := p.parseWithDeadline(ctx, path, source)
	if err != nil {
		return nil, err
	}
	parseTime := time.Since(start)

	treeStats, err := p.limiter.ValidateAST(file, 0)
	if err != nil {
		// Re-wrap so callers see a parse-stage failure without losing the
		// limiter classification.
		return nil, fmt.Errorf("structural validation of %s: %w", path, err)
	}

	if err := p.limiter.RecordFileProcessed(path, int64(len(source))); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.stats.Parses++
	if attempts > 1 {
		p.stats.Retries++
	}
	p.stats.LastParse = time.Now().UnixMilli()
	p.mu.Unlock()

	return &Result{
		File: file,
		Fset: fset,
		Meta: Metadata{
			ParseTime:  parseTime,
			TreeStats:  treeStats,
			SourceKind: kind,
			InMemory:   kind == SourceMemory,
			Attempts:   attempts,
			Advisories: advisories,
		},
	}, nil
}

// precheck runs the cheap safety guards: NUL bytes and oversized lines
// reject; the suspicious-construct scan is advisory and never blocks.
func (p *Parser) precheck(path, source string) ([]string, error) {
	if strings.ContainsRune(source, 0) {
		return nil, fmt.Errorf("%w: source contains NUL byte", fault.ErrParseFailure)
	}

	lineStart := 0
	for i := 0; i <= len(source); i++ {
		if i == len(source) || source[i] == '\n' {
			if lineLen := i - lineStart; lineLen > p.cfg.MaxLineLength {
				return nil, fault.Exceeded("line length",
					int64(p.cfg.MaxLineLength), int64(lineLen), "chars")
			}
			lineStart = i + 1
		}
	}

	var advisories []string
	for _, sc := range suspiciousConstructs {
		if sc.re.MatchString(source) {
			advisories = append(advisories, sc.name)
		}
	}
	if p.inspector != nil {
		advisories = append(advisories, p.inspector.Inspect(path, source)...)
	}
	if len(advisories) > 0 {
		p.logger.Info("advisory findings in source",
			zap.String("path", path),
			zap.Strings("findings", advisories),
		)
	}
	return advisories, nil
}

// parseResult carries the attempt outcome across the deadline race.
type parseResult struct {
	file     *ast.File
	fset     *token.FileSet
	attempts int
	err      error
}

// parseWithDeadline races the parse against the configured timeout. The
// race only stops the caller from waiting: go/parser is not preemptible, so
// a timed-out attempt keeps running in its goroutine and its result is
// discarded when it lands.
func (p *Parser) parseWithDeadline(ctx context.Context, path, source string) (*ast.File, *token.FileSet, int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ParseTimeout)
	defer cancel()

	done := make(chan parseResult, 1)
	go func() {
		done <- p.parseAttempts(path, source)
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, nil, res.attempts, res.err
		}
		return res.file, res.fset, res.attempts, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.stats.Timeouts++
		p.mu.Unlock()
		return nil, nil, 0, fault.Deadline("parse of "+path,
			p.cfg.ParseTimeout.Milliseconds(), p.cfg.ParseTimeout.Milliseconds())
	}
}

// parseAttempts runs the strict attempt and, on a recoverable syntax
// failure, one permissive retry that tolerates partial trees.
func (p *Parser) parseAttempts(path, source string) parseResult {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, source,
		parser.ParseComments|parser.SkipObjectResolution)
	if err == nil {
		return parseResult{file: file, fset: fset, attempts: 1}
	}

	if !recoverable(err) || p.cfg.MaxParseAttempts < 2 {
		return parseResult{attempts: 1,
			err: fmt.Errorf("%w: %v", fault.ErrParseFailure, err)}
	}

	// Permissive retry: collect all errors and accept the partial tree the
	// parser still produced. A second failure is terminal.
	p.logger.Debug("strict parse failed, retrying permissively",
		zap.String("path", path), zap.Error(err))

	retryFset := token.NewFileSet()
	file, retryErr := parser.ParseFile(retryFset, path, source,
		parser.ParseComments|parser.SkipObjectResolution|parser.AllErrors)
	if file == nil {
		return parseResult{attempts: 2,
			err: fmt.Errorf("%w after retry: %v", fault.ErrParseFailure, retryErr)}
	}
	return parseResult{file: file, fset: retryFset, attempts: 2}
}

// recoverable classifies a first-attempt failure: syntax errors from the
// scanner may still yield a usable partial tree under the permissive
// configuration.
func recoverable(err error) bool {
	var list scanner.ErrorList
	return errors.As(err, &list)
}

// Stats returns a snapshot of the parser counters.
func (p *Parser) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ResetStats zeroes the parser counters.
func (p *Parser) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Stats{}
}

func (p *Parser) bumpFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Failures++
}
