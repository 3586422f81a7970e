// Package security is the composition root of the gating layer. A Context
// wires the path validator, input sanitizer, resource limiter and sandboxed
// parser behind a small set of entry points, replacing ad-hoc per-package
// singletons with one explicitly constructed object whose lifecycle the
// caller owns.
package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/limits"
	"github.com/fyrsmithlabs/treegate/pkg/sandbox"
	"github.com/fyrsmithlabs/treegate/pkg/sanitize"
	"github.com/fyrsmithlabs/treegate/pkg/securefs"
)

// Config aggregates the per-layer configuration. Zero values throughout
// fall back to each layer's defaults.
type Config struct {
	Paths    securefs.Options
	Sanitize sanitize.Options
	Limits   limits.Config
	Parser   sandbox.Config
}

// Option configures a Context.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	inspector sandbox.Inspector
	observer  limits.Observer
	metrics   *limits.Metrics
}

// WithLogger attaches a logger shared by all layers. Defaults to
// zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInspector attaches an advisory content inspector to the parser
// precheck.
func WithInspector(i sandbox.Inspector) Option {
	return func(o *options) { o.inspector = i }
}

// WithObserver attaches a limiter event observer.
func WithObserver(obs limits.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithMetrics attaches limiter metrics instruments.
func WithMetrics(m *limits.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Context owns one assembled gating pipeline. Safe for concurrent use.
// Destroy must be called at shutdown; Reset between batch runs.
type Context struct {
	validator *securefs.Validator
	sanitizer *sanitize.Sanitizer
	limiter   *limits.Limiter
	parser    *sandbox.Parser
	logger    *zap.Logger

	destroyOnce sync.Once
}

// New assembles a Context and starts the background memory sampler. The
// sampler stops when Destroy is called.
func New(cfg Config, opts ...Option) (*Context, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	validator, err := securefs.New(cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("building path validator: %w", err)
	}

	limOpts := []limits.Option{limits.WithLogger(o.logger)}
	if o.observer != nil {
		limOpts = append(limOpts, limits.WithObserver(o.observer))
	}
	if o.metrics != nil {
		limOpts = append(limOpts, limits.WithMetrics(o.metrics))
	}
	limiter := limits.New(cfg.Limits, limOpts...)

	parserOpts := []sandbox.Option{sandbox.WithLogger(o.logger)}
	if o.inspector != nil {
		parserOpts = append(parserOpts, sandbox.WithInspector(o.inspector))
	}
	parser, err := sandbox.New(cfg.Parser, limiter, parserOpts...)
	if err != nil {
		limiter.Destroy()
		return nil, fmt.Errorf("building parser: %w", err)
	}

	c := &Context{
		validator: validator,
		sanitizer: sanitize.New(cfg.Sanitize),
		limiter:   limiter,
		parser:    parser,
		logger:    o.logger,
	}
	c.limiter.StartMemoryMonitor()
	return c, nil
}

// Validator exposes the path layer for callers that validate paths outside
// an analyze request.
func (c *Context) Validator() *securefs.Validator { return c.validator }

// Sanitizer exposes the field-validation layer.
func (c *Context) Sanitizer() *sanitize.Sanitizer { return c.sanitizer }

// Limiter exposes the usage ledger.
func (c *Context) Limiter() *limits.Limiter { return c.limiter }

// ValidateAndSanitize checks a raw analyze parameter bag: field-level
// sanitization first, then containment of the root path against the
// allowed roots. The returned params carry the absolute resolved root.
func (c *Context) ValidateAndSanitize(bag map[string]any) (*sanitize.AnalyzeParams, error) {
	params, err := c.sanitizer.SanitizeAnalyzeParams(bag)
	if err != nil {
		return nil, err
	}

	resolved, err := c.validator.ValidatePath(params.RootPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sanitize.KeyRootPath, err)
	}
	params.RootPath = resolved
	return params, nil
}

// SandboxedParse parses one source unit through the full gating pipeline.
// When source is empty, path is validated against the allowed roots and
// read from disk; otherwise source is parsed in memory and path serves
// only as the position label.
func (c *Context) SandboxedParse(ctx context.Context, path, source string) (*sandbox.Result, error) {
	if source == "" {
		resolved, err := c.validator.ValidatePath(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return c.parser.Parse(ctx, path, source)
}

// Stats is the aggregate view over the ledger and the parser counters.
type Stats struct {
	Usage     limits.UsageStats `json:"usage"`
	Parser    sandbox.Stats     `json:"parser"`
	Timestamp time.Time         `json:"timestamp"`
}

// Stats returns a point-in-time aggregate snapshot.
func (c *Context) Stats() Stats {
	return Stats{
		Usage:     c.limiter.UsageStats(),
		Parser:    c.parser.Stats(),
		Timestamp: time.Now(),
	}
}

// Reset clears the ledger counters and the parser counters between batch
// runs. Active operations survive, matching the limiter's Reset contract.
func (c *Context) Reset() {
	c.limiter.Reset()
	c.parser.ResetStats()
	c.logger.Info("security context reset")
}

// Destroy stops the memory sampler and tears down the limiter. Idempotent.
func (c *Context) Destroy() {
	c.destroyOnce.Do(func() {
		c.limiter.StopMemoryMonitor()
		c.limiter.Destroy()
		c.logger.Info("security context destroyed")
	})
}
