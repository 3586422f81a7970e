package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/analyzer"
	"github.com/fyrsmithlabs/treegate/pkg/fault"
	"github.com/fyrsmithlabs/treegate/pkg/sanitize"
)

// errFound stops the directory walk once the component has been located.
var errFound = errors.New("component found")

// SkippedFile records a source file that could not be parsed during an
// analyze walk. Per-file parse failures do not abort the batch.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// AnalyzeResult is the outcome of one analyze request.
type AnalyzeResult struct {
	// Found reports whether the named component exists under the root.
	Found     bool                `json:"found"`
	Component *analyzer.Component `json:"component,omitempty"`
	// Attribute is the requested attribute when the component carries it.
	Attribute *analyzer.Attribute `json:"attribute,omitempty"`
	// Matched reports the expected-value comparison; only meaningful when
	// an expected value was supplied and the attribute exists.
	Matched      bool          `json:"matched"`
	FilesScanned int           `json:"files_scanned"`
	Skipped      []SkippedFile `json:"skipped,omitempty"`
	Advisories   []string      `json:"advisories,omitempty"`
}

// Analyze runs the full pipeline for one raw parameter bag: sanitize the
// fields, contain the root path, then walk the tree parsing each Go source
// file through the sandbox until the named component is found. The walk
// descends into subdirectories only when include_children is set.
//
// Parse failures on individual files are recorded and skipped; resource
// and timeout failures abort the whole request.
func (c *Context) Analyze(ctx context.Context, bag map[string]any) (*AnalyzeResult, error) {
	params, err := c.ValidateAndSanitize(bag)
	if err != nil {
		return nil, err
	}

	res := &AnalyzeResult{}

	info, err := os.Stat(params.RootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", fault.ErrPathNotFound, params.RootPath)
	}

	if info.IsDir() {
		err = c.scanDir(ctx, params, params.RootPath, 0, res)
	} else {
		err = c.scanFile(ctx, params, params.RootPath, res)
	}
	if err != nil && !errors.Is(err, errFound) {
		return nil, err
	}

	c.logger.Debug("analyze complete",
		zap.String("component", params.Component),
		zap.Bool("found", res.Found),
		zap.Int("files_scanned", res.FilesScanned),
	)
	return res, nil
}

func (c *Context) scanDir(ctx context.Context, params *sanitize.AnalyzeParams, dir string, depth int, res *AnalyzeResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrTimeout, err)
	}
	if err := c.limiter.TrackDirectoryTraversal(dir, depth); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", fault.ErrInvalidInput, dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		// The Go toolchain convention: dot- and underscore-prefixed trees
		// are not part of the package universe.
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		path := filepath.Join(dir, name)

		if entry.IsDir() {
			if !params.IncludeChildren {
				continue
			}
			if err := c.scanDir(ctx, params, path, depth+1, res); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(name, ".go") {
			continue
		}
		if err := c.scanFile(ctx, params, path, res); err != nil {
			return err
		}
	}
	return nil
}

// scanFile parses one file and checks it for the requested component.
// Returns errFound on a hit.
func (c *Context) scanFile(ctx context.Context, params *sanitize.AnalyzeParams, path string, res *AnalyzeResult) error {
	parsed, err := c.parser.Parse(ctx, path, "")
	if err != nil {
		// A single unparsable file does not sink the batch; any ceiling or
		// deadline breach does.
		if errors.Is(err, fault.ErrParseFailure) {
			res.Skipped = append(res.Skipped, SkippedFile{Path: path, Reason: err.Error()})
			return nil
		}
		return err
	}
	res.FilesScanned++
	res.Advisories = append(res.Advisories, parsed.Meta.Advisories...)

	comp, ok := analyzer.Find(parsed.Fset, parsed.File, params.Component)
	if !ok {
		return nil
	}

	res.Found = true
	res.Component = comp
	if attr, ok := comp.Attribute(params.Attribute); ok {
		res.Attribute = &attr
		if params.HasExpected {
			res.Matched = attr.MatchType(params.ExpectedValue, params.ExactMatch)
		}
	}
	return errFound
}
