package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/analyzer"
	"github.com/fyrsmithlabs/treegate/pkg/sandbox"
	"github.com/fyrsmithlabs/treegate/pkg/sanitize"
	"github.com/fyrsmithlabs/treegate/pkg/security"
)

type analyzeInput struct {
	RootPath        string `json:"root_path" jsonschema:"required,Directory or file to analyze. Must resolve inside an allowed root."`
	Component       string `json:"component" jsonschema:"required,Name of the top-level declaration to find (struct, interface, function, or value)."`
	Attribute       string `json:"attribute" jsonschema:"required,Attribute to look up on the component (struct field, interface method, or parameter name)."`
	ExpectedValue   string `json:"expected_value,omitempty" jsonschema:"Optional type string to compare the attribute against."`
	ExactMatch      bool   `json:"exact_match,omitempty" jsonschema:"Require exact type equality instead of substring match."`
	IncludeChildren bool   `json:"include_children,omitempty" jsonschema:"Descend into subdirectories."`
}

type analyzeOutput struct {
	Found        bool                   `json:"found" jsonschema:"Whether the component exists under the root"`
	Component    *analyzer.Component    `json:"component,omitempty" jsonschema:"The found declaration and its attributes"`
	Attribute    *analyzer.Attribute    `json:"attribute,omitempty" jsonschema:"The requested attribute when present"`
	Matched      bool                   `json:"matched" jsonschema:"Expected-value comparison result"`
	FilesScanned int                    `json:"files_scanned" jsonschema:"Number of files parsed"`
	Skipped      []security.SkippedFile `json:"skipped,omitempty" jsonschema:"Files skipped due to parse failures"`
	Advisories   []string               `json:"advisories,omitempty" jsonschema:"Informational findings from the safety precheck"`
}

type parseInput struct {
	Path   string `json:"path,omitempty" jsonschema:"File to parse from disk. Must resolve inside an allowed root. Ignored as a location when source is given."`
	Source string `json:"source,omitempty" jsonschema:"Source text to parse in memory; path then only labels positions."`
}

type parseOutput struct {
	Package    string             `json:"package" jsonschema:"Declared package name"`
	NodeCount  int                `json:"node_count" jsonschema:"Total syntax-tree nodes"`
	MaxDepth   int                `json:"max_depth" jsonschema:"Maximum syntax-tree depth"`
	Attempts   int                `json:"attempts" jsonschema:"Parse attempts used (2 means the permissive retry ran)"`
	ParseTime  string             `json:"parse_time" jsonschema:"Wall time spent parsing"`
	SourceKind sandbox.SourceKind `json:"source_kind" jsonschema:"Whether input came from file or memory"`
	Advisories []string           `json:"advisories,omitempty" jsonschema:"Informational findings from the safety precheck"`
}

type statsInput struct{}

type resetInput struct{}

type resetOutput struct {
	Reset bool `json:"reset" jsonschema:"Always true on success"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_component",
		Description: "Find a named top-level declaration under a root path and extract its attributes. All inputs are sanitized and the root path is containment-checked before any file is read.",
	}, s.handleAnalyze)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_source",
		Description: "Parse one source unit through the sandboxed parser and report tree statistics. Accepts a contained file path or in-memory source text.",
	}, s.handleParse)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "usage_stats",
		Description: "Report the resource ledger and parser counters: files, bytes, operations, directories, memory, parse outcomes.",
	}, s.handleStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reset_limits",
		Description: "Reset the usage counters between batch runs. Active operations survive.",
	}, s.handleReset)
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest, args analyzeInput) (*mcp.CallToolResult, analyzeOutput, error) {
	bag := map[string]any{
		sanitize.KeyRootPath:  args.RootPath,
		sanitize.KeyComponent: args.Component,
		sanitize.KeyAttribute: args.Attribute,
	}
	if args.ExpectedValue != "" {
		bag[sanitize.KeyExpectedValue] = args.ExpectedValue
	}
	if args.ExactMatch {
		bag[sanitize.KeyExactMatch] = true
	}
	if args.IncludeChildren {
		bag[sanitize.KeyIncludeChildren] = true
	}

	res, err := s.sec.Analyze(ctx, bag)
	if err != nil {
		s.logger.Warn("analyze_component rejected",
			zap.String("component", args.Component), zap.Error(err))
		return nil, analyzeOutput{}, err
	}

	return nil, analyzeOutput{
		Found:        res.Found,
		Component:    res.Component,
		Attribute:    res.Attribute,
		Matched:      res.Matched,
		FilesScanned: res.FilesScanned,
		Skipped:      res.Skipped,
		Advisories:   res.Advisories,
	}, nil
}

func (s *Server) handleParse(ctx context.Context, req *mcp.CallToolRequest, args parseInput) (*mcp.CallToolResult, parseOutput, error) {
	path := args.Path
	if args.Source != "" && path == "" {
		path = "source.go"
	}

	res, err := s.sec.SandboxedParse(ctx, path, args.Source)
	if err != nil {
		s.logger.Warn("parse_source rejected", zap.String("path", path), zap.Error(err))
		return nil, parseOutput{}, err
	}

	return nil, parseOutput{
		Package:    res.File.Name.Name,
		NodeCount:  res.Meta.TreeStats.NodeCount,
		MaxDepth:   res.Meta.TreeStats.MaxDepth,
		Attempts:   res.Meta.Attempts,
		ParseTime:  res.Meta.ParseTime.String(),
		SourceKind: res.Meta.SourceKind,
		Advisories: res.Meta.Advisories,
	}, nil
}

func (s *Server) handleStats(ctx context.Context, req *mcp.CallToolRequest, args statsInput) (*mcp.CallToolResult, security.Stats, error) {
	return nil, s.sec.Stats(), nil
}

func (s *Server) handleReset(ctx context.Context, req *mcp.CallToolRequest, args resetInput) (*mcp.CallToolResult, resetOutput, error) {
	s.sec.Reset()
	return nil, resetOutput{Reset: true}, nil
}
