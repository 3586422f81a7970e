package secrets

import (
	"fmt"
	"regexp"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding represents a detected secret with location information.
type Finding struct {
	RuleID   string // Gitleaks rule ID (e.g., "github-pat")
	RuleDesc string // Human-readable description
	Line     int    // Line number where the secret was found
}

// Scanner detects secrets in source text. It implements the sandbox
// inspector contract: findings are advisory and never block parsing.
//
// The underlying Gitleaks detector (800+ patterns) is built once and
// reused; construction is too expensive to repeat per file.
type Scanner struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewScanner creates a Scanner with the default Gitleaks config, filtered
// by an optional allowlist (nil to skip).
func NewScanner(allowlist *Allowlist) (*Scanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	if allowlist != nil {
		applyAllowlist(&detector.Config, allowlist)
	}
	return &Scanner{detector: detector}, nil
}

// Scan returns all secret findings in content.
func (s *Scanner) Scan(content string) []Finding {
	s.mu.Lock()
	raw := s.detector.DetectString(content)
	s.mu.Unlock()

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
		})
	}
	return findings
}

// Inspect adapts Scan to the sandbox inspector contract: one advisory
// string per finding, secret values never included.
func (s *Scanner) Inspect(path, source string) []string {
	findings := s.Scan(source)
	notes := make([]string, 0, len(findings))
	for _, f := range findings {
		notes = append(notes, fmt.Sprintf("possible secret: %s (line %d)", f.RuleID, f.Line))
	}
	return notes
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
// Patterns are pre-validated in LoadAllowlist; a compile failure here is a
// programming error.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "treegate user allowlist",
	}

	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated regex pattern failed to compile: " + pattern + ": " + err.Error())
		}
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated regex pattern failed to compile: " + pattern + ": " + err.Error())
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}

	cfg.Allowlists = append(cfg.Allowlists, global)
}
