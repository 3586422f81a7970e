// Package sanitize validates and cleans caller-supplied parameters before
// they reach the analysis pipeline.
//
// One validator exists per semantic field (component name, attribute name,
// search value, regex pattern, glob pattern, generic string). Every
// validator applies the same ordered checks: non-empty, max length, global
// deny-pattern scan, field allow-pattern, trim. The deny scan rejects
// template-injection markers, dynamic-code-execution call shapes,
// prototype/constructor access tokens, parent-path segments, script tags
// and privileged URL schemes across all fields.
package sanitize

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

// Defaults for the sanitizer ceilings.
const (
	DefaultMaxStringLength = 1000
	DefaultMaxArrayLength  = 100

	// maxCompositeDepth bounds recursion over nested composite values so a
	// deeply nested bag cannot exhaust the stack.
	maxCompositeDepth = 64
)

// Field allow-patterns. A field value must match its pattern before the
// deny scan runs.
var (
	componentNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
	attributeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	globPattern          = regexp.MustCompile(`^[A-Za-z0-9_\-*?./\[\]{},]+$`)
	// searchValuePattern admits printable text; control characters are out.
	searchValuePattern = regexp.MustCompile(`^[^\x00-\x08\x0b\x0c\x0e-\x1f]*$`)
)

// denyRule names one injection shape rejected across all fields.
type denyRule struct {
	name   string
	re     *regexp.Regexp
	pathOK bool
}

// denyRules is a heuristic injection denylist, not a soundness guarantee.
// Rules marked pathOK are skipped for path-shaped fields: legitimate
// relative paths contain parent segments, and containment belongs to the
// path layer, which classifies an escape as traversal rather than as
// dangerous content.
var denyRules = []denyRule{
	{name: "template injection", re: regexp.MustCompile(`\$\{|\{\{|<%`)},
	{name: "dynamic code execution", re: regexp.MustCompile(`(?i)\b(eval|exec|execfile|compile|Function|setTimeout|setInterval|system|popen)\s*\(`)},
	{name: "prototype access", re: regexp.MustCompile(`__proto__|\bconstructor\s*[\[.(]|\bprototype\s*[\[.]`)},
	{name: "parent path segment", re: regexp.MustCompile(`\.\.[\\/]|^\.\.$`), pathOK: true},
	{name: "script tag", re: regexp.MustCompile(`(?i)<\s*/?\s*script`)},
	{name: "privileged url scheme", re: regexp.MustCompile(`(?i)\b(javascript|vbscript|data|file):`)},
}

// redosRule names one catastrophic-backtracking shape. Shape matching only;
// the parse deadline is the real defense.
type redosRule struct {
	name string
	re   *regexp.Regexp
}

var redosRules = []redosRule{
	{"lookaround", regexp.MustCompile(`\(\?=|\(\?!|\(\?<=|\(\?<!`)},
	{"nested quantifier", regexp.MustCompile(`\([^()]*[+*][^()]*\)\s*[+*]`)},
	{"unbounded repetition of group", regexp.MustCompile(`\([^()]*\)\s*\{\d+,\}`)},
	{"repeated wildcard sequence", regexp.MustCompile(`(\.\*|\.\+).*(\.\*|\.\+)`)},
}

// Options configures a Sanitizer. Zero values fall back to the defaults.
type Options struct {
	// MaxStringLength bounds every scalar field.
	MaxStringLength int
	// MaxArrayLength bounds array lengths and object key counts inside
	// composite values.
	MaxArrayLength int
	// FieldPatterns overrides the allow-pattern for a named field
	// ("component", "attribute", "glob", "search").
	FieldPatterns map[string]*regexp.Regexp
}

// Sanitizer validates scalar and composite parameters. Immutable after
// construction; safe for concurrent use.
type Sanitizer struct {
	maxStringLength int
	maxArrayLength  int
	patterns        map[string]*regexp.Regexp
}

// New creates a Sanitizer with the given options.
func New(opts Options) *Sanitizer {
	maxStr := opts.MaxStringLength
	if maxStr <= 0 {
		maxStr = DefaultMaxStringLength
	}
	maxArr := opts.MaxArrayLength
	if maxArr <= 0 {
		maxArr = DefaultMaxArrayLength
	}

	patterns := map[string]*regexp.Regexp{
		"component": componentNamePattern,
		"attribute": attributeNamePattern,
		"glob":      globPattern,
		"search":    searchValuePattern,
	}
	for name, re := range opts.FieldPatterns {
		if re != nil {
			patterns[name] = re
		}
	}

	return &Sanitizer{
		maxStringLength: maxStr,
		maxArrayLength:  maxArr,
		patterns:        patterns,
	}
}

// sanitizeField runs the ordered check chain for one named field.
func (s *Sanitizer) sanitizeField(field, value string, allow *regexp.Regexp) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: %s is empty", fault.ErrInvalidInput, field)
	}
	if len(value) > s.maxStringLength {
		return "", fmt.Errorf("%w: %s length %d exceeds %d",
			fault.ErrInvalidInput, field, len(value), s.maxStringLength)
	}
	// Deny scan runs before the allow-pattern so injection attempts are
	// reported as dangerous content, not as a format mismatch.
	if err := s.denyScan(field, value); err != nil {
		return "", err
	}
	if allow != nil && !allow.MatchString(value) {
		return "", fmt.Errorf("%w: %s has invalid format", fault.ErrInvalidInput, field)
	}
	return strings.TrimSpace(value), nil
}

// denyScan rejects values matching any injection shape.
func (s *Sanitizer) denyScan(field, value string) error {
	for _, rule := range denyRules {
		if rule.re.MatchString(value) {
			return fmt.Errorf("%w: %s matches %s pattern",
				fault.ErrDangerousContent, field, rule.name)
		}
	}
	return nil
}

// SanitizePath validates a raw path parameter: non-empty, bounded length,
// no embedded NUL, and the injection denylist minus the rules path syntax
// legitimately trips. Containment against allowed roots is not checked
// here; that is the path validator's job.
func (s *Sanitizer) SanitizePath(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: path is empty", fault.ErrInvalidInput)
	}
	if len(value) > s.maxStringLength {
		return "", fmt.Errorf("%w: path length %d exceeds %d",
			fault.ErrInvalidInput, len(value), s.maxStringLength)
	}
	if strings.ContainsRune(value, 0) {
		return "", fmt.Errorf("%w: path contains NUL byte", fault.ErrInvalidInput)
	}
	for _, rule := range denyRules {
		if rule.pathOK {
			continue
		}
		if rule.re.MatchString(value) {
			return "", fmt.Errorf("%w: path matches %s pattern",
				fault.ErrDangerousContent, rule.name)
		}
	}
	return strings.TrimSpace(value), nil
}

// SanitizeComponentName validates a component identifier.
func (s *Sanitizer) SanitizeComponentName(name string) (string, error) {
	return s.sanitizeField("component name", name, s.patterns["component"])
}

// SanitizeAttributeName validates an attribute or prop identifier.
func (s *Sanitizer) SanitizeAttributeName(name string) (string, error) {
	return s.sanitizeField("attribute name", name, s.patterns["attribute"])
}

// SanitizeSearchValue validates a free-text search value.
func (s *Sanitizer) SanitizeSearchValue(value string) (string, error) {
	return s.sanitizeField("search value", value, s.patterns["search"])
}

// SanitizeGlobPattern validates a glob pattern.
func (s *Sanitizer) SanitizeGlobPattern(pattern string) (string, error) {
	return s.sanitizeField("glob pattern", pattern, s.patterns["glob"])
}

// SanitizeString validates a generic string parameter: length and deny scan
// only, no field allow-pattern.
func (s *Sanitizer) SanitizeString(value string) (string, error) {
	return s.sanitizeField("string", value, nil)
}

// SanitizeRegexPattern validates a regular-expression pattern: the usual
// field chain, a compile check for syntactic validity, then a heuristic
// scan for catastrophic-backtracking shapes. Idempotent on accepted input.
func (s *Sanitizer) SanitizeRegexPattern(pattern string) (string, error) {
	cleaned, err := s.sanitizeField("regex pattern", pattern, nil)
	if err != nil {
		return "", err
	}
	if _, err := regexp.Compile(cleaned); err != nil {
		return "", fmt.Errorf("%w: regex pattern does not compile: %v",
			fault.ErrInvalidInput, err)
	}
	for _, rule := range redosRules {
		if rule.re.MatchString(cleaned) {
			return "", fmt.Errorf("%w: regex pattern has %s shape (backtracking risk)",
				fault.ErrDangerousContent, rule.name)
		}
	}
	return cleaned, nil
}

// SanitizeCompositeValue recursively sanitizes nested data. Primitives pass
// through unchanged except floats, which must be finite. Strings route
// through the generic string validator. Slices and map key-sets are bounded
// by MaxArrayLength and sanitized recursively. Any other shape is rejected
// as unsupported.
func (s *Sanitizer) SanitizeCompositeValue(value any) (any, error) {
	return s.sanitizeComposite(value, 0)
}

func (s *Sanitizer) sanitizeComposite(value any, depth int) (any, error) {
	if depth > maxCompositeDepth {
		return nil, fmt.Errorf("%w: composite value nested deeper than %d",
			fault.ErrInvalidInput, maxCompositeDepth)
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case int:
		return v, nil
	case int32:
		return v, nil
	case int64:
		return v, nil
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: number is not finite", fault.ErrInvalidInput)
		}
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: number is not finite", fault.ErrInvalidInput)
		}
		return v, nil
	case string:
		return s.SanitizeString(v)
	case []any:
		if len(v) > s.maxArrayLength {
			return nil, fmt.Errorf("%w: array length %d exceeds %d",
				fault.ErrInvalidInput, len(v), s.maxArrayLength)
		}
		out := make([]any, 0, len(v))
		for _, item := range v {
			clean, err := s.sanitizeComposite(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, clean)
		}
		return out, nil
	case map[string]any:
		if len(v) > s.maxArrayLength {
			return nil, fmt.Errorf("%w: object key count %d exceeds %d",
				fault.ErrInvalidInput, len(v), s.maxArrayLength)
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			cleanKey, err := s.SanitizeString(key)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			cleanVal, err := s.sanitizeComposite(item, depth+1)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[cleanKey] = cleanVal
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", fault.ErrInvalidInput, value)
	}
}
