package sanitize

import (
	"fmt"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

// Parameter-bag keys accepted by SanitizeAnalyzeParams.
const (
	KeyRootPath        = "root_path"
	KeyComponent       = "component"
	KeyAttribute       = "attribute"
	KeyExpectedValue   = "expected_value"
	KeyExactMatch      = "exact_match"
	KeyIncludeChildren = "include_children"
)

// AnalyzeParams is the sanitized form of an analyze request.
//
// RootPath is format-checked only; containment against allowed roots is the
// path validator's job and happens in the security context.
type AnalyzeParams struct {
	RootPath        string
	Component       string
	Attribute       string
	ExpectedValue   string
	HasExpected     bool
	ExactMatch      bool
	IncludeChildren bool
}

// SanitizeAnalyzeParams composes the field validators into one checker for
// the raw parameter bag. Required fields are root_path, component and
// attribute; expected_value is optional; exact_match and include_children
// must be booleans when present.
func (s *Sanitizer) SanitizeAnalyzeParams(bag map[string]any) (*AnalyzeParams, error) {
	out := &AnalyzeParams{}

	rootPath, err := s.requiredString(bag, KeyRootPath)
	if err != nil {
		return nil, err
	}
	out.RootPath, err = s.SanitizePath(rootPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyRootPath, err)
	}

	component, err := s.requiredString(bag, KeyComponent)
	if err != nil {
		return nil, err
	}
	out.Component, err = s.SanitizeComponentName(component)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyComponent, err)
	}

	attribute, err := s.requiredString(bag, KeyAttribute)
	if err != nil {
		return nil, err
	}
	out.Attribute, err = s.SanitizeAttributeName(attribute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyAttribute, err)
	}

	if raw, ok := bag[KeyExpectedValue]; ok {
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string, got %T",
				fault.ErrInvalidInput, KeyExpectedValue, raw)
		}
		out.ExpectedValue, err = s.SanitizeSearchValue(str)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyExpectedValue, err)
		}
		out.HasExpected = true
	}

	out.ExactMatch, err = optionalBool(bag, KeyExactMatch)
	if err != nil {
		return nil, err
	}
	out.IncludeChildren, err = optionalBool(bag, KeyIncludeChildren)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// requiredString fetches a required string field from the bag.
func (s *Sanitizer) requiredString(bag map[string]any, key string) (string, error) {
	raw, ok := bag[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", fault.ErrMissingRequired, key)
	}
	str, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T",
			fault.ErrInvalidInput, key, raw)
	}
	return str, nil
}

// optionalBool enforces boolean type for flag-shaped fields.
func optionalBool(bag map[string]any, key string) (bool, error) {
	raw, ok := bag[key]
	if !ok {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T",
			fault.ErrInvalidInput, key, raw)
	}
	return b, nil
}
