// Package secrets provides advisory secret detection for the sandbox
// precheck, using the Gitleaks SDK.
package secrets

import "errors"

var (
	// ErrInvalidRegex indicates a regex pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates a TOML allowlist could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)
