// Package securefs validates filesystem paths against allow-listed roots.
//
// Every path handed to the analysis pipeline passes through a Validator
// first: the path is normalized, resolved to absolute form, optionally
// chased through one layer of symlink, and then checked for containment in
// at least one allowed root. Paths that escape every root are rejected with
// fault.ErrPathTraversal.
package securefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

// DefaultMaxPathLength bounds the raw input length before any filesystem
// access happens.
const DefaultMaxPathLength = 4096

// Options configures a Validator. The zero value is usable: it allows only
// the current working directory.
type Options struct {
	// AllowedRoots are the directories a validated path may resolve into.
	// Empty means the process working directory.
	AllowedRoots []string

	// MaxPathLength bounds the raw input. Zero means DefaultMaxPathLength.
	MaxPathLength int

	// ResolveSymlinks chases one layer of symbolic link before the
	// containment check when the target exists.
	ResolveSymlinks bool

	// RequireExists rejects paths that do not exist on disk.
	RequireExists bool
}

// Validator normalizes and validates paths. Safe for concurrent use; all
// fields are fixed at construction.
type Validator struct {
	roots         []string
	maxPathLength int
	resolveLinks  bool
	requireExists bool
}

// PathInfo augments a validated path with filesystem metadata. Stat failures
// after a successful validation are reported through StatWarning rather than
// failing the whole call.
type PathInfo struct {
	// Input is the raw path as supplied by the caller, kept for audit.
	Input string
	// Path is the validated absolute path.
	Path string
	// Exists reports whether the path was present at validation time.
	Exists bool
	// IsDir reports whether the path is a directory. Only meaningful when
	// Exists is true.
	IsDir bool
	// Size is the file size in bytes. Only meaningful for existing files.
	Size int64
	// StatWarning carries a stat failure that did not invalidate the path.
	StatWarning string
}

// InvalidPath pairs a rejected batch entry with its error.
type InvalidPath struct {
	Input string
	Err   error
}

// BatchResult partitions a batch of inputs into valid and invalid entries.
type BatchResult struct {
	Valid   []string
	Invalid []InvalidPath
}

// New creates a Validator. Allowed roots are resolved to absolute form once,
// at construction.
func New(opts Options) (*Validator, error) {
	roots := opts.AllowedRoots
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		roots = []string{cwd}
	}

	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(filepath.Clean(root))
		if err != nil {
			return nil, fmt.Errorf("resolving allowed root %q: %w", root, err)
		}
		resolved = append(resolved, abs)
	}

	maxLen := opts.MaxPathLength
	if maxLen <= 0 {
		maxLen = DefaultMaxPathLength
	}

	return &Validator{
		roots:         resolved,
		maxPathLength: maxLen,
		resolveLinks:  opts.ResolveSymlinks,
		requireExists: opts.RequireExists,
	}, nil
}

// AllowedRoots returns a copy of the resolved allowed roots.
func (v *Validator) AllowedRoots() []string {
	return append([]string{}, v.roots...)
}

// ValidatePath normalizes input, resolves it to absolute form and verifies
// it stays inside at least one allowed root. Returns the absolute path.
//
// Failure modes:
//   - fault.ErrInvalidInput: empty, over-long, or NUL-bearing input
//   - fault.ErrSymlink: a symlink could not be resolved
//   - fault.ErrPathTraversal: resolved path escapes every allowed root
//   - fault.ErrPathNotFound: existence required but absent
func (v *Validator) ValidatePath(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("%w: path is empty", fault.ErrInvalidInput)
	}
	if len(input) > v.maxPathLength {
		return "", fmt.Errorf("%w: path length %d exceeds %d",
			fault.ErrInvalidInput, len(input), v.maxPathLength)
	}
	// NUL check runs before any filesystem access.
	if strings.ContainsRune(input, 0) {
		return "", fmt.Errorf("%w: path contains NUL byte", fault.ErrInvalidInput)
	}

	abs, err := filepath.Abs(filepath.Clean(input))
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrInvalidInput, err)
	}

	if v.resolveLinks {
		abs, err = v.resolveOneLink(abs)
		if err != nil {
			return "", err
		}
	}

	if !v.contained(abs) {
		return "", fmt.Errorf("%w: %q resolves outside allowed roots",
			fault.ErrPathTraversal, input)
	}

	if v.requireExists {
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("%w: %s", fault.ErrPathNotFound, abs)
		}
	}

	return abs, nil
}

// ValidatePathWithMetadata validates like ValidatePath and augments the
// result with existence, type and size. A stat failure after validation is
// recorded in StatWarning instead of failing the call.
func (v *Validator) ValidatePathWithMetadata(input string) (*PathInfo, error) {
	abs, err := v.ValidatePath(input)
	if err != nil {
		return nil, err
	}

	info := &PathInfo{Input: input, Path: abs}
	st, err := os.Stat(abs)
	switch {
	case err == nil:
		info.Exists = true
		info.IsDir = st.IsDir()
		if !st.IsDir() {
			info.Size = st.Size()
		}
	case os.IsNotExist(err):
		// Absent is not an error here unless RequireExists already caught it.
	default:
		info.StatWarning = err.Error()
	}
	return info, nil
}

// ValidatePaths validates a batch without aborting on the first failure.
// The returned partition holds exactly one entry per input.
func (v *Validator) ValidatePaths(inputs []string) BatchResult {
	res := BatchResult{}
	for _, in := range inputs {
		abs, err := v.ValidatePath(in)
		if err != nil {
			res.Invalid = append(res.Invalid, InvalidPath{Input: in, Err: err})
			continue
		}
		res.Valid = append(res.Valid, abs)
	}
	return res
}

// IsSafePath is a non-throwing probe for containment.
func (v *Validator) IsSafePath(input string) bool {
	_, err := v.ValidatePath(input)
	return err == nil
}

// GetRelativePath returns the path relative to whichever allowed root
// contains it. For a path no root contains (which should not occur for an
// already-validated path) it falls back to relative-from-working-directory,
// and finally to the input itself.
func (v *Validator) GetRelativePath(path string) string {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return path
	}
	for _, root := range v.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if relEscapes(rel) {
			continue
		}
		return rel
	}
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, abs); err == nil {
			return rel
		}
	}
	return path
}

// resolveOneLink chases exactly one layer of symbolic link when the target
// exists. A missing target passes through unchanged.
func (v *Validator) resolveOneLink(abs string) (string, error) {
	st, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", fmt.Errorf("%w: %v", fault.ErrSymlink, err)
	}
	if st.Mode()&os.ModeSymlink == 0 {
		return abs, nil
	}

	target, err := os.Readlink(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrSymlink, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(abs), target)
	}
	return filepath.Clean(target), nil
}

// contained reports whether abs lies inside at least one allowed root.
func (v *Validator) contained(abs string) bool {
	for _, root := range v.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if !relEscapes(rel) {
			return true
		}
	}
	return false
}

// relEscapes reports whether a relative path steps outside its base: it
// begins with a parent-escape segment or is itself absolute.
func relEscapes(rel string) bool {
	if filepath.IsAbs(rel) {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
