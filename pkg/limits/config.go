package limits

import "time"

// Defaults for every ceiling. A zero Config field falls back to these.
const (
	DefaultMaxFileSize           = 10 * 1024 * 1024  // 10 MiB per file
	DefaultMaxTotalSize          = 100 * 1024 * 1024 // 100 MiB cumulative
	DefaultMaxProcessingTime     = 30 * time.Second
	DefaultMaxFileCount          = 1000
	DefaultMaxConcurrentOps      = 5
	DefaultMaxMemoryUsage        = 500 * 1024 * 1024 // 500 MiB heap
	DefaultMemoryCheckInterval   = time.Second
	DefaultMaxASTDepth           = 50
	DefaultMaxASTNodes           = 10000
	DefaultMaxDirectoryDepth     = 20
	DefaultMaxDirectoriesScanned = 5000
)

// Config holds the configured ceilings for one limiter.
type Config struct {
	// MaxFileSize is the per-file size ceiling in bytes.
	MaxFileSize int64
	// MaxTotalSize is the cumulative processed-bytes ceiling.
	MaxTotalSize int64
	// MaxProcessingTime bounds a single operation's wall time, enforced by
	// CheckOperationTimeout polling.
	MaxProcessingTime time.Duration
	// MaxFileCount bounds the number of processed files between resets.
	MaxFileCount int64
	// MaxConcurrentOperations bounds the active-operation set.
	MaxConcurrentOperations int
	// MaxMemoryUsage is the advisory heap ceiling for the sampler.
	MaxMemoryUsage uint64
	// MemoryCheckInterval is the sampler period.
	MemoryCheckInterval time.Duration
	// GCOnMemoryThreshold requests a garbage-collection pass when the
	// sampler crosses the heap ceiling.
	GCOnMemoryThreshold bool
	// MaxASTDepth bounds syntax-tree depth during structural validation.
	MaxASTDepth int
	// MaxASTNodes bounds syntax-tree node count during structural validation.
	MaxASTNodes int
	// MaxDirectoryDepth bounds directory-traversal depth.
	MaxDirectoryDepth int
	// MaxDirectoriesScanned bounds cumulative scanned directories.
	MaxDirectoriesScanned int64
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxTotalSize <= 0 {
		c.MaxTotalSize = DefaultMaxTotalSize
	}
	if c.MaxProcessingTime <= 0 {
		c.MaxProcessingTime = DefaultMaxProcessingTime
	}
	if c.MaxFileCount <= 0 {
		c.MaxFileCount = DefaultMaxFileCount
	}
	if c.MaxConcurrentOperations <= 0 {
		c.MaxConcurrentOperations = DefaultMaxConcurrentOps
	}
	if c.MaxMemoryUsage == 0 {
		c.MaxMemoryUsage = DefaultMaxMemoryUsage
	}
	if c.MemoryCheckInterval <= 0 {
		c.MemoryCheckInterval = DefaultMemoryCheckInterval
	}
	if c.MaxASTDepth <= 0 {
		c.MaxASTDepth = DefaultMaxASTDepth
	}
	if c.MaxASTNodes <= 0 {
		c.MaxASTNodes = DefaultMaxASTNodes
	}
	if c.MaxDirectoryDepth <= 0 {
		c.MaxDirectoryDepth = DefaultMaxDirectoryDepth
	}
	if c.MaxDirectoriesScanned <= 0 {
		c.MaxDirectoriesScanned = DefaultMaxDirectoriesScanned
	}
	return c
}

// Overrides derives a scoped child configuration. Zero fields inherit the
// parent ceiling; ceilings of zero are never meaningful, so zero-as-inherit
// loses nothing.
type Overrides struct {
	MaxFileSize             int64
	MaxTotalSize            int64
	MaxProcessingTime       time.Duration
	MaxFileCount            int64
	MaxConcurrentOperations int
	MaxASTDepth             int
	MaxASTNodes             int
	MaxDirectoryDepth       int
	MaxDirectoriesScanned   int64
}

// apply merges the overrides onto a parent config.
func (o Overrides) apply(parent Config) Config {
	c := parent
	if o.MaxFileSize > 0 {
		c.MaxFileSize = o.MaxFileSize
	}
	if o.MaxTotalSize > 0 {
		c.MaxTotalSize = o.MaxTotalSize
	}
	if o.MaxProcessingTime > 0 {
		c.MaxProcessingTime = o.MaxProcessingTime
	}
	if o.MaxFileCount > 0 {
		c.MaxFileCount = o.MaxFileCount
	}
	if o.MaxConcurrentOperations > 0 {
		c.MaxConcurrentOperations = o.MaxConcurrentOperations
	}
	if o.MaxASTDepth > 0 {
		c.MaxASTDepth = o.MaxASTDepth
	}
	if o.MaxASTNodes > 0 {
		c.MaxASTNodes = o.MaxASTNodes
	}
	if o.MaxDirectoryDepth > 0 {
		c.MaxDirectoryDepth = o.MaxDirectoryDepth
	}
	if o.MaxDirectoriesScanned > 0 {
		c.MaxDirectoriesScanned = o.MaxDirectoriesScanned
	}
	return c
}
