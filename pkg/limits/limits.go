// Package limits enforces resource ceilings for the analysis pipeline.
//
// A Limiter owns a usage ledger: throughput counters (files, bytes,
// directories), the set of in-flight operations, and the configured
// ceilings. Admission control fails fast once the concurrency ceiling is
// reached rather than queuing callers; callers are expected to retry.
//
// The ledger is guarded by a single mutex. Contention is low (a handful of
// concurrent analysis calls), so finer-grained locking buys nothing here.
package limits

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

// Limiter is a shared ledger plus enforcement point. Safe for concurrent
// use.
type Limiter struct {
	cfg       Config
	logger    *zap.Logger
	observers []Observer
	metrics   *Metrics

	mu             sync.Mutex
	filesProcessed int64
	bytesProcessed int64
	dirsScanned    int64
	active         map[string]time.Time
	destroyed      bool

	// initialHeap is the heap size observed at construction, reported in
	// usage stats as a baseline.
	initialHeap uint64

	sampler *memorySampler
}

// Option configures a Limiter at construction.
type Option func(*Limiter)

// WithLogger attaches a logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver registers an event observer. May be used multiple times.
func WithObserver(obs Observer) Option {
	return func(l *Limiter) {
		if obs != nil {
			l.observers = append(l.observers, obs)
		}
	}
}

// WithMetrics attaches OTEL metrics recording.
func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a Limiter. The background memory sampler is not started here;
// call StartMemoryMonitor from the owning lifecycle.
func New(cfg Config, opts ...Option) *Limiter {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	l := &Limiter{
		cfg:         cfg.withDefaults(),
		logger:      zap.NewNop(),
		active:      make(map[string]time.Time),
		initialHeap: ms.HeapAlloc,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the effective (defaulted) configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// CheckFileSize stats path and verifies both the per-file ceiling and the
// headroom left under the cumulative ceiling. Pure check, no ledger
// mutation.
func (l *Limiter) CheckFileSize(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", fault.ErrPathNotFound, path)
		}
		return fmt.Errorf("%w: stat %s: %v", fault.ErrInvalidInput, path, err)
	}
	return l.CheckSize(st.Size())
}

// CheckSize verifies a raw byte length against the same ceilings as
// CheckFileSize. Used for in-memory sources with no backing file.
func (l *Limiter) CheckSize(size int64) error {
	if size > l.cfg.MaxFileSize {
		return fault.Exceeded("file size", l.cfg.MaxFileSize, size, "bytes")
	}

	l.mu.Lock()
	total := l.bytesProcessed
	l.mu.Unlock()

	if total+size > l.cfg.MaxTotalSize {
		return fault.Exceeded("total processed size", l.cfg.MaxTotalSize, total+size, "bytes")
	}
	return nil
}

// StartOperation admits one unit of work. A fresh identifier is generated
// when id is empty. Rejects once the active set is at the concurrency
// ceiling; the ledger behaves as a counting semaphore.
func (l *Limiter) StartOperation(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return "", fmt.Errorf("%w: limiter is destroyed", fault.ErrInvalidInput)
	}
	if _, dup := l.active[id]; dup {
		l.mu.Unlock()
		return "", fmt.Errorf("%w: operation %q already active", fault.ErrInvalidInput, id)
	}
	if len(l.active) >= l.cfg.MaxConcurrentOperations {
		current := len(l.active)
		l.mu.Unlock()
		l.metrics.recordAdmissionRejected()
		return "", fault.Exceeded("concurrent operations",
			int64(l.cfg.MaxConcurrentOperations), int64(current)+1, "")
	}
	l.active[id] = time.Now()
	l.mu.Unlock()

	l.metrics.recordOperationStarted()
	l.emit(Event{Kind: EventOperationStarted, OperationID: id})
	return id, nil
}

// EndOperation releases an admitted operation and reports its elapsed
// duration. Unknown identifiers are an error; release happens exactly once.
func (l *Limiter) EndOperation(id string) (time.Duration, error) {
	l.mu.Lock()
	started, ok := l.active[id]
	if !ok {
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: operation %q is not active", fault.ErrInvalidInput, id)
	}
	delete(l.active, id)
	l.mu.Unlock()

	elapsed := time.Since(started)
	l.metrics.recordOperationEnded(elapsed)
	l.emit(Event{Kind: EventOperationEnded, OperationID: id, Elapsed: elapsed})
	return elapsed, nil
}

// CheckOperationTimeout reports whether an operation has run past the
// processing-time ceiling. Poll-based: long-running work must call this
// periodically; nothing fires in the background.
func (l *Limiter) CheckOperationTimeout(id string) error {
	l.mu.Lock()
	started, ok := l.active[id]
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: operation %q is not active", fault.ErrInvalidInput, id)
	}
	elapsed := time.Since(started)
	if elapsed > l.cfg.MaxProcessingTime {
		return fault.Deadline("operation "+id,
			l.cfg.MaxProcessingTime.Milliseconds(), elapsed.Milliseconds())
	}
	return nil
}

// RecordFileProcessed accounts one processed file. The count ceiling is
// checked before the ledger mutates, so the breaching call is rejected
// without being counted.
func (l *Limiter) RecordFileProcessed(path string, size int64) error {
	l.mu.Lock()
	if l.filesProcessed+1 > l.cfg.MaxFileCount {
		count := l.filesProcessed
		l.mu.Unlock()
		return fault.Exceeded("file count", l.cfg.MaxFileCount, count+1, "")
	}
	l.filesProcessed++
	l.bytesProcessed += size
	l.mu.Unlock()

	l.metrics.recordFileProcessed(size)
	l.emit(Event{Kind: EventFileProcessed, Path: path, Bytes: size})
	return nil
}

// TrackDirectoryTraversal accounts one visited directory and enforces both
// the depth and the cumulative-directories ceilings.
func (l *Limiter) TrackDirectoryTraversal(path string, depth int) error {
	if depth > l.cfg.MaxDirectoryDepth {
		return fault.Exceeded("directory depth",
			int64(l.cfg.MaxDirectoryDepth), int64(depth), "")
	}

	l.mu.Lock()
	if l.dirsScanned+1 > l.cfg.MaxDirectoriesScanned {
		scanned := l.dirsScanned
		l.mu.Unlock()
		return fault.Exceeded("directories scanned",
			l.cfg.MaxDirectoriesScanned, scanned+1, "")
	}
	l.dirsScanned++
	l.mu.Unlock()

	l.emit(Event{Kind: EventDirectoryScanned, Path: path, Depth: depth})
	return nil
}

// Reset zeroes the throughput counters. The active-operation set is
// deliberately left untouched: those operations may still be running.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.filesProcessed = 0
	l.bytesProcessed = 0
	l.dirsScanned = 0
	l.mu.Unlock()

	l.emit(Event{Kind: EventReset})
	l.logger.Debug("limiter counters reset")
}

// CreateScoped derives a child limiter that inherits any ceiling not
// explicitly overridden. The child has a fresh ledger and no background
// sampler; it gives one logical unit of work a stricter sub-budget without
// mutating the shared parent.
func (l *Limiter) CreateScoped(o Overrides) *Limiter {
	child := New(o.apply(l.cfg), WithLogger(l.logger), WithMetrics(l.metrics))
	child.observers = append(child.observers, l.observers...)
	return child
}

// Destroy stops the background sampler and clears all bookkeeping. Safe to
// call more than once.
func (l *Limiter) Destroy() {
	l.StopMemoryMonitor()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return
	}
	l.destroyed = true
	l.filesProcessed = 0
	l.bytesProcessed = 0
	l.dirsScanned = 0
	l.active = make(map[string]time.Time)
}

// FileStats reports file throughput against its ceilings.
type FileStats struct {
	Processed     int64 `json:"processed"`
	Limit         int64 `json:"limit"`
	SizeProcessed int64 `json:"size_processed"`
	SizeLimit     int64 `json:"size_limit"`
}

// OperationStats reports admission state.
type OperationStats struct {
	Current int      `json:"current"`
	Limit   int      `json:"limit"`
	Active  []string `json:"active"`
}

// DirectoryStats reports traversal accounting.
type DirectoryStats struct {
	Scanned int64 `json:"scanned"`
	Limit   int64 `json:"limit"`
}

// MemoryStats reports heap usage against the advisory ceiling.
type MemoryStats struct {
	HeapUsed  uint64 `json:"heap_used"`
	HeapTotal uint64 `json:"heap_total"`
	Limit     uint64 `json:"limit"`
	Initial   uint64 `json:"initial"`
}

// UsageStats is a point-in-time snapshot of the ledger.
type UsageStats struct {
	Files       FileStats      `json:"files"`
	Operations  OperationStats `json:"operations"`
	Directories DirectoryStats `json:"directories"`
	Memory      MemoryStats    `json:"memory"`
}

// UsageStats snapshots the ledger and current heap usage.
func (l *Limiter) UsageStats() UsageStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	l.mu.Lock()
	defer l.mu.Unlock()

	activeIDs := make([]string, 0, len(l.active))
	for id := range l.active {
		activeIDs = append(activeIDs, id)
	}

	return UsageStats{
		Files: FileStats{
			Processed:     l.filesProcessed,
			Limit:         l.cfg.MaxFileCount,
			SizeProcessed: l.bytesProcessed,
			SizeLimit:     l.cfg.MaxTotalSize,
		},
		Operations: OperationStats{
			Current: len(l.active),
			Limit:   l.cfg.MaxConcurrentOperations,
			Active:  activeIDs,
		},
		Directories: DirectoryStats{
			Scanned: l.dirsScanned,
			Limit:   l.cfg.MaxDirectoriesScanned,
		},
		Memory: MemoryStats{
			HeapUsed:  ms.HeapAlloc,
			HeapTotal: ms.HeapSys,
			Limit:     l.cfg.MaxMemoryUsage,
			Initial:   l.initialHeap,
		},
	}
}
