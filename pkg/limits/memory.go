package limits

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// memorySampler periodically reads process heap usage and emits a
// threshold notification when it sits above the configured ceiling. This is
// advisory telemetry: it never aborts in-flight work.
type memorySampler struct {
	interval  time.Duration
	threshold uint64
	gc        bool
	logger    *zap.Logger

	// notifyLimit throttles threshold notifications so a process pinned
	// above the ceiling does not flood observers every sample.
	notifyLimit *rate.Limiter

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartMemoryMonitor starts the background sampler. It is owned by the
// caller's lifecycle: Destroy (or StopMemoryMonitor) stops it. Starting an
// already-running sampler is a no-op.
func (l *Limiter) StartMemoryMonitor() {
	l.mu.Lock()
	if l.destroyed || l.sampler != nil {
		l.mu.Unlock()
		return
	}
	s := &memorySampler{
		interval:  l.cfg.MemoryCheckInterval,
		threshold: l.cfg.MaxMemoryUsage,
		gc:        l.cfg.GCOnMemoryThreshold,
		logger:    l.logger,
		// At most one notification per ten sample periods.
		notifyLimit: rate.NewLimiter(rate.Every(10*l.cfg.MemoryCheckInterval), 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	l.sampler = s
	l.mu.Unlock()

	go s.run(l)
}

// StopMemoryMonitor stops the background sampler and waits for it to exit.
// Safe to call when no sampler is running, and safe to call repeatedly.
func (l *Limiter) StopMemoryMonitor() {
	l.mu.Lock()
	s := l.sampler
	l.sampler = nil
	l.mu.Unlock()

	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *memorySampler) run(l *Limiter) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample(l)
		}
	}
}

func (s *memorySampler) sample(l *Limiter) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	l.metrics.recordHeapSample(ms.HeapAlloc)

	if ms.HeapAlloc <= s.threshold {
		return
	}

	if s.notifyLimit.Allow() {
		s.logger.Warn("heap usage above configured ceiling",
			zap.Uint64("heap_used", ms.HeapAlloc),
			zap.Uint64("limit", s.threshold),
		)
		l.emit(Event{
			Kind:      EventMemoryThreshold,
			HeapUsed:  ms.HeapAlloc,
			HeapLimit: s.threshold,
		})
	}

	if s.gc {
		runtime.GC()
	}
}
