package limits

import "time"

// EventKind discriminates limiter notifications.
type EventKind string

// Notification kinds emitted by the limiter. The channel is advisory
// telemetry; nothing in the limiter depends on anyone listening.
const (
	EventOperationStarted EventKind = "operation_started"
	EventOperationEnded   EventKind = "operation_ended"
	EventFileProcessed    EventKind = "file_processed"
	EventDirectoryScanned EventKind = "directory_scanned"
	EventMemoryThreshold  EventKind = "memory_threshold"
	EventReset            EventKind = "reset"
)

// Event is one limiter notification.
type Event struct {
	Kind        EventKind
	At          time.Time
	OperationID string
	Path        string
	// Bytes is the file size for file_processed events.
	Bytes int64
	// Depth is the traversal depth for directory_scanned events.
	Depth int
	// HeapUsed and HeapLimit are set on memory_threshold events.
	HeapUsed  uint64
	HeapLimit uint64
	// Elapsed is set on operation_ended events.
	Elapsed time.Duration
}

// Observer consumes limiter events. Implementations must not call back into
// the limiter from OnEvent and should return quickly; events are delivered
// synchronously from the emitting goroutine, outside the ledger lock.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// emit delivers an event to every observer. Callers must not hold the
// ledger lock.
func (l *Limiter) emit(ev Event) {
	ev.At = time.Now()
	for _, obs := range l.observers {
		obs.OnEvent(ev)
	}
}
