package doctxn

import "github.com/sharedcode/doctxn/changes"

// EventKind names a signal emitted while a Transaction runs.
type EventKind string

const (
	EventAttempt   EventKind = "attempt"
	EventConflict  EventKind = "conflict"
	EventReplace   EventKind = "replace"
	EventChange    EventKind = "change"
	EventDone      EventKind = "done"
	EventExhausted EventKind = "exhausted"
	EventTimeout   EventKind = "timeout"
	EventFailed    EventKind = "failed"
	EventCancel    EventKind = "cancel"
	// EventIgnore notes a stale completion (late mutation return or I/O) that was discarded.
	EventIgnore EventKind = "ignore"
)

// Event is delivered to an Observer. Only the fields relevant to Kind are set.
type Event struct {
	Kind        EventKind
	Transaction string
	Attempt     int
	Old         Document
	New         Document
	Changes     changes.ChangeSet
	Document    Document
	Err         error
}

// Observer receives events for monitoring. It is called synchronously from the
// goroutine that produced the event, so it must be safe for concurrent use and quick.
type Observer func(Event)
