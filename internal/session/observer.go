package session

import "time"

// EventKind names a step of the session lifecycle.
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventRefresh EventKind = "refresh"
	EventRetry   EventKind = "retry"
	EventCall    EventKind = "call"
	EventFault   EventKind = "fault"
	EventLogout  EventKind = "logout"
)

// Event is reported to observers after each lifecycle step.
type Event struct {
	Array    string
	Protocol string
	Kind     EventKind
	Method   string
	Path     string
	Status   int
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Succeeded reports whether the step completed without error.
func (e Event) Succeeded() bool {
	return e.Err == nil
}

// Observer receives lifecycle events. Implementations must be safe for
// concurrent use and must not block for long; they cannot alter results.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) {
	f(e)
}
