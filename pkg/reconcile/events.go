package reconcile

import (
	"time"

	"github.com/devports/kdcdash/pkg/models"
)

// EventKind names a transition of one in-flight action
type EventKind int

const (
	EventStarted EventKind = iota
	EventSyncResult
	EventCommandFailed
	EventPolled
	EventConverged
	EventExhausted
	EventAbsent
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventSyncResult:
		return "sync-result"
	case EventCommandFailed:
		return "command-failed"
	case EventPolled:
		return "polled"
	case EventConverged:
		return "converged"
	case EventExhausted:
		return "exhausted"
	case EventAbsent:
		return "absent"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the busy marker has been released when this event fires
func (k EventKind) Terminal() bool {
	switch k {
	case EventCommandFailed, EventConverged, EventExhausted, EventAbsent, EventCancelled:
		return true
	default:
		return false
	}
}

// Event is published to subscribers on every action transition
type Event struct {
	Kind    EventKind
	ID      string
	Verb    models.Verb
	Attempt int
	// Status is the project status observed by a poll, empty when absent
	Status string
	// Result is set for EventSyncResult
	Result models.ActionResult
	// Err is set for EventCommandFailed and EventCancelled
	Err error
	At  time.Time
}
