package session

import (
	"time"

	"github.com/hazyhaar/pagewatch/changewatch/internal/dispatch"
)

// EventKind names an observer event.
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventStopped     EventKind = "stopped"
	EventDelivered             = EventKind(dispatch.Delivered)
	EventRejected              = EventKind(dispatch.Rejected)
	EventUnreachable           = EventKind(dispatch.Unreachable)
)

// Event is passed to the observer hook.
type Event struct {
	Kind        EventKind `json:"kind"`
	Session     string    `json:"session_id"`
	Detail      string    `json:"detail,omitempty"`
	Status      int       `json:"status,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Time        time.Time `json:"time"`
}
