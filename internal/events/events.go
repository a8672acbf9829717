// Package events carries per-session pipeline progress to a single live
// subscriber. Delivery is best-effort: events published while nobody is
// subscribed are dropped, never buffered.
package events

import (
	"errors"
	"strings"
	"time"
)

const (
	TypeLog       = "log"
	TypeKeepalive = "keepalive"

	timestampLayout = "15:04:05"
)

var (
	// ErrClosed is returned by Next after the subscription was closed.
	ErrClosed = errors.New("events: subscription closed")
	// ErrSuperseded is returned by Next when a newer subscriber attached to the same session.
	ErrSuperseded = errors.New("events: subscription superseded")
)

// ProgressEvent is the wire shape streamed to observers.
type ProgressEvent struct {
	Timestamp string  `json:"timestamp"`
	Step      string  `json:"step"`
	Details   *string `json:"details"`
	Type      string  `json:"type"`
}

// Log builds a log event stamped with the current wall clock. Multiple
// details are joined by newlines; no details yields a null details field.
func Log(step string, details ...string) ProgressEvent {
	ev := ProgressEvent{
		Timestamp: time.Now().Format(timestampLayout),
		Step:      step,
		Type:      TypeLog,
	}
	if len(details) > 0 {
		d := strings.Join(details, "\n")
		ev.Details = &d
	}
	return ev
}

// Keepalive builds the synthetic event handed to an idle subscriber.
func Keepalive() ProgressEvent {
	return ProgressEvent{
		Timestamp: time.Now().Format(timestampLayout),
		Step:      TypeKeepalive,
		Type:      TypeKeepalive,
	}
}

// DetailsOrEmpty dereferences Details.
func (e ProgressEvent) DetailsOrEmpty() string {
	if e.Details == nil {
		return ""
	}
	return *e.Details
}

// Publisher accepts progress events for a session. Implementations must not
// block the caller on a slow or absent subscriber.
type Publisher interface {
	Publish(sessionID string, ev ProgressEvent)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(sessionID string, ev ProgressEvent)

func (f PublisherFunc) Publish(sessionID string, ev ProgressEvent) { f(sessionID, ev) }
