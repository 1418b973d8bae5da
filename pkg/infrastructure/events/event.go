package events

import (
	"time"
)

// Event is one entry of a run's append-only stream.
// Version is 1-based within the stream and assigned by the store on append.
type Event interface {
	Type() string
	StreamID() string
	Data() any
	Timestamp() time.Time
	Version() int
}

// EventHandler receives events of the types it subscribed to
type EventHandler interface {
	Handle(event Event) error
	CanHandle(eventType string) bool
}

// EventStore persists event streams keyed by run id
type EventStore interface {
	AppendEvent(streamID string, event Event) error
	ReadEvents(streamID string, fromVersion int) ([]Event, error)
	ReadAllEvents(fromPosition int) ([]Event, error)
	Subscribe(eventTypes []string, handler EventHandler) error
	Unsubscribe(handler EventHandler) error
}

type record struct {
	kind    string
	runID   string
	payload any
	at      time.Time
	version int
}

func (r record) Type() string         { return r.kind }
func (r record) StreamID() string     { return r.runID }
func (r record) Data() any            { return r.payload }
func (r record) Timestamp() time.Time { return r.at }
func (r record) Version() int         { return r.version }

// NewEvent creates an unversioned event for a run stream
func NewEvent(eventType, runID string, data any, at time.Time) Event {
	return record{kind: eventType, runID: runID, payload: data, at: at}
}

// withVersion copies e into the store's representation at the given stream position
func withVersion(e Event, runID string, version int) record {
	return record{kind: e.Type(), runID: runID, payload: e.Data(), at: e.Timestamp(), version: version}
}
