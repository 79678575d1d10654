package events

import "time"

// Event is the common contract for everything published on the bus.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

// EventConsumer processes events delivered by the bus workers.
type EventConsumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// base carries the shared timestamp implementation.
type base struct {
	At time.Time
}

func (b base) Timestamp() time.Time { return b.At }

// StateChangedEvent announces a new player state snapshot. Snapshot is an
// opaque copy owned by the receiver; the version counter increases
// monotonically with every published state.
type StateChangedEvent struct {
	base
	Version  uint64
	Snapshot any
}

func (StateChangedEvent) EventType() string { return "state_changed" }

// ChunkReadyEvent signals that a rendered chunk has been emitted.
type ChunkReadyEvent struct {
	base
	TrackID    int64
	ChunkIndex uint32
}

func (ChunkReadyEvent) EventType() string { return "chunk_ready" }

// TrackEndedEvent signals natural end of playback for a track.
type TrackEndedEvent struct {
	base
	TrackID int64
}

func (TrackEndedEvent) EventType() string { return "track_ended" }

// WarningEvent carries recoverable pipeline conditions, e.g. a repaired
// non-finite sample.
type WarningEvent struct {
	base
	Component string
	Message   string
	Context   map[string]any
}

func (WarningEvent) EventType() string { return "warning" }

// ErrorEvent carries surfaced pipeline errors.
type ErrorEvent struct {
	base
	Component string
	Category  string
	Message   string
}

func (ErrorEvent) EventType() string { return "error" }

// NewStateChanged stamps and returns a StateChangedEvent.
func NewStateChanged(version uint64, snapshot any) StateChangedEvent {
	return StateChangedEvent{base: base{At: time.Now()}, Version: version, Snapshot: snapshot}
}

// NewChunkReady stamps and returns a ChunkReadyEvent.
func NewChunkReady(trackID int64, chunkIndex uint32) ChunkReadyEvent {
	return ChunkReadyEvent{base: base{At: time.Now()}, TrackID: trackID, ChunkIndex: chunkIndex}
}

// NewTrackEnded stamps and returns a TrackEndedEvent.
func NewTrackEnded(trackID int64) TrackEndedEvent {
	return TrackEndedEvent{base: base{At: time.Now()}, TrackID: trackID}
}

// NewWarning stamps and returns a WarningEvent.
func NewWarning(component, message string, context map[string]any) WarningEvent {
	return WarningEvent{base: base{At: time.Now()}, Component: component, Message: message, Context: context}
}

// NewError stamps and returns an ErrorEvent.
func NewError(component, category, message string) ErrorEvent {
	return ErrorEvent{base: base{At: time.Now()}, Component: component, Category: category, Message: message}
}
