// Package player implements the transport state machine: track, queue and
// playback state with push notification to observers.
package player

import (
	"github.com/auralis-audio/auralis/internal/datastore"
)

// State is the player's transport state.
type State string

const (
	StateStopped State = "stopped"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// RepeatMode controls end-of-track behavior.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

// legalTransitions enumerates the allowed state edges. Every state may move
// to error; error only resets to stopped.
var legalTransitions = map[State][]State{
	StateStopped: {StateLoading},
	StateLoading: {StatePlaying, StateStopped},
	StatePlaying: {StatePaused, StateStopped, StateLoading},
	StatePaused:  {StatePlaying, StateStopped, StateLoading},
	StateError:   {StateStopped},
}

func transitionLegal(from, to State) bool {
	if to == StateError {
		return from != StateError
	}
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is an immutable copy of the full player state. Observers receive
// snapshots by push; queries return the last published one. Version
// increases monotonically with every published change.
type Snapshot struct {
	Version uint64

	State        State
	ErrorMessage string

	CurrentTrack    *datastore.Track
	PositionSamples uint64
	DurationSamples uint64

	Volume uint8 // 0..=100
	Muted  bool

	Queue      []datastore.Track
	QueueIndex int
	Shuffle    bool
	Repeat     RepeatMode

	Preset    string
	Intensity float64
}

// clone deep-copies the mutable parts so observers cannot alias internal
// state.
func (s *Snapshot) clone() Snapshot {
	out := *s
	if s.CurrentTrack != nil {
		track := *s.CurrentTrack
		out.CurrentTrack = &track
	}
	out.Queue = make([]datastore.Track, len(s.Queue))
	copy(out.Queue, s.Queue)
	return out
}
