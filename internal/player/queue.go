package player

import (
	"github.com/auralis-audio/auralis/internal/datastore"
	"github.com/auralis-audio/auralis/internal/errors"
)

// Enqueue appends tracks, preserving order.
func (p *Player) Enqueue(tracks ...datastore.Track) error {
	return p.do(func() error {
		p.state.Queue = append(p.state.Queue, tracks...)
		p.publish()
		return nil
	})
}

// InsertAt places a track at index i, shifting the rest right. The
// currently playing track keeps playing; its index shifts with the queue.
func (p *Player) InsertAt(i int, track datastore.Track) error {
	return p.do(func() error {
		if i < 0 || i > len(p.state.Queue) {
			return queueRangeError(i, len(p.state.Queue))
		}
		p.state.Queue = append(p.state.Queue, datastore.Track{})
		copy(p.state.Queue[i+1:], p.state.Queue[i:])
		p.state.Queue[i] = track
		if p.state.CurrentTrack != nil && i <= p.state.QueueIndex {
			p.state.QueueIndex++
		}
		p.publish()
		return nil
	})
}

// RemoveAt deletes the track at index i. Removing the currently playing
// track is rejected; stop or advance first.
func (p *Player) RemoveAt(i int) error {
	return p.do(func() error {
		if i < 0 || i >= len(p.state.Queue) {
			return queueRangeError(i, len(p.state.Queue))
		}
		if p.state.CurrentTrack != nil && i == p.state.QueueIndex {
			return errors.Newf("cannot remove the playing track").
				Component("player").
				Category(errors.CategoryConflict).
				Build()
		}
		p.state.Queue = append(p.state.Queue[:i], p.state.Queue[i+1:]...)
		if p.state.CurrentTrack != nil && i < p.state.QueueIndex {
			p.state.QueueIndex--
		}
		p.publish()
		return nil
	})
}

// Reorder applies a permutation: newQueue[i] = queue[perm[i]]. The
// currently playing track follows its new index.
func (p *Player) Reorder(perm []int) error {
	return p.do(func() error {
		n := len(p.state.Queue)
		if len(perm) != n {
			return errors.Newf("permutation length %d does not match queue length %d", len(perm), n).
				Component("player").
				Category(errors.CategoryValidation).
				Build()
		}
		seen := make([]bool, n)
		for _, src := range perm {
			if src < 0 || src >= n || seen[src] {
				return errors.Newf("not a permutation of the queue").
					Component("player").
					Category(errors.CategoryValidation).
					Build()
			}
			seen[src] = true
		}

		newQueue := make([]datastore.Track, n)
		newIndex := p.state.QueueIndex
		for dst, src := range perm {
			newQueue[dst] = p.state.Queue[src]
			if p.state.CurrentTrack != nil && src == p.state.QueueIndex {
				newIndex = dst
			}
		}
		p.state.Queue = newQueue
		p.state.QueueIndex = newIndex
		p.publish()
		return nil
	})
}

// SetShuffle toggles shuffle. Enabling it permutes the queue with the
// currently playing track moved to index 0.
func (p *Player) SetShuffle(enabled bool) error {
	return p.do(func() error {
		p.state.Shuffle = enabled
		if enabled && len(p.state.Queue) > 1 {
			q := p.state.Queue
			cur := p.state.QueueIndex
			if p.state.CurrentTrack != nil {
				q[0], q[cur] = q[cur], q[0]
				p.state.QueueIndex = 0
				rest := q[1:]
				p.rng.Shuffle(len(rest), func(i, j int) {
					rest[i], rest[j] = rest[j], rest[i]
				})
			} else {
				p.rng.Shuffle(len(q), func(i, j int) {
					q[i], q[j] = q[j], q[i]
				})
			}
		}
		p.publish()
		return nil
	})
}

// SetRepeat selects the repeat mode.
func (p *Player) SetRepeat(mode RepeatMode) error {
	return p.do(func() error {
		switch mode {
		case RepeatNone, RepeatOne, RepeatAll:
		default:
			return errors.Newf("unknown repeat mode %q", mode).
				Component("player").
				Category(errors.CategoryValidation).
				Build()
		}
		p.state.Repeat = mode
		p.publish()
		return nil
	})
}

// ClearQueue removes every queued track and stops playback bookkeeping.
func (p *Player) ClearQueue() error {
	return p.do(func() error {
		p.state.Queue = nil
		p.state.QueueIndex = 0
		p.state.CurrentTrack = nil
		p.publish()
		return nil
	})
}

func queueRangeError(i, n int) error {
	return errors.Newf("queue index %d out of range [0, %d)", i, n).
		Component("player").
		Category(errors.CategoryValidation).
		Build()
}
