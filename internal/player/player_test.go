package player

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralis-audio/auralis/internal/datastore"
	"github.com/auralis-audio/auralis/internal/errors"
)

func newTestPlayer(t *testing.T) *Player {
	t.Helper()
	p := New(nil, nil, "adaptive", 0.5)
	t.Cleanup(p.Close)
	return p
}

func track(id int64) datastore.Track {
	return datastore.Track{
		ID:              id,
		Path:            fmt.Sprintf("/m/%d.wav", id),
		Title:           fmt.Sprintf("track-%d", id),
		SampleRate:      44100,
		Channels:        2,
		DurationSeconds: 30,
	}
}

func loadAndPlay(t *testing.T, p *Player, index int) {
	t.Helper()
	require.NoError(t, p.Load(index))
	require.NoError(t, p.Ready())
}

func TestPlayer_Lifecycle(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1), track(2)))

	snap := p.Snapshot()
	assert.Equal(t, StateStopped, snap.State)
	assert.Len(t, snap.Queue, 2)

	t.Run("load_ready_play", func(t *testing.T) {
		require.NoError(t, p.Load(0))
		assert.Equal(t, StateLoading, p.Snapshot().State)

		require.NoError(t, p.Ready())
		snap := p.Snapshot()
		assert.Equal(t, StatePlaying, snap.State)
		require.NotNil(t, snap.CurrentTrack)
		assert.Equal(t, int64(1), snap.CurrentTrack.ID)
		assert.Equal(t, uint64(30*44100), snap.DurationSamples)
	})

	t.Run("pause_resume", func(t *testing.T) {
		require.NoError(t, p.Pause())
		assert.Equal(t, StatePaused, p.Snapshot().State)
		require.NoError(t, p.Play())
		assert.Equal(t, StatePlaying, p.Snapshot().State)
	})

	t.Run("stop", func(t *testing.T) {
		require.NoError(t, p.Stop())
		snap := p.Snapshot()
		assert.Equal(t, StateStopped, snap.State)
		assert.Zero(t, snap.PositionSamples)
	})
}

func TestPlayer_IllegalTransitions(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1)))

	t.Run("ready_from_stopped", func(t *testing.T) {
		err := p.Ready()
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryIllegalTransition))
		assert.Equal(t, StateStopped, p.Snapshot().State, "state must be preserved on rejection")
	})

	t.Run("pause_from_stopped", func(t *testing.T) {
		require.Error(t, p.Pause())
		assert.Equal(t, StateStopped, p.Snapshot().State)
	})

	t.Run("error_then_reset", func(t *testing.T) {
		require.NoError(t, p.Fail("decoder exploded"))
		snap := p.Snapshot()
		assert.Equal(t, StateError, snap.State)
		assert.Equal(t, "decoder exploded", snap.ErrorMessage)

		// Only reset leaves error.
		require.Error(t, p.Play())
		assert.Equal(t, StateError, p.Snapshot().State)

		require.NoError(t, p.Reset())
		assert.Equal(t, StateStopped, p.Snapshot().State)
	})
}

func TestPlayer_VersionMonotonic(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1)))

	var last uint64
	for i := 0; i < 5; i++ {
		require.NoError(t, p.SetVolume(uint8(50+i)))
		v := p.Snapshot().Version
		assert.Greater(t, v, last, "version must increase with every mutation")
		last = v
	}
}

func TestPlayer_QueueOperations(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1), track(2), track(3)))

	t.Run("insert_preserves_order", func(t *testing.T) {
		require.NoError(t, p.InsertAt(1, track(9)))
		ids := queueIDs(p)
		assert.Equal(t, []int64{1, 9, 2, 3}, ids)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, p.RemoveAt(1))
		assert.Equal(t, []int64{1, 2, 3}, queueIDs(p))
		require.Error(t, p.RemoveAt(10))
	})

	t.Run("insert_before_current_shifts_index", func(t *testing.T) {
		loadAndPlay(t, p, 1) // playing track 2
		require.NoError(t, p.InsertAt(0, track(7)))
		snap := p.Snapshot()
		assert.Equal(t, []int64{7, 1, 2, 3}, queueIDs(p))
		assert.Equal(t, 2, snap.QueueIndex, "current track follows its shifted position")
		assert.Equal(t, int64(2), snap.CurrentTrack.ID)
	})

	t.Run("cannot_remove_playing", func(t *testing.T) {
		err := p.RemoveAt(p.Snapshot().QueueIndex)
		require.Error(t, err)
	})
}

func TestPlayer_Reorder(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1), track(2), track(3), track(4)))
	loadAndPlay(t, p, 2) // playing track 3

	t.Run("permutation_applies_and_current_follows", func(t *testing.T) {
		require.NoError(t, p.Reorder([]int{3, 2, 1, 0}))
		snap := p.Snapshot()
		assert.Equal(t, []int64{4, 3, 2, 1}, queueIDs(p))
		assert.Equal(t, 1, snap.QueueIndex)
		assert.Equal(t, int64(3), snap.CurrentTrack.ID)
	})

	t.Run("bad_permutations_rejected", func(t *testing.T) {
		require.Error(t, p.Reorder([]int{0, 1}))          // wrong length
		require.Error(t, p.Reorder([]int{0, 0, 1, 2}))    // duplicate
		require.Error(t, p.Reorder([]int{0, 1, 2, 9}))    // out of range
	})
}

func TestPlayer_Shuffle(t *testing.T) {
	p := newTestPlayer(t)
	tracks := make([]datastore.Track, 20)
	for i := range tracks {
		tracks[i] = track(int64(i + 1))
	}
	require.NoError(t, p.Enqueue(tracks...))
	loadAndPlay(t, p, 7) // playing track 8

	require.NoError(t, p.SetShuffle(true))
	snap := p.Snapshot()
	assert.True(t, snap.Shuffle)
	assert.Equal(t, 0, snap.QueueIndex, "playing track moves to index 0")
	assert.Equal(t, int64(8), snap.Queue[0].ID)
	assert.Len(t, snap.Queue, 20)

	seen := map[int64]bool{}
	for i := range snap.Queue {
		seen[snap.Queue[i].ID] = true
	}
	assert.Len(t, seen, 20, "shuffle must keep every track exactly once")
}

func TestPlayer_AutoAdvance(t *testing.T) {
	t.Run("repeat_none_advances_then_stops", func(t *testing.T) {
		p := newTestPlayer(t)
		require.NoError(t, p.Enqueue(track(1), track(2)))
		loadAndPlay(t, p, 0)

		next, err := p.TrackEnded()
		require.NoError(t, err)
		assert.Equal(t, 1, next)

		loadAndPlay(t, p, next)
		next, err = p.TrackEnded()
		require.NoError(t, err)
		assert.Equal(t, -1, next, "end of queue stops playback")
		assert.Equal(t, StateStopped, p.Snapshot().State)
	})

	t.Run("repeat_one_replays", func(t *testing.T) {
		p := newTestPlayer(t)
		require.NoError(t, p.Enqueue(track(1), track(2)))
		require.NoError(t, p.SetRepeat(RepeatOne))
		loadAndPlay(t, p, 1)

		next, err := p.TrackEnded()
		require.NoError(t, err)
		assert.Equal(t, 1, next)
	})

	t.Run("repeat_all_wraps", func(t *testing.T) {
		p := newTestPlayer(t)
		require.NoError(t, p.Enqueue(track(1), track(2)))
		require.NoError(t, p.SetRepeat(RepeatAll))
		loadAndPlay(t, p, 1)

		next, err := p.TrackEnded()
		require.NoError(t, err)
		assert.Equal(t, 0, next, "repeat all wraps to index 0")
	})
}

func TestPlayer_PositionAndVolume(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1)))
	loadAndPlay(t, p, 0)

	p.UpdatePosition(44100)
	snap := p.Snapshot()
	assert.Equal(t, uint64(44100), snap.PositionSamples)

	t.Run("position_clamped_to_duration", func(t *testing.T) {
		p.UpdatePosition(uint64(31 * 44100))
		assert.Equal(t, p.Snapshot().DurationSamples, p.Snapshot().PositionSamples)
	})

	t.Run("volume_range", func(t *testing.T) {
		require.NoError(t, p.SetVolume(100))
		require.Error(t, p.SetVolume(101))
		require.NoError(t, p.SetMuted(true))
		assert.True(t, p.Snapshot().Muted)
	})

	t.Run("preset_switch", func(t *testing.T) {
		require.NoError(t, p.SetPreset("warm", 0.9))
		snap := p.Snapshot()
		assert.Equal(t, "warm", snap.Preset)
		assert.InDelta(t, 0.9, snap.Intensity, 1e-12)
		require.Error(t, p.SetPreset("warm", 1.5))
	})
}

func TestPlayer_SnapshotIsolation(t *testing.T) {
	p := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track(1), track(2)))

	snap := p.Snapshot()
	snap.Queue[0].Title = "mutated"

	assert.Equal(t, "track-1", p.Snapshot().Queue[0].Title,
		"mutating a snapshot must not leak into the player")
}

func queueIDs(p *Player) []int64 {
	snap := p.Snapshot()
	ids := make([]int64, len(snap.Queue))
	for i := range snap.Queue {
		ids[i] = snap.Queue[i].ID
	}
	return ids
}
