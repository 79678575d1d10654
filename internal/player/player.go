package player

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/events"
	"github.com/auralis-audio/auralis/internal/logging"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// positionPublishInterval bounds how often pure position progress is
// broadcast. State changes always publish immediately.
const positionPublishInterval = time.Second

// Player is the single source of truth for transport state. All mutations
// run on one internal loop, so state updates are totally ordered; observers
// see a monotonically increasing version.
type Player struct {
	commands chan func()
	quit     chan struct{}
	wg       sync.WaitGroup

	// state is owned by the loop goroutine.
	state Snapshot

	// published holds the last broadcast snapshot for queries.
	publishedMu sync.RWMutex
	published   Snapshot

	lastPositionPublish time.Time

	bus     *events.EventBus
	metrics *metrics.PlayerMetrics
	logger  *slog.Logger
	rng     *rand.Rand
}

// New creates a player. bus and m may be nil.
func New(bus *events.EventBus, m *metrics.PlayerMetrics, defaultPreset string, defaultIntensity float64) *Player {
	p := &Player{
		commands: make(chan func(), 64),
		quit:     make(chan struct{}),
		state: Snapshot{
			State:      StateStopped,
			Volume:     80,
			QueueIndex: 0,
			Repeat:     RepeatNone,
			Preset:     defaultPreset,
			Intensity:  defaultIntensity,
		},
		bus:     bus,
		metrics: m,
		logger:  logging.ForService("player"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // shuffle order is not security sensitive
	}
	p.published = p.state.clone()

	p.wg.Add(1)
	go p.loop()
	return p
}

// Close stops the state loop.
func (p *Player) Close() {
	close(p.quit)
	p.wg.Wait()
}

// loop executes commands serially.
func (p *Player) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case cmd := <-p.commands:
			cmd()
		}
	}
}

// do runs fn on the loop and waits for it.
func (p *Player) do(fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case p.commands <- func() { errCh <- fn() }:
	case <-p.quit:
		return errors.Newf("player is closed").
			Component("player").
			Category(errors.CategoryState).
			Build()
	}
	select {
	case err := <-errCh:
		return err
	case <-p.quit:
		return errors.Newf("player is closed").
			Component("player").
			Category(errors.CategoryState).
			Build()
	}
}

// Snapshot returns the last published state.
func (p *Player) Snapshot() Snapshot {
	p.publishedMu.RLock()
	defer p.publishedMu.RUnlock()
	return p.published.clone()
}

// publish bumps the version and pushes the snapshot to observers.
func (p *Player) publish() {
	p.state.Version++
	snap := p.state.clone()

	p.publishedMu.Lock()
	p.published = snap
	p.publishedMu.Unlock()

	if p.bus != nil {
		p.bus.Publish(events.NewStateChanged(snap.Version, snap))
	}
}

// transition validates and applies a state edge, or rejects it preserving
// the previous state.
func (p *Player) transition(to State, errorMessage string) error {
	from := p.state.State
	if !transitionLegal(from, to) {
		if p.metrics != nil {
			p.metrics.IllegalTransitions.Inc()
		}
		err := errors.Newf("illegal transition %s -> %s", from, to).
			Component("player").
			Category(errors.CategoryIllegalTransition).
			Build()
		if p.bus != nil {
			p.bus.Publish(events.NewError("player", string(errors.CategoryIllegalTransition), err.Error()))
		}
		return err
	}
	p.state.State = to
	p.state.ErrorMessage = errorMessage
	if p.metrics != nil {
		p.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	}
	p.publish()
	return nil
}

// Load moves stopped -> loading with the given track as current. The track
// must already be in the queue; Load selects it.
func (p *Player) Load(queueIndex int) error {
	return p.do(func() error {
		if queueIndex < 0 || queueIndex >= len(p.state.Queue) {
			return errors.Newf("queue index %d out of range", queueIndex).
				Component("player").
				Category(errors.CategoryValidation).
				Build()
		}
		// Loading a new track from playing/paused is a legal restart.
		if err := p.transition(StateLoading, ""); err != nil {
			return err
		}
		track := p.state.Queue[queueIndex]
		p.state.QueueIndex = queueIndex
		p.state.CurrentTrack = &track
		p.state.PositionSamples = 0
		p.state.DurationSamples = uint64(track.DurationSeconds * float64(track.SampleRate))
		p.publish()
		return nil
	})
}

// Ready moves loading -> playing once the render stream is primed.
func (p *Player) Ready() error {
	return p.do(func() error { return p.transition(StatePlaying, "") })
}

// Play resumes from paused.
func (p *Player) Play() error {
	return p.do(func() error {
		if p.state.State == StatePlaying {
			return nil
		}
		return p.transition(StatePlaying, "")
	})
}

// Pause suspends playback.
func (p *Player) Pause() error {
	return p.do(func() error { return p.transition(StatePaused, "") })
}

// Stop ends playback and clears the position.
func (p *Player) Stop() error {
	return p.do(func() error {
		if err := p.transition(StateStopped, ""); err != nil {
			return err
		}
		p.state.PositionSamples = 0
		p.publish()
		return nil
	})
}

// Fail moves any state to error with a descriptive message.
func (p *Player) Fail(message string) error {
	return p.do(func() error { return p.transition(StateError, message) })
}

// Reset recovers from error back to stopped.
func (p *Player) Reset() error {
	return p.do(func() error {
		if err := p.transition(StateStopped, ""); err != nil {
			return err
		}
		p.state.CurrentTrack = nil
		p.state.PositionSamples = 0
		p.state.DurationSamples = 0
		p.publish()
		return nil
	})
}

// UpdatePosition records playback progress. Broadcasts are throttled to
// about one per second so observers see smooth progress without a flood;
// the internal state is always current.
func (p *Player) UpdatePosition(positionSamples uint64) {
	_ = p.do(func() error {
		if positionSamples > p.state.DurationSamples {
			positionSamples = p.state.DurationSamples
		}
		p.state.PositionSamples = positionSamples

		now := time.Now()
		if now.Sub(p.lastPositionPublish) >= positionPublishInterval {
			p.lastPositionPublish = now
			p.publish()
		} else {
			// Keep queries accurate without a broadcast.
			p.state.Version++
			p.publishedMu.Lock()
			p.published = p.state.clone()
			p.publishedMu.Unlock()
		}
		return nil
	})
}

// SetVolume sets the output volume (0..=100).
func (p *Player) SetVolume(volume uint8) error {
	return p.do(func() error {
		if volume > 100 {
			return errors.Newf("volume %d above 100", volume).
				Component("player").
				Category(errors.CategoryValidation).
				Build()
		}
		p.state.Volume = volume
		p.publish()
		return nil
	})
}

// SetMuted flips the mute flag.
func (p *Player) SetMuted(muted bool) error {
	return p.do(func() error {
		p.state.Muted = muted
		p.publish()
		return nil
	})
}

// SetPreset switches the mastering preset and intensity for subsequent
// chunks.
func (p *Player) SetPreset(name string, intensity float64) error {
	return p.do(func() error {
		if intensity < 0 || intensity > 1 {
			return errors.Newf("intensity %g outside [0, 1]", intensity).
				Component("player").
				Category(errors.CategoryPresetBadIntensity).
				Build()
		}
		p.state.Preset = name
		p.state.Intensity = intensity
		p.publish()
		return nil
	})
}

// TrackEnded performs end-of-track auto-advance per queue and repeat mode.
// Returns the queue index to load next, or -1 when playback stops.
func (p *Player) TrackEnded() (next int, err error) {
	next = -1
	err = p.do(func() error {
		if p.bus != nil && p.state.CurrentTrack != nil {
			p.bus.Publish(events.NewTrackEnded(p.state.CurrentTrack.ID))
		}

		switch p.state.Repeat {
		case RepeatOne:
			next = p.state.QueueIndex
		case RepeatAll:
			if len(p.state.Queue) > 0 {
				next = (p.state.QueueIndex + 1) % len(p.state.Queue)
			}
		default:
			if p.state.QueueIndex+1 < len(p.state.Queue) {
				next = p.state.QueueIndex + 1
			}
		}

		if next < 0 {
			if err := p.transition(StateStopped, ""); err != nil {
				return err
			}
			p.state.PositionSamples = 0
			p.publish()
		}
		return nil
	})
	return next, err
}
