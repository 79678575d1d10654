package render

import (
	"context"
	"io"
	"sync"

	"github.com/auralis-audio/auralis/internal/audiofile"
)

// Stream is the pull interface over a render job's output. NextFrames
// blocks until frames are available, the stream ends, or the job fails.
type Stream struct {
	info audiofile.AudioInfo

	blocks chan []float64

	mu       sync.Mutex
	leftover []float64
	err      error
	done     chan struct{}
	doneOnce sync.Once

	positionFrames uint64
}

func newStream(info audiofile.AudioInfo, depth int) *Stream {
	return &Stream{
		info:   info,
		blocks: make(chan []float64, depth),
		done:   make(chan struct{}),
	}
}

// Info returns the stream's audio parameters.
func (s *Stream) Info() audiofile.AudioInfo {
	return s.info
}

// PositionFrames returns how many frames have been pulled so far.
func (s *Stream) PositionFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionFrames
}

// NextFrames returns up to n frames of interleaved samples, advancing the
// position. It returns io.EOF after the final frame has been delivered, or
// the job's error if rendering failed.
func (s *Stream) NextFrames(n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	want := n * s.info.Channels
	out := make([]float64, 0, want)

	s.mu.Lock()
	for len(out) < want {
		if len(s.leftover) > 0 {
			take := min(want-len(out), len(s.leftover))
			out = append(out, s.leftover[:take]...)
			s.leftover = s.leftover[take:]
			continue
		}
		s.mu.Unlock()

		block, ok := <-s.blocks
		s.mu.Lock()
		if !ok {
			break
		}
		s.leftover = block
	}

	s.positionFrames += uint64(len(out) / s.info.Channels)
	err := s.err
	s.mu.Unlock()

	if len(out) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return out, nil
}

// push hands a block to the consumer; returns false when ctx was cancelled
// before the consumer accepted it.
func (s *Stream) push(ctx context.Context, block []float64) bool {
	if len(block) == 0 {
		return true
	}
	select {
	case s.blocks <- block:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish signals a clean end of stream.
func (s *Stream) finish() {
	s.doneOnce.Do(func() {
		close(s.blocks)
		close(s.done)
	})
}

// fail records the error and ends the stream. A nil error (pure
// cancellation) ends the stream silently.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.doneOnce.Do(func() {
		close(s.blocks)
		close(s.done)
	})
}

// Done returns a channel closed when the stream has ended.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the stream error, if any, once the stream has ended.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
