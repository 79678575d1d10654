package audiofile

import (
	"math"

	"github.com/auralis-audio/auralis/internal/errors"
)

// ChunkDescriptor is a positioned slice of a track. Descriptors tile
// [0, TotalSamples) contiguously: desc[i].EndSample == desc[i+1].StartSample.
// Overlap exists only in the rendered output and is produced by reading a
// tail beyond the declared range; it never appears at the descriptor level.
type ChunkDescriptor struct {
	ChunkIndex  uint32
	StartSample uint64
	EndSample   uint64
}

// Frames returns the declared frame count of the chunk.
func (d ChunkDescriptor) Frames() uint64 {
	return d.EndSample - d.StartSample
}

// ChunkData carries the samples for one chunk read. Samples is interleaved
// float64 and covers, in order: PreRollFrames of warm-up context, the
// declared range, then TailFrames of crossfade material past the declared
// end. Pre-roll and tail are working data for the DSP graph and the
// continuity controller; only the declared range is emitted.
type ChunkData struct {
	Desc          ChunkDescriptor
	Samples       []float64
	PreRollFrames int
	TailFrames    int
	SampleRate    int
	Channels      int
	IsLast        bool
}

// DeclaredFrames returns the number of frames in the declared range.
func (c *ChunkData) DeclaredFrames() int {
	return len(c.Samples)/c.Channels - c.PreRollFrames - c.TailFrames
}

// Declared returns the sub-slice of Samples holding the declared range.
func (c *ChunkData) Declared() []float64 {
	start := c.PreRollFrames * c.Channels
	end := len(c.Samples) - c.TailFrames*c.Channels
	return c.Samples[start:end]
}

// ReadOptions controls the context read around a chunk's declared range.
type ReadOptions struct {
	// PreRollSeconds of audio before the declared start, clipped at the
	// file start, used to warm stateful DSP. Stripped before emission.
	PreRollSeconds float64
	// TailSeconds of audio after the declared end, clipped at EOF, used
	// by the continuity controller for the boundary crossfade.
	TailSeconds float64
}

// PlanChunks tiles [0, totalSamples) into contiguous descriptors of
// chunkSeconds each. The final descriptor holds the remainder: a remainder
// shorter than a full chunk, down to a single frame, still yields its own
// descriptor so the sum of declared ranges always equals totalSamples exactly.
func PlanChunks(totalSamples uint64, sampleRate int, chunkSeconds float64) []ChunkDescriptor {
	if totalSamples == 0 || sampleRate <= 0 || chunkSeconds <= 0 {
		return nil
	}

	chunkFrames := uint64(math.Round(chunkSeconds * float64(sampleRate)))
	if chunkFrames == 0 {
		chunkFrames = 1
	}

	descs := make([]ChunkDescriptor, 0, totalSamples/chunkFrames+1)
	var start uint64
	var index uint32
	for start < totalSamples {
		end := start + chunkFrames
		if end > totalSamples {
			end = totalSamples
		}
		descs = append(descs, ChunkDescriptor{
			ChunkIndex:  index,
			StartSample: start,
			EndSample:   end,
		})
		start = end
		index++
	}
	return descs
}

// ReadChunk extracts the declared range of desc plus the requested context.
// The declared frame count matches the descriptor exactly; pre-roll is
// clipped at the file start and the tail at EOF. IsLast is set when the
// declared range touches the end of the file.
func (d *Decoder) ReadChunk(desc ChunkDescriptor, opts ReadOptions) (*ChunkData, error) {
	total := d.info.TotalSamples
	if desc.EndSample <= desc.StartSample || desc.EndSample > total {
		return nil, errors.Newf("chunk descriptor [%d, %d) out of range for %s",
			desc.StartSample, desc.EndSample, fmtFrames(total, d.info.SampleRate)).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Build()
	}

	sr := float64(d.info.SampleRate)
	preRoll := uint64(math.Round(max(opts.PreRollSeconds, 0) * sr))
	tail := uint64(math.Round(max(opts.TailSeconds, 0) * sr))

	readStart := desc.StartSample
	if preRoll > readStart {
		preRoll = readStart
	}
	readStart -= preRoll

	readEnd := desc.EndSample + tail
	if readEnd > total {
		readEnd = total
	}

	ch := d.info.Channels
	src := d.samples[readStart*uint64(ch) : readEnd*uint64(ch)]
	out := make([]float64, len(src))
	for i, s := range src {
		out[i] = float64(s)
	}

	return &ChunkData{
		Desc:          desc,
		Samples:       out,
		PreRollFrames: int(preRoll),
		TailFrames:    int(readEnd - desc.EndSample),
		SampleRate:    d.info.SampleRate,
		Channels:      ch,
		IsLast:        desc.EndSample == total,
	}, nil
}
