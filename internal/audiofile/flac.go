package audiofile

import (
	"io"
	"math"

	"github.com/mewkiz/flac"
)

// openFLAC decodes a FLAC file frame by frame into normalized float32 PCM.
func openFLAC(path string, size int64) (*Decoder, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, decodeError(path, size, err)
	}
	defer stream.Close() //nolint:errcheck // read-only handle

	si := stream.Info
	channels := int(si.NChannels)
	sampleRate := int(si.SampleRate)
	scale := float32(math.Pow(2, float64(si.BitsPerSample-1)))

	// NSamples may be zero for streams written without a final header
	// update; grow the slice as frames arrive in that case.
	capacity := int(si.NSamples) * channels
	if capacity < 0 {
		capacity = 0
	}
	samples := make([]float32, 0, capacity)

	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, decodeError(path, size, err)
		}

		n := int(frame.BlockSize)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float32(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	info := AudioInfo{
		SampleRate:   sampleRate,
		Channels:     channels,
		TotalSamples: uint64(len(samples) / max(channels, 1)),
		Format:       "flac",
	}
	return newDecoder(path, info, samples)
}
