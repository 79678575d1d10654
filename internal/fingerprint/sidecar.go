package fingerprint

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"
	"time"

	"github.com/auralis-audio/auralis/internal/errors"
)

// Sidecar binary layout, 120 bytes total:
//
//	offset  size  field
//	0       4     magic/version      (u32 LE)
//	4       8     sidecar mtime sec  (u64 LE)
//	12      4     dimension count    (u32 LE, must equal 25)
//	16      100   payload            (25 x f32 LE, feature key order)
//	116     4     crc32              (u32 LE, over bytes 16..116)
const (
	SidecarMagic     = uint32(0x25D00001)
	SidecarExtension = ".25d"
	sidecarSize      = 120
	payloadOffset    = 16
	payloadSize      = NumFeatures * 4
)

// SidecarPath returns the sidecar path next to an audio file.
func SidecarPath(audioPath string) string {
	return audioPath + SidecarExtension
}

// EncodeSidecar serializes a fingerprint into the 120-byte sidecar format.
func EncodeSidecar(fp *Fingerprint, mtime time.Time) []byte {
	buf := make([]byte, sidecarSize)
	binary.LittleEndian.PutUint32(buf[0:4], SidecarMagic)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(mtime.Unix()))
	binary.LittleEndian.PutUint32(buf[12:16], NumFeatures)

	v := fp.Vector()
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[payloadOffset+i*4:], math.Float32bits(x))
	}

	crc := crc32.ChecksumIEEE(buf[payloadOffset : payloadOffset+payloadSize])
	binary.LittleEndian.PutUint32(buf[payloadOffset+payloadSize:], crc)
	return buf
}

// DecodeSidecar parses and validates sidecar bytes. The returned mtime is
// the timestamp stored inside the sidecar, used against the audio file's
// mtime by LoadSidecar.
func DecodeSidecar(data []byte) (*Fingerprint, time.Time, error) {
	if len(data) != sidecarSize {
		return nil, time.Time{}, sidecarError(errors.CategorySidecarDimension,
			"sidecar is %d bytes, want %d", len(data), sidecarSize)
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != SidecarMagic {
		return nil, time.Time{}, sidecarError(errors.CategorySidecarVersion,
			"bad sidecar magic/version 0x%08x", magic)
	}
	if dims := binary.LittleEndian.Uint32(data[12:16]); dims != NumFeatures {
		return nil, time.Time{}, sidecarError(errors.CategorySidecarDimension,
			"sidecar declares %d dimensions, want %d", dims, NumFeatures)
	}

	wantCRC := binary.LittleEndian.Uint32(data[payloadOffset+payloadSize:])
	gotCRC := crc32.ChecksumIEEE(data[payloadOffset : payloadOffset+payloadSize])
	if wantCRC != gotCRC {
		return nil, time.Time{}, sidecarError(errors.CategorySidecarCRC,
			"sidecar payload CRC mismatch: stored %08x, computed %08x", wantCRC, gotCRC)
	}

	var v [NumFeatures]float32
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[payloadOffset+i*4:]))
	}
	mtime := time.Unix(int64(binary.LittleEndian.Uint64(data[4:12])), 0)
	return FromVector(v), mtime, nil
}

// SaveSidecar writes the fingerprint next to the audio file, stamped with
// the current time so it postdates the audio content it describes.
func SaveSidecar(audioPath string, fp *Fingerprint) error {
	data := EncodeSidecar(fp, time.Now())
	if err := os.WriteFile(SidecarPath(audioPath), data, 0o644); err != nil { //nolint:gosec // sidecars are not secrets
		return errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryFileIO).
			FileContext(SidecarPath(audioPath), sidecarSize).
			Build()
	}
	return nil
}

// LoadSidecar reads and validates the sidecar of an audio file. It returns
// (nil, nil) when the sidecar is absent or invalid in any way — wrong
// magic, wrong dimension count, CRC failure, or a sidecar older than the
// audio file — so callers fall through to recomputation.
func LoadSidecar(audioPath string) (*Fingerprint, error) {
	audioInfo, err := os.Stat(audioPath)
	if err != nil {
		return nil, errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryFileIO).
			Build()
	}

	data, err := os.ReadFile(SidecarPath(audioPath)) //nolint:gosec // path derived from catalog entry
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryFileIO).
			Build()
	}

	fp, sidecarMtime, err := DecodeSidecar(data)
	if err != nil {
		// Invalid sidecar: ignored and recomputed, never fatal.
		return nil, nil
	}
	if sidecarMtime.Before(audioInfo.ModTime().Truncate(time.Second)) {
		// Audio was rewritten after the sidecar: stale.
		return nil, nil
	}
	return fp, nil
}

func sidecarError(category errors.ErrorCategory, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("fingerprint").
		Category(category).
		Build()
}
