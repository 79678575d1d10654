package chunkcache

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/auralis-audio/auralis/internal/errors"
)

// contentProbeBytes is how much of the file head goes into the signature's
// content hash. Enough to cover headers and early audio so retagging or
// re-encoding is caught without hashing gigabytes.
const contentProbeBytes = 256 * 1024

// FileSignature identifies file content: any change to size, mtime, or the
// leading bytes produces a different signature and therefore different
// chunk cache keys.
type FileSignature struct {
	Size        int64
	MtimeNanos  int64
	ContentHash [32]byte
}

// Signature computes the file signature for path.
func Signature(path string) (FileSignature, error) {
	var sig FileSignature

	fi, err := os.Stat(path)
	if err != nil {
		return sig, errors.New(err).
			Component("chunkcache").
			Category(errors.CategoryFileIO).
			Build()
	}
	sig.Size = fi.Size()
	sig.MtimeNanos = fi.ModTime().UnixNano()

	f, err := os.Open(path) //nolint:gosec // path comes from the catalog
	if err != nil {
		return sig, errors.New(err).
			Component("chunkcache").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer f.Close() //nolint:errcheck // read-only handle

	h := sha256.New()
	if _, err := io.CopyN(h, f, contentProbeBytes); err != nil && err != io.EOF {
		return sig, errors.New(err).
			Component("chunkcache").
			Category(errors.CategoryFileIO).
			Build()
	}
	copy(sig.ContentHash[:], h.Sum(nil))
	return sig, nil
}

// TrackGroup returns the invalidation group tag for a track's rendered
// chunks. The datastore tags its per-track query entries with the same
// string, so a fingerprint update wipes both caches with one group name.
func TrackGroup(trackID int64) string {
	return fmt.Sprintf("track:%d", trackID)
}

// Key derives the cache key for one rendered chunk:
// hash(file signature || parameters fingerprint || chunk index).
func Key(sig FileSignature, paramsFingerprint uint64, chunkIndex uint32) string {
	h := fnv.New64a()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(sig.Size))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(sig.MtimeNanos))
	_, _ = h.Write(buf[:])
	_, _ = h.Write(sig.ContentHash[:])
	binary.LittleEndian.PutUint64(buf[:], paramsFingerprint)
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:4], chunkIndex)
	_, _ = h.Write(buf[:4])

	return fmt.Sprintf("%016x", h.Sum64())
}
