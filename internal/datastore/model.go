// model.go defines the persistence model of the track catalog.
package datastore

import (
	"time"

	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// FingerprintStatus tracks the extraction lifecycle of a track.
type FingerprintStatus string

const (
	FingerprintPending    FingerprintStatus = "pending"
	FingerprintProcessing FingerprintStatus = "processing"
	FingerprintComplete   FingerprintStatus = "complete"
	FingerprintError      FingerprintStatus = "error"
)

// Artist is a referenced performer. Tracks may exist without one.
type Artist struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"size:512;uniqueIndex"`
}

// Album groups tracks; optional like Artist.
type Album struct {
	ID       int64  `gorm:"primaryKey"`
	Title    string `gorm:"size:512;index"`
	ArtistID *int64 `gorm:"index"`
	Artist   *Artist
}

// Track is one audio file in the catalog. Path uniquely identifies a track;
// the mastering core borrows Track values for the duration of a render and
// never mutates them.
type Track struct {
	ID       int64  `gorm:"primaryKey"`
	Path     string `gorm:"size:4096;uniqueIndex;not null"`
	Title    string `gorm:"size:512;index"`
	Format   string `gorm:"size:16"`
	ArtistID *int64 `gorm:"index"`
	Artist   *Artist
	AlbumID  *int64 `gorm:"index"`
	Album    *Album

	SampleRate      int
	Channels        int
	DurationSeconds float64

	FingerprintStatus FingerprintStatus `gorm:"size:16;index;default:pending"`
	// Fingerprint holds the 25 x f32 vector in sidecar payload order;
	// empty until status is complete.
	Fingerprint      []byte `gorm:"size:100"`
	FingerprintError string `gorm:"size:1024"`

	Favorite  bool `gorm:"index"`
	PlayCount int64
	LastPlay  *time.Time

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// FingerprintVector decodes the stored fingerprint, or nil when absent or
// malformed.
func (t *Track) FingerprintVector() *fingerprint.Fingerprint {
	if len(t.Fingerprint) != fingerprint.NumFeatures*4 {
		return nil
	}
	var v [fingerprint.NumFeatures]float32
	for i := range v {
		v[i] = float32FromLE(t.Fingerprint[i*4:])
	}
	return fingerprint.FromVector(v)
}

// encodeFingerprint packs the vector in payload order.
func encodeFingerprint(fp *fingerprint.Fingerprint) []byte {
	v := fp.Vector()
	out := make([]byte, len(v)*4)
	for i, x := range v {
		putFloat32LE(out[i*4:], x)
	}
	return out
}
