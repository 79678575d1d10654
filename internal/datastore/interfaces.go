// interfaces.go defines the repository boundary the mastering core consumes.
package datastore

import (
	"time"

	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// Sentinel errors.
var (
	// ErrTrackNotFound indicates the requested track does not exist.
	ErrTrackNotFound = errors.Newf("track not found").Component("datastore").Category(errors.CategoryNotFound).Build()
	// ErrDuplicatePath indicates a track with the same path already exists.
	ErrDuplicatePath = errors.Newf("track path already cataloged").Component("datastore").Category(errors.CategoryConflict).Build()
)

// Page is the single pagination shape: every listing operation returns the
// requested window plus a total that is consistent with it within the call.
type Page struct {
	Items []Track
	Total int64
}

// Interface abstracts the track catalog. Writes are serialized internally;
// reads may be served from the tagged query cache, and every mutation
// invalidates exactly the logical groups it affects.
type Interface interface {
	Open() error
	Close() error

	// Catalog reads.
	GetTrack(id int64) (*Track, error)
	GetTrackByPath(path string) (*Track, error)
	ListTracks(limit, offset int) (Page, error)
	SearchTracks(query string, limit, offset int) (Page, error)
	ListFavorites(limit, offset int) (Page, error)
	ListRecent(limit, offset int) (Page, error)
	ListPopular(limit, offset int) (Page, error)

	// Catalog writes.
	AddTrack(track *Track) error
	UpdateTrack(track *Track) error
	DeleteTrack(id int64) error
	SetFavorite(id int64, favorite bool) error
	RecordPlay(id int64, at time.Time) error

	// Fingerprint lifecycle.
	SetFingerprintStatus(id int64, status FingerprintStatus, extractErr string) error
	SaveFingerprint(id int64, fp *fingerprint.Fingerprint) error
	ListPendingFingerprints(limit int) ([]PendingFingerprint, error)

	// Maintenance.
	FlushCache()
}

// PendingFingerprint is one queued extraction job source.
type PendingFingerprint struct {
	TrackID int64
	Path    string
}

// FingerprintInvalidator is notified when a track's fingerprint changes so
// dependent caches (rendered chunks keyed off the fingerprint) can drop
// their entries for that track.
type FingerprintInvalidator interface {
	InvalidateGroup(group string) int
}
