package datastore

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/fingerprint"
	"github.com/auralis-audio/auralis/internal/logging"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// DataStore implements Interface over a GORM database. Writes are
// serialized by writeMu so the catalog never interleaves mutations;
// reads go through the tagged query cache.
type DataStore struct {
	DB *gorm.DB

	writeMu sync.Mutex
	cache   *queryCache

	// chunkInvalidator receives per-track group wipes when a fingerprint
	// changes; nil when no rendered-chunk cache is attached.
	chunkInvalidator FingerprintInvalidator

	logger *slog.Logger
}

func newDataStore(db *gorm.DB, cacheTTL time.Duration, m *metrics.CacheMetrics) *DataStore {
	return &DataStore{
		DB:     db,
		cache:  newQueryCache(cacheTTL, m),
		logger: logging.ForService("datastore"),
	}
}

// SetChunkInvalidator attaches the rendered-chunk cache for fingerprint
// driven invalidation.
func (ds *DataStore) SetChunkInvalidator(inv FingerprintInvalidator) {
	ds.chunkInvalidator = inv
}

// Open migrates the schema.
func (ds *DataStore) Open() error {
	if err := ds.DB.AutoMigrate(&Artist{}, &Album{}, &Track{}); err != nil {
		return dbError("migrating schema", err)
	}
	return nil
}

// Close closes the underlying connection.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError("resolving connection", err)
	}
	return sqlDB.Close()
}

// FlushCache drops the whole query cache. Maintenance escape hatch.
func (ds *DataStore) FlushCache() {
	ds.cache.flush()
}

// GetTrack returns one track with its relations preloaded.
func (ds *DataStore) GetTrack(id int64) (*Track, error) {
	key := fmt.Sprintf("track/%d", id)
	if v, ok := ds.cache.get(key); ok {
		cached := v.(Track)
		return &cached, nil
	}

	var track Track
	err := ds.DB.Preload("Artist").Preload("Album").First(&track, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, dbError("loading track", err)
	}
	ds.cache.put(key, track, TrackGroup(id))
	return &track, nil
}

// GetTrackByPath resolves a track by its unique path. Uncached: scan paths
// arrive once per file.
func (ds *DataStore) GetTrackByPath(path string) (*Track, error) {
	var track Track
	err := ds.DB.Preload("Artist").Preload("Album").Where("path = ?", path).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, dbError("loading track by path", err)
	}
	return &track, nil
}

// ListTracks pages the catalog ordered by id. The total is computed in the
// same call so it is consistent with the returned window.
func (ds *DataStore) ListTracks(limit, offset int) (Page, error) {
	key := fmt.Sprintf("listings/%d/%d", limit, offset)
	return ds.cachedPageWithKey(key, []string{GroupListings}, limit, offset, func() *gorm.DB {
		return ds.DB.Model(&Track{}).Order("id")
	})
}

// SearchTracks matches the query case-insensitively over title, artist and
// album names. LEFT JOINs keep artist-less tracks findable by title.
func (ds *DataStore) SearchTracks(query string, limit, offset int) (Page, error) {
	needle := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	key := fmt.Sprintf("search/%s/%d/%d", needle, limit, offset)
	return ds.cachedPageWithKey(key, []string{GroupSearch}, limit, offset, func() *gorm.DB {
		return ds.DB.Model(&Track{}).
			Joins("LEFT JOIN artists ON artists.id = tracks.artist_id").
			Joins("LEFT JOIN albums ON albums.id = tracks.album_id").
			Where("LOWER(tracks.title) LIKE ? OR LOWER(artists.name) LIKE ? OR LOWER(albums.title) LIKE ?",
				needle, needle, needle).
			Order("tracks.id")
	})
}

// ListFavorites pages favorite tracks.
func (ds *DataStore) ListFavorites(limit, offset int) (Page, error) {
	key := fmt.Sprintf("favorites/%d/%d", limit, offset)
	return ds.cachedPageWithKey(key, []string{GroupFavorites}, limit, offset, func() *gorm.DB {
		return ds.DB.Model(&Track{}).Where("favorite = ?", true).Order("id")
	})
}

// ListRecent pages tracks by most recent play.
func (ds *DataStore) ListRecent(limit, offset int) (Page, error) {
	key := fmt.Sprintf("recent/%d/%d", limit, offset)
	return ds.cachedPageWithKey(key, []string{GroupRecent}, limit, offset, func() *gorm.DB {
		return ds.DB.Model(&Track{}).Where("last_play IS NOT NULL").Order("last_play DESC, id")
	})
}

// ListPopular pages tracks by play count.
func (ds *DataStore) ListPopular(limit, offset int) (Page, error) {
	key := fmt.Sprintf("popular/%d/%d", limit, offset)
	return ds.cachedPageWithKey(key, []string{GroupPopular}, limit, offset, func() *gorm.DB {
		return ds.DB.Model(&Track{}).Where("play_count > 0").Order("play_count DESC, id")
	})
}

// cachedPageWithKey serves a page query through the tagged cache. The count
// and the window come from the same builder so total is consistent with the
// returned items.
func (ds *DataStore) cachedPageWithKey(key string, tags []string, limit, offset int, build func() *gorm.DB) (Page, error) {
	if v, ok := ds.cache.get(key); ok {
		return v.(Page), nil
	}

	var page Page
	if err := build().Count(&page.Total).Error; err != nil {
		return Page{}, dbError("counting page", err)
	}
	err := build().Preload("Artist").Preload("Album").
		Limit(limit).Offset(offset).
		Find(&page.Items).Error
	if err != nil {
		return Page{}, dbError("loading page", err)
	}

	ds.cache.put(key, page, tags...)
	return page, nil
}

// AddTrack inserts a new track. Invalidates listings, search, recent.
func (ds *DataStore) AddTrack(track *Track) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	var count int64
	if err := ds.DB.Model(&Track{}).Where("path = ?", track.Path).Count(&count).Error; err != nil {
		return dbError("checking path uniqueness", err)
	}
	if count > 0 {
		return ErrDuplicatePath
	}
	if track.FingerprintStatus == "" {
		track.FingerprintStatus = FingerprintPending
	}
	if err := ds.DB.Create(track).Error; err != nil {
		return dbError("inserting track", err)
	}

	ds.cache.invalidate(GroupListings, GroupSearch, GroupRecent)
	return nil
}

// UpdateTrack persists metadata changes. Invalidates the track, search,
// listings.
func (ds *DataStore) UpdateTrack(track *Track) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	res := ds.DB.Model(&Track{}).Where("id = ?", track.ID).Updates(track)
	if res.Error != nil {
		return dbError("updating track", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}

	ds.cache.invalidate(TrackGroup(track.ID), GroupSearch, GroupListings)
	return nil
}

// DeleteTrack removes a track. Invalidates listings, search, favorites,
// recent, popular and the track itself.
func (ds *DataStore) DeleteTrack(id int64) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	res := ds.DB.Delete(&Track{}, id)
	if res.Error != nil {
		return dbError("deleting track", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}

	ds.cache.invalidate(GroupListings, GroupSearch, GroupFavorites, GroupRecent, GroupPopular, TrackGroup(id))
	return nil
}

// SetFavorite flips the favorite flag. Invalidates favorites only.
func (ds *DataStore) SetFavorite(id int64, favorite bool) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	res := ds.DB.Model(&Track{}).Where("id = ?", id).Update("favorite", favorite)
	if res.Error != nil {
		return dbError("setting favorite", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}

	ds.cache.invalidate(GroupFavorites)
	return nil
}

// RecordPlay bumps the play counters. Invalidates recent, popular,
// listings, and the track.
func (ds *DataStore) RecordPlay(id int64, at time.Time) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	res := ds.DB.Model(&Track{}).Where("id = ?", id).Updates(map[string]any{
		"play_count": gorm.Expr("play_count + 1"),
		"last_play":  at,
	})
	if res.Error != nil {
		return dbError("recording play", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}

	ds.cache.invalidate(GroupRecent, GroupPopular, GroupListings, TrackGroup(id))
	return nil
}

// SetFingerprintStatus applies one lifecycle transition. Invalidates the
// track only.
func (ds *DataStore) SetFingerprintStatus(id int64, status FingerprintStatus, extractErr string) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	updates := map[string]any{
		"fingerprint_status": status,
		"fingerprint_error":  extractErr,
	}
	res := ds.DB.Model(&Track{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return dbError("setting fingerprint status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}

	ds.cache.invalidate(TrackGroup(id))
	return nil
}

// SaveFingerprint persists the vector and marks the track complete.
// Invalidates the track and, through the attached invalidator, any rendered
// chunks derived from the old fingerprint.
func (ds *DataStore) SaveFingerprint(id int64, fp *fingerprint.Fingerprint) error {
	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	res := ds.DB.Model(&Track{}).Where("id = ?", id).Updates(map[string]any{
		"fingerprint":        encodeFingerprint(fp),
		"fingerprint_status": FingerprintComplete,
		"fingerprint_error":  "",
	})
	if res.Error != nil {
		return dbError("saving fingerprint", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}

	ds.cache.invalidate(TrackGroup(id))
	if ds.chunkInvalidator != nil {
		ds.chunkInvalidator.InvalidateGroup(TrackGroup(id))
	}
	return nil
}

// ListPendingFingerprints returns tracks awaiting extraction. Tracks left
// in processing by a dead worker are included: workers are not persistent,
// so processing is treated as pending on startup.
func (ds *DataStore) ListPendingFingerprints(limit int) ([]PendingFingerprint, error) {
	var rows []Track
	err := ds.DB.
		Where("fingerprint_status IN ?", []FingerprintStatus{FingerprintPending, FingerprintProcessing}).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError("listing pending fingerprints", err)
	}

	out := make([]PendingFingerprint, len(rows))
	for i := range rows {
		out[i] = PendingFingerprint{TrackID: rows[i].ID, Path: rows[i].Path}
	}
	return out, nil
}

func dbError(op string, err error) error {
	return errors.Newf("%s: %w", op, err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Build()
}
