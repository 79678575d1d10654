package datastore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/auralis-audio/auralis/internal/conf"
	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/fingerprint"
)

func testStore(t *testing.T) *DataStore {
	t.Helper()
	settings := conf.DefaultSettings()
	settings.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	ds, err := New(settings, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func addTrack(t *testing.T, ds *DataStore, title string) *Track {
	t.Helper()
	track := &Track{
		Path:       filepath.Join("/music", title+".wav"),
		Title:      title,
		Format:     "wav",
		SampleRate: 44100,
		Channels:   2,
	}
	require.NoError(t, ds.AddTrack(track))
	return track
}

func TestAddTrack(t *testing.T) {
	ds := testStore(t)

	track := addTrack(t, ds, "First Light")
	assert.NotZero(t, track.ID)
	assert.Equal(t, FingerprintPending, track.FingerprintStatus)

	t.Run("duplicate_path_conflicts", func(t *testing.T) {
		err := ds.AddTrack(&Track{Path: track.Path, Title: "Copy"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicatePath))
	})
}

func TestGetTrack(t *testing.T) {
	ds := testStore(t)
	track := addTrack(t, ds, "Nocturne")

	got, err := ds.GetTrack(track.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nocturne", got.Title)

	_, err = ds.GetTrack(99999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListTracks_Pagination(t *testing.T) {
	ds := testStore(t)
	for i := 0; i < 7; i++ {
		addTrack(t, ds, fmt.Sprintf("track-%02d", i))
	}

	t.Run("window_and_total", func(t *testing.T) {
		page, err := ds.ListTracks(3, 0)
		require.NoError(t, err)
		assert.Len(t, page.Items, 3)
		assert.Equal(t, int64(7), page.Total)
	})

	t.Run("offset_boundaries", func(t *testing.T) {
		for offset, wantLen := range map[int]int{6: 1, 7: 0, 8: 0} {
			page, err := ds.ListTracks(3, offset)
			require.NoError(t, err)
			assert.Len(t, page.Items, wantLen, "offset %d", offset)
			assert.Equal(t, int64(7), page.Total)
		}
	})
}

// Property: paging with any page size visits every track exactly once and
// total stays constant across the walk.
func TestListTracks_PaginationProperty(t *testing.T) {
	ds := testStore(t)
	const trackCount = 23
	for i := 0; i < trackCount; i++ {
		addTrack(t, ds, fmt.Sprintf("track-%02d", i))
	}

	rapid.Check(t, func(t *rapid.T) {
		pageSize := rapid.IntRange(1, trackCount+5).Draw(t, "pageSize")

		seen := map[int64]int{}
		for offset := 0; ; offset += pageSize {
			page, err := ds.ListTracks(pageSize, offset)
			if err != nil {
				t.Fatal(err)
			}
			if page.Total != trackCount {
				t.Fatalf("total drifted to %d", page.Total)
			}
			if len(page.Items) == 0 {
				break
			}
			for i := range page.Items {
				seen[page.Items[i].ID]++
			}
		}

		if len(seen) != trackCount {
			t.Fatalf("visited %d distinct tracks, want %d", len(seen), trackCount)
		}
		for id, n := range seen {
			if n != 1 {
				t.Fatalf("track %d visited %d times", id, n)
			}
		}
	})
}

func TestSearchTracks(t *testing.T) {
	ds := testStore(t)

	artist := &Artist{Name: "Halogen Quartet"}
	require.NoError(t, ds.DB.Create(artist).Error)
	album := &Album{Title: "Glass Rooms", ArtistID: &artist.ID}
	require.NoError(t, ds.DB.Create(album).Error)

	withArtist := &Track{Path: "/m/a.wav", Title: "Slow Orbit", ArtistID: &artist.ID, AlbumID: &album.ID}
	require.NoError(t, ds.AddTrack(withArtist))
	orphan := &Track{Path: "/m/b.wav", Title: "Untitled Sketch"}
	require.NoError(t, ds.AddTrack(orphan))

	t.Run("by_title", func(t *testing.T) {
		page, err := ds.SearchTracks("orbit", 10, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), page.Total)
		assert.Equal(t, "Slow Orbit", page.Items[0].Title)
	})

	t.Run("by_artist_case_insensitive", func(t *testing.T) {
		page, err := ds.SearchTracks("HALOGEN", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("by_album", func(t *testing.T) {
		page, err := ds.SearchTracks("glass", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("artistless_track_findable_by_title", func(t *testing.T) {
		page, err := ds.SearchTracks("sketch", 10, 0)
		require.NoError(t, err)
		require.Equal(t, int64(1), page.Total)
		assert.Equal(t, orphan.ID, page.Items[0].ID)
	})

	t.Run("no_match", func(t *testing.T) {
		page, err := ds.SearchTracks("zzzz", 10, 0)
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.Empty(t, page.Items)
	})
}

func TestFingerprintLifecycle(t *testing.T) {
	ds := testStore(t)
	track := addTrack(t, ds, "Analyzed")

	t.Run("pending_to_processing", func(t *testing.T) {
		require.NoError(t, ds.SetFingerprintStatus(track.ID, FingerprintProcessing, ""))
		got, err := ds.GetTrack(track.ID)
		require.NoError(t, err)
		assert.Equal(t, FingerprintProcessing, got.FingerprintStatus)
	})

	t.Run("save_completes", func(t *testing.T) {
		fp := &fingerprint.Fingerprint{LUFS: -14, TempoBPM: 120, CrestDB: 10}
		require.NoError(t, ds.SaveFingerprint(track.ID, fp))

		got, err := ds.GetTrack(track.ID)
		require.NoError(t, err)
		assert.Equal(t, FingerprintComplete, got.FingerprintStatus)
		require.NotNil(t, got.FingerprintVector())
		assert.Equal(t, fp.Vector(), got.FingerprintVector().Vector())
	})

	t.Run("error_records_message", func(t *testing.T) {
		other := addTrack(t, ds, "Broken")
		require.NoError(t, ds.SetFingerprintStatus(other.ID, FingerprintError, "decode failed"))
		got, err := ds.GetTrack(other.ID)
		require.NoError(t, err)
		assert.Equal(t, FingerprintError, got.FingerprintStatus)
		assert.Equal(t, "decode failed", got.FingerprintError)
	})
}

func TestListPendingFingerprints(t *testing.T) {
	ds := testStore(t)
	a := addTrack(t, ds, "one")
	b := addTrack(t, ds, "two")
	c := addTrack(t, ds, "three")

	// Simulate a crashed worker: processing is requeued like pending.
	require.NoError(t, ds.SetFingerprintStatus(a.ID, FingerprintProcessing, ""))
	// Completed tracks are excluded.
	require.NoError(t, ds.SaveFingerprint(b.ID, &fingerprint.Fingerprint{LUFS: -12}))

	pending, err := ds.ListPendingFingerprints(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := map[int64]bool{}
	for _, p := range pending {
		ids[p.TrackID] = true
	}
	assert.True(t, ids[a.ID], "processing is treated as pending on startup")
	assert.True(t, ids[c.ID])
	assert.False(t, ids[b.ID])
}

func TestTargetedInvalidation(t *testing.T) {
	ds := testStore(t)
	a := addTrack(t, ds, "alpha")
	addTrack(t, ds, "beta")

	warmAll := func() {
		_, err := ds.ListTracks(10, 0)
		require.NoError(t, err)
		_, err = ds.SearchTracks("alpha", 10, 0)
		require.NoError(t, err)
		_, err = ds.ListFavorites(10, 0)
		require.NoError(t, err)
		_, err = ds.ListRecent(10, 0)
		require.NoError(t, err)
		_, err = ds.ListPopular(10, 0)
		require.NoError(t, err)
	}
	keyListings := "listings/10/0"
	keyFavorites := "favorites/10/0"
	keyRecent := "recent/10/0"
	keyPopular := "popular/10/0"

	t.Run("set_favorite_wipes_favorites_only", func(t *testing.T) {
		warmAll()
		require.NoError(t, ds.SetFavorite(a.ID, true))

		assert.True(t, ds.cache.warm(keyListings), "listings stay warm")
		assert.True(t, ds.cache.warm(keyRecent), "recent stays warm")
		assert.True(t, ds.cache.warm(keyPopular), "popular stays warm")
		assert.False(t, ds.cache.warm(keyFavorites), "favorites must be cold")
	})

	t.Run("record_play_wipes_recent_popular_listings", func(t *testing.T) {
		warmAll()
		require.NoError(t, ds.RecordPlay(a.ID, time.Now()))

		assert.False(t, ds.cache.warm(keyRecent))
		assert.False(t, ds.cache.warm(keyPopular))
		assert.False(t, ds.cache.warm(keyListings))
		assert.True(t, ds.cache.warm(keyFavorites), "favorites stay warm")
	})

	t.Run("delete_wipes_all_groups", func(t *testing.T) {
		warmAll()
		require.NoError(t, ds.DeleteTrack(a.ID))

		for _, key := range []string{keyListings, keyFavorites, keyRecent, keyPopular} {
			assert.False(t, ds.cache.warm(key), "%s must be cold after delete", key)
		}
	})
}

func TestSaveFingerprint_NotifiesChunkInvalidator(t *testing.T) {
	ds := testStore(t)
	track := addTrack(t, ds, "chunky")

	inv := &recordingInvalidator{}
	ds.SetChunkInvalidator(inv)

	require.NoError(t, ds.SaveFingerprint(track.ID, &fingerprint.Fingerprint{LUFS: -10}))
	assert.Equal(t, []string{TrackGroup(track.ID)}, inv.groups,
		"rendered chunks derived from the fingerprint must be invalidated")
}

type recordingInvalidator struct {
	groups []string
}

func (r *recordingInvalidator) InvalidateGroup(group string) int {
	r.groups = append(r.groups, group)
	return 0
}

func TestUpdateAndDelete_NotFound(t *testing.T) {
	ds := testStore(t)
	assert.Error(t, ds.UpdateTrack(&Track{ID: 424242, Title: "ghost"}))
	assert.Error(t, ds.DeleteTrack(424242))
	assert.Error(t, ds.SetFavorite(424242, true))
	assert.Error(t, ds.RecordPlay(424242, time.Now()))
}
