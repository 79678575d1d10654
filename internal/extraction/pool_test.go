package extraction

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/auralis-audio/auralis/internal/datastore"
	"github.com/auralis-audio/auralis/internal/fingerprint"
)

// fakeCatalog records fingerprint lifecycle calls.
type fakeCatalog struct {
	mu       sync.Mutex
	statuses map[int64][]datastore.FingerprintStatus
	saved    map[int64]*fingerprint.Fingerprint
	errs     map[int64]string
	pending  []datastore.PendingFingerprint
	done     chan int64
}

func newFakeCatalog(buffer int) *fakeCatalog {
	return &fakeCatalog{
		statuses: make(map[int64][]datastore.FingerprintStatus),
		saved:    make(map[int64]*fingerprint.Fingerprint),
		errs:     make(map[int64]string),
		done:     make(chan int64, buffer),
	}
}

func (f *fakeCatalog) SetFingerprintStatus(id int64, status datastore.FingerprintStatus, extractErr string) error {
	f.mu.Lock()
	f.statuses[id] = append(f.statuses[id], status)
	if status == datastore.FingerprintError {
		f.errs[id] = extractErr
	}
	f.mu.Unlock()
	if status == datastore.FingerprintError {
		f.done <- id
	}
	return nil
}

func (f *fakeCatalog) SaveFingerprint(id int64, fp *fingerprint.Fingerprint) error {
	f.mu.Lock()
	f.saved[id] = fp
	f.mu.Unlock()
	f.done <- id
	return nil
}

func (f *fakeCatalog) ListPendingFingerprints(limit int) ([]datastore.PendingFingerprint, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeCatalog) statusesFor(id int64) []datastore.FingerprintStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]datastore.FingerprintStatus, len(f.statuses[id]))
	copy(out, f.statuses[id])
	return out
}

func (f *fakeCatalog) savedFor(id int64) *fingerprint.Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[id]
}

func writeToneWAV(t *testing.T, dir string, name string, seconds float64) string {
	t.Helper()
	const sr = 8000
	frames := int(seconds * sr)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sr, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sr},
		SourceBitDepth: 16,
		Data:           make([]int, frames*2),
	}
	for i := 0; i < frames; i++ {
		v := int(0.4 * 32767 * math.Sin(2*math.Pi*440*float64(i)/sr))
		buf.Data[i*2] = v
		buf.Data[i*2+1] = v
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func waitFor(t *testing.T, catalog *fakeCatalog, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-catalog.done:
		case <-time.After(30 * time.Second):
			t.Fatal("timed out waiting for extraction jobs")
		}
	}
}

func TestPool_ExtractsAndPersists(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeToneWAV(t, dir, "a.wav", 1.5)

	catalog := newFakeCatalog(4)
	pool := NewPool(catalog, Config{Workers: 2}, nil)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(5 * time.Second)

	require.True(t, pool.Enqueue(1, path))
	waitFor(t, catalog, 1)

	fp := catalog.savedFor(1)
	require.NotNil(t, fp)
	assert.True(t, fp.InDomain())

	statuses := catalog.statusesFor(1)
	require.NotEmpty(t, statuses)
	assert.Equal(t, datastore.FingerprintProcessing, statuses[0],
		"dequeue must transition pending -> processing")

	t.Run("sidecar_written", func(t *testing.T) {
		loaded, err := fingerprint.LoadSidecar(path)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, fp.Vector(), loaded.Vector())
	})
}

func TestPool_SidecarShortCircuit(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeToneWAV(t, dir, "b.wav", 1.0)

	// Pre-write a valid sidecar with a recognizable vector.
	want := &fingerprint.Fingerprint{LUFS: -23, TempoBPM: 77, CrestDB: 5}
	require.NoError(t, fingerprint.SaveSidecar(path, want))

	catalog := newFakeCatalog(4)
	pool := NewPool(catalog, Config{Workers: 1}, nil)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(5 * time.Second)

	require.True(t, pool.Enqueue(7, path))
	waitFor(t, catalog, 1)

	got := catalog.savedFor(7)
	require.NotNil(t, got)
	assert.Equal(t, want.Vector(), got.Vector(), "a valid sidecar must be loaded, not recomputed")
}

func TestPool_ErrorRecordsStatus(t *testing.T) {
	defer goleak.VerifyNone(t)

	catalog := newFakeCatalog(4)
	pool := NewPool(catalog, Config{Workers: 1}, nil)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(5 * time.Second)

	require.True(t, pool.Enqueue(3, filepath.Join(t.TempDir(), "missing.wav")))
	waitFor(t, catalog, 1)

	statuses := catalog.statusesFor(3)
	require.NotEmpty(t, statuses)
	assert.Equal(t, datastore.FingerprintError, statuses[len(statuses)-1])
	catalog.mu.Lock()
	assert.NotEmpty(t, catalog.errs[3], "the failure message must be recorded")
	catalog.mu.Unlock()
	assert.Nil(t, catalog.savedFor(3))
}

func TestPool_FailureIsNotRequeued(t *testing.T) {
	defer goleak.VerifyNone(t)

	catalog := newFakeCatalog(4)
	pool := NewPool(catalog, Config{Workers: 1}, nil)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(5 * time.Second)

	require.True(t, pool.Enqueue(9, filepath.Join(t.TempDir(), "gone.wav")))
	waitFor(t, catalog, 1)

	// Exactly one pending->processing, then straight to error; a failed
	// job must never re-enter the queue on its own.
	statuses := catalog.statusesFor(9)
	require.Equal(t,
		[]datastore.FingerprintStatus{datastore.FingerprintProcessing, datastore.FingerprintError},
		statuses)
	assert.Zero(t, pool.QueueDepth())
}

func TestPool_RebuildsFromCatalog(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeToneWAV(t, dir, "c.wav", 1.0)

	catalog := newFakeCatalog(4)
	catalog.pending = []datastore.PendingFingerprint{{TrackID: 11, Path: path}}

	pool := NewPool(catalog, Config{Workers: 1}, nil)
	require.NoError(t, pool.Start())
	defer pool.Shutdown(5 * time.Second)

	waitFor(t, catalog, 1)
	assert.NotNil(t, catalog.savedFor(11), "queue must rebuild from the catalog on startup")
}

func TestPool_DuplicateEnqueueIgnored(t *testing.T) {
	catalog := newFakeCatalog(4)
	pool := NewPool(catalog, Config{Workers: 1}, nil)
	// Not started: jobs stay queued so the dedup window is observable.
	assert.True(t, pool.Enqueue(5, "/x.wav"))
	assert.False(t, pool.Enqueue(5, "/x.wav"))
	assert.Equal(t, 1, pool.QueueDepth())
	pool.Shutdown(time.Second)
}

func TestPool_ShutdownStopsAcceptingJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	catalog := newFakeCatalog(4)
	pool := NewPool(catalog, Config{Workers: 2}, nil)
	require.NoError(t, pool.Start())

	pool.Shutdown(time.Second)
	assert.False(t, pool.Enqueue(1, "/y.wav"), "a stopped pool must reject jobs")
}
