package extraction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/auralis-audio/auralis/internal/audiofile"
	"github.com/auralis-audio/auralis/internal/datastore"
	"github.com/auralis-audio/auralis/internal/fingerprint"
	"github.com/auralis-audio/auralis/internal/logging"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// Catalog is the slice of the track repository the pool needs.
type Catalog interface {
	SetFingerprintStatus(id int64, status datastore.FingerprintStatus, extractErr string) error
	SaveFingerprint(id int64, fp *fingerprint.Fingerprint) error
	ListPendingFingerprints(limit int) ([]datastore.PendingFingerprint, error)
}

// Config sizes the pool.
type Config struct {
	Workers int
	// RebuildLimit bounds the startup requeue query.
	RebuildLimit int
}

// Pool consumes the extraction queue with a fixed set of workers. Jobs are
// pure with respect to their inputs, so cancellation mid-job is safe: an
// abandoned track stays pending/processing and is requeued on next startup.
type Pool struct {
	catalog Catalog
	cfg     Config

	queue  *queue
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics *metrics.ExtractionMetrics
	logger  *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a pool. m may be nil.
func NewPool(catalog Catalog, cfg Config, m *metrics.ExtractionMetrics) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RebuildLimit <= 0 {
		cfg.RebuildLimit = 10000
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		catalog: catalog,
		cfg:     cfg,
		queue:   newQueue(),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		logger:  logging.ForService("extraction"),
	}
}

// Start rebuilds the queue from the catalog (pending and processing alike;
// workers are not persistent, so processing means a previous run died
// mid-job) and launches the workers.
func (p *Pool) Start() error {
	var rebuildErr error
	p.startOnce.Do(func() {
		pending, err := p.catalog.ListPendingFingerprints(p.cfg.RebuildLimit)
		if err != nil {
			rebuildErr = err
			return
		}
		for _, job := range pending {
			p.queue.push(&Job{TrackID: job.TrackID, Path: job.Path})
		}
		p.logger.Info("extraction queue rebuilt", "jobs", len(pending), "workers", p.cfg.Workers)

		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
	return rebuildErr
}

// Enqueue adds one track to the queue. Duplicate enqueues of a queued track
// are ignored.
func (p *Pool) Enqueue(trackID int64, path string) bool {
	accepted := p.queue.push(&Job{TrackID: trackID, Path: path})
	p.updateDepth()
	return accepted
}

// QueueDepth returns the number of waiting jobs.
func (p *Pool) QueueDepth() int {
	return p.queue.depth()
}

// Shutdown stops accepting jobs, lets in-flight ones finish within the
// deadline, then cancels the rest.
func (p *Pool) Shutdown(deadline time.Duration) {
	p.stopOnce.Do(func() {
		p.queue.close()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(deadline):
			p.logger.Warn("extraction shutdown deadline hit, cancelling in-flight jobs")
			p.cancel()
			<-done
		}
		p.cancel()
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)

	for {
		job := p.queue.pop()
		if job == nil {
			return
		}
		p.updateDepth()
		p.runJob(log, job)
	}
}

// runJob executes one extraction: sidecar first, full analysis otherwise.
func (p *Pool) runJob(log *slog.Logger, job *Job) {
	if p.metrics != nil {
		p.metrics.ActiveWorkers.Inc()
		defer p.metrics.ActiveWorkers.Dec()
	}
	start := time.Now()

	if err := p.catalog.SetFingerprintStatus(job.TrackID, datastore.FingerprintProcessing, ""); err != nil {
		log.Warn("cannot mark track processing", "track_id", job.TrackID, "error", err)
		return
	}

	// A valid sidecar short-circuits the whole analysis.
	if fp, err := fingerprint.LoadSidecar(job.Path); err == nil && fp != nil {
		if err := p.catalog.SaveFingerprint(job.TrackID, fp); err != nil {
			log.Warn("cannot persist sidecar fingerprint", "track_id", job.TrackID, "error", err)
			return
		}
		p.observe("sidecar", start)
		return
	}

	fp, err := p.extract(job.Path)
	if err != nil {
		if p.ctx.Err() != nil {
			// Cancelled mid-job: leave the track for the next startup
			// rebuild instead of recording a spurious failure.
			log.Info("extraction cancelled", "track_id", job.TrackID)
			return
		}
		// processing -> error, never an automatic requeue: the error
		// status is the operator's signal, and a re-scan is the explicit
		// way back into the queue.
		log.Error("extraction failed", "track_id", job.TrackID, "error", err)
		if serr := p.catalog.SetFingerprintStatus(job.TrackID, datastore.FingerprintError, err.Error()); serr != nil {
			log.Warn("cannot record extraction error", "track_id", job.TrackID, "error", serr)
		}
		p.observe("error", start)
		return
	}

	if err := fingerprint.SaveSidecar(job.Path, fp); err != nil {
		// The sidecar is an optimization; its failure does not fail the
		// job.
		log.Warn("cannot write sidecar", "track_id", job.TrackID, "error", err)
	}
	if err := p.catalog.SaveFingerprint(job.TrackID, fp); err != nil {
		log.Warn("cannot persist fingerprint", "track_id", job.TrackID, "error", err)
		return
	}
	p.observe("complete", start)
}

// extract decodes and analyzes one file under the pool context.
func (p *Pool) extract(path string) (*fingerprint.Fingerprint, error) {
	dec, err := audiofile.Open(path)
	if err != nil {
		return nil, err
	}
	info := dec.Info()
	return fingerprint.Analyze(p.ctx, dec.ReadAll(), info.SampleRate, info.Channels)
}

func (p *Pool) observe(status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.JobsCompleted.WithLabelValues(status).Inc()
	p.metrics.JobDuration.Observe(time.Since(start).Seconds())
}

func (p *Pool) updateDepth() {
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(p.queue.depth()))
	}
}
