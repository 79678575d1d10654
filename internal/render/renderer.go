package render

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/auralis-audio/auralis/internal/audiofile"
	"github.com/auralis-audio/auralis/internal/dsp"
	"github.com/auralis-audio/auralis/internal/errors"
	"github.com/auralis-audio/auralis/internal/events"
	"github.com/auralis-audio/auralis/internal/logging"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// Options configures one render job. Values come from the configuration
// surface; the overlap constraint is re-checked here because a job can be
// constructed programmatically, bypassing config load.
type Options struct {
	ChunkSeconds     float64
	OverlapSeconds   float64
	ContextSeconds   float64
	LevelMaxChangeDB float64
}

// ParamsFunc resolves the processing parameters for a chunk. It is called
// once per chunk in ascending index order, which lets the resolver react to
// preset or intensity changes mid-stream.
type ParamsFunc func(chunkIndex uint32) (*dsp.ProcessingParameters, error)

// ChunkCache is the slice of the rendered-chunk cache the renderer needs:
// single-flight get-or-compute of a processed chunk keyed by the caller.
// Returned slices are shared read-only views.
type ChunkCache interface {
	GetOrCompute(key string, group string, compute func() ([]float64, error)) ([]float64, error)
}

// CacheKeyFunc derives the cache key and invalidation group for one chunk.
// The group must be the track-scoped tag the catalog wipes when the track's
// fingerprint changes, so stale adaptive renders cannot outlive a
// re-analysis.
type CacheKeyFunc func(paramsHash uint64, chunkIndex uint32) (key, group string)

// Renderer owns the DSP chain and runs render jobs.
type Renderer struct {
	chain   *dsp.Chain
	cache   ChunkCache // nil disables memoization
	bus     *events.EventBus
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

// New creates a renderer. cache, bus, and m may be nil.
func New(cache ChunkCache, bus *events.EventBus, m *metrics.PipelineMetrics) *Renderer {
	return &Renderer{
		chain:   dsp.NewChain(),
		cache:   cache,
		bus:     bus,
		metrics: m,
		logger:  logging.ForService("render"),
	}
}

// Job is one cancellable render of one track. Chunks are emitted in
// ascending index order; cancellation is checked at chunk boundaries and
// between DSP stages, and a chunk interrupted mid-computation is discarded.
type Job struct {
	TrackID int64

	dec       *audiofile.Decoder
	paramsFor ParamsFunc
	opts      Options
	cacheKey  CacheKeyFunc

	stream *Stream
	cancel context.CancelFunc
}

// Render starts a render job and returns the pull stream for its output.
// The stream yields exactly the track's frame count. trackID tags emitted
// events; cacheKey derives the rendered-chunk cache key for a chunk and may
// be nil when no cache is configured.
func (r *Renderer) Render(ctx context.Context, trackID int64, dec *audiofile.Decoder,
	paramsFor ParamsFunc, opts Options, cacheKey CacheKeyFunc,
) (*Job, error) {
	if opts.OverlapSeconds <= 0 || opts.OverlapSeconds >= opts.ChunkSeconds/2 {
		return nil, errors.Newf("overlap %gs must be within (0, %gs)",
			opts.OverlapSeconds, opts.ChunkSeconds/2).
			Component("render").
			Category(errors.CategoryContinuity).
			Build()
	}

	info := dec.Info()
	descs := audiofile.PlanChunks(info.TotalSamples, info.SampleRate, opts.ChunkSeconds)
	if len(descs) == 0 {
		return nil, errors.Newf("track has no samples").
			Component("render").
			Category(errors.CategoryValidation).
			Build()
	}

	overlapFrames := int(math.Round(opts.OverlapSeconds * float64(info.SampleRate)))
	cont, err := NewContinuity(overlapFrames, info.Channels, opts.LevelMaxChangeDB)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		TrackID:   trackID,
		dec:       dec,
		paramsFor: paramsFor,
		opts:      opts,
		cacheKey:  cacheKey,
		stream:    newStream(info, 4),
		cancel:    cancel,
	}

	if r.metrics != nil {
		r.metrics.RendersStarted.Inc()
	}

	go r.run(jobCtx, job, descs, cont)
	return job, nil
}

// Stream returns the job's output stream.
func (j *Job) Stream() *Stream {
	return j.stream
}

// Cancel stops the job at the next chunk boundary or DSP stage boundary.
func (j *Job) Cancel() {
	j.cancel()
}

// run is the render loop: read, process (through the cache when present),
// stitch, emit.
func (r *Renderer) run(ctx context.Context, job *Job, descs []audiofile.ChunkDescriptor, cont *Continuity) {
	defer job.cancel()

	for _, desc := range descs {
		// Cancellation is checked here once per chunk (and inside the DSP
		// chain between stages); a chunk is pure with respect to its inputs
		// so abandoning it is safe.
		if err := ctx.Err(); err != nil {
			if r.metrics != nil {
				r.metrics.RendersCancelled.Inc()
			}
			job.stream.fail(err)
			return
		}

		out, tailFrames, paramsHash, isLast, err := r.renderChunk(ctx, job, desc)
		if err != nil {
			r.emitError(job.TrackID, err)
			job.stream.fail(err)
			return
		}

		emitted, err := cont.Append(out, tailFrames, paramsHash, isLast)
		if err != nil {
			r.emitError(job.TrackID, err)
			job.stream.fail(err)
			return
		}

		if !job.stream.push(ctx, emitted) {
			if r.metrics != nil {
				r.metrics.RendersCancelled.Inc()
			}
			job.stream.fail(ctx.Err())
			return
		}
		if r.bus != nil {
			r.bus.Publish(events.NewChunkReady(job.TrackID, desc.ChunkIndex))
		}
	}

	job.stream.finish()
}

// renderChunk produces the processed declared+tail region for one chunk,
// through the rendered-chunk cache when one is configured.
func (r *Renderer) renderChunk(ctx context.Context, job *Job, desc audiofile.ChunkDescriptor,
) (out []float64, tailFrames int, paramsHash uint64, isLast bool, err error) {
	params, err := job.paramsFor(desc.ChunkIndex)
	if err != nil {
		return nil, 0, 0, false, err
	}
	paramsHash = params.Fingerprint()

	info := job.dec.Info()
	isLast = desc.EndSample == info.TotalSamples

	compute := func() ([]float64, error) {
		start := time.Now()
		chunk, err := job.dec.ReadChunk(desc, audiofile.ReadOptions{
			PreRollSeconds: job.opts.ContextSeconds,
			TailSeconds:    job.opts.OverlapSeconds,
		})
		if err != nil {
			r.observeChunk("decode", start, err)
			return nil, err
		}
		r.observeChunk("decode", start, nil)

		start = time.Now()
		res, err := r.chain.Process(ctx, chunk, params)
		r.observeChunk("dsp", start, err)
		if err != nil {
			return nil, err
		}
		if res.RepairedSamples > 0 {
			if r.metrics != nil {
				r.metrics.RepairedSamples.Add(float64(res.RepairedSamples))
			}
			if r.bus != nil {
				r.bus.Publish(events.NewWarning("dsp", "repaired non-finite samples", map[string]any{
					"track_id":    job.TrackID,
					"chunk_index": desc.ChunkIndex,
					"repaired":    res.RepairedSamples,
				}))
			}
		}

		// Strip the warm-up pre-roll; keep declared range + tail.
		processed := chunk.Samples[chunk.PreRollFrames*chunk.Channels:]
		return processed, nil
	}

	if r.cache != nil && job.cacheKey != nil {
		key, group := job.cacheKey(paramsHash, desc.ChunkIndex)
		out, err = r.cache.GetOrCompute(key, group, compute)
	} else {
		out, err = compute()
	}
	if err != nil {
		return nil, 0, 0, false, err
	}

	declared := int(desc.Frames())
	tailFrames = len(out)/info.Channels - declared
	if tailFrames < 0 {
		return nil, 0, 0, false, errors.Newf("processed chunk shorter than declared range").
			Component("render").
			Category(errors.CategoryContinuity).
			Build()
	}
	return out, tailFrames, paramsHash, isLast, nil
}

func (r *Renderer) observeChunk(stage string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.ChunksProcessed.WithLabelValues(stage, status).Inc()
	r.metrics.ChunkDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (r *Renderer) emitError(trackID int64, err error) {
	r.logger.Error("render failed", "track_id", trackID, "error", err)
	if r.bus == nil {
		return
	}
	category := string(errors.CategoryGeneric)
	var ce errors.CategorizedError
	if errors.As(err, &ce) {
		category = string(ce.ErrorCategory())
	}
	r.bus.Publish(events.NewError("render", category, err.Error()))
}
