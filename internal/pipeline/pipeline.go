// Package pipeline runs the three-stage validate/light/background streaming
// pipeline that turns ingestor events into hashed, metadata-rich VFS
// entries. Each stage is an independent bounded worker pool so a path stuck
// on a slow background hash never blocks validation or light processing of
// another path; ordering is only ever enforced within a single path's own
// journey through the three stages, grounded on the teacher's supervisor
// goroutine/WaitGroup shutdown shape and the materializer's per-key
// in-flight bookkeeping.
package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mediacat/mediacat/internal/config"
	"github.com/mediacat/mediacat/internal/hashindex"
	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/statetracker"
	"github.com/mediacat/mediacat/internal/vfs"
)

// MetaStore is the subset of the metadata KV the pipeline needs: persist a
// record by content hash, and erase one by source path on delete. Left as
// an interface so the pipeline compiles and is independently testable
// before the sqlite-backed implementation exists; a nil MetaStore simply
// means nothing is persisted beyond the VFS and hash index.
type MetaStore interface {
	Put(hash string, rec *model.MetaRecord) error
	Delete(sourcePath string) error
}

// MetricsRecorder is the subset of metrics.Handle the pipeline records to.
// A nil MetricsRecorder is valid; every call site nil-checks first.
type MetricsRecorder interface {
	RecordHashLookup(hit bool)
	RecordStageFailure(stage string)
	SetQueueDepth(stage string, depth int)
}

// Deps bundles the already-constructed collaborators the pipeline drives.
// All are required except Store and Metrics.
type Deps struct {
	VFS     *vfs.VFS
	Tracker *statetracker.Tracker
	Index   *hashindex.Index
	Store   MetaStore
	Metrics MetricsRecorder
}

type validateTask struct {
	trace   string
	path    string
	midhash string
}

type lightTask struct {
	trace   string
	path    string
	kind    model.Kind
	midhash string
}

type backgroundTask struct {
	trace string
	path  string
	vp    string
	meta  *model.MetaRecord
}

// Pipeline owns the three stage worker pools, the per-path bookkeeping
// needed to answer handle_delete without a second metadata lookup, and the
// coarse counters stats() reports.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	limiter *rate.Limiter

	validateCh chan validateTask
	lightCh    chan lightTask
	bgCh       chan backgroundTask

	validateStage *stage
	lightStage    *stage
	bgStage       *stage

	pathsMu     sync.Mutex
	virtualPath map[string]string // source path -> last known virtual path

	discovered atomic.Int64
	validated  atomic.Int64
	lightDone  atomic.Int64
	bgDone     atomic.Int64
}

// New builds a Pipeline from cfg and deps but does not start its workers;
// call Start for that.
func New(cfg *config.Config, deps Deps) *Pipeline {
	limit := rate.Inf
	burst := cfg.ValidateWorkers
	if cfg.EnqueueRateLimit > 0 {
		limit = rate.Limit(cfg.EnqueueRateLimit)
	}
	return &Pipeline{
		cfg:         cfg,
		deps:        deps,
		limiter:     rate.NewLimiter(limit, burst),
		validateCh:  make(chan validateTask, cfg.ValidateWorkers*4),
		lightCh:     make(chan lightTask, cfg.LightWorkers*4),
		bgCh:        make(chan backgroundTask, cfg.BackgroundWorkers*4),
		virtualPath: make(map[string]string),
	}
}

// Start launches the three stage worker pools. It returns immediately;
// workers run until Stop is called.
func (p *Pipeline) Start(ctx context.Context) {
	p.validateStage = newStageRuntime("validate", p.cfg.ValidateWorkers)
	p.lightStage = newStageRuntime("light", p.cfg.LightWorkers)
	p.bgStage = newStageRuntime("background", p.cfg.BackgroundWorkers)

	p.spawn(p.validateStage, p.cfg.ValidateWorkers, func(stop <-chan struct{}) {
		p.runValidateWorker(ctx, stop)
	})
	p.spawn(p.lightStage, p.cfg.LightWorkers, func(stop <-chan struct{}) {
		p.runLightWorker(ctx, stop)
	})
	p.spawn(p.bgStage, p.cfg.BackgroundWorkers, func(stop <-chan struct{}) {
		p.runBackgroundWorker(ctx, stop)
	})
}

func (p *Pipeline) spawn(s *stage, n int, worker func(stop <-chan struct{})) {
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			worker(s.stop)
		}()
	}
}

// Stop closes all three stages, waiting for in-flight workers to return.
// Buffered, not-yet-picked-up tasks are discarded.
func (p *Pipeline) Stop() {
	p.validateStage.close()
	p.lightStage.close()
	p.bgStage.close()
}

// Pause stops all three stages from picking up new tasks; whatever a
// worker is mid-processing still runs to completion.
func (p *Pipeline) Pause() {
	p.validateStage.gate.pause()
	p.lightStage.gate.pause()
	p.bgStage.gate.pause()
}

// Resume lets all three stages pick up new tasks again.
func (p *Pipeline) Resume() {
	p.validateStage.gate.resume()
	p.lightStage.gate.resume()
	p.bgStage.gate.resume()
}

// Reset zeros the stage counters and clears the state tracker. It never
// touches the VFS or the metadata store: a path already cataloged stays
// cataloged, only its in-flight bookkeeping restarts.
func (p *Pipeline) Reset() {
	p.discovered.Store(0)
	p.validated.Store(0)
	p.lightDone.Store(0)
	p.bgDone.Store(0)
	p.deps.Tracker.Reset()
	p.pathsMu.Lock()
	p.virtualPath = make(map[string]string)
	p.pathsMu.Unlock()
}

// QueueStats is one stage's backlog/in-flight snapshot.
type QueueStats struct {
	Waiting int
	Running int32
}

// Stats is the pipeline-wide counters and per-stage queue depths reported
// by stats().
type Stats struct {
	Discovered int64
	Validated  int64
	LightDone  int64
	BGDone     int64

	Validate   QueueStats
	Light      QueueStats
	Background QueueStats

	Tracker statetracker.Snapshot
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Discovered: p.discovered.Load(),
		Validated:  p.validated.Load(),
		LightDone:  p.lightDone.Load(),
		BGDone:     p.bgDone.Load(),
		Validate:   QueueStats{Waiting: len(p.validateCh), Running: atomic.LoadInt32(&p.validateStage.running)},
		Light:      QueueStats{Waiting: len(p.lightCh), Running: atomic.LoadInt32(&p.lightStage.running)},
		Background: QueueStats{Waiting: len(p.bgCh), Running: atomic.LoadInt32(&p.bgStage.running)},
		Tracker:    p.deps.Tracker.Snapshot(),
	}
}

func (p *Pipeline) setVirtualPath(path, vp string) {
	p.pathsMu.Lock()
	p.virtualPath[path] = vp
	p.pathsMu.Unlock()
}

func (p *Pipeline) popVirtualPath(path string) (string, bool) {
	p.pathsMu.Lock()
	defer p.pathsMu.Unlock()
	vp, ok := p.virtualPath[path]
	delete(p.virtualPath, path)
	return vp, ok
}

func newTrace() string {
	return uuid.New().String()
}

func logTrace(trace, stage, format string, args ...any) {
	log.Printf("pipeline[%s] %s: "+format, append([]any{trace, stage}, args...)...)
}
