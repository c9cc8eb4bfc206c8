// Package orchestrator wires every other internal package into the single
// long-running process described by the teacher's supervisor: block for a
// leader, rebuild the VFS from persisted metadata, start the pipeline and
// event ingestor, serve the HTTP surface (and, optionally, a real FUSE
// mount), and on shutdown drain in the reverse order everything started.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/mediacat/mediacat/internal/config"
	"github.com/mediacat/mediacat/internal/duplicate"
	"github.com/mediacat/mediacat/internal/hashindex"
	"github.com/mediacat/mediacat/internal/httpapi"
	"github.com/mediacat/mediacat/internal/ingestor"
	"github.com/mediacat/mediacat/internal/leader"
	"github.com/mediacat/mediacat/internal/metakv"
	"github.com/mediacat/mediacat/internal/metrics"
	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/pipeline"
	"github.com/mediacat/mediacat/internal/sidecar"
	"github.com/mediacat/mediacat/internal/statetracker"
	"github.com/mediacat/mediacat/internal/vfs"
	"github.com/mediacat/mediacat/internal/vfsfuse"
)

// hydrateConcurrency bounds how many metadata store Gets run in parallel
// while rebuilding the VFS at startup.
const hydrateConcurrency = 16

// duplicateScanInterval is how often the background duplicate pass runs
// over the current VFS contents.
const duplicateScanInterval = 10 * time.Minute

// drainDeadline bounds how long shutdown waits for in-flight pipeline work
// to settle before it stops the stages outright.
const drainDeadline = 15 * time.Second

// fsPollInterval is how often the default filesystem-poll Source rescans
// BaseDir for add/change/delete events.
const fsPollInterval = 5 * time.Second

// Orchestrator owns every collaborator's lifecycle for one process.
type Orchestrator struct {
	cfg *config.Config

	vfs     *vfs.VFS
	tracker *statetracker.Tracker
	index   *hashindex.Index
	store   *metakv.SQLiteStore
	metrics *metrics.Handle

	leaderInfo *leader.Info
	pipeline   *pipeline.Pipeline
	source     *ingestor.FSPoller
	ing        *ingestor.Ingestor

	httpSrv *http.Server

	wg sync.WaitGroup
}

// New constructs the Orchestrator's collaborators but does not start
// anything; call Run to block until ctx is cancelled.
func New(cfg *config.Config) (*Orchestrator, error) {
	idx, err := hashindex.New(cfg.HashIndexDir,
		hashindex.WithFlushInterval(cfg.HashIndexFlushMin),
		hashindex.WithFlushBudget(cfg.HashIndexFlushBudget),
	)
	if err != nil {
		return nil, err
	}
	store, err := metakv.Open(cfg.MetaKVPath)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		vfs:     vfs.New(sidecar.ActiveFormats(cfg.SidecarFormats)),
		tracker: statetracker.New(),
		index:   idx,
		store:   store,
		metrics: metrics.New(),
	}
	return o, nil
}

// Run blocks until ctx is cancelled (normally on SIGINT/SIGTERM), then
// drains and shuts every collaborator down in reverse start order.
func (o *Orchestrator) Run(ctx context.Context) error {
	disc := leader.New(o.cfg.LeaderPath)
	info, err := disc.Wait(ctx, o.cfg.LeaderWaitLimit)
	if err != nil {
		return err
	}
	o.leaderInfo = info
	log.Printf("orchestrator: leader acquired: %+v", info)

	if err := o.rebuildVFS(ctx); err != nil {
		return err
	}

	o.pipeline = pipeline.New(o.cfg, pipeline.Deps{
		VFS:     o.vfs,
		Tracker: o.tracker,
		Index:   o.index,
		Store:   metakv.NewPipelineStore(o.store),
		Metrics: o.metrics,
	})

	o.source = ingestor.NewFSPoller(o.cfg.BaseDir, fsPollInterval)
	ingCfg := ingestor.Config{
		Group:          o.cfg.ConsumerGroup,
		Consumer:       o.cfg.ConsumerName,
		BasePath:       o.cfg.BaseDir,
		BatchSize:      64,
		PendingIdle:    o.cfg.PendingIdle,
		BackoffBase:    o.cfg.BackoffBase,
		BackoffMaxMult: o.cfg.BackoffMaxMult,
	}
	o.ing = ingestor.New(o.source, o.pipeline, ingCfg)

	o.pipeline.Start(ctx)
	o.source.Run(ctx)
	o.ing.Start(ctx)

	o.startHTTP()
	o.maybeMountFuse()

	o.wg.Add(1)
	go o.runDuplicateScan(ctx)

	<-ctx.Done()
	o.shutdown()
	return nil
}

// rebuildVFS implements the orchestrator's startup rebuild step: every
// known hash is fetched from the metadata store and re-inserted into a
// fresh VFS without touching the event transport. Hydration runs in
// bounded parallel batches since a cold store can carry a very large
// number of records.
func (o *Orchestrator) rebuildVFS(ctx context.Context) error {
	hashes, err := o.store.AllHashes(ctx)
	if err != nil {
		return err
	}
	log.Printf("orchestrator: rebuilding VFS from %d persisted records", len(hashes))

	type result struct {
		entry vfs.MetaEntry
		ok    bool
	}
	in := make(chan string)
	out := make(chan result)

	var workers sync.WaitGroup
	for i := 0; i < hydrateConcurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for hash := range in {
				rec, found, err := o.store.Get(ctx, hash)
				if err != nil || !found {
					if err != nil {
						log.Printf("orchestrator: hydrate %s failed: %v", hash, err)
					}
					out <- result{}
					continue
				}
				if rec.Attrs == nil {
					rec.Attrs = make(map[string]model.AttrValue)
				}
				rec.Attrs["_lastVerified"] = model.NumberAttr(0)
				out <- result{entry: vfs.MetaEntry{
					VirtualPath: rec.VirtualPath,
					SourcePath:  rec.SourcePath,
					Meta:        &rec,
				}, ok: true}
			}
		}()
	}
	go func() {
		workers.Wait()
		close(out)
	}()
	go func() {
		defer close(in)
		for _, h := range hashes {
			in <- h
		}
	}()

	var entries []vfs.MetaEntry
	for r := range out {
		if r.ok {
			entries = append(entries, r.entry)
		}
	}

	return o.vfs.RebuildFrom(entries)
}

// refresh re-runs the rebuild step on demand (POST /api/fuse/refresh)
// without touching the ingestor or pipeline.
func (o *Orchestrator) refresh(ctx context.Context) error {
	return o.rebuildVFS(ctx)
}

func (o *Orchestrator) startHTTP() {
	mux := http.NewServeMux()
	api := httpapi.New(o.vfs, o.refresh)
	mux.Handle("/api/fuse/", api.Routes())
	mux.Handle("/metrics", o.metrics.Handler())

	o.httpSrv = &http.Server{Addr: o.cfg.HTTPAddr, Handler: mux}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("orchestrator: http server stopped: %v", err)
		}
	}()
}

func (o *Orchestrator) maybeMountFuse() {
	if o.cfg.FuseMountPoint == "" {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := vfsfuse.Mount(o.cfg.FuseMountPoint, o.vfs, o.cfg.FuseAllowOther); err != nil {
			log.Printf("orchestrator: fuse mount at %s failed: %v", o.cfg.FuseMountPoint, err)
		}
	}()
}

// runDuplicateScan periodically runs both duplicate-detection passes over
// the current VFS contents and records a metric per discovered group; it
// does not rewrite any metadata itself.
func (o *Orchestrator) runDuplicateScan(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(duplicateScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.scanDuplicatesOnce()
		}
	}
}

func (o *Orchestrator) scanDuplicatesOnce() {
	files := make(map[string]*model.MetaRecord)
	o.vfs.Walk(func(path string, n *model.VFSNode) {
		if n.IsDir() || n.IsSidecar() || n.Meta == nil {
			return
		}
		files[n.SourcePath] = n.Meta
	})
	result := duplicate.Detect(files)
	for range result.HashGroups {
		o.metrics.RecordDuplicateGroup("hash")
	}
	for range result.TitleGroups {
		o.metrics.RecordDuplicateGroup("title")
	}
	if len(result.HashGroups)+len(result.TitleGroups) > 0 {
		log.Printf("orchestrator: duplicate scan found %d hash groups, %d title groups",
			len(result.HashGroups), len(result.TitleGroups))
	}
}

// shutdown stops every collaborator in reverse start order: ingestor first
// (no new events), then the pipeline is paused and given drainDeadline to
// finish in-flight work before it's stopped outright, then the hash index
// is flushed and the metadata store closed.
func (o *Orchestrator) shutdown() {
	log.Printf("orchestrator: shutting down")

	if o.ing != nil {
		o.ing.Stop()
	}
	if o.pipeline != nil {
		o.pipeline.Pause()
		o.drainPipeline()
		o.pipeline.Stop()
	}

	if o.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		o.httpSrv.Shutdown(ctx)
		cancel()
	}

	if err := o.index.Flush(); err != nil {
		log.Printf("orchestrator: hash index flush failed: %v", err)
	}
	if err := o.store.Close(); err != nil {
		log.Printf("orchestrator: metadata store close failed: %v", err)
	}

	o.wg.Wait()
}

// drainPipeline polls queue depth until every stage is idle or
// drainDeadline elapses, whichever comes first.
func (o *Orchestrator) drainPipeline() {
	deadline := time.Now().Add(drainDeadline)
	for time.Now().Before(deadline) {
		stats := o.pipeline.Stats()
		inFlight := stats.Validate.Waiting + int(stats.Validate.Running) +
			stats.Light.Waiting + int(stats.Light.Running) +
			stats.Background.Waiting + int(stats.Background.Running)
		if inFlight == 0 {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	log.Printf("orchestrator: drain deadline reached with work still in flight")
}
