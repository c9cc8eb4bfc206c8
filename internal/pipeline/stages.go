package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/mediacat/mediacat/internal/hashkit"
	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/renamerule"
)

func (p *Pipeline) runValidateWorker(ctx context.Context, stop <-chan struct{}) {
	for {
		p.validateStage.gate.waitUntilResumed(stop)
		select {
		case <-stop:
			return
		case task, ok := <-p.validateCh:
			if !ok {
				return
			}
			atomic.AddInt32(&p.validateStage.running, 1)
			p.validate(ctx, task)
			atomic.AddInt32(&p.validateStage.running, -1)
		}
	}
}

func (p *Pipeline) validate(ctx context.Context, task validateTask) {
	kind, ok := kindForPath(task.path)
	if !ok {
		p.deps.Tracker.Remove(task.path)
		p.recordFailure("validate")
		logTrace(task.trace, "validate", "unsupported extension, dropping %s", task.path)
		return
	}
	if !p.deps.Tracker.StartLight(task.path) {
		// Already moved on (e.g. a racing delete); nothing left to do.
		return
	}
	p.validated.Add(1)
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}
	sendLight(p.lightCh, p.lightStage.stop, lightTask{trace: task.trace, path: task.path, kind: kind, midhash: task.midhash})
}

func (p *Pipeline) runLightWorker(ctx context.Context, stop <-chan struct{}) {
	for {
		p.lightStage.gate.waitUntilResumed(stop)
		select {
		case <-stop:
			return
		case task, ok := <-p.lightCh:
			if !ok {
				return
			}
			atomic.AddInt32(&p.lightStage.running, 1)
			p.light(ctx, task)
			atomic.AddInt32(&p.lightStage.running, -1)
		}
	}
}

func (p *Pipeline) light(_ context.Context, task lightTask) {
	fi, err := os.Stat(task.path)
	if err != nil {
		p.failLight(task, "stat failed: "+err.Error())
		return
	}
	size := fi.Size()
	mtime := fi.ModTime()
	basename := filepath.Base(task.path)

	digests, hit := p.deps.Index.Lookup(basename, size, mtime)
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordHashLookup(hit)
	}
	if digests == nil {
		digests = make(map[model.Algo]model.Digest)
	}

	midhash, ok := digests[model.AlgoMidhash256]
	if !ok {
		midhash, err = p.computeMidhash(task.path, size)
		if err != nil {
			p.failLight(task, "midhash failed: "+err.Error())
			return
		}
		digests[model.AlgoMidhash256] = midhash
		p.deps.Index.Insert(basename, size, mtime, map[model.Algo]model.Digest{model.AlgoMidhash256: midhash})
	}

	meta := tokenizeFilename(task.path, task.kind)
	meta.SizeByte = size
	meta.ModTime = mtime
	meta.Digests = digests
	meta.ProcessingStatus = model.StatusProcessing

	vp, err := renamerule.Apply(meta)
	if err != nil {
		p.failLight(task, err.Error())
		return
	}

	if err := p.deps.VFS.InsertFile(vp, task.path, meta); err != nil {
		p.failLight(task, "vfs insert failed: "+err.Error())
		return
	}
	p.setVirtualPath(task.path, vp)
	p.deps.Tracker.CompleteLight(task.path, midhash.Value, vp, "")
	p.lightDone.Add(1)

	sendBackground(p.bgCh, p.bgStage.stop, backgroundTask{trace: task.trace, path: task.path, vp: vp, meta: meta})
}

func (p *Pipeline) failLight(task lightTask, reason string) {
	p.deps.Tracker.CompleteLight(task.path, "", "", reason)
	p.recordFailure("processing")
	logTrace(task.trace, "light", "failed for %s: %s", task.path, reason)
}

// computeMidhash opens path once and delegates to hashkit.Midhash256, which
// only reads a bounded byte range rather than the whole file.
func (p *Pipeline) computeMidhash(path string, size int64) (model.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Digest{}, err
	}
	defer f.Close()
	return hashkit.Midhash256(f, size)
}

var backgroundAlgos = []model.Algo{
	model.AlgoSHA256,
	model.AlgoSHA1,
	model.AlgoSHA3_256,
	model.AlgoSHA3_384,
	model.AlgoMD5,
	model.AlgoCRC32,
}

func (p *Pipeline) runBackgroundWorker(ctx context.Context, stop <-chan struct{}) {
	for {
		p.bgStage.gate.waitUntilResumed(stop)
		select {
		case <-stop:
			return
		case task, ok := <-p.bgCh:
			if !ok {
				return
			}
			atomic.AddInt32(&p.bgStage.running, 1)
			p.background(ctx, task)
			atomic.AddInt32(&p.bgStage.running, -1)
		}
	}
}

func (p *Pipeline) background(_ context.Context, task backgroundTask) {
	p.deps.Tracker.StartBackground(task.path)

	digests, err := p.computeFullDigests(task.path)
	if err != nil {
		p.deps.Tracker.CompleteBackground(task.path, "", task.vp, err.Error())
		p.recordFailure("background")
		logTrace(task.trace, "background", "digest computation failed for %s: %v", task.path, err)
		return
	}

	fi, statErr := os.Stat(task.path)
	if statErr == nil {
		basename := filepath.Base(task.path)
		p.deps.Index.Insert(basename, fi.Size(), fi.ModTime(), digests)
	}

	meta := task.meta.Clone()
	for algo, d := range digests {
		meta.Digests[algo] = d
	}
	meta.ProcessingStatus = model.StatusComplete
	p.deps.VFS.UpdateMetadata(task.vp, &meta)

	if p.deps.Store != nil {
		if key, ok := meta.Digests[model.AlgoMidhash256]; ok {
			if err := p.deps.Store.Put(key.Value, &meta); err != nil {
				logTrace(task.trace, "background", "metadata store put failed for %s: %v", task.path, err)
			}
		}
	}

	var primaryHash string
	if d, ok := digests[model.AlgoSHA256]; ok {
		primaryHash = d.Value
	}
	// No plugin scheduler is wired into this pipeline, so background
	// completion is unconditional rather than deferred to a file:complete
	// event.
	p.deps.Tracker.CompleteBackground(task.path, primaryHash, task.vp, "")
	p.bgDone.Add(1)
}

func (p *Pipeline) computeFullDigests(path string) (map[model.Algo]model.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hashers := make([]*hashkit.Hasher, 0, len(backgroundAlgos))
	for _, algo := range backgroundAlgos {
		// All entries in backgroundAlgos are conventional streaming digests
		// hashkit.New always accepts; midhash256 and BTIHv2 are computed by
		// their own dedicated functions, never through Hasher.
		h, err := hashkit.New(algo)
		if err != nil {
			return nil, err
		}
		hashers = append(hashers, h)
	}

	buf := make([]byte, 1<<20)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			for _, h := range hashers {
				h.Update(buf[:n])
			}
		}
		if rerr != nil {
			break
		}
	}

	out := make(map[model.Algo]model.Digest, len(hashers))
	for _, h := range hashers {
		d := h.Finalize()
		out[d.Algo] = d
	}
	return out, nil
}

func (p *Pipeline) recordFailure(stage string) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordStageFailure(stage)
	}
}
