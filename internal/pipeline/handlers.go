package pipeline

// HandleAdd implements ingestor.Handler: record path as discovered and
// enqueue it for validation. midhash is an optional precomputed hint from
// the upstream event; an empty string means stage 2 computes it itself.
func (p *Pipeline) HandleAdd(path, midhash string) {
	p.deps.Tracker.AddDiscovered(path)
	p.discovered.Add(1)
	p.enqueueValidate(path, midhash)
}

// HandleChange implements ingestor.Handler: a changed file starts its
// journey over from scratch, so any in-flight state for path is cleared
// first.
func (p *Pipeline) HandleChange(path, midhash string) {
	p.deps.Tracker.Remove(path)
	p.deps.Tracker.AddDiscovered(path)
	p.discovered.Add(1)
	p.enqueueValidate(path, midhash)
}

// HandleDelete implements ingestor.Handler: remove path from the metadata
// store, the state tracker, and the VFS. There is no re-queue.
func (p *Pipeline) HandleDelete(path string) {
	p.deps.Tracker.Remove(path)
	if vp, ok := p.popVirtualPath(path); ok {
		p.deps.VFS.RemoveFile(vp)
	}
	if p.deps.Store != nil {
		if err := p.deps.Store.Delete(path); err != nil {
			logTrace(newTrace(), "delete", "metadata store delete failed for %s: %v", path, err)
		}
	}
}

func (p *Pipeline) enqueueValidate(path, midhash string) {
	trace := newTrace()
	sendValidate(p.validateCh, p.validateStage.stop, validateTask{trace: trace, path: path, midhash: midhash})
}
