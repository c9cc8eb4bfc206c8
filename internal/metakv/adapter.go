package metakv

import (
	"context"
	"sync"

	"github.com/mediacat/mediacat/internal/model"
)

// PipelineStore adapts a Store to the pipeline's narrower, context-free
// MetaStore contract (Put(hash, rec) / Delete(sourcePath)). It keeps a
// small in-memory sourcePath->midhash map since the KV itself is keyed by
// content hash, not by path.
type PipelineStore struct {
	store Store

	mu     sync.Mutex
	byPath map[string]string
}

// NewPipelineStore wraps store for use as a pipeline.MetaStore.
func NewPipelineStore(store Store) *PipelineStore {
	return &PipelineStore{store: store, byPath: make(map[string]string)}
}

// Put persists rec under hash and remembers the hash for rec.SourcePath so
// a later Delete(sourcePath) can find it.
func (p *PipelineStore) Put(hash string, rec *model.MetaRecord) error {
	if err := p.store.Put(context.Background(), hash, *rec); err != nil {
		return err
	}
	p.mu.Lock()
	p.byPath[rec.SourcePath] = hash
	p.mu.Unlock()
	return nil
}

// Delete removes whatever hash was last stored for sourcePath. A path the
// adapter never saw a Put for (e.g. a delete racing a still-in-flight
// background stage) is a no-op, not an error.
func (p *PipelineStore) Delete(sourcePath string) error {
	p.mu.Lock()
	hash, ok := p.byPath[sourcePath]
	if ok {
		delete(p.byPath, sourcePath)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.store.Delete(context.Background(), hash)
}
