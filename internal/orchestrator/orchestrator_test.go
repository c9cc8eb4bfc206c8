package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mediacat/mediacat/internal/config"
	"github.com/mediacat/mediacat/internal/metakv"
	"github.com/mediacat/mediacat/internal/metrics"
	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/sidecar"
	"github.com/mediacat/mediacat/internal/statetracker"
	"github.com/mediacat/mediacat/internal/vfs"
)

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	store, err := metakv.Open(filepath.Join(dir, "meta.sqlite"))
	if err != nil {
		t.Fatalf("metakv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Orchestrator{
		cfg:     &config.Config{},
		vfs:     vfs.New(sidecar.ActiveFormats([]string{"meta"})),
		tracker: statetracker.New(),
		store:   store,
		metrics: metrics.New(),
	}
}

func TestRebuildVFS_HydratesPersistedRecordsAndMarksLastVerified(t *testing.T) {
	o := testOrchestrator(t)
	ctx := context.Background()

	rec := model.MetaRecord{
		SourcePath:  "/src/movie.mkv",
		VirtualPath: "/Movies/Movie (2020)/Movie.mkv",
		Title:       "Movie",
		SizeByte:    123,
	}
	if err := o.store.Put(ctx, "hash1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := o.rebuildVFS(ctx); err != nil {
		t.Fatalf("rebuildVFS: %v", err)
	}

	got, ok := o.vfs.Meta(rec.VirtualPath)
	if !ok {
		t.Fatalf("Meta(%s) not found after rebuild", rec.VirtualPath)
	}
	if got.Title != "Movie" {
		t.Errorf("Title = %q, want Movie", got.Title)
	}
	lv, ok := got.Attrs["_lastVerified"]
	if !ok || lv.Kind != model.AttrNumber || lv.Num != 0 {
		t.Errorf("_lastVerified attr = %+v, want number 0", lv)
	}
}

func TestRebuildVFS_EmptyStoreProducesEmptyTree(t *testing.T) {
	o := testOrchestrator(t)
	if err := o.rebuildVFS(context.Background()); err != nil {
		t.Fatalf("rebuildVFS: %v", err)
	}
	entries, ok := o.vfs.Readdir("/")
	if !ok || len(entries) != 0 {
		t.Errorf("Readdir(/) = %v, %v, want empty root", entries, ok)
	}
}

func TestScanDuplicatesOnce_RecordsMetricsWithoutMutatingVFS(t *testing.T) {
	o := testOrchestrator(t)

	shared := model.Digest{Algo: model.AlgoSHA256, Value: "deadbeef"}
	metaA := &model.MetaRecord{
		SourcePath: "/src/a.mkv", Title: "A",
		Digests: map[model.Algo]model.Digest{model.AlgoSHA256: shared},
	}
	metaB := &model.MetaRecord{
		SourcePath: "/src/b.mkv", Title: "A",
		Digests: map[model.Algo]model.Digest{model.AlgoSHA256: shared},
	}
	if err := o.vfs.InsertFile("/Movies/A/A.mkv", "/src/a.mkv", metaA); err != nil {
		t.Fatalf("InsertFile a: %v", err)
	}
	if err := o.vfs.InsertFile("/Movies/B/B.mkv", "/src/b.mkv", metaB); err != nil {
		t.Fatalf("InsertFile b: %v", err)
	}

	// Must not panic or alter the tree; metrics recording is best-effort.
	o.scanDuplicatesOnce()

	if !o.vfs.Exists("/Movies/A/A.mkv") || !o.vfs.Exists("/Movies/B/B.mkv") {
		t.Error("duplicate scan must not remove VFS entries")
	}
}
