package ingestor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []RawEvent
	batches   [][]RawEvent // consumed in order; after exhaustion, errs are returned until stopped
	errs      []error      // one error per ReadGroup call beyond len(batches), nil = block forever via ctx
	callIndex int
	acked     []string
}

func (f *fakeSource) ReadGroup(ctx context.Context, group, consumer string, count int) ([]RawEvent, error) {
	f.mu.Lock()
	idx := f.callIndex
	f.callIndex++
	f.mu.Unlock()

	if idx < len(f.batches) {
		return f.batches[idx], nil
	}
	errIdx := idx - len(f.batches)
	if errIdx < len(f.errs) {
		return nil, f.errs[errIdx]
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSource) ReadPending(ctx context.Context, group, consumer string, idle time.Duration, count int) ([]RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pending
	f.pending = nil
	return p, nil
}

func (f *fakeSource) Ack(ctx context.Context, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

type fakeHandler struct {
	mu      sync.Mutex
	added   []string
	changed []string
	deleted []string
}

func (h *fakeHandler) HandleAdd(path, midhash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.added = append(h.added, path)
}
func (h *fakeHandler) HandleChange(path, midhash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changed = append(h.changed, path)
}
func (h *fakeHandler) HandleDelete(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, path)
}

func TestBackoff_matchesCappedMultiplierSequence(t *testing.T) {
	base := 5 * time.Second
	want := []time.Duration{5, 10, 15, 20, 25, 30, 30, 30}
	for i, w := range want {
		got := backoff(base, i+1, 6)
		if got != w*time.Second {
			t.Errorf("backoff(attempt=%d) = %s, want %s", i+1, got, w*time.Second)
		}
	}
}

func TestIngestor_replaysPendingBeforeFreshEvents(t *testing.T) {
	src := &fakeSource{
		pending: []RawEvent{{ID: "p1", Kind: EventAdd, Path: "pending.mkv"}},
		batches: [][]RawEvent{{{ID: "f1", Kind: EventAdd, Path: "fresh.mkv"}}},
	}
	h := &fakeHandler{}
	g := New(src, h, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	g.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.added) < 2 || h.added[0] != "pending.mkv" || h.added[1] != "fresh.mkv" {
		t.Errorf("added = %v, want [pending.mkv fresh.mkv]", h.added)
	}
}

func TestIngestor_materializesRenameAsDeleteThenAdd(t *testing.T) {
	src := &fakeSource{
		batches: [][]RawEvent{{{ID: "r1", Kind: EventRename, OldPath: "old.mkv", Path: "new.mkv"}}},
	}
	h := &fakeHandler{}
	g := New(src, h, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	g.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.deleted) != 1 || h.deleted[0] != "old.mkv" {
		t.Errorf("deleted = %v, want [old.mkv]", h.deleted)
	}
	if len(h.added) != 1 || h.added[0] != "new.mkv" {
		t.Errorf("added = %v, want [new.mkv]", h.added)
	}
}

func TestIngestor_dropsUnknownEventKind(t *testing.T) {
	src := &fakeSource{
		batches: [][]RawEvent{{{ID: "u1", Kind: "mystery", Path: "x.mkv"}}},
	}
	h := &fakeHandler{}
	g := New(src, h, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	g.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.added)+len(h.changed)+len(h.deleted) != 0 {
		t.Error("unknown event kind should not reach the handler")
	}
}

func TestIngestor_relativePathGetsBasePathPrefix(t *testing.T) {
	src := &fakeSource{
		batches: [][]RawEvent{{{ID: "a1", Kind: EventAdd, Path: "rel/x.mkv"}}},
	}
	h := &fakeHandler{}
	cfg := DefaultConfig()
	cfg.BasePath = "/data"
	g := New(src, h, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	g.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.added) != 1 || h.added[0] != "/data/rel/x.mkv" {
		t.Errorf("added = %v, want [/data/rel/x.mkv]", h.added)
	}
}

func TestIngestor_absolutePathPassesThroughUnchanged(t *testing.T) {
	src := &fakeSource{
		batches: [][]RawEvent{{{ID: "a1", Kind: EventAdd, Path: "/already/abs.mkv"}}},
	}
	h := &fakeHandler{}
	cfg := DefaultConfig()
	cfg.BasePath = "/data"
	g := New(src, h, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	g.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.added) != 1 || h.added[0] != "/already/abs.mkv" {
		t.Errorf("added = %v, want [/already/abs.mkv]", h.added)
	}
}

func TestIngestor_stopIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	h := &fakeHandler{}
	g := New(src, h, DefaultConfig())
	g.Start(context.Background())
	g.Stop()
	g.Stop() // must not panic or block
}

func TestIngestor_acksDispatchedEvents(t *testing.T) {
	src := &fakeSource{
		batches: [][]RawEvent{{{ID: "a1", Kind: EventAdd, Path: "x.mkv"}}},
	}
	h := &fakeHandler{}
	g := New(src, h, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	g.Stop()

	if len(src.acked) != 1 || src.acked[0] != "a1" {
		t.Errorf("acked = %v, want [a1]", src.acked)
	}
}

var errTransient = errors.New("connection reset")

func TestIngestor_reconnectsAfterTransientError(t *testing.T) {
	src := &fakeSource{
		errs:    []error{errTransient},
		batches: nil,
	}
	src.batches = [][]RawEvent{}
	// First call errors, subsequent calls block until ctx is done (no panic, no crash).
	h := &fakeHandler{}
	cfg := DefaultConfig()
	cfg.BackoffBase = 5 * time.Millisecond
	g := New(src, h, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	cancel()
	g.Stop()
	// No assertion beyond "did not deadlock or panic" — the reconnect path's
	// sequencing is covered precisely by TestBackoff_matchesCappedMultiplierSequence.
}
