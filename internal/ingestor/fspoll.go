package ingestor

import (
	"context"
	"io/fs"
	"log"
	"path/filepath"
	"sync"
	"time"
)

// FSPoller is a default, dependency-free Source: it periodically walks a
// root directory and diffs the result against its last snapshot to
// synthesize add/change/delete RawEvents. None of the example pack's go.mod
// files carry a filesystem-watch library (fsnotify or otherwise), so this
// stays on stdlib os/filepath rather than reaching for one; a Redis-backed
// Source satisfying the same interface is the production path and can
// replace this without touching the ingestor.
//
// Consumer group/name and pending-entry replay have no meaning for a local
// poll loop, so ReadPending always returns empty and Ack is a no-op.
type FSPoller struct {
	root     string
	interval time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	events chan RawEvent
	stopCh chan struct{}
	once   sync.Once
}

// NewFSPoller returns a poller over root, scanning every interval.
func NewFSPoller(root string, interval time.Duration) *FSPoller {
	return &FSPoller{
		root:     root,
		interval: interval,
		seen:     make(map[string]time.Time),
		events:   make(chan RawEvent, 256),
		stopCh:   make(chan struct{}),
	}
}

// Run starts the background scan loop and returns immediately; the loop
// exits when ctx is done. Only the first call starts a loop; later calls
// are no-ops.
func (p *FSPoller) Run(ctx context.Context) {
	p.once.Do(func() {
		go p.loop(ctx)
	})
}

func (p *FSPoller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.scan()
	for {
		select {
		case <-ctx.Done():
			close(p.stopCh)
			return
		case <-ticker.C:
			p.scan()
		}
	}
}

func (p *FSPoller) scan() {
	current := make(map[string]time.Time)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, don't abort the whole walk
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		current[path] = info.ModTime()
		return nil
	})
	if err != nil {
		log.Printf("ingestor: fspoller scan of %s failed: %v", p.root, err)
		return
	}

	p.mu.Lock()
	prev := p.seen
	p.seen = current
	p.mu.Unlock()

	for path, mtime := range current {
		if prevMtime, ok := prev[path]; !ok {
			p.emit(RawEvent{Kind: EventAdd, Path: path})
		} else if !prevMtime.Equal(mtime) {
			p.emit(RawEvent{Kind: EventChange, Path: path})
		}
	}
	for path := range prev {
		if _, ok := current[path]; !ok {
			p.emit(RawEvent{Kind: EventDelete, Path: path})
		}
	}
}

func (p *FSPoller) emit(ev RawEvent) {
	select {
	case p.events <- ev:
	default:
		log.Printf("ingestor: fspoller event buffer full, dropping %s %s", ev.Kind, ev.Path)
	}
}

// ReadGroup implements Source: group/consumer are ignored, count caps the
// batch drained from the internal buffer.
func (p *FSPoller) ReadGroup(ctx context.Context, group, consumer string, count int) ([]RawEvent, error) {
	var out []RawEvent
	select {
	case ev := <-p.events:
		out = append(out, ev)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.interval):
		return nil, nil
	}
drain:
	for len(out) < count {
		select {
		case ev := <-p.events:
			out = append(out, ev)
		default:
			break drain
		}
	}
	return out, nil
}

// ReadPending implements Source: a local poll loop has no pending-entry
// concept, so this always returns no entries.
func (p *FSPoller) ReadPending(ctx context.Context, group, consumer string, idleThreshold time.Duration, count int) ([]RawEvent, error) {
	return nil, nil
}

// Ack implements Source as a no-op; there is nothing upstream to acknowledge.
func (p *FSPoller) Ack(ctx context.Context, group string, ids ...string) error {
	return nil
}
