// Package ingestor subscribes to an upstream event stream as a named
// consumer group and forwards add/change/delete events to the pipeline.
// Reconnect backoff is grounded on httpclient.DoWithRetry's jitter/sleepCtx
// shape, generalized from a single-request retry to a long-lived
// resubscribe loop.
package ingestor

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// EventKind is one of the four upstream event kinds.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventChange EventKind = "change"
	EventDelete EventKind = "delete"
	EventRename EventKind = "rename"
)

// RawEvent is one entry read from the upstream stream, before rename
// materialization and path normalization.
type RawEvent struct {
	ID      string
	Kind    EventKind
	Path    string // new path for rename, the path for everything else
	OldPath string // only set for rename
	Midhash string // optional precomputed hint
}

// Source is the upstream event stream, abstracted so a concrete transport
// (Redis streams, a message broker, a test fake) can satisfy it without the
// ingestor depending on any one client library.
type Source interface {
	// ReadGroup blocks (respecting ctx) for up to one batch of fresh entries
	// for the named consumer group/consumer, returning io.EOF-like empty
	// results on timeout rather than an error.
	ReadGroup(ctx context.Context, group, consumer string, count int) ([]RawEvent, error)
	// ReadPending returns entries already claimed by consumer but not yet
	// acked, idle for at least idleThreshold.
	ReadPending(ctx context.Context, group, consumer string, idleThreshold time.Duration, count int) ([]RawEvent, error)
	// Ack acknowledges processed entry IDs.
	Ack(ctx context.Context, group string, ids ...string) error
}

// Handler receives materialized, path-normalized events. handle_add/change/
// delete semantics live in the pipeline package; the ingestor only adapts
// transport-level events into these three calls (rename is split into
// delete+add before Handler ever sees it).
type Handler interface {
	HandleAdd(path, midhash string)
	HandleChange(path, midhash string)
	HandleDelete(path string)
}

// Config controls batching, backoff and the idle threshold for startup
// pending-entry replay.
type Config struct {
	Group        string
	Consumer     string
	BasePath     string // prefix applied to relative paths
	BatchSize    int
	PendingIdle  time.Duration // ~30s per spec
	BackoffBase  time.Duration
	BackoffMaxMult int // multiplier caps at min(attempts, BackoffMaxMult)
}

// DefaultConfig mirrors the spec's defaults: 30s pending-idle threshold,
// multiplier capped at 6 attempts.
func DefaultConfig() Config {
	return Config{
		BatchSize:      64,
		PendingIdle:    30 * time.Second,
		BackoffBase:    5 * time.Second,
		BackoffMaxMult: 6,
	}
}

// Ingestor runs the consume loop in its own goroutine once started.
type Ingestor struct {
	src     Source
	handler Handler
	cfg     Config

	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

// New constructs an Ingestor. Call Start to begin consuming.
func New(src Source, handler Handler, cfg Config) *Ingestor {
	return &Ingestor{src: src, handler: handler, cfg: cfg}
}

// Start begins the consume loop in a background goroutine.
func (g *Ingestor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	go g.run(ctx)
}

// Stop cancels any in-flight wait and blocks until the consume loop exits.
// Idempotent: a second call is a no-op.
func (g *Ingestor) Stop() {
	g.stopOnce.Do(func() {
		if g.cancel != nil {
			g.cancel()
		}
		if g.done != nil {
			<-g.done
		}
	})
}

func (g *Ingestor) run(ctx context.Context) {
	defer close(g.done)

	g.replayPending(ctx)

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := g.src.ReadGroup(ctx, g.cfg.Group, g.cfg.Consumer, g.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			wait := backoff(g.cfg.BackoffBase, attempts, g.cfg.BackoffMaxMult)
			log.Printf("ingestor: reconnect attempt=%d wait=%s err=%v", attempts, wait, err)
			if sleepCtx(ctx, wait) != nil {
				return
			}
			continue
		}
		attempts = 0
		g.dispatch(ctx, events)
	}
}

// replayPending drains entries already claimed by this consumer name but not
// yet acked before joining the fresh stream, so a restarted ingestor doesn't
// silently drop in-flight work from its own previous incarnation.
func (g *Ingestor) replayPending(ctx context.Context) {
	events, err := g.src.ReadPending(ctx, g.cfg.Group, g.cfg.Consumer, g.cfg.PendingIdle, g.cfg.BatchSize)
	if err != nil {
		log.Printf("ingestor: pending replay failed: %v", err)
		return
	}
	g.dispatch(ctx, events)
}

func (g *Ingestor) dispatch(ctx context.Context, events []RawEvent) {
	var acked []string
	for _, e := range events {
		path := g.resolvePath(e.Path)
		switch e.Kind {
		case EventAdd:
			g.handler.HandleAdd(path, e.Midhash)
		case EventChange:
			g.handler.HandleChange(path, e.Midhash)
		case EventDelete:
			g.handler.HandleDelete(path)
		case EventRename:
			g.handler.HandleDelete(g.resolvePath(e.OldPath))
			g.handler.HandleAdd(path, e.Midhash)
		default:
			log.Printf("ingestor: dropping unknown event kind %q id=%s", e.Kind, e.ID)
		}
		acked = append(acked, e.ID)
	}
	if len(acked) == 0 {
		return
	}
	if err := g.src.Ack(ctx, g.cfg.Group, acked...); err != nil {
		log.Printf("ingestor: ack failed for %d entries: %v", len(acked), err)
	}
}

// resolvePath prefixes relative paths with BasePath; already-absolute paths
// pass through unchanged.
func (g *Ingestor) resolvePath(p string) string {
	if p == "" || strings.HasPrefix(p, "/") || g.cfg.BasePath == "" {
		return p
	}
	return strings.TrimSuffix(g.cfg.BasePath, "/") + "/" + p
}

// backoff computes the capped exponential wait: base * min(attempts, maxMult).
func backoff(base time.Duration, attempts, maxMult int) time.Duration {
	mult := attempts
	if mult > maxMult {
		mult = maxMult
	}
	if mult < 1 {
		mult = 1
	}
	return base * time.Duration(mult)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
