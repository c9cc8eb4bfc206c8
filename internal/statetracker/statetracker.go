// Package statetracker tracks each discovered path's journey through the
// pipeline: discovered, light, background, done. Unlike the indexer's
// FetchState checkpoint, this state is in-memory only and owned entirely by
// the tracker; it is never the pipeline's source of truth for what to
// persist, only for what to schedule next.
package statetracker

import (
	"sync"
	"time"

	"github.com/mediacat/mediacat/internal/model"
)

// doneCap bounds the done ring; older entries are evicted first, but
// TotalDone keeps counting regardless of ring eviction.
const doneCap = 100

// snapshotCap bounds how many entries Snapshot returns per state.
const snapshotCap = 100

// Tracker holds the four disjoint containers. All methods are safe for
// concurrent use.
type Tracker struct {
	mu sync.Mutex

	discovered map[string]*model.FileState
	light      map[string]*model.FileState
	background map[string]*model.FileState

	done      []model.FileState // ring, oldest first, capped at doneCap
	doneHead  int               // index of the oldest slot once the ring wraps
	totalDone int64             // monotone, never decremented by ring eviction
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		discovered: make(map[string]*model.FileState),
		light:      make(map[string]*model.FileState),
		background: make(map[string]*model.FileState),
		done:       make([]model.FileState, 0, doneCap),
	}
}

// AddDiscovered inserts path into discovered with discoveredAt=now. A path
// already present in any container (discovered, light, or background) is
// left untouched: this call is a no-op there.
func (t *Tracker) AddDiscovered(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.discovered[path]; ok {
		return
	}
	if _, ok := t.light[path]; ok {
		return
	}
	if _, ok := t.background[path]; ok {
		return
	}
	t.discovered[path] = &model.FileState{
		FilePath:     path,
		State:        model.StateDiscovered,
		DiscoveredAt: time.Now(),
	}
}

// Remove erases path from all three in-flight containers. It does not touch
// the done ring: a path that already finished stays in the completed record.
func (t *Tracker) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.discovered, path)
	delete(t.light, path)
	delete(t.background, path)
}

// StartLight moves path from discovered to light, preserving discoveredAt
// and the retry count. Returns false if path was not in discovered.
func (t *Tracker) StartLight(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	fs, ok := t.discovered[path]
	if !ok {
		return false
	}
	delete(t.discovered, path)
	fs.State = model.StateLight
	fs.LightStart = time.Now()
	t.light[path] = fs
	return true
}

// CompleteLight moves path from light to background, stamping lightEnd and
// lightDuration. On a non-empty errMsg it short-circuits straight to
// CompleteBackground instead, matching the spec's error fast-path.
func (t *Tracker) CompleteLight(path, hash, virtualPath, errMsg string) bool {
	if errMsg != "" {
		return t.completeBackgroundFromLight(path, hash, virtualPath, errMsg)
	}

	t.mu.Lock()
	fs, ok := t.light[path]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.light, path)
	now := time.Now()
	fs.LightEnd = now
	fs.LightDuration = now.Sub(fs.LightStart)
	if hash != "" {
		fs.Hash = hash
	}
	if virtualPath != "" {
		fs.VirtualPath = virtualPath
	}
	fs.State = model.StateBackground
	t.background[path] = fs
	t.mu.Unlock()
	return true
}

// completeBackgroundFromLight handles CompleteLight's error fast-path: the
// entry may still be sitting in light (never reached StartBackground), so it
// is pulled from there into background before the common completion logic
// below runs.
func (t *Tracker) completeBackgroundFromLight(path, hash, virtualPath, errMsg string) bool {
	t.mu.Lock()
	if fs, ok := t.light[path]; ok {
		delete(t.light, path)
		now := time.Now()
		fs.LightEnd = now
		fs.LightDuration = now.Sub(fs.LightStart)
		fs.State = model.StateBackground
		t.background[path] = fs
	}
	t.mu.Unlock()
	return t.CompleteBackground(path, hash, virtualPath, errMsg)
}

// StartBackground stamps bgStart=now on the existing background entry.
// Returns false if path was not in background.
func (t *Tracker) StartBackground(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	fs, ok := t.background[path]
	if !ok {
		return false
	}
	fs.BGStart = time.Now()
	return true
}

// CompleteBackground removes path from background and pushes a done entry
// with full durations. TotalDone always increments, independent of whether
// the ring had to evict an older entry to make room.
func (t *Tracker) CompleteBackground(path, hash, virtualPath, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	fs, ok := t.background[path]
	if !ok {
		return false
	}
	delete(t.background, path)

	now := time.Now()
	fs.BGEnd = now
	if fs.BGStart.IsZero() {
		fs.BGStart = now
	}
	if !fs.DiscoveredAt.IsZero() {
		fs.TotalDuration = now.Sub(fs.DiscoveredAt)
	}
	if hash != "" {
		fs.Hash = hash
	}
	if virtualPath != "" {
		fs.VirtualPath = virtualPath
	}
	if errMsg != "" {
		fs.Error = errMsg
	}
	fs.State = model.StateDone

	t.pushDoneLocked(*fs)
	t.totalDone++
	return true
}

// pushDoneLocked appends to the done ring, evicting the oldest entry once
// doneCap is reached. Must be called with t.mu held.
func (t *Tracker) pushDoneLocked(fs model.FileState) {
	if len(t.done) < doneCap {
		t.done = append(t.done, fs)
		return
	}
	t.done[t.doneHead] = fs
	t.doneHead = (t.doneHead + 1) % doneCap
}

// Retry moves path back to discovered from light or background (whichever
// holds it), bumping RetryCount and stamping LastRetryAt. Returns false if
// path was in neither.
func (t *Tracker) Retry(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fs *model.FileState
	if cur, ok := t.light[path]; ok {
		fs = cur
		delete(t.light, path)
	} else if cur, ok := t.background[path]; ok {
		fs = cur
		delete(t.background, path)
	} else {
		return false
	}

	fs.RetryCount++
	fs.LastRetryAt = time.Now()
	fs.State = model.StateDiscovered
	t.discovered[path] = fs
	return true
}

// TotalDone returns the monotone count of completed paths, unaffected by
// done-ring eviction.
func (t *Tracker) TotalDone() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalDone
}

// Reset clears all four containers and the monotone done counter. Used by
// Pipeline.Reset(); it never touches the metadata store.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discovered = make(map[string]*model.FileState)
	t.light = make(map[string]*model.FileState)
	t.background = make(map[string]*model.FileState)
	t.done = t.done[:0]
	t.doneHead = 0
	t.totalDone = 0
}

// Snapshot returns up to snapshotCap entries per container for inspection
// (e.g. an HTTP stats endpoint), never a live reference into the tracker.
type Snapshot struct {
	Discovered []model.FileState
	Light      []model.FileState
	Background []model.FileState
	Done       []model.FileState
	TotalDone  int64
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Discovered: collectCapped(t.discovered),
		Light:      collectCapped(t.light),
		Background: collectCapped(t.background),
		TotalDone:  t.totalDone,
	}
	s.Done = t.doneSnapshotLocked()
	return s
}

func collectCapped(m map[string]*model.FileState) []model.FileState {
	out := make([]model.FileState, 0, min(len(m), snapshotCap))
	for _, fs := range m {
		if len(out) >= snapshotCap {
			break
		}
		out = append(out, *fs)
	}
	return out
}

// doneSnapshotLocked returns the done ring in oldest-first order, capped at
// snapshotCap. Must be called with t.mu held.
func (t *Tracker) doneSnapshotLocked() []model.FileState {
	n := len(t.done)
	if n == 0 {
		return nil
	}
	limit := n
	if limit > snapshotCap {
		limit = snapshotCap
	}
	out := make([]model.FileState, 0, limit)
	if n < doneCap {
		// Ring hasn't wrapped yet: t.done is already oldest-first.
		start := 0
		if n > limit {
			start = n - limit
		}
		out = append(out, t.done[start:n]...)
		return out
	}
	for i := 0; i < limit; i++ {
		idx := (t.doneHead + n - limit + i) % doneCap
		out = append(out, t.done[idx])
	}
	return out
}
