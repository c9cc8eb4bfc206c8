// Package hashindex caches previously computed digests keyed by
// (basename, size, mtime), one append-only CSV file per algorithm, so the
// background pipeline stage never recomputes a hash for a file it has
// already fully fingerprinted.
package hashindex

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mediacat/mediacat/internal/errs"
	"github.com/mediacat/mediacat/internal/model"
)

const mtimeLayout = time.RFC3339

type entryKey struct {
	basename string
	size     int64
	mtime    string
}

type entry struct {
	digests map[model.Algo]model.Digest
}

// Index is a path-size-mtime keyed cache of digests. One CSV file per
// algorithm lives under Dir; the in-memory map is always a superset of any
// single file's on-disk contents.
type Index struct {
	mu  sync.RWMutex
	dir string

	entries map[entryKey]*entry
	dirty   map[entryKey]bool

	flushMu       sync.Mutex
	flushInterval time.Duration
	flushBudget   float64 // fraction of interval a flush may exceed before interval doubles
	lastFlush     time.Time
	fileSizes     map[model.Algo]int64 // on-disk size recorded at load and after each append; Flush does not compare against it
}

// Option configures New.
type Option func(*Index)

// WithFlushInterval overrides the default minimum flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(idx *Index) { idx.flushInterval = d }
}

// WithFlushBudget overrides the fraction of the interval a flush may take
// before the interval doubles.
func WithFlushBudget(f float64) Option {
	return func(idx *Index) { idx.flushBudget = f }
}

// New constructs an Index rooted at dir (created if missing) and loads any
// existing per-algorithm CSV files.
func New(dir string, opts ...Option) (*Index, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("hashindex: mkdir %s: %w", dir, err)
	}
	idx := &Index{
		dir:           dir,
		entries:       make(map[entryKey]*entry),
		dirty:         make(map[entryKey]bool),
		flushInterval: 30 * time.Second,
		flushBudget:   0.1,
		fileSizes:     make(map[model.Algo]int64),
	}
	for _, opt := range opts {
		opt(idx)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		algo := model.Algo(strings.TrimSuffix(filepath.Base(path), ".csv"))
		if err := idx.loadFile(algo, path); err != nil {
			return nil, err
		}
	}
	idx.lastFlush = time.Now()
	return idx, nil
}

func (idx *Index) pathFor(algo model.Algo) string {
	return filepath.Join(idx.dir, string(algo)+".csv")
}

// loadFile reads path's header (path,size,mtime,<algo>) and populates the
// in-memory map. A header whose columns don't match that fixed shape is
// InvalidIndex.
func (idx *Index) loadFile(algo model.Algo, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("hashindex: read header %s: %w", path, err)
	}
	if len(header) != 4 || header[0] != "path" || header[1] != "size" || header[2] != "mtime" || header[3] != string(algo) {
		return &errs.InvalidIndex{Path: path, Reason: fmt.Sprintf("unexpected header %v", header)}
	}

	for {
		row, rerr := cr.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("hashindex: read row %s: %w", path, rerr)
		}
		if len(row) != 4 {
			continue
		}
		size, perr := strconv.ParseInt(row[1], 10, 64)
		if perr != nil {
			continue
		}
		key := entryKey{basename: row[0], size: size, mtime: row[2]}
		idx.setDigestLocked(key, model.Digest{Algo: algo, Value: row[3]}, false)
	}

	if st, serr := f.Stat(); serr == nil {
		idx.fileSizes[algo] = st.Size()
	}
	return nil
}

func (idx *Index) setDigestLocked(key entryKey, d model.Digest, markDirty bool) {
	e, ok := idx.entries[key]
	if !ok {
		e = &entry{digests: make(map[model.Algo]model.Digest)}
		idx.entries[key] = e
	}
	e.digests[d.Algo] = d
	if markDirty {
		idx.dirty[key] = true
	}
}

// Lookup returns the cached digest set for (basename, size, mtime). mtime
// must match exactly when a recorded mtime exists for the entry; size must
// always match.
func (idx *Index) Lookup(basename string, size int64, mtime time.Time) (map[model.Algo]model.Digest, bool) {
	key := entryKey{basename: basename, size: size, mtime: mtime.UTC().Format(mtimeLayout)}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[key]
	if !ok {
		// An entry loaded without a recorded mtime matches on size alone.
		e, ok = idx.entries[entryKey{basename: basename, size: size}]
	}
	if !ok || len(e.digests) == 0 {
		return nil, false
	}
	out := make(map[model.Algo]model.Digest, len(e.digests))
	for k, v := range e.digests {
		out[k] = v
	}
	return out, true
}

// Insert merges digests into the in-memory map for (basename, size, mtime)
// and marks the affected algorithm files dirty for the next flush.
func (idx *Index) Insert(basename string, size int64, mtime time.Time, digests map[model.Algo]model.Digest) {
	key := entryKey{basename: basename, size: size, mtime: mtime.UTC().Format(mtimeLayout)}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, d := range digests {
		idx.setDigestLocked(key, d, true)
	}
}

// Flush writes out dirty entries, one append per algorithm file, appending
// only entries new since the last flush. It does not re-read the files
// first: rows appended by another process are neither detected nor merged
// into the in-memory map. Flushing a second time concurrently is refused.
func (idx *Index) Flush() error {
	if !idx.flushMu.TryLock() {
		return fmt.Errorf("hashindex: flush already in progress")
	}
	defer idx.flushMu.Unlock()

	start := time.Now()

	idx.mu.Lock()
	dirty := make(map[entryKey]bool, len(idx.dirty))
	for k := range idx.dirty {
		dirty[k] = true
	}
	idx.dirty = make(map[entryKey]bool)
	entriesSnapshot := make(map[entryKey]*entry, len(idx.entries))
	for k, v := range idx.entries {
		entriesSnapshot[k] = v
	}
	idx.mu.Unlock()

	byAlgo := make(map[model.Algo][]entryKey)
	for key := range dirty {
		e := entriesSnapshot[key]
		if e == nil {
			continue
		}
		for algo := range e.digests {
			byAlgo[algo] = append(byAlgo[algo], key)
		}
	}

	for algo, keys := range byAlgo {
		if err := idx.appendAlgo(algo, keys, entriesSnapshot); err != nil {
			return err
		}
	}

	elapsed := time.Since(start)
	if idx.flushInterval > 0 && elapsed > time.Duration(float64(idx.flushInterval)*idx.flushBudget) {
		idx.flushInterval *= 2
	}
	idx.lastFlush = time.Now()
	return nil
}

// appendAlgo appends the given keys' digest for algo to its CSV file,
// writing the header first if the file doesn't exist yet.
func (idx *Index) appendAlgo(algo model.Algo, keys []entryKey, snapshot map[entryKey]*entry) error {
	path := idx.pathFor(algo)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("hashindex: open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write([]string{"path", "size", "mtime", string(algo)}); err != nil {
			return err
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].basename != keys[j].basename {
			return keys[i].basename < keys[j].basename
		}
		return keys[i].mtime < keys[j].mtime
	})

	for _, key := range keys {
		e := snapshot[key]
		d, ok := e.digests[algo]
		if !ok {
			continue
		}
		row := []string{key.basename, strconv.FormatInt(key.size, 10), key.mtime, d.Value}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if st, serr := f.Stat(); serr == nil {
		idx.mu.Lock()
		idx.fileSizes[algo] = st.Size()
		idx.mu.Unlock()
	}
	return nil
}
