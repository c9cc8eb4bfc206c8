// Package vfs implements the in-memory virtual file system the catalog
// pipeline populates as it discovers and processes source files: a tree of
// directories and files keyed by normalized virtual path, with sidecar
// projection and incrementally maintained aggregate stats.
package vfs

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/sidecar"
)

// VFS is the tree. All mutating and reading operations are synchronous and
// serialized behind a single lock; readers see a consistent snapshot of the
// tree and its cached aggregate stats.
type VFS struct {
	mu    sync.RWMutex
	nodes map[string]*model.VFSNode
	stats model.Stats

	sidecarFormats []sidecar.Format

	listenersMu    sync.RWMutex
	listeners      map[int]registration
	nextListenerID int
}

// New constructs an empty VFS (just the root directory) with the given
// active sidecar formats.
func New(sidecarFormats []sidecar.Format) *VFS {
	v := &VFS{
		nodes:          make(map[string]*model.VFSNode),
		sidecarFormats: sidecarFormats,
		listeners:      make(map[int]registration),
	}
	v.nodes[rootPath] = &model.VFSNode{
		Kind:     model.NodeDirectory,
		Name:     "",
		Parent:   "",
		Children: make(map[string]struct{}),
	}
	v.stats.DirectoryCount = 1
	return v
}

// ensureDirLocked creates path and any missing ancestors as directories, updating
// stats and parent child-sets. Must be called with v.mu held.
func (v *VFS) ensureDirLocked(path string) []string {
	path = normalize(path)
	if _, ok := v.nodes[path]; ok {
		return nil
	}
	var created []string
	chain := append(ancestors(path), path)
	for _, p := range chain {
		if _, ok := v.nodes[p]; ok {
			continue
		}
		parent := parentOf(p)
		v.nodes[p] = &model.VFSNode{
			Kind:     model.NodeDirectory,
			Name:     baseOf(p),
			Parent:   parent,
			Children: make(map[string]struct{}),
		}
		v.linkChildLocked(parent, baseOf(p))
		v.stats.DirectoryCount++
		created = append(created, p)
	}
	return created
}

func (v *VFS) linkChildLocked(parentPath, childName string) {
	if parent, ok := v.nodes[parentPath]; ok && parent.Children != nil {
		parent.Children[childName] = struct{}{}
	}
}

func (v *VFS) unlinkChildLocked(parentPath, childName string) {
	if parent, ok := v.nodes[parentPath]; ok && parent.Children != nil {
		delete(parent.Children, childName)
	}
}

// InsertFile creates missing ancestor directories, creates the file node,
// updates cached stats, and inserts one sidecar node per active format.
// Size and mtime come from meta if it carries a nonzero SizeByte; otherwise
// from a stat of sourcePath.
func (v *VFS) InsertFile(virtualPath, sourcePath string, meta *model.MetaRecord) error {
	vp := normalize(virtualPath)

	size, modTime, err := v.resolveSizeAndMTime(sourcePath, meta)
	if err != nil {
		return err
	}

	v.mu.Lock()
	createdDirs := v.ensureDirLocked(parentOf(vp))
	now := time.Now()
	v.nodes[vp] = &model.VFSNode{
		Kind:       model.NodeFile,
		Name:       baseOf(vp),
		Parent:     parentOf(vp),
		SourcePath: sourcePath,
		Size:       size,
		ModTime:    modTime,
		CTime:      now,
		Meta:       meta,
	}
	v.linkChildLocked(parentOf(vp), baseOf(vp))
	v.stats.FileCount++
	v.stats.TotalBytes += size

	sidecarPaths := v.insertSidecarsLocked(vp, meta, modTime)
	v.mu.Unlock()

	for _, d := range createdDirs {
		v.emit(EventDirectoryAdded, d)
	}
	v.emit(EventFileAdded, vp)
	for _, sp := range sidecarPaths {
		v.emit(EventFileAdded, sp)
	}
	v.emit(EventVFSUpdated, vp)
	return nil
}

// insertSidecarsLocked creates one sidecar file node per active format at
// <virtualPath><formatExt>. Sidecars carry the primary file's mtime and have
// no SourcePath. Must be called with v.mu held.
func (v *VFS) insertSidecarsLocked(vp string, meta *model.MetaRecord, modTime time.Time) []string {
	var created []string
	for _, f := range v.sidecarFormats {
		sp := vp + f.Ext()
		if _, exists := v.nodes[sp]; exists {
			v.stats.TotalBytes -= v.nodes[sp].Size
			v.stats.SidecarCount--
		} else {
			v.stats.FileCount++
		}
		content, _ := sidecar.Render(f, meta)
		v.nodes[sp] = &model.VFSNode{
			Kind:        model.NodeFile,
			Name:        baseOf(sp),
			Parent:      parentOf(sp),
			SourcePath:  "",
			Size:        int64(len(content)),
			ModTime:     modTime,
			CTime:       time.Now(),
			Meta:        meta,
			SidecarKind: string(f),
		}
		v.linkChildLocked(parentOf(sp), baseOf(sp))
		v.stats.TotalBytes += int64(len(content))
		v.stats.SidecarCount++
		created = append(created, sp)
	}
	return created
}

// removeSidecarsLocked removes every sidecar node for vp, adjusting stats by
// negative deltas. Must be called with v.mu held.
func (v *VFS) removeSidecarsLocked(vp string) []string {
	var removed []string
	for _, f := range v.sidecarFormats {
		sp := vp + f.Ext()
		node, ok := v.nodes[sp]
		if !ok {
			continue
		}
		v.stats.FileCount--
		v.stats.TotalBytes -= node.Size
		v.stats.SidecarCount--
		delete(v.nodes, sp)
		v.unlinkChildLocked(parentOf(sp), baseOf(sp))
		removed = append(removed, sp)
	}
	return removed
}

func (v *VFS) resolveSizeAndMTime(sourcePath string, meta *model.MetaRecord) (int64, time.Time, error) {
	if meta != nil && meta.SizeByte > 0 {
		mt := meta.ModTime
		if mt.IsZero() {
			mt = time.Now()
		}
		return meta.SizeByte, mt, nil
	}
	st, err := os.Stat(sourcePath)
	if err != nil {
		return 0, time.Time{}, err
	}
	return st.Size(), st.ModTime(), nil
}

// UpdateMetadata replaces the embedded record at virtualPath and regenerates
// its sidecars; aggregate stats are adjusted by size deltas, never by
// traversal.
func (v *VFS) UpdateMetadata(virtualPath string, meta *model.MetaRecord) bool {
	vp := normalize(virtualPath)

	v.mu.Lock()
	node, ok := v.nodes[vp]
	if !ok || node.Kind != model.NodeFile {
		v.mu.Unlock()
		return false
	}

	oldSize := node.Size
	newSize := node.Size
	modTime := node.ModTime
	if meta != nil && meta.SizeByte > 0 {
		newSize = meta.SizeByte
		if !meta.ModTime.IsZero() {
			modTime = meta.ModTime
		}
	}
	node.Meta = meta
	node.Size = newSize
	node.ModTime = modTime
	v.stats.TotalBytes += newSize - oldSize

	v.removeSidecarsLocked(vp)
	sidecarPaths := v.insertSidecarsLocked(vp, meta, modTime)
	v.mu.Unlock()

	v.emit(EventFileUpdated, vp)
	for _, sp := range sidecarPaths {
		v.emit(EventFileUpdated, sp)
	}
	v.emit(EventVFSUpdated, vp)
	return true
}

// RemoveFile removes the file plus its sidecars and unlinks from parent
// sets; stats adjust by negative deltas.
func (v *VFS) RemoveFile(virtualPath string) bool {
	vp := normalize(virtualPath)

	v.mu.Lock()
	node, ok := v.nodes[vp]
	if !ok || node.Kind != model.NodeFile {
		v.mu.Unlock()
		return false
	}

	sidecarPaths := v.removeSidecarsLocked(vp)
	v.stats.FileCount--
	v.stats.TotalBytes -= node.Size
	delete(v.nodes, vp)
	v.unlinkChildLocked(node.Parent, node.Name)
	v.mu.Unlock()

	for _, sp := range sidecarPaths {
		v.emit(EventFileRemoved, sp)
	}
	v.emit(EventFileRemoved, vp)
	v.emit(EventVFSUpdated, vp)
	return true
}

// Readdir returns the sorted child names of path, or (nil, false) if path is
// missing or not a directory.
func (v *VFS) Readdir(path string) ([]string, bool) {
	vp := normalize(path)
	v.mu.RLock()
	defer v.mu.RUnlock()
	node, ok := v.nodes[vp]
	if !ok || node.Kind != model.NodeDirectory {
		return nil, false
	}
	out := make([]string, 0, len(node.Children))
	for name := range node.Children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, true
}

// Getattr returns Attrs for path, or (Attrs{}, false) if missing.
func (v *VFS) Getattr(path string, dirMode, fileMode uint32) (model.Attrs, bool) {
	vp := normalize(path)
	v.mu.RLock()
	defer v.mu.RUnlock()
	node, ok := v.nodes[vp]
	if !ok {
		return model.Attrs{}, false
	}
	if node.Kind == model.NodeDirectory {
		return model.Attrs{
			Mode:  dirModeBits | dirMode,
			Mtime: node.ModTime,
			Ctime: node.CTime,
			Nlink: 2,
		}, true
	}
	return model.Attrs{
		Size:  node.Size,
		Mode:  fileModeBits | fileMode,
		Mtime: node.ModTime,
		Ctime: node.CTime,
		Nlink: 1,
	}, true
}

const (
	dirModeBits  = 1 << 31 // S_IFDIR-equivalent marker bit, OR'd with caller permission bits
	fileModeBits = 1 << 30 // S_IFREG-equivalent marker bit
)

// Read returns a ReadResult for path: sidecars carry generated content;
// regular files carry only SourcePath and Size, leaving byte fetch to the
// caller so the VFS never touches remote storage itself.
func (v *VFS) Read(path string) (model.ReadResult, bool) {
	vp := normalize(path)
	v.mu.RLock()
	node, ok := v.nodes[vp]
	if !ok || node.Kind != model.NodeFile {
		v.mu.RUnlock()
		return model.ReadResult{}, false
	}
	isSidecar := node.IsSidecar()
	meta := node.Meta
	kind := sidecar.Format(node.SidecarKind)
	srcPath := node.SourcePath
	size := node.Size
	v.mu.RUnlock()

	if !isSidecar {
		return model.ReadResult{SourcePath: srcPath, Size: size}, true
	}
	content, err := sidecar.Render(kind, meta)
	if err != nil {
		return model.ReadResult{}, false
	}
	return model.ReadResult{Content: content, Size: int64(len(content))}, true
}

// Meta returns the MetaRecord attached to a non-sidecar file node at path,
// or (nil, false) if path is missing, a directory, or a sidecar (sidecars
// project an existing record rather than owning one).
func (v *VFS) Meta(path string) (*model.MetaRecord, bool) {
	vp := normalize(path)
	v.mu.RLock()
	defer v.mu.RUnlock()
	node, ok := v.nodes[vp]
	if !ok || node.Kind != model.NodeFile || node.IsSidecar() || node.Meta == nil {
		return nil, false
	}
	return node.Meta, true
}

// Exists reports whether path names any node (file, sidecar, or directory).
func (v *VFS) Exists(path string) bool {
	vp := normalize(path)
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.nodes[vp]
	return ok
}

// Walk calls fn once for every node (directories and files) in the tree,
// in no particular order. Used by the flat /files, /directories and /tree
// HTTP endpoints; callers must not mutate the VFS from within fn.
func (v *VFS) Walk(fn func(path string, node *model.VFSNode)) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for p, n := range v.nodes {
		fn(p, n)
	}
}

// Stats returns a copy of the cached aggregate stats.
func (v *VFS) Stats() model.Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}

// HumanStats renders the cached aggregate stats as a human-readable line
// (comma-grouped file count, byte total in SI units). Nothing in this module
// calls it.
func (v *VFS) HumanStats() string {
	s := v.Stats()
	return humanize.Comma(s.FileCount) + " files, " + humanize.Bytes(uint64(s.TotalBytes)) + " total"
}

// MetaEntry is one record fed to RebuildFrom.
type MetaEntry struct {
	VirtualPath string
	SourcePath  string
	Meta        *model.MetaRecord
}

// RebuildFrom tears down everything below root and re-inserts each entry.
// Used at orchestrator startup to hydrate the VFS from persisted metadata
// without touching the transport.
func (v *VFS) RebuildFrom(entries []MetaEntry) error {
	v.mu.Lock()
	v.nodes = make(map[string]*model.VFSNode)
	v.nodes[rootPath] = &model.VFSNode{
		Kind:     model.NodeDirectory,
		Name:     "",
		Parent:   "",
		Children: make(map[string]struct{}),
	}
	v.stats = model.Stats{DirectoryCount: 1}
	v.mu.Unlock()

	for _, e := range entries {
		if err := v.InsertFile(e.VirtualPath, e.SourcePath, e.Meta); err != nil {
			return err
		}
	}
	v.emit(EventVFSUpdated, rootPath)
	return nil
}
