package model

import "time"

// NodeKind tags the VFSNode sum type.
type NodeKind int

const (
	NodeDirectory NodeKind = iota
	NodeFile
)

// VFSNode is a directory or a file node in the virtual tree. Parent is a
// path-string key into the owning VFS's flat node map, never a pointer, so
// the tree can never form an ownership cycle. Directory nodes carry their
// children as a set of names (not paths); File nodes carry an optional
// source path (absent for sidecars) and an optional embedded MetaRecord.
type VFSNode struct {
	Kind   NodeKind
	Name   string
	Parent string // path key; "" only for the root

	// Directory fields.
	Children map[string]struct{}

	// File fields.
	SourcePath  string // "" for sidecars
	Size        int64
	ModTime     time.Time
	CTime       time.Time
	Meta        *MetaRecord
	SidecarKind string // "" for non-sidecar files; else e.g. "meta", "nfo"
}

// IsDir reports whether the node is a directory.
func (n *VFSNode) IsDir() bool { return n.Kind == NodeDirectory }

// IsSidecar reports whether the node is a synthetic sidecar file.
func (n *VFSNode) IsSidecar() bool { return n.Kind == NodeFile && n.SidecarKind != "" }

// Attrs mirrors the getattr result shape: size, mode, times, ownership and
// link count, matching what a FUSE Attr struct needs.
type Attrs struct {
	Size  int64
	Mode  uint32 // directory/regular bit already OR'd with permission bits
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	UID   uint32
	GID   uint32
	Nlink uint32
}

// ReadResult is the result of VFS.Read: sidecar files carry generated
// Content; regular files carry only SourcePath and Size, leaving byte
// fetch to the caller (the VFS never touches remote storage itself).
type ReadResult struct {
	SourcePath string
	Content    []byte // non-nil only for sidecars
	Size       int64
}

// Stats is the VFS's cached aggregate, maintained incrementally on every
// mutation rather than recomputed by traversal.
type Stats struct {
	FileCount      int64
	DirectoryCount int64
	TotalBytes     int64
	SidecarCount   int64
}
