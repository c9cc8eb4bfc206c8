// Package httpapi is the HTTP surface the Orchestrator exposes alongside
// (or instead of) the real FUSE mount: a small JSON API mirroring the VFS's
// read operations, grounded in the teacher's handler style in
// internal/tuner/server.go (plain net/http, no framework, one handler func
// per route, explicit status codes).
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/vfs"
)

// Server wires the /api/fuse/* surface to a live VFS. Refresh, if non-nil,
// is invoked by POST /api/fuse/refresh to rebuild the VFS from the
// metadata store without touching the event transport (Orchestrator step
// 4, re-run on demand).
type Server struct {
	v       *vfs.VFS
	refresh func(ctx context.Context) error
}

// New constructs a Server. refresh may be nil, in which case /refresh is a
// no-op that still reports {status:"ok"}.
func New(v *vfs.VFS, refresh func(ctx context.Context) error) *Server {
	return &Server{v: v, refresh: refresh}
}

// Routes returns the mux the Orchestrator mounts at its listen address.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/fuse/health", s.handleHealth)
	mux.HandleFunc("/api/fuse/stats", s.handleStats)
	mux.HandleFunc("/api/fuse/readdir", s.handleReaddir)
	mux.HandleFunc("/api/fuse/getattr", s.handleGetattr)
	mux.HandleFunc("/api/fuse/exists", s.handleExists)
	mux.HandleFunc("/api/fuse/read", s.handleRead)
	mux.HandleFunc("/api/fuse/metadata", s.handleMetadata)
	mux.HandleFunc("/api/fuse/tree", s.handleTree)
	mux.HandleFunc("/api/fuse/files", s.handleFiles)
	mux.HandleFunc("/api/fuse/directories", s.handleDirectories)
	mux.HandleFunc("/api/fuse/refresh", s.handleRefresh)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeJSONNegotiated is writeJSON but brotli-compresses the body when the
// client's Accept-Encoding offers "br", for the large flat-list endpoints.
func writeJSONNegotiated(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
		writeJSON(w, status, v)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "br")
	w.WriteHeader(status)
	bw := brotli.NewWriter(w)
	defer bw.Close()
	json.NewEncoder(bw).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type pathRequest struct {
	Path string `json:"path"`
}

func decodePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return "", false
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path must not be empty")
		return "", false
	}
	return req.Path, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.v.Stats())
}

func (s *Server) handleReaddir(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	entries, ok := s.v.Readdir(path)
	if !ok {
		writeError(w, http.StatusNotFound, "no such directory: "+path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// attrsJSON mirrors model.Attrs but strips the VFS's internal
// directory/file marker bits from Mode before it leaves the process.
type attrsJSON struct {
	Size  int64     `json:"size"`
	Mode  uint32    `json:"mode"`
	Mtime time.Time `json:"mtime"`
	Ctime time.Time `json:"ctime"`
	Nlink uint32    `json:"nlink"`
}

const vfsMarkerBits = 1<<31 | 1<<30

func (s *Server) handleGetattr(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	attrs, ok := s.v.Getattr(path, 0o040000, 0o100000)
	if !ok {
		writeError(w, http.StatusNotFound, "no such path: "+path)
		return
	}
	writeJSON(w, http.StatusOK, attrsJSON{
		Size:  attrs.Size,
		Mode:  attrs.Mode &^ vfsMarkerBits,
		Mtime: attrs.Mtime,
		Ctime: attrs.Ctime,
		Nlink: attrs.Nlink,
	})
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": s.v.Exists(path)})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	result, ok := s.v.Read(path)
	if !ok {
		writeError(w, http.StatusNotFound, "no such file: "+path)
		return
	}
	resp := map[string]any{
		"sourcePath": result.SourcePath,
		"size":       result.Size,
	}
	if result.Content != nil {
		resp["content"] = base64.StdEncoding.EncodeToString(result.Content)
		resp["contentEncoding"] = "base64"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	path, ok := decodePath(w, r)
	if !ok {
		return
	}
	meta, ok := s.v.Meta(path)
	if !ok {
		writeError(w, http.StatusNotFound, "no metadata for path: "+path)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// treeSummary is the root directory summary: top-level entries plus the
// cached aggregate stats.
type treeSummary struct {
	Path    string      `json:"path"`
	Entries []string    `json:"entries"`
	Stats   model.Stats `json:"stats"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	entries, _ := s.v.Readdir("/")
	writeJSONNegotiated(w, r, http.StatusOK, treeSummary{
		Path:    "/",
		Entries: entries,
		Stats:   s.v.Stats(),
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	var files []string
	s.v.Walk(func(path string, n *model.VFSNode) {
		if !n.IsDir() {
			files = append(files, path)
		}
	})
	sort.Strings(files)
	writeJSONNegotiated(w, r, http.StatusOK, map[string][]string{"files": files})
}

func (s *Server) handleDirectories(w http.ResponseWriter, r *http.Request) {
	var dirs []string
	s.v.Walk(func(path string, n *model.VFSNode) {
		if n.IsDir() {
			dirs = append(dirs, path)
		}
	})
	sort.Strings(dirs)
	writeJSONNegotiated(w, r, http.StatusOK, map[string][]string{"directories": dirs})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh != nil {
		if err := s.refresh(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "refresh failed: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
