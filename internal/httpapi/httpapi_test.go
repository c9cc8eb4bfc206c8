package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mediacat/mediacat/internal/model"
	"github.com/mediacat/mediacat/internal/sidecar"
	"github.com/mediacat/mediacat/internal/vfs"
)

func testServer(t *testing.T) (*Server, *vfs.VFS) {
	t.Helper()
	v := vfs.New(sidecar.ActiveFormats([]string{"meta"}))
	meta := &model.MetaRecord{SourcePath: "/src/a.mkv", Title: "A", SizeByte: 10}
	if err := v.InsertFile("/Movies/A (2020)/A.mkv", "/src/a.mkv", meta); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	return New(v, nil), v
}

func doPost(t *testing.T, mux http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _ := testServer(t)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fuse/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestHandleReaddirFound(t *testing.T) {
	s, _ := testServer(t)
	rec := doPost(t, s.Routes(), "/api/fuse/readdir", `{"path":"/Movies"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var body struct{ Entries []string }
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Entries) != 1 {
		t.Errorf("entries = %v, want 1 child", body.Entries)
	}
}

func TestHandleReaddirMissingIs404(t *testing.T) {
	s, _ := testServer(t)
	rec := doPost(t, s.Routes(), "/api/fuse/readdir", `{"path":"/nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetattrStripsMarkerBits(t *testing.T) {
	s, _ := testServer(t)
	rec := doPost(t, s.Routes(), "/api/fuse/getattr", `{"path":"/Movies/A (2020)/A.mkv"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var attrs attrsJSON
	json.Unmarshal(rec.Body.Bytes(), &attrs)
	if attrs.Mode&vfsMarkerBits != 0 {
		t.Errorf("Mode = %o, marker bits leaked into response", attrs.Mode)
	}
	if attrs.Size != 10 {
		t.Errorf("Size = %d, want 10", attrs.Size)
	}
}

func TestHandleExists(t *testing.T) {
	s, _ := testServer(t)
	rec := doPost(t, s.Routes(), "/api/fuse/exists", `{"path":"/Movies/A (2020)/A.mkv"}`)
	var body map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !body["exists"] {
		t.Error("exists = false, want true")
	}
}

func TestHandleReadSidecarCarriesBase64Content(t *testing.T) {
	s, _ := testServer(t)
	rec := doPost(t, s.Routes(), "/api/fuse/read", `{"path":"/Movies/A (2020)/A.meta"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["contentEncoding"] != "base64" {
		t.Errorf("body = %v, want contentEncoding=base64 for a sidecar", body)
	}
}

func TestHandleMetadataFound(t *testing.T) {
	s, _ := testServer(t)
	rec := doPost(t, s.Routes(), "/api/fuse/metadata", `{"path":"/Movies/A (2020)/A.mkv"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rec2 model.MetaRecord
	json.Unmarshal(rec.Body.Bytes(), &rec2)
	if rec2.Title != "A" {
		t.Errorf("Title = %q, want A", rec2.Title)
	}
}

func TestHandleFilesAndDirectories(t *testing.T) {
	s, _ := testServer(t)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fuse/files", nil))
	var files struct{ Files []string `json:"files"` }
	json.Unmarshal(rec.Body.Bytes(), &files)
	if len(files.Files) == 0 {
		t.Error("expected at least one file in the flat listing")
	}

	rec = httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fuse/directories", nil))
	var dirs struct{ Directories []string `json:"directories"` }
	json.Unmarshal(rec.Body.Bytes(), &dirs)
	if len(dirs.Directories) == 0 {
		t.Error("expected at least one directory in the flat listing")
	}
}

func TestHandleTreeNegotiatesBrotli(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/fuse/tree", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "br" {
		t.Errorf("Content-Encoding = %q, want br", rec.Header().Get("Content-Encoding"))
	}
}

func TestHandleRefreshInvokesCallback(t *testing.T) {
	v := vfs.New(sidecar.ActiveFormats(nil))
	called := false
	s := New(v, func(ctx context.Context) error {
		called = true
		return nil
	})
	rec := doPost(t, s.Routes(), "/api/fuse/refresh", `{}`)
	if rec.Code != http.StatusOK || !called {
		t.Errorf("status=%d called=%v, want 200/true", rec.Code, called)
	}
}
