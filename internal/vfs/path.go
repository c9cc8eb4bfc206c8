package vfs

import "strings"

const rootPath = "/"

// normalize converts p to the VFS's canonical absolute path form: forward
// slashes, no trailing slash except for the root itself.
func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return rootPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// parentOf returns the normalized parent path of p, or "" if p is the root.
func parentOf(p string) string {
	if p == rootPath {
		return ""
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return rootPath
	}
	return p[:idx]
}

// baseOf returns the final path component of p.
func baseOf(p string) string {
	if p == rootPath {
		return ""
	}
	idx := strings.LastIndex(p, "/")
	return p[idx+1:]
}

// ancestors returns the chain of ancestor directory paths from the root down
// to (but not including) p itself, in top-down order.
func ancestors(p string) []string {
	if p == rootPath {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	out := make([]string, 0, len(parts))
	cur := ""
	for _, part := range parts[:len(parts)-1] {
		cur += "/" + part
		out = append(out, cur)
	}
	return out
}
