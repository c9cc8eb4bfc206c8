// Package renamerule implements the pure MetaRecord -> virtual path policy:
// Plex-style directory naming generalized from vodfs's movie/show title+year
// inputs to the full pipeline MetaRecord (season, episode, subtitle
// language, extra/duplicate demotion).
package renamerule

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mediacat/mediacat/internal/errs"
	"github.com/mediacat/mediacat/internal/model"
)

// Apply computes the virtual path for m, or (\"\", nil) if m's Kind is not
// one of video/subtitle/torrent (the caller should skip such records
// silently, not treat it as an error). A missing extension or an
// unresolvable title returns a *errs.MalformedMeta.
func Apply(m *model.MetaRecord) (string, error) {
	switch m.Kind {
	case model.KindVideo, model.KindSubtitle, model.KindTorrent:
	default:
		return "", nil
	}

	ext := filepath.Ext(m.SourcePath)
	if ext == "" {
		return "", &errs.MalformedMeta{Path: m.SourcePath, Reason: "missing file extension"}
	}

	title := resolveTitle(m)
	if title == "" && m.Kind != model.KindTorrent {
		return "", &errs.MalformedMeta{Path: m.SourcePath, Reason: "no resolvable title"}
	}

	fileName := buildFileName(m, title, ext)
	dir := branchDir(m, title)
	return sanitize(filepath.ToSlash(filepath.Join(dir, fileName))), nil
}

// resolveTitle prefers the English localized title, falling back to the
// original (non-localized) title.
func resolveTitle(m *model.MetaRecord) string {
	if t, ok := m.Titles["eng"]; ok && t != "" {
		return t
	}
	return m.OriginalTitle
}

func buildFileName(m *model.MetaRecord, title, ext string) string {
	base := title
	if m.Season != nil && m.Episode != nil {
		base = fmt.Sprintf("%s S%02dE%02d", title, *m.Season, *m.Episode)
	} else if m.Year != nil && *m.Year > 0 {
		base = fmt.Sprintf("%s (%d)", title, *m.Year)
	}
	if m.Kind == model.KindSubtitle && m.Language != "" {
		return fmt.Sprintf("%s.%s%s", base, m.Language, ext)
	}
	return base + ext
}

func branchDir(m *model.MetaRecord, title string) string {
	switch {
	case m.Extra:
		return filepath.Join("TV Shows", title, "extra")
	case m.Season != nil && m.Episode != nil:
		return filepath.Join("TV Shows", title, fmt.Sprintf("S%02d", *m.Season))
	default:
		movieTitle := title
		if m.Year != nil && *m.Year > 0 {
			movieTitle = fmt.Sprintf("%s (%d)", title, *m.Year)
		}
		return filepath.Join("Movies", movieTitle)
	}
}

// sanitize strips characters illegal on common filesystems, preserves any
// leading Windows drive specifier (e.g. "C:"), and normalizes slashes.
// Mirrors vodfs.safeFSName's approach generalized from a single path segment
// to a full virtual path.
func sanitize(p string) string {
	drive := ""
	if len(p) >= 2 && p[1] == ':' && isASCIILetter(p[0]) {
		drive = p[:2]
		p = p[2:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	const illegal = `<>:"|?*`
	var b strings.Builder
	b.Grow(len(p))
	for _, r := range p {
		if strings.ContainsRune(illegal, r) {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	for strings.Contains(out, "//") {
		out = strings.ReplaceAll(out, "//", "/")
	}
	return drive + out
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
