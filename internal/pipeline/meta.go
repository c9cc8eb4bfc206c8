package pipeline

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mediacat/mediacat/internal/model"
)

// extensionKinds is the validate stage's supported-set table. Kinds not
// listed here are dropped at stage 1.
var extensionKinds = map[string]model.Kind{
	".mkv":  model.KindVideo,
	".mp4":  model.KindVideo,
	".m4v":  model.KindVideo,
	".avi":  model.KindVideo,
	".mov":  model.KindVideo,
	".wmv":  model.KindVideo,
	".webm": model.KindVideo,
	".ts":   model.KindVideo,
	".flv":  model.KindVideo,

	".srt": model.KindSubtitle,
	".sub": model.KindSubtitle,
	".ass": model.KindSubtitle,
	".vtt": model.KindSubtitle,

	".torrent": model.KindTorrent,
}

// kindForPath returns the kind for path's extension and whether it's
// supported at all.
func kindForPath(path string) (model.Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	k, ok := extensionKinds[ext]
	return k, ok
}

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)[sS](\d{1,2})[eE](\d{1,3})`)
	yearRe          = regexp.MustCompile(`[.( \[](19\d{2}|20\d{2})(?:[.) \]]|$)`)
	langSuffixRe    = regexp.MustCompile(`(?i)\.([a-z]{2,3})\.[a-zA-Z0-9]+$`)
)

// tokenizeFilename derives a preliminary MetaRecord from path's basename
// alone: season/episode from an SxxEyy marker, a year from a 4-digit token
// in the typical scene-release range, a subtitle language from the
// penultimate dot-segment, and the title from whatever text precedes the
// first recognized marker. It never reads file content.
func tokenizeFilename(path string, kind model.Kind) *model.MetaRecord {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	rec := &model.MetaRecord{
		SourcePath: path,
		Kind:       kind,
		Titles:     map[string]string{},
	}

	titleEnd := len(stem)

	if m := seasonEpisodeRe.FindStringSubmatchIndex(stem); m != nil {
		season, _ := strconv.Atoi(stem[m[2]:m[3]])
		episode, _ := strconv.Atoi(stem[m[4]:m[5]])
		rec.Season = &season
		rec.Episode = &episode
		if m[0] < titleEnd {
			titleEnd = m[0]
		}
	}

	if m := yearRe.FindStringSubmatchIndex(stem); m != nil {
		year, _ := strconv.Atoi(stem[m[2]:m[3]])
		rec.Year = &year
		if m[2]-1 < titleEnd && m[2] > 0 {
			titleEnd = m[2] - 1
		}
	}

	if kind == model.KindSubtitle {
		if m := langSuffixRe.FindStringSubmatch(base); m != nil {
			rec.Language = strings.ToLower(m[1])
		}
	}

	title := strings.TrimSpace(stem[:titleEnd])
	title = strings.NewReplacer(".", " ", "_", " ").Replace(title)
	title = strings.Join(strings.Fields(title), " ")
	rec.Title = title
	rec.OriginalTitle = title
	if title != "" {
		rec.Titles["eng"] = title
	}

	return rec
}
