package model

import (
	"strconv"
	"time"
)

// Kind is the coarse media kind RenameRule and the pipeline branch on.
type Kind string

const (
	KindVideo    Kind = "video"
	KindSubtitle Kind = "subtitle"
	KindTorrent  Kind = "torrent"
	KindOther    Kind = "other"
)

// Status is the processing status recorded on a MetaRecord. It overlaps with
// StateTracker's state field by design: both are kept on disk so existing
// records don't change shape, but only the pipeline's own state machine
// (package statetracker) is read for scheduling decisions.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// AttrKind tags the variant held by an AttrValue.
type AttrKind int

const (
	AttrNumber AttrKind = iota
	AttrString
	AttrBool
	AttrList
	AttrMap
)

// AttrValue is the free-form value type for MetaRecord.Attrs. Plugins write
// these; sidecar serializers pattern-match on Kind rather than relying on a
// base-class hierarchy.
type AttrValue struct {
	Kind AttrKind
	Num  float64
	Str  string
	Bool bool
	List []AttrValue
	Map  map[string]AttrValue
}

func NumberAttr(n float64) AttrValue          { return AttrValue{Kind: AttrNumber, Num: n} }
func StringAttr(s string) AttrValue           { return AttrValue{Kind: AttrString, Str: s} }
func BoolAttr(b bool) AttrValue                { return AttrValue{Kind: AttrBool, Bool: b} }
func ListAttr(items []AttrValue) AttrValue     { return AttrValue{Kind: AttrList, List: items} }
func MapAttr(m map[string]AttrValue) AttrValue { return AttrValue{Kind: AttrMap, Map: m} }

// mergeAttrValue implements the monotone merge rule for one attribute value:
// present primitives are kept on conflict, lists are unioned (in order, no
// duplicate detection beyond byte-identical repeats), maps merge recursively.
func mergeAttrValue(existing, incoming AttrValue) AttrValue {
	switch existing.Kind {
	case AttrMap:
		if incoming.Kind != AttrMap {
			return existing
		}
		merged := make(map[string]AttrValue, len(existing.Map)+len(incoming.Map))
		for k, v := range existing.Map {
			merged[k] = v
		}
		for k, v := range incoming.Map {
			if cur, ok := merged[k]; ok {
				merged[k] = mergeAttrValue(cur, v)
			} else {
				merged[k] = v
			}
		}
		return MapAttr(merged)
	case AttrList:
		if incoming.Kind != AttrList {
			return existing
		}
		seen := make(map[string]bool, len(existing.List))
		for _, v := range existing.List {
			seen[attrKey(v)] = true
		}
		out := append([]AttrValue{}, existing.List...)
		for _, v := range incoming.List {
			if k := attrKey(v); k == "" || !seen[k] {
				seen[k] = true
				out = append(out, v)
			}
		}
		return ListAttr(out)
	default:
		// Primitive: existing wins on conflict. The caller is responsible
		// for emitting the conflict warning.
		return existing
	}
}

// attrKey gives list-union membership a comparable key for the simple
// variants; maps and lists nested inside a list get the empty key, which the
// union treats as "no key" and always appends.
func attrKey(v AttrValue) string {
	switch v.Kind {
	case AttrString:
		return "s:" + v.Str
	case AttrBool:
		if v.Bool {
			return "b:true"
		}
		return "b:false"
	case AttrNumber:
		return "n:" + formatFloat(v.Num)
	default:
		return ""
	}
}

// MetaRecord is the per-file metadata object, the pipeline's authoritative
// record for a discovered source file.
type MetaRecord struct {
	SourcePath string
	Title      string
	Titles     map[string]string // language code -> localized title, e.g. "eng"
	Season     *int
	Episode    *int
	Year       *int
	Kind       Kind
	SizeByte   int64
	ModTime    time.Time

	Digests map[Algo]Digest
	Attrs   map[string]AttrValue

	ProcessingStatus Status
	VirtualPath      string

	Language string // subtitle language, ISO-639-ish code
	Extra    bool   // hidden from primary listing (duplicate demotion)
	Version  string // "V2", "V3", ... set by DuplicateDetector's title pass

	OriginalTitle string
}

// Clone returns a deep-enough copy for callers that mutate fields without
// affecting the original (digests/attrs maps are copied, nested AttrValue
// trees are shared since they're treated as immutable once constructed).
func (m MetaRecord) Clone() MetaRecord {
	out := m
	if m.Titles != nil {
		out.Titles = make(map[string]string, len(m.Titles))
		for k, v := range m.Titles {
			out.Titles[k] = v
		}
	}
	if m.Digests != nil {
		out.Digests = make(map[Algo]Digest, len(m.Digests))
		for k, v := range m.Digests {
			out.Digests[k] = v
		}
	}
	if m.Attrs != nil {
		out.Attrs = make(map[string]AttrValue, len(m.Attrs))
		for k, v := range m.Attrs {
			out.Attrs[k] = v
		}
	}
	if m.Season != nil {
		s := *m.Season
		out.Season = &s
	}
	if m.Episode != nil {
		e := *m.Episode
		out.Episode = &e
	}
	if m.Year != nil {
		y := *m.Year
		out.Year = &y
	}
	return out
}

// MergeMeta applies the monotone merge rule: an absent field on existing may
// be filled by incoming; a present primitive field is kept on conflict;
// nested maps and attribute lists merge recursively, sets by union.
// onConflict, if non-nil, is called with "title" when both records carry
// different non-empty titles so the caller can log a warning. Conflicts on
// other primitive fields, and on primitive attribute values, are resolved
// the same way but are not reported.
func MergeMeta(existing, incoming MetaRecord, onConflict func(field string)) MetaRecord {
	out := existing.Clone()

	if out.Title == "" {
		out.Title = incoming.Title
	} else if incoming.Title != "" && incoming.Title != out.Title && onConflict != nil {
		onConflict("title")
	}
	if out.OriginalTitle == "" {
		out.OriginalTitle = incoming.OriginalTitle
	}
	if out.Season == nil {
		out.Season = incoming.Season
	}
	if out.Episode == nil {
		out.Episode = incoming.Episode
	}
	if out.Year == nil {
		out.Year = incoming.Year
	}
	if out.Kind == "" {
		out.Kind = incoming.Kind
	}
	if out.SizeByte == 0 {
		out.SizeByte = incoming.SizeByte
	}
	if out.ModTime.IsZero() {
		out.ModTime = incoming.ModTime
	}
	if out.Language == "" {
		out.Language = incoming.Language
	}
	if out.VirtualPath == "" {
		out.VirtualPath = incoming.VirtualPath
	}
	if out.ProcessingStatus == "" {
		out.ProcessingStatus = incoming.ProcessingStatus
	}

	if out.Titles == nil {
		out.Titles = map[string]string{}
	}
	for k, v := range incoming.Titles {
		if _, ok := out.Titles[k]; !ok {
			out.Titles[k] = v
		}
	}

	if out.Digests == nil {
		out.Digests = map[Algo]Digest{}
	}
	for algo, d := range incoming.Digests {
		if _, ok := out.Digests[algo]; !ok {
			out.Digests[algo] = d
		}
	}

	if out.Attrs == nil {
		out.Attrs = map[string]AttrValue{}
	}
	for k, v := range incoming.Attrs {
		if cur, ok := out.Attrs[k]; ok {
			out.Attrs[k] = mergeAttrValue(cur, v)
		} else {
			out.Attrs[k] = v
		}
	}

	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
