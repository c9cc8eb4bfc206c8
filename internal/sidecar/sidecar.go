// Package sidecar generates the synthetic metadata files the VFS projects
// next to every ingested source file: a YAML (.meta) dump of the whole
// MetaRecord and a Jellyfin-compatible NFO (.nfo) XML subset. Adding a
// format is a new Format constant plus a registration in formats, not a new
// base type.
package sidecar

import (
	"fmt"

	"github.com/mediacat/mediacat/internal/model"
)

// Format identifies one sidecar projection. The two specified formats are
// two values of this tag enum, each bound to a serializer function below.
type Format string

const (
	FormatMeta Format = "meta" // .meta, YAML
	FormatNFO  Format = "nfo"  // .nfo, Jellyfin-compatible XML
)

// Ext returns the file extension (including the leading dot) for format.
func (f Format) Ext() string {
	switch f {
	case FormatMeta:
		return ".meta"
	case FormatNFO:
		return ".nfo"
	default:
		return ""
	}
}

type serializeFn func(*model.MetaRecord) ([]byte, error)

var formats = map[Format]serializeFn{
	FormatMeta: serializeYAML,
	FormatNFO:  serializeNFO,
}

// Render is the pure function (MetaRecord, format) -> bytes that VFS calls
// on demand when a sidecar node is read.
func Render(format Format, m *model.MetaRecord) ([]byte, error) {
	fn, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("sidecar: unknown format %q", format)
	}
	return fn(m)
}

// ParseYAML is the inverse of serializeYAML, used by the round-trip test
// for sidecar_yaml(parse_yaml(sidecar_yaml(m))) == sidecar_yaml(m).
func ParseYAML(data []byte) (*model.MetaRecord, error) {
	return parseYAML(data)
}

// ActiveFormats parses the configured sidecar format name list into Format
// values, skipping names that aren't registered.
func ActiveFormats(names []string) []Format {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		f := Format(n)
		if _, ok := formats[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
