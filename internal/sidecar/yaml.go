package sidecar

import (
	yaml "go.yaml.in/yaml/v2"

	"github.com/mediacat/mediacat/internal/model"
)

// yamlDoc is the wire shape of the .meta sidecar: a whole-record projection,
// not a filtered subset (unlike the NFO). Field order matches MetaRecord's
// declaration order so serializeYAML(parseYAML(serializeYAML(m))) is stable.
type yamlDoc struct {
	SourcePath       string             `yaml:"sourcePath"`
	Title            string             `yaml:"title"`
	OriginalTitle    string             `yaml:"originalTitle,omitempty"`
	Titles           map[string]string  `yaml:"titles,omitempty"`
	Season           *int               `yaml:"season,omitempty"`
	Episode          *int               `yaml:"episode,omitempty"`
	Year             *int               `yaml:"year,omitempty"`
	Kind             string             `yaml:"kind"`
	SizeByte         int64              `yaml:"sizeByte"`
	ModTime          string             `yaml:"modTime,omitempty"`
	Digests          map[string]string  `yaml:"digests,omitempty"`
	Attrs            map[string]any     `yaml:"attrs,omitempty"`
	ProcessingStatus string             `yaml:"processingStatus,omitempty"`
	VirtualPath      string             `yaml:"virtualPath,omitempty"`
	Language         string             `yaml:"language,omitempty"`
	Extra            bool               `yaml:"extra,omitempty"`
	Version          string             `yaml:"version,omitempty"`
}

func serializeYAML(m *model.MetaRecord) ([]byte, error) {
	doc := toYAMLDoc(m)
	return yaml.Marshal(doc)
}

func parseYAML(data []byte) (*model.MetaRecord, error) {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return fromYAMLDoc(doc), nil
}

func toYAMLDoc(m *model.MetaRecord) yamlDoc {
	doc := yamlDoc{
		SourcePath:       m.SourcePath,
		Title:            m.Title,
		OriginalTitle:    m.OriginalTitle,
		Titles:           m.Titles,
		Season:           m.Season,
		Episode:          m.Episode,
		Year:             m.Year,
		Kind:             string(m.Kind),
		SizeByte:         m.SizeByte,
		ProcessingStatus: string(m.ProcessingStatus),
		VirtualPath:      m.VirtualPath,
		Language:         m.Language,
		Extra:            m.Extra,
		Version:          m.Version,
	}
	if !m.ModTime.IsZero() {
		doc.ModTime = m.ModTime.Format(timeLayout)
	}
	if len(m.Digests) > 0 {
		doc.Digests = make(map[string]string, len(m.Digests))
		for algo, d := range m.Digests {
			doc.Digests[string(algo)] = d.Value
		}
	}
	if len(m.Attrs) > 0 {
		doc.Attrs = make(map[string]any, len(m.Attrs))
		for k, v := range m.Attrs {
			doc.Attrs[k] = attrToPlain(v)
		}
	}
	return doc
}

func fromYAMLDoc(doc yamlDoc) *model.MetaRecord {
	m := &model.MetaRecord{
		SourcePath:       doc.SourcePath,
		Title:            doc.Title,
		OriginalTitle:    doc.OriginalTitle,
		Titles:           doc.Titles,
		Season:           doc.Season,
		Episode:          doc.Episode,
		Year:             doc.Year,
		Kind:             model.Kind(doc.Kind),
		SizeByte:         doc.SizeByte,
		ProcessingStatus: model.Status(doc.ProcessingStatus),
		VirtualPath:      doc.VirtualPath,
		Language:         doc.Language,
		Extra:            doc.Extra,
		Version:          doc.Version,
	}
	if doc.ModTime != "" {
		if t, err := parseTimeLayout(doc.ModTime); err == nil {
			m.ModTime = t
		}
	}
	if len(doc.Digests) > 0 {
		m.Digests = make(map[model.Algo]model.Digest, len(doc.Digests))
		for algo, v := range doc.Digests {
			m.Digests[model.Algo(algo)] = model.Digest{Algo: model.Algo(algo), Value: v}
		}
	}
	if len(doc.Attrs) > 0 {
		m.Attrs = make(map[string]model.AttrValue, len(doc.Attrs))
		for k, v := range doc.Attrs {
			m.Attrs[k] = plainToAttr(v)
		}
	}
	return m
}

// attrToPlain converts the AttrValue sum type into plain Go values yaml.v2
// can marshal directly (map[string]any, []any, string, float64, bool).
func attrToPlain(v model.AttrValue) any {
	switch v.Kind {
	case model.AttrNumber:
		return v.Num
	case model.AttrString:
		return v.Str
	case model.AttrBool:
		return v.Bool
	case model.AttrList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = attrToPlain(item)
		}
		return out
	case model.AttrMap:
		out := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			out[k] = attrToPlain(item)
		}
		return out
	default:
		return nil
	}
}

// plainToAttr is the inverse of attrToPlain, dispatching on the Go type
// yaml.v2 produced during Unmarshal.
func plainToAttr(v any) model.AttrValue {
	switch val := v.(type) {
	case string:
		return model.StringAttr(val)
	case bool:
		return model.BoolAttr(val)
	case int:
		return model.NumberAttr(float64(val))
	case float64:
		return model.NumberAttr(val)
	case []any:
		items := make([]model.AttrValue, len(val))
		for i, item := range val {
			items[i] = plainToAttr(item)
		}
		return model.ListAttr(items)
	case map[any]any:
		out := make(map[string]model.AttrValue, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				out[ks] = plainToAttr(item)
			}
		}
		return model.MapAttr(out)
	case map[string]any:
		out := make(map[string]model.AttrValue, len(val))
		for k, item := range val {
			out[k] = plainToAttr(item)
		}
		return model.MapAttr(out)
	default:
		return model.StringAttr("")
	}
}
