package sidecar

import (
	"encoding/xml"

	"github.com/mediacat/mediacat/internal/model"
)

// nfoDoc is the filtered Jellyfin-compatible subset: titles, ids, rating,
// plot, studio, releasedate, mpaa, genre, tag, language, poster, fanart.
// Root element is "episodedetails" for TV episodes, "movie" otherwise; both
// share this field set so one struct serializes either, with XMLName set
// per call.
type nfoDoc struct {
	XMLName     xml.Name
	Title       string   `xml:"title,omitempty"`
	OriginalTitle string `xml:"originaltitle,omitempty"`
	Season      *int     `xml:"season,omitempty"`
	Episode     *int     `xml:"episode,omitempty"`
	IDs         []nfoID  `xml:"uniqueid,omitempty"`
	Rating      string   `xml:"rating,omitempty"`
	Plot        string   `xml:"plot,omitempty"`
	Studio      string   `xml:"studio,omitempty"`
	ReleaseDate string   `xml:"releasedate,omitempty"`
	MPAA        string   `xml:"mpaa,omitempty"`
	Genres      []string `xml:"genre,omitempty"`
	Tags        []string `xml:"tag,omitempty"`
	Language    string   `xml:"language,omitempty"`
	Poster      string   `xml:"poster,omitempty"`
	Fanart      string   `xml:"fanart,omitempty"`
}

type nfoID struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

func serializeNFO(m *model.MetaRecord) ([]byte, error) {
	root := "movie"
	if m.Kind == model.KindVideo && (m.Episode != nil || isTVShowAttr(m)) {
		root = "episodedetails"
	}

	doc := nfoDoc{
		XMLName:       xml.Name{Local: root},
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		Season:        m.Season,
		Episode:       m.Episode,
		Language:      m.Language,
		Rating:        attrString(m, "rating"),
		Plot:          attrString(m, "plot"),
		Studio:        attrString(m, "studio"),
		ReleaseDate:   attrString(m, "releasedate"),
		MPAA:          attrString(m, "mpaa"),
		Poster:        attrString(m, "poster"),
		Fanart:        attrString(m, "fanart"),
		Genres:        attrStringList(m, "genre"),
		Tags:          attrStringList(m, "tag"),
	}
	if ids := attrStringMap(m, "ids"); len(ids) > 0 {
		for t, v := range ids {
			doc.IDs = append(doc.IDs, nfoID{Type: t, Value: v})
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func isTVShowAttr(m *model.MetaRecord) bool {
	v, ok := m.Attrs["videoType"]
	return ok && v.Kind == model.AttrString && v.Str == "tvshow"
}

func attrString(m *model.MetaRecord, key string) string {
	v, ok := m.Attrs[key]
	if !ok || v.Kind != model.AttrString {
		return ""
	}
	return v.Str
}

func attrStringList(m *model.MetaRecord, key string) []string {
	v, ok := m.Attrs[key]
	if !ok || v.Kind != model.AttrList {
		return nil
	}
	out := make([]string, 0, len(v.List))
	for _, item := range v.List {
		if item.Kind == model.AttrString {
			out = append(out, item.Str)
		}
	}
	return out
}

func attrStringMap(m *model.MetaRecord, key string) map[string]string {
	v, ok := m.Attrs[key]
	if !ok || v.Kind != model.AttrMap {
		return nil
	}
	out := make(map[string]string, len(v.Map))
	for k, item := range v.Map {
		if item.Kind == model.AttrString {
			out[k] = item.Str
		}
	}
	return out
}
