package sidecar

import (
	"strings"
	"testing"

	"github.com/mediacat/mediacat/internal/model"
)

func sampleRecord() *model.MetaRecord {
	season := 1
	episode := 2
	return &model.MetaRecord{
		SourcePath: "/files/Show.S01E02.mkv",
		Title:      "Show Name",
		Season:     &season,
		Episode:    &episode,
		Kind:       model.KindVideo,
		SizeByte:   1234,
		Digests: map[model.Algo]model.Digest{
			model.AlgoMidhash256: {Algo: model.AlgoMidhash256, Value: "bafy..."},
		},
		Attrs: map[string]model.AttrValue{
			"genre": model.ListAttr([]model.AttrValue{model.StringAttr("Drama"), model.StringAttr("Crime")}),
			"plot":  model.StringAttr("A show about things."),
		},
	}
}

func TestRender_unknownFormatErrors(t *testing.T) {
	if _, err := Render(Format("bogus"), sampleRecord()); err == nil {
		t.Error("Render(bogus) = nil error, want error")
	}
}

func TestRender_yamlRoundTripIsStable(t *testing.T) {
	m := sampleRecord()
	first, err := Render(FormatMeta, m)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseYAML(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Render(FormatMeta, parsed)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("sidecar_yaml(parse_yaml(sidecar_yaml(m))) != sidecar_yaml(m)\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestRender_nfoUsesEpisodeDetailsForEpisodes(t *testing.T) {
	out, err := Render(FormatNFO, sampleRecord())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "<episodedetails>") {
		t.Errorf("NFO for episode should use <episodedetails> root, got:\n%s", out)
	}
}

func TestRender_nfoUsesMovieForFilesWithoutEpisode(t *testing.T) {
	m := sampleRecord()
	m.Episode = nil
	out, err := Render(FormatNFO, m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "<movie>") {
		t.Errorf("NFO for movie should use <movie> root, got:\n%s", out)
	}
}

func TestActiveFormats_skipsUnknownNames(t *testing.T) {
	got := ActiveFormats([]string{"meta", "bogus", "nfo"})
	if len(got) != 2 {
		t.Fatalf("ActiveFormats = %v, want 2 recognized formats", got)
	}
}

func TestFormat_ext(t *testing.T) {
	if FormatMeta.Ext() != ".meta" {
		t.Errorf("FormatMeta.Ext() = %q, want .meta", FormatMeta.Ext())
	}
	if FormatNFO.Ext() != ".nfo" {
		t.Errorf("FormatNFO.Ext() = %q, want .nfo", FormatNFO.Ext())
	}
}
