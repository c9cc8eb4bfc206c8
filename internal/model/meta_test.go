package model

import "testing"

func TestMergeMeta_fillsAbsentField(t *testing.T) {
	existing := MetaRecord{SourcePath: "/a"}
	incoming := MetaRecord{SourcePath: "/a", Title: "Show Name"}
	merged := MergeMeta(existing, incoming, nil)
	if merged.Title != "Show Name" {
		t.Errorf("Title = %q, want filled from incoming", merged.Title)
	}
}

func TestMergeMeta_keepsPresentPrimitiveOnConflict(t *testing.T) {
	existing := MetaRecord{Title: "Original"}
	incoming := MetaRecord{Title: "Other"}
	var conflicts []string
	merged := MergeMeta(existing, incoming, func(field string) { conflicts = append(conflicts, field) })
	if merged.Title != "Original" {
		t.Errorf("Title = %q, want existing kept", merged.Title)
	}
	if len(conflicts) != 1 || conflicts[0] != "title" {
		t.Errorf("conflicts = %v, want [title]", conflicts)
	}
}

func TestMergeMeta_unionsDigests(t *testing.T) {
	existing := MetaRecord{Digests: map[Algo]Digest{AlgoMidhash256: {Algo: AlgoMidhash256, Value: "x"}}}
	incoming := MetaRecord{Digests: map[Algo]Digest{AlgoSHA256: {Algo: AlgoSHA256, Value: "y"}}}
	merged := MergeMeta(existing, incoming, nil)
	if len(merged.Digests) != 2 {
		t.Fatalf("Digests = %v, want 2 entries", merged.Digests)
	}
	if merged.Digests[AlgoMidhash256].Value != "x" || merged.Digests[AlgoSHA256].Value != "y" {
		t.Errorf("unexpected digest values: %v", merged.Digests)
	}
}

func TestMergeMeta_nestedAttrsMergeRecursively(t *testing.T) {
	existing := MetaRecord{Attrs: map[string]AttrValue{
		"tags": MapAttr(map[string]AttrValue{"genre": StringAttr("drama")}),
	}}
	incoming := MetaRecord{Attrs: map[string]AttrValue{
		"tags": MapAttr(map[string]AttrValue{"studio": StringAttr("hbo")}),
	}}
	merged := MergeMeta(existing, incoming, nil)
	tags := merged.Attrs["tags"].Map
	if tags["genre"].Str != "drama" || tags["studio"].Str != "hbo" {
		t.Errorf("tags = %v, want both keys merged", tags)
	}
}

func TestMergeMeta_listAttrsUnionWithoutDuplicates(t *testing.T) {
	existing := MetaRecord{Attrs: map[string]AttrValue{
		"genres": ListAttr([]AttrValue{StringAttr("drama"), StringAttr("crime")}),
	}}
	incoming := MetaRecord{Attrs: map[string]AttrValue{
		"genres": ListAttr([]AttrValue{StringAttr("crime"), StringAttr("thriller")}),
	}}
	merged := MergeMeta(existing, incoming, nil)
	got := merged.Attrs["genres"].List
	if len(got) != 3 {
		t.Fatalf("genres = %v, want 3 unioned entries", got)
	}
	want := []string{"drama", "crime", "thriller"}
	for i, w := range want {
		if got[i].Str != w {
			t.Errorf("genres[%d] = %q, want %q", i, got[i].Str, w)
		}
	}
}

func TestClone_independentDigestMap(t *testing.T) {
	orig := MetaRecord{Digests: map[Algo]Digest{AlgoSHA256: {Algo: AlgoSHA256, Value: "a"}}}
	clone := orig.Clone()
	clone.Digests[AlgoSHA256] = Digest{Algo: AlgoSHA256, Value: "b"}
	if orig.Digests[AlgoSHA256].Value != "a" {
		t.Errorf("mutating clone affected original: %v", orig.Digests)
	}
}
