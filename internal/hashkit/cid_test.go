package hashkit

import "testing"

func TestCIDEncodeDecode_roundTrip(t *testing.T) {
	digest := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32}
	s, err := CIDEncode(midhashCodec, digest)
	if err != nil {
		t.Fatal(err)
	}
	codec, got, err := CIDDecode(s)
	if err != nil {
		t.Fatal(err)
	}
	if codec != midhashCodec {
		t.Errorf("codec = %#x, want %#x", codec, midhashCodec)
	}
	if len(got) != len(digest) {
		t.Fatalf("digest length = %d, want %d", len(got), len(digest))
	}
	for i := range digest {
		if got[i] != digest[i] {
			t.Fatalf("digest[%d] = %d, want %d", i, got[i], digest[i])
		}
	}
}

func TestCIDEncode_differentCodecsDifferentStrings(t *testing.T) {
	digest := make([]byte, 32)
	s1, err := CIDEncode(midhashCodec, digest)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := CIDEncode(btihCodec, digest)
	if err != nil {
		t.Fatal(err)
	}
	if s1 == s2 {
		t.Error("same digest with different codecs produced identical CID strings")
	}
}
