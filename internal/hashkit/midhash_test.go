package hashkit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMidhash256_smallFileHashesWholeContent(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 512)
	f := writeTempFile(t, data)
	d, err := Midhash256(f, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if d.Value == "" {
		t.Fatal("empty CID")
	}
}

func TestMidhash256_deterministic(t *testing.T) {
	data := bytes.Repeat([]byte{0x01, 0x02}, 2*oneMiB)
	f1 := writeTempFile(t, data)
	f2 := writeTempFile(t, data)

	d1, err := Midhash256(f1, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Midhash256(f2, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if d1.Value != d2.Value {
		t.Errorf("midhash256 not deterministic: %s != %s", d1.Value, d2.Value)
	}
}

func TestMidhash256_ignoresBytesOutsideSampleWindow(t *testing.T) {
	size := int64(4 * oneMiB)
	data := make([]byte, size)
	f1 := writeTempFile(t, data)

	// Flip a byte well outside the middle 1 MiB sample window.
	data2 := make([]byte, size)
	copy(data2, data)
	data2[0] = 0xFF
	f2 := writeTempFile(t, data2)

	d1, err := Midhash256(f1, size)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Midhash256(f2, size)
	if err != nil {
		t.Fatal(err)
	}
	if d1.Value != d2.Value {
		t.Error("midhash256 changed despite edit outside sample window")
	}
}

func TestMidhash256_sampleWindowEditChangesDigest(t *testing.T) {
	size := int64(4 * oneMiB)
	data := make([]byte, size)
	f1 := writeTempFile(t, data)

	data2 := make([]byte, size)
	copy(data2, data)
	mid := (size - oneMiB) / 2
	data2[mid] = 0xFF
	f2 := writeTempFile(t, data2)

	d1, err := Midhash256(f1, size)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Midhash256(f2, size)
	if err != nil {
		t.Fatal(err)
	}
	if d1.Value == d2.Value {
		t.Error("midhash256 unchanged despite edit inside sample window")
	}
}
