package hashkit

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/mediacat/mediacat/internal/model"
)

const midhashCodec = 0x1000
const oneMiB = 1 << 20

// ByteReaderAt is the minimal interface midhash256 needs from a remote
// source: a ranged read. The size is passed to Midhash256 separately. A
// local *os.File satisfies it.
type ByteReaderAt interface {
	io.ReaderAt
}

// Midhash256 computes SHA-256(size_u64_BE || middle_sample) where
// middle_sample is the whole file when size <= 1 MiB, otherwise exactly
// 1 MiB starting at floor((size - 1MiB) / 2). It reads only that one byte
// range plus the caller-supplied size — never a full scan — which is what
// keeps this cheap enough for the hot (stage-2) path.
func Midhash256(r ByteReaderAt, size int64) (model.Digest, error) {
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(size))

	h := sha256.New()
	h.Write(sizeBuf[:])

	sampleLen := size
	offset := int64(0)
	if size > oneMiB {
		sampleLen = oneMiB
		offset = (size - oneMiB) / 2
	}

	buf := make([]byte, sampleLen)
	if sampleLen > 0 {
		n, err := r.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return model.Digest{}, err
		}
		buf = buf[:n]
	}
	h.Write(buf)

	sum := h.Sum(nil)
	cid, err := CIDEncode(midhashCodec, sum)
	if err != nil {
		return model.Digest{}, err
	}
	return model.Digest{Algo: model.AlgoMidhash256, Value: cid}, nil
}
