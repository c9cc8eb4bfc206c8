// Package hashkit provides the streaming digest algorithms the catalog
// pipeline needs: the conventional file hashes (SHA-1/256/3-256/3-384, MD5,
// CRC32), the cheap midhash256 content identity, and the merkle-tree BTIHv2
// BitTorrent v2 info-hash, along with CIDv1 encoding for the latter two.
package hashkit

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"hash/crc32"

	"golang.org/x/crypto/sha3"

	"github.com/mediacat/mediacat/internal/errs"
	"github.com/mediacat/mediacat/internal/model"
)

// Hasher incrementally consumes bytes and produces a Digest once finalized.
// It wraps hash.Hash for the conventional algorithms; midhash256 and BTIHv2
// are computed by their own dedicated functions below rather than through
// Hasher, since both need random-access or block-boundary semantics a plain
// streaming hash.Hash can't express.
type Hasher struct {
	algo model.Algo
	h    hash.Hash
	done bool
}

// New returns a Hasher for algo, or UnsupportedAlgorithm if algo isn't one
// of the conventional streaming digests.
func New(algo model.Algo) (*Hasher, error) {
	var h hash.Hash
	switch algo {
	case model.AlgoSHA1:
		h = sha1.New()
	case model.AlgoSHA256:
		h = sha256.New()
	case model.AlgoSHA3_256:
		h = sha3.New256()
	case model.AlgoSHA3_384:
		h = sha3.New384()
	case model.AlgoMD5:
		h = md5.New()
	case model.AlgoCRC32:
		h = crc32.NewIEEE()
	default:
		return nil, &errs.UnsupportedAlgorithm{Algo: string(algo)}
	}
	return &Hasher{algo: algo, h: h}, nil
}

// Update feeds more bytes into the hash. It never returns an error; hash.Hash
// writes never fail.
func (hr *Hasher) Update(p []byte) {
	if hr.done {
		panic("hashkit: Update called after Finalize")
	}
	hr.h.Write(p)
}

// Finalize consumes the hasher and returns its Digest. Calling Update or
// Finalize again afterward panics, since the hasher is spent.
func (hr *Hasher) Finalize() model.Digest {
	if hr.done {
		panic("hashkit: Finalize called twice")
	}
	hr.done = true
	sum := hr.h.Sum(nil)
	return model.Digest{Algo: hr.algo, Value: hexEncode(sum)}
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
