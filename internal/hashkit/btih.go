package hashkit

import (
	"crypto/sha256"
	"io"

	"github.com/anacrolix/torrent/bencode"

	"github.com/mediacat/mediacat/internal/model"
)

const (
	btihCodec     = 0x10B7
	blockSize     = 16 * 1024
	maxPieceCount = 2048 // piece_length doubles until ceil(size/piece_length) < this
)

// btihInfo is the bencoded info dictionary for a single-file BTIHv2 torrent.
// Field order in the struct is irrelevant: bencode canonicalizes dictionary
// keys alphabetically regardless of Go struct field order.
type btihInfo struct {
	Name        string `bencode:"name"`
	Length      int64  `bencode:"length"`
	PieceLength int64  `bencode:"piece length"`
	PiecesRoot  string `bencode:"pieces root"`
	MetaVersion int    `bencode:"meta version"`
}

// BTIHv2 computes the BEP 52 subset info-hash for a single-file torrent
// named name, read in full from r. It partitions the stream into 16 KiB
// blocks, SHA-256s each into a leaf, pads the leaf list to a power of two
// with zero leaves, and pairwise-reduces until one root remains.
func BTIHv2(r io.Reader, name string, size int64) (model.Digest, error) {
	leaves, err := blockLeaves(r)
	if err != nil {
		return model.Digest{}, err
	}
	root := merkleRoot(leaves)

	info := btihInfo{
		Name:        name,
		Length:      size,
		PieceLength: pieceLength(size),
		PiecesRoot:  string(root),
		MetaVersion: 2,
	}
	encoded, err := encodeInfo(info)
	if err != nil {
		return model.Digest{}, err
	}
	sum := sha256.Sum256(encoded)

	cid, err := CIDEncode(btihCodec, sum[:])
	if err != nil {
		return model.Digest{}, err
	}
	return model.Digest{Algo: model.AlgoBTIHv2, Value: cid}, nil
}

// blockLeaves reads r in fixed 16 KiB blocks (the final block may be short)
// and returns one SHA-256 leaf per block. An empty stream still yields
// exactly one leaf: SHA-256 of the empty block.
func blockLeaves(r io.Reader) ([][32]byte, error) {
	var leaves [][32]byte
	buf := make([]byte, blockSize)
	read := false
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			read = true
			leaves = append(leaves, sha256.Sum256(buf[:n]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n < blockSize {
			break
		}
	}
	if !read {
		leaves = append(leaves, sha256.Sum256(nil))
	}
	return leaves, nil
}

// merkleRoot pads leaves to the next power of two with zero-32-byte leaves
// and pairwise-hashes adjacent pairs (SHA-256 over left||right) until one
// root remains.
func merkleRoot(leaves [][32]byte) []byte {
	level := padToPowerOfTwo(leaves)
	for len(level) > 1 {
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			var buf [64]byte
			copy(buf[:32], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, sha256.Sum256(buf[:]))
		}
		level = next
	}
	return level[0][:]
}

func padToPowerOfTwo(leaves [][32]byte) [][32]byte {
	n := len(leaves)
	target := 1
	for target < n {
		target *= 2
	}
	if target == n {
		return leaves
	}
	out := make([][32]byte, target)
	copy(out, leaves)
	return out
}

// pieceLength returns 16 KiB * 2^n for the smallest n such that
// ceil(size/pieceLength) < maxPieceCount; 16 KiB for size == 0.
func pieceLength(size int64) int64 {
	pl := int64(blockSize)
	if size <= 0 {
		return pl
	}
	for ceilDiv(size, pl) >= maxPieceCount {
		pl *= 2
	}
	return pl
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

func encodeInfo(info btihInfo) ([]byte, error) {
	return bencode.Marshal(info)
}
