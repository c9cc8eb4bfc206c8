package hashkit

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// CIDEncode wraps an already-computed SHA-256 digest as a CIDv1 string
// using the given multicodec. codec is not looked up in any registry —
// CIDv1 only requires a varint-encoded codec number, so the custom
// multicodecs 0x1000 (midhash256) and 0x10B7 (BTIHv2) work the same as any
// registered one.
func CIDEncode(codec uint64, digest []byte) (string, error) {
	encoded, err := mh.Encode(digest, mh.SHA2_256)
	if err != nil {
		return "", err
	}
	c := cid.NewCidV1(codec, encoded)
	return c.String(), nil
}

// CIDDecode parses a CIDv1 string and returns its multicodec and the raw
// digest bytes from its multihash.
func CIDDecode(s string) (codec uint64, digest []byte, err error) {
	c, err := cid.Decode(s)
	if err != nil {
		return 0, nil, err
	}
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return 0, nil, err
	}
	return c.Type(), decoded.Digest, nil
}
