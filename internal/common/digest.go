package common

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// NewDigest returns the BLAKE2b-256 hash used to fingerprint transferred files.
func NewDigest() hash.Hash {
	// New256 only fails for keys longer than 64 bytes.
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

func DigestString(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

func DigestOf(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
