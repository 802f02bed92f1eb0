package project

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest identifies the inputs of one translation in the cache. It has the
// width of source.File.Hash.
type Digest [32]byte

// DigestOf hashes fields with a length prefix on each, so ("ab", "c") and
// ("a", "bc") yield different digests.
func DigestOf(fields ...[]byte) Digest {
	h := sha256.New()
	var n [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(n[:], uint64(len(f)))
		_, _ = h.Write(n[:])
		_, _ = h.Write(f)
	}
	var out Digest
	h.Sum(out[:0])
	return out
}

// Combine folds parts in order; swapping two parts changes the result.
func Combine(parts ...Digest) Digest {
	fields := make([][]byte, len(parts))
	for i := range parts {
		fields[i] = parts[i][:]
	}
	return DigestOf(fields...)
}

// String is the lowercase hex form used in cache file names.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
