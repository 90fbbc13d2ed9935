package fingerprint

import (
	"context"
	"fmt"

	"github.com/luinbytes/iconic/storage"
)

const (
	// Empty is the fingerprint of a zero-byte file.
	Empty = "empty"

	// ReadError is the fingerprint of a file that could not be read.
	ReadError = "read-error-0"

	// PrefixSize is how many leading bytes take part in the hash.
	PrefixSize = 4096
)

// IsSentinel reports whether fp is one of the placeholder fingerprints that
// never match anything.
func IsSentinel(fp string) bool {
	return fp == "" || fp == Empty || fp == ReadError
}

// Hash is the DJB2 hash (seed 5381, hash*33 + b) truncated to 32 bits.
func Hash(data []byte) uint32 {
	var hash uint32 = 5381
	for _, b := range data {
		hash = hash*33 + uint32(b)
	}
	return hash
}

// Quick fingerprints the file at path as "<size>-<hash of first 4KB>".
// Read failures yield ReadError so grouping stays deterministic.
func Quick(ctx context.Context, p storage.Provider, path string, size int64) string {
	if size == 0 {
		return Empty
	}
	prefix, err := p.ReadPrefix(ctx, path, PrefixSize)
	if err != nil {
		return ReadError
	}
	return FromPrefix(size, prefix)
}

// FromPrefix formats a fingerprint from an already-read prefix.
func FromPrefix(size int64, prefix []byte) string {
	if size == 0 {
		return Empty
	}
	return fmt.Sprintf("%d-%d", size, Hash(prefix))
}
