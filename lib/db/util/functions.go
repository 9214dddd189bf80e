package util

import (
	"crypto/rand"
	"encoding/binary"
	"github.com/cespare/xxhash/v2"
	"time"
)

// GenerateSeed returns a random seed for shard selection. Two media with
// different seeds distribute the same keys differently.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hashing
// --------------------------------------------------------------------------

// UintKey is the seeded hash of a key, used for shard selection
type UintKey uint64

// HashString hashes s with xxhash and mixes the seed into the result
// (splitmix64 finalizer), so every bit of the seed affects the shard.
func HashString(s string, seed uint64) UintKey {
	h := xxhash.Sum64String(s) ^ seed
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return UintKey(h)
}
