package internal

import (
	"github.com/ValentinKolb/kiln/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with accounting metadata)
// --------------------------------------------------------------------------

// Entry stores a value together with the number of bytes it is accounted for
type Entry struct {
	Value []byte // Stored value (owned by the shard, never handed out)
	Size  int    // len(key) + len(value), used for quota accounting
}

// NewEntry copies value into a new entry for key
func NewEntry(key string, value []byte) Entry {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return Entry{
		Value: valueCopy,
		Size:  len(key) + len(valueCopy),
	}
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry] // Map of active key-value entries
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the shard owning the given key hash
func GetShard[T any](key util.UintKey, shards []*T) *T {
	return shards[uint64(key)%uint64(len(shards))]
}
