// Package maple implements a sharded in-memory key-value medium (db.KVDB).
// It is the medium behind the local collection store: a flat string-keyed
// space of opaque byte values, comparable to a browser's local storage, with an
// optional size quota and a binary snapshot format for persistence.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It owns a
//     fixed number of shards and distributes keys across them with a seeded
//     xxhash (see the util package). Each shard is an xsync.MapOf, so
//     reads never take a lock.
//
//   - Quota: When DBOptions.QuotaBytes is set, the database accounts the sum
//     of key and value lengths of all entries. Writers are serialized by a
//     single mutex so that the accounting is exact; a write that would
//     exceed the quota fails with db.ErrQuotaExceeded and changes nothing.
//     SetMany checks the combined size change of the whole batch before it
//     writes anything.
//
//   - Snapshots: Save writes every entry in key order, Load parses a complete
//     snapshot before it replaces the current content, so a corrupt snapshot
//     leaves the database untouched.
//
// Snapshot Format (little endian):
//
//	"MAPLEDB\x00" | version uint8 | count uint64 |
//	count * ( keyLen uint32 | key | valueLen uint32 | value )
//
// Usage Example:
//
//	database := maple.NewMapleDB(&maple.DBOptions{QuotaBytes: 5 << 20})
//	if err := database.Set("kiln:pieces:p1", data); errors.Is(err, db.ErrQuotaExceeded) {
//		// storage full
//	}
//	value, ok := database.Get("kiln:pieces:p1")
//
// Thread Safety:
//
//	All operations are safe for concurrent use. Keys returns a view that is
//	consistent per shard but not across shards when writers run concurrently.
package maple
