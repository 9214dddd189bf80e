// Package store defines the collection store contract shared by every storage backend,
// together with its error taxonomy and the backup document format.
//
// The package focuses on:
//   - A unified interface (IStore) for reading and writing records grouped in named collections
//   - Identical observable semantics regardless of the medium behind the store
//   - A portable snapshot format (Document) for backup and restore
//
// Key Components:
//
//   - IStore Interface: The core abstraction. Records (Record) are opaque maps keyed
//     by their "id" field. Whole records are written with WriteOne and WriteAll,
//     partial updates with UpdatePartial and UpdateBulk. Absence is part of the normal
//     result of a read and never an error: ReadAll of an unknown collection is empty,
//     ReadOne reports absence through its boolean result and DeleteOne returns false.
//
//   - Patches: A Patch returns the fields to merge into a record. Fields is the untyped
//     variant; the model package provides one typed patch per collection. A patch that
//     names its collection (CollectionPatch) is rejected by every other collection.
//
//   - Error System: Every failure is an *Error carrying a RetCode, the affected
//     collection and record id, and a stable message. Errors compare by code, so
//     errors.Is(err, store.ErrNotFound) works for any not found error. Raw errors of
//     the underlying media never cross the store boundary.
//
//   - Backup Document: Document is a timestamped, versioned snapshot. A remote store
//     produces one record list per collection, a local store a verbatim dump of its
//     namespace. CollectionRecords reads records from either shape, so backups can
//     be restored into any backend. Validate rejects malformed documents before
//     Restore changes anything.
//
// Implementations:
//
//	- Local Store (lstore): Stores records in a flat key-value medium (db.KVDB)
//	  and enumerates collections through a per-collection index.
//	  Available in the "github.com/ValentinKolb/kiln/lib/store/lstore" package.
//
//	- Remote Store (rstore): Stores records as rows of a relational service,
//	  translating field names to column names with static per-collection schemas.
//	  Available in the "github.com/ValentinKolb/kiln/lib/store/rstore" package.
//
// The backend is chosen once when the application starts and the single store
// instance is passed to every consumer. Consumers never learn which backend is active.
package store
