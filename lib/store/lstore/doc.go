// Package lstore implements the local store.IStore on top of a flat key-value
// medium (db.KVDB). Records are codec encoded JSON values stored under
// namespaced keys, collections are enumerated through the index package.
//
// Key Features:
//   - Works with any db.KVDB implementation, typically the maple engine
//   - Tolerant reads: index entries without a record and undecodable records are skipped
//   - Idempotent index maintenance on every write and delete
//   - Batched bulk updates through db.KVDB.SetMany when the medium supports it
//   - Verbatim namespace dumps for backup and restore
//
// Implementation Details:
//
//   - Key Layout: A record lives under <namespace>:<collection>:<id>, the index of
//     its collection under <namespace>:<collection>:_index. The id "_index" is therefore
//     reserved and collection names must not contain ":".
//
//   - Index Consistency: WriteOne stores the record and then adds its id to the index,
//     DeleteOne removes the record and then its id. WriteAll resets the index before
//     the old records are removed and re-adds every id as soon as its record was written,
//     so a failure part way leaves an index that only references written records.
//
//   - Feature Detection: Before executing operations, the store checks whether the
//     medium supports the required features through SupportsFeature. Unsupported
//     operations fail with RetCUnsupportedOperation.
//
//   - Errors: A rejected write (e.g. db.ErrQuotaExceeded) is logged and reported as
//     RetCWriteFailure naming the collection and record id.
//
// Thread Safety:
//
//	The store adds no locking on top of the medium. Concurrent writers to the same
//	collection race on the index; writers to different collections do not interfere.
//
// Usage Example:
//
//	database := maple.NewMapleDB(&maple.DBOptions{QuotaBytes: 5 << 20})
//	s := lstore.NewLocalStore(database, lstore.Config{Namespace: "kiln"})
//
//	err := s.WriteOne("pieces", "p1", store.Record{"cubicInches": 12, "paidGlaze": false})
//	err = s.UpdatePartial("pieces", "p1", store.Fields{"paidGlaze": true})
//	piece, found, err := s.ReadOne("pieces", "p1")
//
// Persistence of the medium between process restarts is handled by the caller,
// for example with db.LoadFile and db.SaveFile.
package lstore
