// Package index implements the collection index of the local store and the key
// layout it shares with it.
//
// Every record of a collection is stored under
//
//	<namespace>:<collection>:<id>
//
// and the ids of a collection are kept, in insertion order, as a JSON array under
//
//	<namespace>:<collection>:_index
//
// The index is the only way a collection is enumerated. Add and Remove are
// idempotent, so replaying a write or a delete never duplicates or loses an id.
// Readers must tolerate ids whose record is missing; the index is written
// separately from the records and the two can diverge after a failed write.
package index
