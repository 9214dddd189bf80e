// Package migrate moves data of the legacy storage layout into a store.
//
// Before collections were namespaced and indexed, every collection was kept as a
// single JSON array under "<prefix><collection>" with dates stored as plain
// strings. Run reads those arrays, converts the date fields declared by the
// schemas and writes each collection with WriteAll into the destination store.
//
// Only top-level fields are converted. The schemas do not describe the inside of
// JSON columns (e.g. a piece's glaze), so a date nested there stays a string:
// guessing dates from key names or string shapes would misread plain text.
//
// Migration is an explicit step invoked by the composition root (kiln migrate or
// --auto-migrate), never a side effect of opening a store. It is idempotent: a
// marker key "<namespace>:_migrated" is written to the legacy medium once a run
// completes, and collections that already exist in the destination are never
// overwritten. A collection counts as existing once it holds a record.
package migrate
