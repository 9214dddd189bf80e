// Package rstore implements store.IStore on top of a relational service reached
// through a relational.Client (SQL database or hosted PostgREST API).
//
// Every collection is a table. Table names come from a closed lookup table
// (Config.Tables), collections missing from it use their own name. Field names are
// translated to columns with the static per-collection schemas of Config.Schemas
// in both directions; fields and collections without a schema pass through unchanged.
//
// Implementation Details:
//
//   - Column Kinds: Date columns hold RFC 3339 text and are read back as time.Time,
//     Bool columns accept 0/1 integers from SQL services, integral numbers are read as
//     int64 and JSON columns hold nested structures whose keys are translated with the
//     same schema and whose dates carry the codec tag. NULL columns are left out of
//     the record.
//
//   - Full Replace: WriteOne and WriteAll write every schema column, columns missing
//     from the record are set to NULL.
//
//   - Batching: UpdateBulk sends all entries in a single upsert keyed by id, each entry
//     carrying its own update timestamp. Entries for missing rows insert them.
//
//   - Missing Tables: A table that does not exist reads as an empty collection, Exists
//     reports false, DeleteOne false and Clear does nothing. Writes to a missing table
//     fail with RetCWriteFailure.
//
//   - Errors: Client errors are logged and replaced by *store.Error values with stable
//     messages; no raw driver or HTTP error crosses the store boundary.
//
//   - Deadlines: Every operation runs with its own deadline of Config.TimeoutSecond.
//     Callers cannot cancel an operation once issued.
//
// Usage Example:
//
//	client, err := sqlclient.Open(sqlclient.DriverModernc, "studio.db")
//	s := rstore.NewRemoteStore(client, rstore.Config{
//		Schemas: model.Schemas,
//		Tables:  model.Tables,
//	})
package rstore
