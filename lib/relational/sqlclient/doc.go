// Package sqlclient implements relational.Client over database/sql for SQLite
// databases. Two drivers are registered: the pure Go modernc.org/sqlite
// ("sqlite", the default) and the cgo based github.com/mattn/go-sqlite3 ("sqlite3").
//
// Tables are keyed by a TEXT "id" primary key. Upserts are written as one
// multi-row INSERT ... ON CONFLICT(id) DO UPDATE statement per column set, all
// inside a single transaction. JSON columns are stored as text and returned as text.
//
// CreateTables creates the tables of a relational.Registry, which makes a local
// SQLite file a drop-in stand-in for the hosted service.
package sqlclient
