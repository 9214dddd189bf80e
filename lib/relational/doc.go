// Package relational defines the small client contract the remote store uses to
// talk to a relational service, and the static field/column schemas that map
// domain records to table rows.
//
// Clients:
//
//	- sqlclient: database/sql over the SQLite drivers (modernc.org/sqlite as "sqlite",
//	  mattn/go-sqlite3 as "sqlite3").
//	- restclient: a PostgREST style HTTP API as offered by hosted relational services.
//
// Both report a missing table as ErrTableNotFound so that callers can translate
// it into an empty result instead of an error.
//
// Schemas:
//
// A Schema is a table of Fields, each mapping a record field name (camel case) to
// a column (snake case) and a Kind. Schemas are built once, usually from struct
// tags with SchemaOf:
//
//	type Piece struct {
//		ID          string    `json:"id"          col:"id"`
//		CubicInches float64   `json:"cubicInches" col:"cubic_inches"`
//		CreatedAt   time.Time `json:"createdAt"   col:"created_at"`
//	}
//
//	schema, err := relational.SchemaOf("pieces", Piece{})
//
// The mapping is explicit in both directions; nothing is derived from the shape of
// a name at runtime. Names and columns unknown to a schema pass through unchanged.
package relational
