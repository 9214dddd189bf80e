package relational

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Row maps column names to values. Values passed to a Client are nil, string,
// bool, int64, float64 or a JSON tree (map[string]any, []any) for JSON columns.
// Values returned by a Client depend on the backing service and are normalized
// by the caller using the column kinds of the schema.
type Row map[string]any

// IDColumn is the primary key column every table must have.
const IDColumn = "id"

// ErrTableNotFound is returned when the requested table does not exist.
var ErrTableNotFound = errors.New("table not found")

// Error is a failure reported by the relational service.
type Error struct {
	Status  int    // HTTP status, 0 for non HTTP clients
	Code    string // Service error code (e.g. a PostgreSQL SQLSTATE)
	Message string // Service error message
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("relational error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("relational error %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Client is the minimal set of table operations the remote store needs.
// Every table is keyed by the IDColumn. A missing table is reported as
// ErrTableNotFound by every method.
type Client interface {
	// SelectAll returns every row of the table in unspecified order.
	SelectAll(ctx context.Context, table string) (rows []Row, err error)

	// SelectOne returns the row with the given id. The boolean reports whether it exists.
	SelectOne(ctx context.Context, table, id string) (row Row, loaded bool, err error)

	// Upsert inserts the rows or, for rows whose id already exists, updates
	// exactly the columns present in the row. Implementations must not issue one
	// call per row; rows with the same column set are written in a single batch.
	Upsert(ctx context.Context, table string, rows []Row) (err error)

	// Update sets the given columns of the row with the given id.
	// The boolean is false if no row matched.
	Update(ctx context.Context, table, id string, values Row) (matched bool, err error)

	// Delete removes the row with the given id and reports whether it existed.
	Delete(ctx context.Context, table, id string) (loaded bool, err error)

	// DeleteAll removes every row of the table.
	DeleteAll(ctx context.Context, table string) (err error)

	// Probe reports whether the table holds at least one row.
	Probe(ctx context.Context, table string) (populated bool, err error)

	// Close releases the resources held by the client.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// GroupByColumns splits rows into batches sharing the same column set.
// Batches keep the order of the first row of each column set and the rows
// inside a batch keep their relative order. cols of a batch are sorted.
func GroupByColumns(rows []Row) []Batch {
	batches := make([]Batch, 0)
	positions := make(map[string]int)
	for _, row := range rows {
		cols := SortedColumns(row)
		signature := fmt.Sprintf("%q", cols)
		pos, ok := positions[signature]
		if !ok {
			pos = len(batches)
			positions[signature] = pos
			batches = append(batches, Batch{Columns: cols})
		}
		batches[pos].Rows = append(batches[pos].Rows, row)
	}
	return batches
}

// Batch is a group of rows with identical columns.
type Batch struct {
	Columns []string
	Rows    []Row
}
