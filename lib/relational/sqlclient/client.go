package sqlclient

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/lni/dragonboat/v4/logger"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

var log = logger.GetLogger("relational")

const (
	// DriverModernc is the pure Go SQLite driver (modernc.org/sqlite).
	DriverModernc = "sqlite"
	// DriverCgo is the cgo SQLite driver (github.com/mattn/go-sqlite3).
	DriverCgo = "sqlite3"

	// maxVariables bounds the number of bind variables of a single statement.
	maxVariables = 900
)

// Client is a relational.Client backed by database/sql.
type Client struct {
	db     *sql.DB
	driver string
}

// Open opens the database dsn with the given driver and applies the SQLite pragmas.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, SQLite allows one writer at a time
func Open(driver, dsn string) (*Client, error) {
	switch driver {
	case DriverModernc, DriverCgo:
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q (expected %q or %q)", driver, DriverModernc, DriverCgo)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	log.Debugf("opened %s database %q", driver, dsn)
	return &Client{db: db, driver: driver}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Schema Creation
// --------------------------------------------------------------------------

// CreateTables creates a table for every schema of the registry if it does not exist yet.
// tables maps collections to table names, collections missing from it use their own name.
func (c *Client) CreateTables(ctx context.Context, registry *relational.Registry, tables map[string]string) error {
	for _, collection := range registry.Collections() {
		schema, _ := registry.Get(collection)
		table := collection
		if mapped, ok := tables[collection]; ok {
			table = mapped
		}
		if _, err := c.db.ExecContext(ctx, createTableSQL(table, schema)); err != nil {
			return fmt.Errorf("create table %q: %w", table, err)
		}
		log.Debugf("ensured table %q for collection %q", table, collection)
	}
	return nil
}

func createTableSQL(table string, schema *relational.Schema) string {
	defs := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.Column == relational.IDColumn {
			defs = append(defs, quote(f.Column)+" TEXT PRIMARY KEY NOT NULL")
			continue
		}
		defs = append(defs, quote(f.Column)+" "+columnType(f.Kind))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

func columnType(kind relational.Kind) string {
	switch kind {
	case relational.KindNumber:
		return "NUMERIC"
	case relational.KindBool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see relational/client.go)
// --------------------------------------------------------------------------

func (c *Client) SelectAll(ctx context.Context, table string) ([]relational.Row, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quote(table)))
	if err != nil {
		return nil, translate(table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (c *Client) SelectOne(ctx context.Context, table, id string) (relational.Row, bool, error) {
	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", quote(table), quote(relational.IDColumn)), id)
	if err != nil {
		return nil, false, translate(table, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, false, err
	}
	if len(result) == 0 {
		return nil, false, nil
	}
	return result[0], true, nil
}

func (c *Client) Upsert(ctx context.Context, table string, rows []relational.Row) error {
	if len(rows) == 0 {
		return nil
	}
	for i, row := range rows {
		if id, _ := row[relational.IDColumn].(string); id == "" {
			return fmt.Errorf("upsert into %q: row %d has no id", table, i)
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, batch := range relational.GroupByColumns(rows) {
		perStatement := max(1, maxVariables/len(batch.Columns))
		for start := 0; start < len(batch.Rows); start += perStatement {
			end := min(start+perStatement, len(batch.Rows))
			query, args, err := upsertSQL(table, batch.Columns, batch.Rows[start:end])
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return translate(table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert into %q: %w", table, err)
	}
	return nil
}

func upsertSQL(table string, cols []string, rows []relational.Row) (string, []any, error) {
	quoted := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, col := range cols {
		quoted[i] = quote(col)
		if col != relational.IDColumn {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quote(col), quote(col)))
		}
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	values := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		values[i] = placeholder
		for _, col := range cols {
			arg, err := toArg(row[col])
			if err != nil {
				return "", nil, fmt.Errorf("column %q: %w", col, err)
			}
			args = append(args, arg)
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT(%s) %s",
		quote(table), strings.Join(quoted, ", "), strings.Join(values, ", "), quote(relational.IDColumn), conflict)
	return query, args, nil
}

func (c *Client) Update(ctx context.Context, table, id string, values relational.Row) (bool, error) {
	cols := make([]string, 0, len(values))
	for _, col := range relational.SortedColumns(values) {
		if col != relational.IDColumn {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		_, found, err := c.SelectOne(ctx, table, id)
		return found, err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = quote(col) + " = ?"
		arg, err := toArg(values[col])
		if err != nil {
			return false, fmt.Errorf("column %q: %w", col, err)
		}
		args = append(args, arg)
	}
	args = append(args, id)

	res, err := c.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quote(table), strings.Join(sets, ", "), quote(relational.IDColumn)), args...)
	if err != nil {
		return false, translate(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %q: %w", table, err)
	}
	return n > 0, nil
}

func (c *Client) Delete(ctx context.Context, table, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(table), quote(relational.IDColumn)), id)
	if err != nil {
		return false, translate(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete from %q: %w", table, err)
	}
	return n > 0, nil
}

func (c *Client) DeleteAll(ctx context.Context, table string) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quote(table))); err != nil {
		return translate(table, err)
	}
	return nil
}

func (c *Client) Probe(ctx context.Context, table string) (bool, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", quote(table)))
	if err != nil {
		return false, translate(table, err)
	}
	defer rows.Close()
	populated := rows.Next()
	return populated, rows.Err()
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// quote quotes an SQL identifier.
func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// translate maps driver errors to relational errors.
func translate(table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") {
		return fmt.Errorf("%w: %s", relational.ErrTableNotFound, table)
	}
	return &relational.Error{Code: "SQLITE", Message: msg}
}

// toArg converts a row value to a bind argument. JSON trees are stored as text.
func toArg(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// scanRows reads all rows into column maps. NULL columns are kept as nil.
func scanRows(rows *sql.Rows) ([]relational.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]relational.Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(relational.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
