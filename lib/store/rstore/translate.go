package rstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/store"
	"math"
	"time"
)

// --------------------------------------------------------------------------
// Record -> Row
// --------------------------------------------------------------------------

// toRow translates a record into a row. With full set, every schema column that
// is missing from the record is written as NULL so that the row is replaced.
func toRow(schema *relational.Schema, record store.Record, full bool) (relational.Row, error) {
	row := make(relational.Row, len(record))
	for name, value := range record {
		column := schema.ColumnOf(name)
		cell, err := toCell(schema, name, value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		row[column] = cell
	}
	if full && schema != nil {
		for _, column := range schema.Columns() {
			if _, ok := row[column]; !ok {
				row[column] = nil
			}
		}
	}
	return row, nil
}

// toCell converts a field value to the neutral column value of its kind.
func toCell(schema *relational.Schema, name string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	field, known := lookupField(schema, name)
	if !known {
		tree, err := codec.Encode(value)
		if err != nil {
			return nil, err
		}
		return renameKeys(tree, schema.ColumnOf), nil
	}

	switch field.Kind {
	case relational.KindDate:
		switch v := value.(type) {
		case time.Time:
			return codec.FormatDate(v), nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return codec.FormatDate(*v), nil
		case string:
			t, err := codec.ParseDate(v)
			if err != nil {
				return nil, err
			}
			return codec.FormatDate(t), nil
		default:
			return nil, fmt.Errorf("expected a date, got %T", value)
		}

	case relational.KindJSON:
		tree, err := codec.Encode(value)
		if err != nil {
			return nil, err
		}
		return renameKeys(tree, schema.ColumnOf), nil

	default:
		tree, err := codec.Encode(value)
		if err != nil {
			return nil, err
		}
		if u, ok := tree.(uint64); ok {
			if u > math.MaxInt64 {
				return float64(u), nil
			}
			return int64(u), nil
		}
		return tree, nil
	}
}

// --------------------------------------------------------------------------
// Row -> Record
// --------------------------------------------------------------------------

// fromRow translates a row into a record. NULL columns are omitted.
func fromRow(schema *relational.Schema, row relational.Row) (store.Record, error) {
	record := make(store.Record, len(row))
	for column, cell := range row {
		if cell == nil {
			continue
		}
		name := schema.NameOf(column)
		value, err := fromCell(schema, column, cell)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", column, err)
		}
		record[name] = value
	}
	return record, nil
}

// fromCell normalizes a column value returned by a client according to the column kind.
func fromCell(schema *relational.Schema, column string, cell any) (any, error) {
	field, known := lookupColumn(schema, column)
	if !known {
		return decodeTree(schema, cell)
	}

	switch field.Kind {
	case relational.KindDate:
		switch v := cell.(type) {
		case string:
			return codec.ParseDate(v)
		case time.Time:
			return v.UTC(), nil
		default:
			return nil, fmt.Errorf("%w: unexpected %T", codec.ErrMalformedDate, cell)
		}

	case relational.KindBool:
		switch v := cell.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, err
			}
			return f != 0, nil
		default:
			return nil, fmt.Errorf("expected a boolean, got %T", cell)
		}

	case relational.KindNumber:
		switch v := cell.(type) {
		case int64, float64, json.Number:
			return codec.Decode(v)
		case string:
			return codec.Decode(json.Number(v))
		default:
			return nil, fmt.Errorf("expected a number, got %T", cell)
		}

	case relational.KindJSON:
		if s, ok := cell.(string); ok {
			tree, err := parseJSON(s)
			if err != nil {
				return nil, err
			}
			cell = tree
		}
		return decodeTree(schema, cell)

	default:
		return cell, nil
	}
}

// decodeTree renames nested keys back to field names and decodes codec tags.
func decodeTree(schema *relational.Schema, cell any) (any, error) {
	return codec.Decode(renameKeys(cell, schema.NameOf))
}

func parseJSON(s string) (any, error) {
	var tree any
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("invalid JSON column: %w", err)
	}
	return tree, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// renameKeys renames the keys of every nested map with rename.
func renameKeys(tree any, rename func(string) string) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[rename(k)] = renameKeys(child, rename)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = renameKeys(child, rename)
		}
		return out
	default:
		return tree
	}
}

func lookupField(schema *relational.Schema, name string) (relational.Field, bool) {
	if schema == nil {
		return relational.Field{}, false
	}
	return schema.ByName(name)
}

func lookupColumn(schema *relational.Schema, column string) (relational.Field, bool) {
	if schema == nil {
		return relational.Field{}, false
	}
	return schema.ByColumn(column)
}
