package relational

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Column Kinds
// --------------------------------------------------------------------------

// Kind describes how the values of a column are stored and normalized.
type Kind int

const (
	KindString Kind = iota // Text
	KindNumber             // Integer or floating point number
	KindBool               // Boolean, stored as 0/1 by SQL services
	KindDate               // RFC 3339 instant, stored as text
	KindJSON               // Nested structure, stored as JSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// Field maps a record field to its column.
type Field struct {
	Name   string // Field name of the domain record (camel case)
	Column string // Column name of the table (snake case)
	Kind   Kind
}

// Schema is the static bidirectional field/column table of one collection.
type Schema struct {
	Collection string
	Fields     []Field

	byName   map[string]Field
	byColumn map[string]Field
}

// NewSchema creates a schema from explicit fields. Every schema must map the
// "id" field to the "id" column, names and columns must be unique.
func NewSchema(collection string, fields ...Field) (*Schema, error) {
	s := &Schema{
		Collection: collection,
		Fields:     fields,
		byName:     make(map[string]Field, len(fields)),
		byColumn:   make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" || f.Column == "" {
			return nil, fmt.Errorf("schema %q: field %q has no name or column", collection, f.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("schema %q: duplicate field %q", collection, f.Name)
		}
		if _, dup := s.byColumn[f.Column]; dup {
			return nil, fmt.Errorf("schema %q: duplicate column %q", collection, f.Column)
		}
		s.byName[f.Name] = f
		s.byColumn[f.Column] = f
	}
	if id, ok := s.byName["id"]; !ok || id.Column != IDColumn {
		return nil, fmt.Errorf("schema %q: field \"id\" must map to column %q", collection, IDColumn)
	}
	return s, nil
}

// SchemaOf builds the schema of a struct type from its `json` and `col` tags.
// The kind of a column is derived from the Go type and can be overridden with a
// `kind` tag ("string", "number", "bool", "date", "json").
func SchemaOf(collection string, prototype any) (*Schema, error) {
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema %q: prototype must be a struct, got %T", collection, prototype)
	}

	fields := make([]Field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		column := sf.Tag.Get("col")
		if name == "" || name == "-" || column == "" {
			continue
		}
		kind := kindOf(sf.Type)
		if tag := sf.Tag.Get("kind"); tag != "" {
			k, err := ParseKind(tag)
			if err != nil {
				return nil, fmt.Errorf("schema %q: field %q: %w", collection, name, err)
			}
			kind = k
		}
		fields = append(fields, Field{Name: name, Column: column, Kind: kind})
	}
	return NewSchema(collection, fields...)
}

// ParseKind parses the textual form of a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindString, KindNumber, KindBool, KindDate, KindJSON} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

var timeType = reflect.TypeOf(time.Time{})

func kindOf(t reflect.Type) Kind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return KindDate
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	default:
		return KindJSON
	}
}

// ByName returns the field with the given record field name.
func (s *Schema) ByName(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// ByColumn returns the field stored in the given column.
func (s *Schema) ByColumn(column string) (Field, bool) {
	f, ok := s.byColumn[column]
	return f, ok
}

// ColumnOf translates a field name to its column. Unknown names pass through unchanged.
func (s *Schema) ColumnOf(name string) string {
	if s == nil {
		return name
	}
	if f, ok := s.byName[name]; ok {
		return f.Column
	}
	return name
}

// NameOf translates a column to its field name. Unknown columns pass through unchanged.
func (s *Schema) NameOf(column string) string {
	if s == nil {
		return column
	}
	if f, ok := s.byColumn[column]; ok {
		return f.Name
	}
	return column
}

// Columns returns the columns of the schema in declaration order.
func (s *Schema) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column
	}
	return cols
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry holds the schemas of all known collections.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry creates a registry. Collections must be unique.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if _, dup := r.schemas[s.Collection]; dup {
			return nil, fmt.Errorf("duplicate schema for collection %q", s.Collection)
		}
		r.schemas[s.Collection] = s
	}
	return r, nil
}

// Get returns the schema of the collection. A nil registry knows no collections.
func (r *Registry) Get(collection string) (*Schema, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.schemas[collection]
	return s, ok
}

// Collections returns the sorted names of all registered collections.
func (r *Registry) Collections() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedColumns returns the columns of row in ascending order.
func SortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
