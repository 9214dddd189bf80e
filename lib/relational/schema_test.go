package relational

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID        string         `json:"id" col:"id"`
	TaxID     string         `json:"taxIDNumber" col:"tax_id_number"`
	Count     int            `json:"count" col:"count"`
	Paid      bool           `json:"paid" col:"paid"`
	At        *time.Time     `json:"at,omitempty" col:"at"`
	Meta      map[string]any `json:"meta" col:"meta"`
	Raw       string         `json:"raw" col:"raw" kind:"json"`
	Ignored   string         `json:"ignored"`
	unexposed string
}

func TestSchemaOf(t *testing.T) {
	s, err := SchemaOf("samples", sample{})
	require.NoError(t, err)

	assert.Equal(t, []Field{
		{Name: "id", Column: "id", Kind: KindString},
		{Name: "taxIDNumber", Column: "tax_id_number", Kind: KindString},
		{Name: "count", Column: "count", Kind: KindNumber},
		{Name: "paid", Column: "paid", Kind: KindBool},
		{Name: "at", Column: "at", Kind: KindDate},
		{Name: "meta", Column: "meta", Kind: KindJSON},
		{Name: "raw", Column: "raw", Kind: KindJSON},
	}, s.Fields)

	assert.Equal(t, "tax_id_number", s.ColumnOf("taxIDNumber"))
	assert.Equal(t, "taxIDNumber", s.NameOf("tax_id_number"))
	assert.Equal(t, "unknownField", s.ColumnOf("unknownField"))
	assert.Equal(t, "unknown_col", s.NameOf("unknown_col"))

	var none *Schema
	assert.Equal(t, "x", none.ColumnOf("x"))
}

func TestSchemaValidation(t *testing.T) {
	_, err := NewSchema("a", Field{Name: "name", Column: "name"})
	assert.Error(t, err, "missing id")

	_, err = NewSchema("a", Field{Name: "id", Column: "id"}, Field{Name: "x", Column: "id"})
	assert.Error(t, err, "duplicate column")

	_, err = NewSchema("a", Field{Name: "id", Column: "id"}, Field{Name: "id", Column: "other"})
	assert.Error(t, err, "duplicate field")

	_, err = SchemaOf("a", 42)
	assert.Error(t, err, "not a struct")

	type badKind struct {
		ID string `json:"id" col:"id" kind:"blob"`
	}
	_, err = SchemaOf("a", badKind{})
	assert.Error(t, err, "unknown kind")
}

func TestRegistry(t *testing.T) {
	a, err := NewSchema("a", Field{Name: "id", Column: "id"})
	require.NoError(t, err)
	b, err := NewSchema("b", Field{Name: "id", Column: "id"})
	require.NoError(t, err)

	r, err := NewRegistry(b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Collections())

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Get("c")
	assert.False(t, ok)

	_, err = NewRegistry(a, a)
	assert.Error(t, err)

	var empty *Registry
	_, ok = empty.Get("a")
	assert.False(t, ok)
}

func TestGroupByColumns(t *testing.T) {
	rows := []Row{
		{"id": "1", "a": 1},
		{"id": "2", "b": 2},
		{"a": 3, "id": "3"},
	}
	batches := GroupByColumns(rows)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "id"}, batches[0].Columns)
	assert.Equal(t, []Row{rows[0], rows[2]}, batches[0].Rows)
	assert.Equal(t, []string{"b", "id"}, batches[1].Columns)
	assert.Equal(t, []Row{rows[1]}, batches[1].Rows)
}
