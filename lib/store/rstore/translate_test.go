package rstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func piecesSchema(t *testing.T) *relational.Schema {
	schema, ok := model.Schemas.Get(model.Pieces)
	require.True(t, ok)
	return schema
}

func TestToRow(t *testing.T) {
	schema := piecesSchema(t)
	created := time.Date(2024, 3, 1, 9, 30, 0, 250000000, time.UTC)

	row, err := toRow(schema, store.Record{
		"id":          "p1",
		"cubicInches": 12,
		"paidGlaze":   false,
		"createdAt":   created,
		"glaze":       map[string]any{"name": "celadon", "createdAt": created},
		"custom":      "kept",
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "p1", row["id"])
	assert.Equal(t, int64(12), row["cubic_inches"])
	assert.Equal(t, false, row["paid_glaze"])
	assert.Equal(t, "2024-03-01T09:30:00.25Z", row["created_at"])
	assert.Equal(t, map[string]any{
		"name":       "celadon",
		"created_at": map[string]any{codec.DateTag: "2024-03-01T09:30:00.25Z"},
	}, row["glaze"])
	assert.Equal(t, "kept", row["custom"])

	// columns missing from the record are cleared
	assert.Contains(t, row, "status")
	assert.Nil(t, row["status"])
	assert.Contains(t, row, "updated_at")
}

func TestToRowRejectsBadDates(t *testing.T) {
	_, err := toRow(piecesSchema(t), store.Record{"id": "p1", "createdAt": "yesterday"}, false)
	assert.ErrorIs(t, err, codec.ErrMalformedDate)

	_, err = toRow(piecesSchema(t), store.Record{"id": "p1", "createdAt": 12}, false)
	assert.Error(t, err)
}

func TestFromRowSQLShape(t *testing.T) {
	record, err := fromRow(piecesSchema(t), relational.Row{
		"id":           "p1",
		"cubic_inches": int64(12),
		"paid_glaze":   int64(1),
		"created_at":   "2024-03-01T09:30:00.25Z",
		"glaze":        `{"name":"celadon","created_at":{"$date":"2024-03-01T09:30:00Z"}}`,
		"photos":       `["a.jpg"]`,
		"status":       nil,
	})
	require.NoError(t, err)

	want := store.Record{
		"id":          "p1",
		"cubicInches": int64(12),
		"paidGlaze":   true,
		"createdAt":   time.Date(2024, 3, 1, 9, 30, 0, 250000000, time.UTC),
		"glaze":       map[string]any{"name": "celadon", "createdAt": time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		"photos":      []any{"a.jpg"},
	}
	if diff := cmp.Diff(want, record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRowRESTShape(t *testing.T) {
	record, err := fromRow(piecesSchema(t), relational.Row{
		"id":           "p1",
		"cubic_inches": json.Number("12.5"),
		"paid_glaze":   false,
		"glaze":        map[string]any{"coats": json.Number("2")},
		"extra_column": map[string]any{"nested_key": json.Number("1")},
	})
	require.NoError(t, err)

	want := store.Record{
		"id":           "p1",
		"cubicInches":  12.5,
		"paidGlaze":    false,
		"glaze":        map[string]any{"coats": int64(2)},
		"extra_column": map[string]any{"nested_key": int64(1)},
	}
	if diff := cmp.Diff(want, record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRowMalformedDate(t *testing.T) {
	_, err := fromRow(piecesSchema(t), relational.Row{"id": "p1", "created_at": "not a date"})
	assert.ErrorIs(t, err, codec.ErrMalformedDate)
}

func TestEveryFieldRoundTrips(t *testing.T) {
	for _, collection := range model.Collections {
		schema, _ := model.Schemas.Get(collection)
		for _, f := range schema.Fields {
			var value any
			switch f.Kind {
			case relational.KindDate:
				value = time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.UTC)
			case relational.KindBool:
				value = true
			case relational.KindNumber:
				value = int64(7)
			case relational.KindJSON:
				value = map[string]any{"k": "v"}
			default:
				value = "text"
			}

			row, err := toRow(schema, store.Record{f.Name: value}, false)
			require.NoError(t, err, "%s.%s", collection, f.Name)
			require.Contains(t, row, f.Column, "%s.%s", collection, f.Name)

			record, err := fromRow(schema, row)
			require.NoError(t, err, "%s.%s", collection, f.Name)
			if diff := cmp.Diff(store.Record{f.Name: value}, record); diff != "" {
				t.Errorf("%s.%s mismatch (-want +got):\n%s", collection, f.Name, diff)
			}
		}
	}
}

func TestUnknownCollectionPassesThrough(t *testing.T) {
	row, err := toRow(nil, store.Record{"id": "x", "someField": "v"}, true)
	require.NoError(t, err)
	assert.Equal(t, relational.Row{"id": "x", "someField": "v"}, row)
}
