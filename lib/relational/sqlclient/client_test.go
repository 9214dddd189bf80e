package sqlclient

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := Open(DriverModernc, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	schema, err := relational.NewSchema("items",
		relational.Field{Name: "id", Column: "id", Kind: relational.KindString},
		relational.Field{Name: "name", Column: "name", Kind: relational.KindString},
		relational.Field{Name: "count", Column: "item_count", Kind: relational.KindNumber},
		relational.Field{Name: "done", Column: "done", Kind: relational.KindBool},
		relational.Field{Name: "meta", Column: "meta", Kind: relational.KindJSON},
	)
	require.NoError(t, err)
	registry, err := relational.NewRegistry(schema)
	require.NoError(t, err)
	require.NoError(t, client.CreateTables(context.Background(), registry, map[string]string{"items": "item_table"}))
	return client
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t)

	populated, err := client.Probe(ctx, "item_table")
	require.NoError(t, err)
	assert.False(t, populated)

	require.NoError(t, client.Upsert(ctx, "item_table", []relational.Row{
		{"id": "a", "name": "first", "item_count": int64(1), "done": false, "meta": map[string]any{"k": "v"}},
		{"id": "b", "name": "second", "item_count": 2.5, "done": true},
	}))

	populated, err = client.Probe(ctx, "item_table")
	require.NoError(t, err)
	assert.True(t, populated)

	row, ok, err := client.SelectOne(ctx, "item_table", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", row["name"])
	assert.EqualValues(t, 1, row["item_count"])
	assert.EqualValues(t, 0, row["done"])
	assert.Equal(t, `{"k":"v"}`, row["meta"])

	row, ok, err = client.SelectOne(ctx, "item_table", "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.5, row["item_count"])
	assert.Nil(t, row["meta"])

	_, ok, err = client.SelectOne(ctx, "item_table", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// upsert only touches the given columns of existing rows
	require.NoError(t, client.Upsert(ctx, "item_table", []relational.Row{{"id": "a", "done": true}}))
	row, _, err = client.SelectOne(ctx, "item_table", "a")
	require.NoError(t, err)
	assert.Equal(t, "first", row["name"])
	assert.EqualValues(t, 1, row["done"])

	matched, err := client.Update(ctx, "item_table", "b", relational.Row{"name": "renamed"})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = client.Update(ctx, "item_table", "missing", relational.Row{"name": "x"})
	require.NoError(t, err)
	assert.False(t, matched)

	rows, err := client.SelectAll(ctx, "item_table")
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r["name"].(string))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"first", "renamed"}, names)

	loaded, err := client.Delete(ctx, "item_table", "a")
	require.NoError(t, err)
	assert.True(t, loaded)
	loaded, err = client.Delete(ctx, "item_table", "a")
	require.NoError(t, err)
	assert.False(t, loaded)

	require.NoError(t, client.DeleteAll(ctx, "item_table"))
	rows, err = client.SelectAll(ctx, "item_table")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLargeUpsertIsChunked(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t)

	rows := make([]relational.Row, 0, 2000)
	for i := 0; i < 2000; i++ {
		rows = append(rows, relational.Row{"id": fmt.Sprintf("item-%04d", i), "item_count": int64(i)})
	}
	require.NoError(t, client.Upsert(ctx, "item_table", rows))

	all, err := client.SelectAll(ctx, "item_table")
	require.NoError(t, err)
	assert.Len(t, all, 2000)
}

func TestUpsertRequiresID(t *testing.T) {
	client := openTestClient(t)
	err := client.Upsert(context.Background(), "item_table", []relational.Row{{"name": "x"}})
	assert.Error(t, err)
}

func TestMissingTable(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t)

	_, err := client.SelectAll(ctx, "nope")
	assert.ErrorIs(t, err, relational.ErrTableNotFound)

	_, _, err = client.SelectOne(ctx, "nope", "a")
	assert.ErrorIs(t, err, relational.ErrTableNotFound)

	_, err = client.Probe(ctx, "nope")
	assert.ErrorIs(t, err, relational.ErrTableNotFound)

	_, err = client.Delete(ctx, "nope", "a")
	assert.ErrorIs(t, err, relational.ErrTableNotFound)

	err = client.DeleteAll(ctx, "nope")
	assert.ErrorIs(t, err, relational.ErrTableNotFound)

	err = client.Upsert(ctx, "nope", []relational.Row{{"id": "a"}})
	assert.ErrorIs(t, err, relational.ErrTableNotFound)
}

func TestUnknownColumn(t *testing.T) {
	client := openTestClient(t)
	err := client.Upsert(context.Background(), "item_table", []relational.Row{{"id": "a", "bogus": "x"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, relational.ErrTableNotFound)

	var relErr *relational.Error
	assert.ErrorAs(t, err, &relErr)
}
