package instrumented_test

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/kiln/lib/db/engines/maple"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/instrumented"
	"github.com/ValentinKolb/kiln/lib/store/lstore"
	storetesting "github.com/ValentinKolb/kiln/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() instrumented.Store {
	return instrumented.New(lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{}), "local")
}

func TestStore(t *testing.T) {
	storetesting.RunStoreTests(t, "instrumented-maple", func(t *testing.T) store.IStore {
		return newStore()
	})
}

func TestCounts(t *testing.T) {
	s := newStore()

	require.NoError(t, s.WriteOne("pieces", "p1", store.Record{"title": "Mug"}))
	require.NoError(t, s.WriteOne("pieces", "p2", store.Record{"title": "Bowl"}))
	_, _, err := s.ReadOne("pieces", "p1")
	require.NoError(t, err)

	err = s.UpdatePartial("pieces", "ghost", store.Fields{"title": "x"})
	require.Error(t, err)

	assert.Equal(t, uint64(2), s.Count("write_one", instrumented.StatusOK))
	assert.Equal(t, uint64(0), s.Count("write_one", instrumented.StatusError))
	assert.Equal(t, uint64(1), s.Count("read_one", instrumented.StatusOK))
	assert.Equal(t, uint64(0), s.Count("update_partial", instrumented.StatusOK))
	assert.Equal(t, uint64(1), s.Count("update_partial", instrumented.StatusError))

	require.NoError(t, s.UpdateBulk("pieces", []store.BulkUpdate{
		{ID: "p1", Patch: store.Fields{"status": "fired"}},
		{ID: "p2", Patch: store.Fields{"status": "fired"}},
	}))

	var buf bytes.Buffer
	s.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `kiln_store_operations_total{backend="local",op="write_one",status="ok"} 2`)
	assert.Contains(t, out, `kiln_store_errors_total{backend="local",op="update_partial",code="NotFound"} 1`)
	assert.Contains(t, out, `kiln_store_bulk_entries_total{backend="local",op="update_bulk"} 2`)
	assert.Contains(t, out, `kiln_store_operation_duration_seconds_bucket{backend="local",op="read_one"`)
}

func TestPassesResultsThrough(t *testing.T) {
	s := newStore()

	loaded, err := s.DeleteOne("customers", "missing-id")
	require.NoError(t, err)
	assert.False(t, loaded)

	exists, err := s.Exists("customers")
	require.NoError(t, err)
	assert.False(t, exists)

	doc, err := s.Backup()
	require.NoError(t, err)
	assert.Equal(t, store.BackendLocal, doc.Backend)
	require.NoError(t, s.Restore(doc))
	assert.Equal(t, uint64(1), s.Count("restore", instrumented.StatusOK))
}
