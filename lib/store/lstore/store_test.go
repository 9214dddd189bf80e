package lstore_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/db/engines/maple"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/index"
	"github.com/ValentinKolb/kiln/lib/store/lstore"
	storetesting "github.com/ValentinKolb/kiln/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetesting.RunStoreTests(t, "maple", func(t *testing.T) store.IStore {
		return lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{})
	})
	storetesting.RunStoreTests(t, "maple-without-setmany", func(t *testing.T) store.IStore {
		return lstore.NewLocalStore(&countingDB{KVDB: maple.NewMapleDB(nil), hide: db.FeatureSetMany}, lstore.Config{})
	})
}

// countingDB counts batched writes and can hide features of the wrapped medium.
type countingDB struct {
	db.KVDB
	hide    db.Feature
	sets    int
	setMany int
}

func (c *countingDB) Set(key string, value []byte) error {
	c.sets++
	return c.KVDB.Set(key, value)
}

func (c *countingDB) SetMany(entries map[string][]byte) error {
	c.setMany++
	return c.KVDB.SetMany(entries)
}

func (c *countingDB) SupportsFeature(feature db.Feature) bool {
	if feature&c.hide != 0 {
		return false
	}
	return c.KVDB.SupportsFeature(feature)
}

func newStore(t *testing.T) (store.IStore, db.KVDB) {
	t.Helper()
	database := maple.NewMapleDB(nil)
	return lstore.NewLocalStore(database, lstore.Config{Namespace: "kiln"}), database
}

func TestKeyLayout(t *testing.T) {
	s, database := newStore(t)
	require.NoError(t, s.WriteOne("pieces", "p1", store.Record{"cubicInches": 12}))

	assert.True(t, database.Has("kiln:pieces:p1"))
	raw, ok := database.Get("kiln:pieces:_index")
	require.True(t, ok)
	assert.JSONEq(t, `["p1"]`, string(raw))
}

func TestTolerantRead(t *testing.T) {
	s, database := newStore(t)
	require.NoError(t, s.WriteOne("pieces", "p1", store.Record{"title": "Mug"}))
	require.NoError(t, s.WriteOne("pieces", "p2", store.Record{"title": "Bowl"}))

	// remove the record but leave its index entry behind
	require.True(t, database.Delete(index.RecordKey("kiln", "pieces", "p1")))

	records, err := s.ReadAll("pieces")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p2", records[0].ID())

	_, ok, err := s.ReadOne("pieces", "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchemaDriftIsSkipped(t *testing.T) {
	s, database := newStore(t)
	require.NoError(t, s.WriteOne("pieces", "p1", store.Record{"title": "Mug"}))
	require.NoError(t, s.WriteOne("pieces", "p2", store.Record{"title": "Bowl"}))
	require.NoError(t, database.Set(index.RecordKey("kiln", "pieces", "p2"), []byte(`{"firedAt":{"$date":"last tuesday"}}`)))

	records, err := s.ReadAll("pieces")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].ID())

	_, _, err = s.ReadOne("pieces", "p2")
	require.Error(t, err)
	assert.Equal(t, store.RetCSchemaDrift, store.Code(err))
}

func TestDeleteMissingKeepsIndex(t *testing.T) {
	s, database := newStore(t)
	require.NoError(t, s.WriteOne("customers", "c1", store.Record{"name": "Ada"}))
	before, _ := database.Get(index.IndexKey("kiln", "customers"))

	loaded, err := s.DeleteOne("customers", "missing-id")
	require.NoError(t, err)
	assert.False(t, loaded)

	after, _ := database.Get(index.IndexKey("kiln", "customers"))
	assert.Equal(t, before, after)
}

func TestQuotaIsWriteFailure(t *testing.T) {
	database := maple.NewMapleDB(&maple.DBOptions{QuotaBytes: 256})
	s := lstore.NewLocalStore(database, lstore.Config{})

	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = s.WriteOne("pieces", "p"+strings.Repeat("x", i), store.Record{"notes": strings.Repeat("n", 32)})
	}
	require.Error(t, err)

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCWriteFailure, storeErr.Code)
	assert.Equal(t, "pieces", storeErr.Collection)
	assert.NotEmpty(t, storeErr.ID)
	assert.Contains(t, storeErr.Error(), "quota")
	assert.NotContains(t, storeErr.Error(), db.ErrQuotaExceeded.Error()+":")

	// everything that was accepted is still readable
	records, err := s.ReadAll("pieces")
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestBulkUpdateIsBatched(t *testing.T) {
	counting := &countingDB{KVDB: maple.NewMapleDB(nil)}
	s := lstore.NewLocalStore(counting, lstore.Config{})

	updates := make([]store.BulkUpdate, 0, 10)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		updates = append(updates, store.BulkUpdate{ID: id, Patch: store.Fields{"paid": true}})
	}
	require.NoError(t, s.UpdateBulk("eventBookings", updates))

	assert.Equal(t, 1, counting.setMany)
	assert.Equal(t, 1, counting.sets, "only the index should be written with Set")

	records, err := s.ReadAll("eventBookings")
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestInvalidTargets(t *testing.T) {
	s, _ := newStore(t)

	err := s.WriteOne("pieces", index.ReservedID, store.Record{})
	assert.Equal(t, store.RetCInvalidOperation, store.Code(err))

	err = s.WriteOne("pieces", "", store.Record{})
	assert.Equal(t, store.RetCInvalidOperation, store.Code(err))

	err = s.WriteOne("bad:name", "p1", store.Record{})
	assert.Equal(t, store.RetCInvalidOperation, store.Code(err))

	_, err = s.ReadAll("")
	assert.Equal(t, store.RetCInvalidOperation, store.Code(err))

	err = s.WriteOne("pieces", "p1", store.Record{"callback": func() {}})
	assert.Equal(t, store.RetCInvalidOperation, store.Code(err))
}

func TestUnsupportedMedium(t *testing.T) {
	s := lstore.NewLocalStore(&countingDB{KVDB: maple.NewMapleDB(nil), hide: db.FeatureGet}, lstore.Config{})

	_, err := s.ReadAll("pieces")
	assert.Equal(t, store.RetCUnsupportedOperation, store.Code(err))
	err = s.WriteOne("pieces", "p1", store.Record{})
	assert.Equal(t, store.RetCUnsupportedOperation, store.Code(err))
}

func TestUpdateStampUsesClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Clock: func() time.Time { return now }})

	require.NoError(t, s.WriteOne("pieces", "p1", store.Record{}))
	require.NoError(t, s.UpdatePartial("pieces", "p1", store.Fields{"status": "fired"}))

	got, _, err := s.ReadOne("pieces", "p1")
	require.NoError(t, err)
	stamp, ok := got[store.FieldUpdatedAt].(time.Time)
	require.True(t, ok)
	assert.True(t, stamp.Equal(now))
}
