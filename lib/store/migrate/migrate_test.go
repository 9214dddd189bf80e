package migrate_test

import (
	"testing"
	"time"

	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/db/engines/maple"
	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/lstore"
	"github.com/ValentinKolb/kiln/lib/store/migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

func legacyDB(t *testing.T) db.KVDB {
	t.Helper()
	database := maple.NewMapleDB(nil)
	require.NoError(t, database.Set("studio_customers", []byte(`[
		{"id":"c1","name":"Ada","smsOptIn":true,"createdAt":"2024-01-05T10:00:00.250Z"},
		{"id":"c2","name":"Grace","createdAt":""},
		{"name":"no id"}
	]`)))
	require.NoError(t, database.Set("studio_pieces", []byte(`[
		{"id":"p1","customerId":"c1","cubicInches":12,"paidGlaze":false,"createdAt":"2024-02-01T08:00:00Z"},
		{"id":"p2","customerId":"c1","cubicInches":7.5,"createdAt":"yesterday"}
	]`)))
	return database
}

func config() migrate.Config {
	return migrate.Config{
		Namespace:   "kiln",
		Collections: model.Collections,
		Schemas:     model.Schemas,
		Clock:       func() time.Time { return fixed },
	}
}

func TestRun(t *testing.T) {
	legacy := legacyDB(t)
	dst := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Namespace: "kiln"})

	report, err := migrate.Run(legacy, dst, config())
	require.NoError(t, err)
	assert.False(t, report.AlreadyDone)
	assert.Equal(t, map[string]int{model.Customers: 2, model.Pieces: 1}, report.Migrated)
	assert.Equal(t, 2, report.Skipped)

	c1, ok, err := dst.ReadOne(model.Customers, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 250000000, time.UTC), c1["createdAt"])
	assert.Equal(t, true, c1["smsOptIn"])

	c2, ok, err := dst.ReadOne(model.Customers, "c2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, c2, "createdAt")

	p1, ok, err := dst.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), p1["cubicInches"])
	assert.IsType(t, time.Time{}, p1["createdAt"])

	marker, ok := legacy.Get(migrate.MarkerKey("kiln"))
	require.True(t, ok)
	assert.Equal(t, "2024-07-01T09:00:00Z", string(marker))
	assert.True(t, legacy.Has("studio_customers"), "legacy keys are kept by default")
}

func TestRunIsIdempotent(t *testing.T) {
	legacy := legacyDB(t)
	dst := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Namespace: "kiln"})

	_, err := migrate.Run(legacy, dst, config())
	require.NoError(t, err)

	// changes after the first run must survive the second one
	require.NoError(t, dst.WriteOne(model.Customers, "c1", store.Record{"name": "Ada (edited)"}))

	report, err := migrate.Run(legacy, dst, config())
	require.NoError(t, err)
	assert.True(t, report.AlreadyDone)
	assert.Empty(t, report.Migrated)

	c1, _, err := dst.ReadOne(model.Customers, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ada (edited)", c1["name"])
}

func TestRunKeepsPopulatedCollections(t *testing.T) {
	legacy := legacyDB(t)
	dst := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Namespace: "kiln"})
	require.NoError(t, dst.WriteOne(model.Customers, "c9", store.Record{"name": "New era"}))

	report, err := migrate.Run(legacy, dst, config())
	require.NoError(t, err)
	assert.Equal(t, []string{model.Customers}, report.Kept)
	assert.Equal(t, map[string]int{model.Pieces: 1}, report.Migrated)

	customers, err := dst.ReadAll(model.Customers)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "c9", customers[0].ID())
}

func TestRunRemovesLegacyKeys(t *testing.T) {
	legacy := legacyDB(t)
	dst := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Namespace: "kiln"})

	conf := config()
	conf.RemoveLegacy = true
	_, err := migrate.Run(legacy, dst, conf)
	require.NoError(t, err)

	assert.False(t, legacy.Has("studio_customers"))
	assert.False(t, legacy.Has("studio_pieces"))
	assert.True(t, legacy.Has(migrate.MarkerKey("kiln")))
}

func TestRunSharedMedium(t *testing.T) {
	// the legacy layout and the store live in the same medium
	database := legacyDB(t)
	dst := lstore.NewLocalStore(database, lstore.Config{Namespace: "kiln"})

	_, err := migrate.Run(database, dst, config())
	require.NoError(t, err)

	doc, err := dst.Backup()
	require.NoError(t, err)
	assert.Contains(t, doc.Raw, migrate.MarkerKey("kiln"))
	assert.NotContains(t, doc.CollectionNames(), "_migrated")

	customers, err := dst.ReadAll(model.Customers)
	require.NoError(t, err)
	assert.Len(t, customers, 2)
}

func TestRunRejectsMalformedLegacyCollection(t *testing.T) {
	legacy := maple.NewMapleDB(nil)
	require.NoError(t, legacy.Set("studio_events", []byte(`{"not":"an array"}`)))
	dst := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{})

	_, err := migrate.Run(legacy, dst, config())
	require.Error(t, err)
	assert.Equal(t, store.RetCSchemaDrift, store.Code(err))
	assert.False(t, legacy.Has(migrate.MarkerKey("kiln")))
}

func TestRunKeepsNestedDateStrings(t *testing.T) {
	legacy := maple.NewMapleDB(nil)
	require.NoError(t, legacy.Set("studio_pieces", []byte(`[
		{"id":"p1","createdAt":"2024-02-01T08:00:00Z","glaze":{"name":"shino","firedAt":"2024-02-03T18:00:00Z"}}
	]`)))
	dst := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Namespace: "kiln"})

	_, err := migrate.Run(legacy, dst, config())
	require.NoError(t, err)

	p1, ok, err := dst.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), p1["createdAt"])
	assert.Equal(t, map[string]any{"name": "shino", "firedAt": "2024-02-03T18:00:00Z"}, p1["glaze"])
}
