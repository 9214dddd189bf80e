package rstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/kiln/lib/db/engines/maple"
	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/relational/restclient"
	"github.com/ValentinKolb/kiln/lib/relational/restclient/resttest"
	"github.com/ValentinKolb/kiln/lib/relational/sqlclient"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/lstore"
	"github.com/ValentinKolb/kiln/lib/store/rstore"
	storetesting "github.com/ValentinKolb/kiln/lib/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteConfig() rstore.Config {
	return rstore.Config{
		Schemas:     model.Schemas,
		Tables:      model.Tables,
		Collections: model.Collections,
	}
}

func newSQLClient(t *testing.T, createTables bool) *sqlclient.Client {
	t.Helper()
	client, err := sqlclient.Open(sqlclient.DriverModernc, filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	if createTables {
		require.NoError(t, client.CreateTables(context.Background(), model.Schemas, model.Tables))
	}
	return client
}

func newRESTClient(t *testing.T, createTables bool) (*restclient.Client, *resttest.Server) {
	t.Helper()
	srv := resttest.NewServer("anon-key")
	if createTables {
		for _, collection := range model.Collections {
			schema, _ := model.Schemas.Get(collection)
			srv.CreateTable(model.TableName(collection), schema.Columns()...)
		}
	}
	client, err := restclient.New(srv.URL, "anon-key", 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		srv.Close()
	})
	return client, srv
}

func TestStore(t *testing.T) {
	storetesting.RunStoreTests(t, "sqlite", func(t *testing.T) store.IStore {
		return rstore.NewRemoteStore(newSQLClient(t, true), remoteConfig())
	})
	storetesting.RunStoreTests(t, "rest", func(t *testing.T) store.IStore {
		client, _ := newRESTClient(t, true)
		return rstore.NewRemoteStore(client, remoteConfig())
	})
}

func TestMissingTables(t *testing.T) {
	factories := map[string]func(t *testing.T) relational.Client{
		"sqlite": func(t *testing.T) relational.Client { return newSQLClient(t, false) },
		"rest": func(t *testing.T) relational.Client {
			client, _ := newRESTClient(t, false)
			return client
		},
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			s := rstore.NewRemoteStore(factory(t), remoteConfig())

			exists, err := s.Exists(model.Customers)
			require.NoError(t, err)
			assert.False(t, exists)

			records, err := s.ReadAll(model.Customers)
			require.NoError(t, err)
			assert.Empty(t, records)

			_, ok, err := s.ReadOne(model.Customers, "c1")
			require.NoError(t, err)
			assert.False(t, ok)

			loaded, err := s.DeleteOne(model.Customers, "c1")
			require.NoError(t, err)
			assert.False(t, loaded)

			require.NoError(t, s.Clear(model.Customers))

			err = s.UpdatePartial(model.Customers, "c1", store.Fields{"name": "x"})
			assert.Equal(t, store.RetCNotFound, store.Code(err))

			err = s.WriteOne(model.Customers, "c1", store.Record{"name": "x"})
			require.Error(t, err)
			assert.Equal(t, store.RetCWriteFailure, store.Code(err))
			assert.Contains(t, err.Error(), "customers/c1")
			assert.Contains(t, err.Error(), `table "customers" does not exist`)
		})
	}
}

func TestTableLookup(t *testing.T) {
	client, srv := newRESTClient(t, true)
	s := rstore.NewRemoteStore(client, remoteConfig())

	require.NoError(t, s.WriteOne(model.EventBookings, "b1", store.Record{"eventId": "e1", "seats": 2}))
	row, ok := srv.Row("event_bookings", "b1")
	require.True(t, ok)
	assert.Equal(t, "e1", row["event_id"])
	assert.Nil(t, row["customer_id"])

	require.NoError(t, s.WriteOne(model.Settings, "studio", store.Record{"studioName": "Clay Corner", "notificationsEnabled": true}))
	row, ok = srv.Row("studio_settings", "studio")
	require.True(t, ok)
	assert.Equal(t, "Clay Corner", row["studio_name"])
	assert.Equal(t, true, row["notifications_enabled"])
}

func TestUnknownCollectionPassesThrough(t *testing.T) {
	client, srv := newRESTClient(t, true)
	srv.CreateTable("glaze_recipes", "id", "recipeName")
	s := rstore.NewRemoteStore(client, remoteConfig())

	require.NoError(t, s.WriteOne("glaze_recipes", "g1", store.Record{"recipeName": "shino"}))
	row, ok := srv.Row("glaze_recipes", "g1")
	require.True(t, ok)
	assert.Equal(t, "shino", row["recipeName"])

	got, ok, err := s.ReadOne("glaze_recipes", "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.Record{"id": "g1", "recipeName": "shino"}, got)
}

func TestUpdateBulkIsBatched(t *testing.T) {
	client, srv := newRESTClient(t, true)
	s := rstore.NewRemoteStore(client, remoteConfig())

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		require.NoError(t, s.WriteOne(model.Pieces, id, store.Record{"title": id, "paidGlaze": false}))
	}
	srv.ResetRequests()

	updates := make([]store.BulkUpdate, 0, 4)
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		updates = append(updates, store.BulkUpdate{ID: id, Patch: model.PiecePatch{PaidGlaze: model.Ptr(true)}})
	}
	require.NoError(t, s.UpdateBulk(model.Pieces, updates))

	assert.Equal(t, 1, srv.Requests("POST", "pieces"))
	assert.Equal(t, 0, srv.Requests("PATCH", "pieces"))

	records, err := s.ReadAll(model.Pieces)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, record := range records {
		assert.Equal(t, true, record["paidGlaze"], record.ID())
		assert.Equal(t, record.ID(), record["title"])
		_, stamped := record[store.FieldUpdatedAt].(time.Time)
		assert.True(t, stamped, record.ID())
	}
}

func TestClock(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 123000000, time.UTC)
	conf := remoteConfig()
	conf.Clock = func() time.Time { return fixed }
	s := rstore.NewRemoteStore(newSQLClient(t, true), conf)

	require.NoError(t, s.WriteOne(model.Customers, "c1", store.Record{"name": "Ada"}))
	require.NoError(t, s.UpdatePartial(model.Customers, "c1", model.CustomerPatch{Phone: model.Ptr("555")}))

	got, _, err := s.ReadOne(model.Customers, "c1")
	require.NoError(t, err)
	assert.Equal(t, fixed, got[store.FieldUpdatedAt])

	doc, err := s.Backup()
	require.NoError(t, err)
	assert.Equal(t, fixed, doc.Timestamp)
	assert.Equal(t, store.BackendRemote, doc.Backend)
	assert.Len(t, doc.Collections, len(model.Collections))
}

func TestRestoreRejectsMalformedDateFirst(t *testing.T) {
	s := rstore.NewRemoteStore(newSQLClient(t, true), remoteConfig())
	require.NoError(t, s.WriteOne(model.Customers, "c1", store.Record{"name": "Ada"}))

	doc := &store.Document{
		Version: store.DocumentVersion,
		Backend: store.BackendRemote,
		Collections: map[string][]store.Record{
			model.Customers: {},
			model.Pieces:    {{"id": "p1", "createdAt": "last tuesday"}},
		},
	}
	require.NoError(t, doc.Validate())

	err := s.Restore(doc)
	require.Error(t, err)
	assert.Equal(t, store.RetCBackupCorruption, store.Code(err))
	assert.Contains(t, err.Error(), "pieces/p1")

	got, ok, err := s.ReadOne(model.Customers, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", got["name"])
}

func TestRestoreLocalDump(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 15, 123000000, time.UTC)
	local := lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{Namespace: "studio"})
	require.NoError(t, local.WriteOne(model.Customers, "c1", store.Record{"name": "Ada", "createdAt": created}))
	require.NoError(t, local.WriteOne(model.Pieces, "p1", store.Record{"title": "Mug", "cubicInches": 12, "paidGlaze": false}))
	require.NoError(t, local.WriteOne(model.EventBookings, "b1", store.Record{"eventId": "e1", "seats": 2}))

	doc, err := local.Backup()
	require.NoError(t, err)
	require.Equal(t, store.BackendLocal, doc.Backend)

	remote := rstore.NewRemoteStore(newSQLClient(t, true), remoteConfig())
	require.NoError(t, remote.WriteOne(model.Pieces, "stale", store.Record{"title": "gone after restore"}))
	require.NoError(t, remote.WriteOne(model.Events, "e1", store.Record{"title": "kept"}))
	require.NoError(t, remote.Restore(doc))

	customers, err := remote.ReadAll(model.Customers)
	require.NoError(t, err)
	assert.Equal(t, []store.Record{{"id": "c1", "name": "Ada", "createdAt": created}}, customers)

	pieces, err := remote.ReadAll(model.Pieces)
	require.NoError(t, err)
	assert.Equal(t, []store.Record{{"id": "p1", "title": "Mug", "cubicInches": int64(12), "paidGlaze": false}}, pieces)

	bookings, err := remote.ReadAll(model.EventBookings)
	require.NoError(t, err)
	assert.Equal(t, []store.Record{{"id": "b1", "eventId": "e1", "seats": int64(2)}}, bookings)

	// events are not part of the dump
	events, err := remote.ReadAll(model.Events)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
