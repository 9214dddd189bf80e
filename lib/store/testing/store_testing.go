package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/index"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a new, empty store for a single test.
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the contract every store.IStore implementation must satisfy.
// The records used are valid for the studio schemas of the model package.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("PieceScenario", func(t *testing.T) {
			testPieceScenario(t, factory(t))
		})

		t.Run("ReadMissing", func(t *testing.T) {
			testReadMissing(t, factory(t))
		})

		t.Run("Exists", func(t *testing.T) {
			testExists(t, factory(t))
		})

		t.Run("WriteOneIdempotent", func(t *testing.T) {
			testWriteOneIdempotent(t, factory(t))
		})

		t.Run("DeleteOne", func(t *testing.T) {
			testDeleteOne(t, factory(t))
		})

		t.Run("WriteDeleteSequence", func(t *testing.T) {
			testWriteDeleteSequence(t, factory(t))
		})

		t.Run("WriteAll", func(t *testing.T) {
			testWriteAll(t, factory(t))
		})

		t.Run("UpdatePartial", func(t *testing.T) {
			testUpdatePartial(t, factory(t))
		})

		t.Run("UpdateBulk", func(t *testing.T) {
			testUpdateBulk(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("NestedAndDates", func(t *testing.T) {
			testNestedAndDates(t, factory(t))
		})

		t.Run("BackupRestore", func(t *testing.T) {
			testBackupRestore(t, factory(t))
		})

		t.Run("PartialRestore", func(t *testing.T) {
			testPartialRestore(t, factory(t))
		})

		t.Run("RestoreCorrupt", func(t *testing.T) {
			testRestoreCorrupt(t, factory(t))
		})

		t.Run("RestoreCollectionDocument", func(t *testing.T) {
			testRestoreCollectionDocument(t, factory(t))
		})

		t.Run("RestoreUnwritable", func(t *testing.T) {
			testRestoreUnwritable(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Fixtures and helpers
// --------------------------------------------------------------------------

var (
	created = time.Date(2024, 3, 1, 9, 30, 15, 123000000, time.UTC)
	fired   = time.Date(2024, 3, 8, 17, 0, 0, 1000000, time.UTC)
)

func sampleCustomers() []store.Record {
	return []store.Record{
		{"id": "c1", "name": "Ada Lovelace", "email": "ada@example.com", "smsOptIn": true, "createdAt": created},
		{"id": "c2", "name": "Grace Hopper", "phone": "+1 555 0100", "smsOptIn": false, "createdAt": created},
	}
}

func samplePieces() []store.Record {
	return []store.Record{
		{"id": "p1", "customerId": "c1", "title": "Mug", "cubicInches": int64(12), "paidGlaze": false, "createdAt": created},
		{"id": "p2", "customerId": "c1", "title": "Bowl", "cubicInches": 30.5, "paidGlaze": true, "createdAt": created,
			"glaze": map[string]any{"name": "celadon", "coats": int64(2), "firedAt": fired},
			"photos": []any{"front.jpg", "side.jpg"}},
		{"id": "p3", "customerId": "c2", "title": "Vase", "status": "bisque", "cubicInches": int64(48), "paidGlaze": false, "createdAt": created},
	}
}

func sampleEvents() []store.Record {
	return []store.Record{
		{"id": "e1", "title": "Wheel basics", "startsAt": fired, "endsAt": fired.Add(2 * time.Hour), "capacity": int64(8), "priceCents": int64(4500)},
	}
}

func mustWrite(t *testing.T, s store.IStore, collection string, records []store.Record) {
	t.Helper()
	for _, record := range records {
		require.NoError(t, s.WriteOne(collection, record.ID(), copyRecord(record)))
	}
}

func copyRecord(record store.Record) store.Record {
	out := make(store.Record, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func byID(records []store.Record) map[string]store.Record {
	out := make(map[string]store.Record, len(records))
	for _, record := range records {
		out[record.ID()] = record
	}
	return out
}

func ids(records []store.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.ID())
	}
	sort.Strings(out)
	return out
}

func requireRecords(t *testing.T, s store.IStore, collection string, want []store.Record) {
	t.Helper()
	got, err := s.ReadAll(collection)
	require.NoError(t, err)
	if diff := cmp.Diff(byID(want), byID(got)); diff != "" {
		t.Fatalf("%s mismatch (-want +got):\n%s", collection, diff)
	}
}

func requireCode(t *testing.T, err error, code store.RetCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, store.Code(err), "unexpected error: %v", err)
}

func requireStamp(t *testing.T, record store.Record, before time.Time) {
	t.Helper()
	stamp, ok := record[store.FieldUpdatedAt].(time.Time)
	require.True(t, ok, "expected %s to be a time.Time, got %T", store.FieldUpdatedAt, record[store.FieldUpdatedAt])
	assert.False(t, stamp.Before(before.Add(-time.Second)), "stamp %s is older than %s", stamp, before)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPieceScenario(t *testing.T, s store.IStore) {
	require.NoError(t, s.WriteOne(model.Pieces, "p1", store.Record{"id": "p1", "cubicInches": 12, "paidGlaze": false}))

	piece, ok, err := s.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, false, piece["paidGlaze"])
	assert.Equal(t, int64(12), piece["cubicInches"])

	before := time.Now()
	require.NoError(t, s.UpdatePartial(model.Pieces, "p1", store.Fields{"paidGlaze": true}))

	piece, ok, err = s.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, true, piece["paidGlaze"])
	assert.Equal(t, int64(12), piece["cubicInches"])
	requireStamp(t, piece, before)

	// the same through a typed patch
	require.NoError(t, model.Update(s, "p1", model.PiecePatch{Status: model.Ptr("glazed")}))
	piece, _, err = s.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	assert.Equal(t, "glazed", piece["status"])
	assert.Equal(t, true, piece["paidGlaze"])
}

func testReadMissing(t *testing.T, s store.IStore) {
	for _, collection := range model.Collections {
		records, err := s.ReadAll(collection)
		require.NoError(t, err, collection)
		assert.NotNil(t, records, collection)
		assert.Empty(t, records, collection)
	}

	record, ok, err := s.ReadOne(model.Customers, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, record)

	mustWrite(t, s, model.Customers, sampleCustomers())
	_, ok, err = s.ReadOne(model.Customers, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testExists(t *testing.T, s store.IStore) {
	for _, collection := range model.Collections {
		exists, err := s.Exists(collection)
		require.NoError(t, err, collection)
		assert.False(t, exists, collection)
	}

	mustWrite(t, s, model.Customers, sampleCustomers()[:1])
	exists, err := s.Exists(model.Customers)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(model.Pieces)
	require.NoError(t, err)
	assert.False(t, exists)

	// an emptied collection does not exist, however it got empty
	require.NoError(t, s.WriteAll(model.Pieces, []store.Record{}))
	exists, err = s.Exists(model.Pieces)
	require.NoError(t, err)
	assert.False(t, exists, "after WriteAll of no records")

	_, err = s.DeleteOne(model.Customers, sampleCustomers()[0].ID())
	require.NoError(t, err)
	exists, err = s.Exists(model.Customers)
	require.NoError(t, err)
	assert.False(t, exists, "after deleting the last record")
}

func testWriteOneIdempotent(t *testing.T, s store.IStore) {
	customer := sampleCustomers()[0]
	require.NoError(t, s.WriteOne(model.Customers, "c1", copyRecord(customer)))
	require.NoError(t, s.WriteOne(model.Customers, "c1", copyRecord(customer)))
	requireRecords(t, s, model.Customers, []store.Record{customer})

	// a write without id field gets the id of the call
	require.NoError(t, s.WriteOne(model.Customers, "c9", store.Record{"name": "No Id"}))
	got, ok, err := s.ReadOne(model.Customers, "c9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c9", got.ID())

	// a second write fully replaces the record
	require.NoError(t, s.WriteOne(model.Customers, "c1", store.Record{"name": "Renamed"}))
	got, _, err = s.ReadOne(model.Customers, "c1")
	require.NoError(t, err)
	assert.Equal(t, store.Record{"id": "c1", "name": "Renamed"}, got)
}

func testDeleteOne(t *testing.T, s store.IStore) {
	mustWrite(t, s, model.Customers, sampleCustomers())

	loaded, err := s.DeleteOne(model.Customers, "missing-id")
	require.NoError(t, err)
	assert.False(t, loaded)
	requireRecords(t, s, model.Customers, sampleCustomers())

	loaded, err = s.DeleteOne(model.Customers, "c1")
	require.NoError(t, err)
	assert.True(t, loaded)

	loaded, err = s.DeleteOne(model.Customers, "c1")
	require.NoError(t, err)
	assert.False(t, loaded)

	requireRecords(t, s, model.Customers, sampleCustomers()[1:])

	loaded, err = s.DeleteOne(model.Events, "e1")
	require.NoError(t, err)
	assert.False(t, loaded)
}

func testWriteDeleteSequence(t *testing.T, s store.IStore) {
	rng := rand.New(rand.NewSource(42))
	live := make(map[string]bool)

	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("t%02d", rng.Intn(20))
		if rng.Intn(3) == 0 {
			loaded, err := s.DeleteOne(model.Templates, id)
			require.NoError(t, err)
			assert.Equal(t, live[id], loaded, "delete %s at step %d", id, i)
			delete(live, id)
		} else {
			require.NoError(t, s.WriteOne(model.Templates, id, store.Record{"name": id, "body": fmt.Sprintf("step %d", i)}))
			live[id] = true
		}
	}

	want := make([]string, 0, len(live))
	for id := range live {
		want = append(want, id)
	}
	sort.Strings(want)

	records, err := s.ReadAll(model.Templates)
	require.NoError(t, err)
	assert.Equal(t, want, ids(records))
}

func testWriteAll(t *testing.T, s store.IStore) {
	mustWrite(t, s, model.Pieces, samplePieces())

	replacement := []store.Record{
		{"id": "p9", "title": "Plate", "cubicInches": int64(20), "paidGlaze": false},
		{"id": "p1", "title": "Mug v2", "cubicInches": int64(14), "paidGlaze": true},
	}
	require.NoError(t, s.WriteAll(model.Pieces, replacement))
	requireRecords(t, s, model.Pieces, replacement)

	// a record without id is rejected before the collection is touched
	err := s.WriteAll(model.Pieces, []store.Record{{"id": "p5"}, {"title": "anonymous"}})
	requireCode(t, err, store.RetCInvalidOperation)
	requireRecords(t, s, model.Pieces, replacement)

	require.NoError(t, s.WriteAll(model.Pieces, []store.Record{}))
	requireRecords(t, s, model.Pieces, nil)
}

func testUpdatePartial(t *testing.T, s store.IStore) {
	err := s.UpdatePartial(model.Pieces, "ghost", store.Fields{"paidGlaze": true})
	requireCode(t, err, store.RetCNotFound)
	assert.True(t, store.IsNotFound(err))

	mustWrite(t, s, model.Pieces, samplePieces())

	err = s.UpdatePartial(model.Pieces, "ghost", store.Fields{"paidGlaze": true})
	requireCode(t, err, store.RetCNotFound)

	err = s.UpdatePartial(model.Pieces, "p1", model.CustomerPatch{Name: model.Ptr("wrong collection")})
	requireCode(t, err, store.RetCInvalidOperation)

	err = s.UpdatePartial(model.Pieces, "p1", store.Fields{"id": "p2"})
	requireCode(t, err, store.RetCInvalidOperation)

	before := time.Now()
	require.NoError(t, s.UpdatePartial(model.Pieces, "p2", model.PiecePatch{
		Glaze:       map[string]any{"name": "tenmoku"},
		CubicInches: model.Ptr(31.0),
	}))

	got, ok, err := s.ReadOne(model.Pieces, "p2")
	require.NoError(t, err)
	require.True(t, ok)
	requireStamp(t, got, before)
	delete(got, store.FieldUpdatedAt)

	want := copyRecord(samplePieces()[1])
	want["glaze"] = map[string]any{"name": "tenmoku"}
	want["cubicInches"] = int64(31)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged record mismatch (-want +got):\n%s", diff)
	}

	// other records stay untouched
	p1, _, err := s.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	if diff := cmp.Diff(samplePieces()[0], p1); diff != "" {
		t.Errorf("untouched record changed (-want +got):\n%s", diff)
	}
}

func testUpdateBulk(t *testing.T, s store.IStore) {
	bookings := []store.Record{
		{"id": "b1", "eventId": "e1", "customerId": "c1", "seats": int64(1), "paid": false},
		{"id": "b2", "eventId": "e1", "customerId": "c2", "seats": int64(2), "paid": false},
	}
	mustWrite(t, s, model.EventBookings, bookings)

	require.NoError(t, s.UpdateBulk(model.EventBookings, nil))

	before := time.Now()
	require.NoError(t, model.BulkUpdate(s, []model.Change[model.EventBookingPatch]{
		{ID: "b1", Patch: model.EventBookingPatch{Paid: model.Ptr(true)}},
		{ID: "b2", Patch: model.EventBookingPatch{Seats: model.Ptr(3)}},
		{ID: "b2", Patch: model.EventBookingPatch{Notes: model.Ptr("window seats")}},
		{ID: "b3", Patch: model.EventBookingPatch{Seats: model.Ptr(1), Paid: model.Ptr(true)}},
	}))

	records, err := s.ReadAll(model.EventBookings)
	require.NoError(t, err)
	got := byID(records)
	require.Len(t, got, 3)
	for _, record := range got {
		requireStamp(t, record, before)
		delete(record, store.FieldUpdatedAt)
	}

	want := map[string]store.Record{
		"b1": {"id": "b1", "eventId": "e1", "customerId": "c1", "seats": int64(1), "paid": true},
		"b2": {"id": "b2", "eventId": "e1", "customerId": "c2", "seats": int64(3), "paid": false, "notes": "window seats"},
		"b3": {"id": "b3", "seats": int64(1), "paid": true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bulk update mismatch (-want +got):\n%s", diff)
	}

	err = s.UpdateBulk(model.EventBookings, []store.BulkUpdate{{ID: "b1", Patch: model.PiecePatch{}}})
	requireCode(t, err, store.RetCInvalidOperation)
}

func testClear(t *testing.T, s store.IStore) {
	require.NoError(t, s.Clear(model.Pieces))

	mustWrite(t, s, model.Pieces, samplePieces())
	mustWrite(t, s, model.Customers, sampleCustomers())

	require.NoError(t, s.Clear(model.Pieces))
	requireRecords(t, s, model.Pieces, nil)

	exists, err := s.Exists(model.Pieces)
	require.NoError(t, err)
	assert.False(t, exists)

	_, ok, err := s.ReadOne(model.Pieces, "p1")
	require.NoError(t, err)
	assert.False(t, ok)

	requireRecords(t, s, model.Customers, sampleCustomers())
}

func testNestedAndDates(t *testing.T, s store.IStore) {
	piece := samplePieces()[1]
	require.NoError(t, s.WriteOne(model.Pieces, piece.ID(), copyRecord(piece)))

	got, ok, err := s.ReadOne(model.Pieces, piece.ID())
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(piece, got); diff != "" {
		t.Errorf("nested record mismatch (-want +got):\n%s", diff)
	}

	createdAt, ok := got["createdAt"].(time.Time)
	require.True(t, ok, "createdAt must decode as time.Time, got %T", got["createdAt"])
	assert.True(t, createdAt.Equal(created))

	// a date-like string stays a string
	require.NoError(t, s.WriteOne(model.Pieces, "p7", store.Record{"title": "2024-03-01T09:30:15Z"}))
	got, _, err = s.ReadOne(model.Pieces, "p7")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T09:30:15Z", got["title"])
}

func populate(t *testing.T, s store.IStore) {
	mustWrite(t, s, model.Customers, sampleCustomers())
	mustWrite(t, s, model.Pieces, samplePieces())
	mustWrite(t, s, model.Events, sampleEvents())
}

func testBackupRestore(t *testing.T, s store.IStore) {
	populate(t, s)

	doc, err := s.Backup()
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	// through the portable encoding
	var buf bytes.Buffer
	require.NoError(t, store.EncodeDocument(&buf, doc))
	decoded, err := store.DecodeDocument(&buf)
	require.NoError(t, err)

	// damage every collection
	require.NoError(t, s.Clear(model.Customers))
	require.NoError(t, s.WriteOne(model.Pieces, "p1", store.Record{"title": "overwritten"}))
	require.NoError(t, s.WriteOne(model.Pieces, "p99", store.Record{"title": "new"}))
	_, err = s.DeleteOne(model.Events, "e1")
	require.NoError(t, err)

	require.NoError(t, s.Restore(decoded))

	requireRecords(t, s, model.Customers, sampleCustomers())
	requireRecords(t, s, model.Pieces, samplePieces())
	requireRecords(t, s, model.Events, sampleEvents())
}

// withoutCollection drops a collection from a document of either shape.
func withoutCollection(doc *store.Document, collection string) {
	delete(doc.Collections, collection)
	prefix := index.Prefix(doc.Namespace, collection)
	for key := range doc.Raw {
		if strings.HasPrefix(key, prefix) {
			delete(doc.Raw, key)
		}
	}
}

func testPartialRestore(t *testing.T, s store.IStore) {
	populate(t, s)

	doc, err := s.Backup()
	require.NoError(t, err)
	withoutCollection(doc, model.Customers)
	assert.NotContains(t, doc.CollectionNames(), model.Customers)

	extra := store.Record{"id": "c3", "name": "Added later"}
	require.NoError(t, s.WriteOne(model.Customers, "c3", copyRecord(extra)))
	require.NoError(t, s.WriteOne(model.Pieces, "p99", store.Record{"title": "added later"}))

	require.NoError(t, s.Restore(doc))

	requireRecords(t, s, model.Customers, append(sampleCustomers(), extra))
	requireRecords(t, s, model.Pieces, samplePieces())
}

func testRestoreCorrupt(t *testing.T, s store.IStore) {
	populate(t, s)

	docs := []*store.Document{
		nil,
		{Version: 99, Backend: store.BackendRemote},
		{Version: store.DocumentVersion, Backend: "somewhere"},
		{Version: store.DocumentVersion, Backend: store.BackendRemote, Collections: map[string][]store.Record{
			model.Customers: {},
			model.Pieces:    {{"title": "no id"}},
		}},
	}
	for i, doc := range docs {
		err := s.Restore(doc)
		requireCode(t, err, store.RetCBackupCorruption)
		t.Logf("document %d rejected: %v", i, err)
	}

	requireRecords(t, s, model.Customers, sampleCustomers())
	requireRecords(t, s, model.Pieces, samplePieces())
}

func testRestoreCollectionDocument(t *testing.T, s store.IStore) {
	mustWrite(t, s, model.Events, sampleEvents())

	doc := &store.Document{
		Timestamp: time.Now(),
		Version:   store.DocumentVersion,
		Backend:   store.BackendRemote,
		Collections: map[string][]store.Record{
			model.Customers: sampleCustomers(),
			model.Pieces:    samplePieces(),
		},
	}
	require.NoError(t, s.Restore(doc))

	requireRecords(t, s, model.Customers, sampleCustomers())
	requireRecords(t, s, model.Pieces, samplePieces())
	requireRecords(t, s, model.Events, sampleEvents())
}

func testRestoreUnwritable(t *testing.T, s store.IStore) {
	populate(t, s)

	// templates sorts last, its record cannot be encoded
	doc := &store.Document{
		Timestamp: time.Now(),
		Version:   store.DocumentVersion,
		Backend:   store.BackendRemote,
		Collections: map[string][]store.Record{
			model.Customers: {},
			model.Pieces:    {},
			model.Templates: {{"id": "t1", "body": make(chan int)}},
		},
	}
	require.NoError(t, doc.Validate())

	err := s.Restore(doc)
	requireCode(t, err, store.RetCBackupCorruption)
	assert.Contains(t, err.Error(), "templates/t1")

	requireRecords(t, s, model.Customers, sampleCustomers())
	requireRecords(t, s, model.Pieces, samplePieces())
}
