package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/kiln/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("SetMany", func(t *testing.T) {
			testSetMany(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("LoadCorrupt", func(t *testing.T) {
			testLoadCorrupt(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustSet fails the test if a write is rejected
func mustSet(t testing.TB, database db.KVDB, key string, value []byte) {
	t.Helper()
	if err := database.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, database, testKey, testValue1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, database, testKey, testValue2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = database.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("input-value")
	mustSet(t, database, "copy-key", input)
	input[0] = 'X'
	stored, _ := database.Get("copy-key")
	if !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Set should copy the value, got %s", stored)
	}
}

func testSetMany(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSetMany|db.FeatureGet)

	mustSet(t, database, "existing", []byte("old"))

	entries := map[string][]byte{
		"existing": []byte("new"),
		"fresh-1":  []byte("one"),
		"fresh-2":  []byte("two"),
	}
	if err := database.SetMany(entries); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	for key, want := range entries {
		got, ok := database.Get(key)
		if !ok {
			t.Errorf("Expected key %s to exist after SetMany", key)
			continue
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Key %s: expected %s, got %s", key, want, got)
		}
	}

	if err := database.SetMany(map[string][]byte{}); err != nil {
		t.Errorf("SetMany with no entries should succeed, got %v", err)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureDelete)

	testKey := "delete-key"
	mustSet(t, database, testKey, []byte("delete-value"))

	if !database.Delete(testKey) {
		t.Errorf("Expected Delete to report an existing key")
	}

	if _, exists := database.Get(testKey); exists {
		t.Errorf("Key should not exist after Delete")
	}

	if database.Delete(testKey) {
		t.Errorf("Expected second Delete to report a missing key")
	}

	if database.Delete("never-existed") {
		t.Errorf("Expected Delete of a missing key to return false")
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)

	if database.Has("has-key") {
		t.Errorf("Has should return false for a missing key")
	}

	mustSet(t, database, "has-key", []byte{})
	if !database.Has("has-key") {
		t.Errorf("Has should return true for a key with an empty value")
	}

	database.Delete("has-key")
	if database.Has("has-key") {
		t.Errorf("Has should return false after Delete")
	}
}

func testKeys(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureKeys)

	for _, key := range []string{"ns:b:2", "ns:a:1", "ns:b:1", "other:a:1", "ns"} {
		mustSet(t, database, key, []byte(key))
	}

	got := database.Keys("ns:")
	want := []string{"ns:a:1", "ns:b:1", "ns:b:2"}
	if len(got) != len(want) {
		t.Fatalf("Expected keys %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected keys %v (sorted), got %v", want, got)
			break
		}
	}

	if keys := database.Keys("missing:"); len(keys) != 0 {
		t.Errorf("Expected no keys for unknown prefix, got %v", keys)
	}

	if keys := database.Keys(""); len(keys) != 5 {
		t.Errorf("Expected all 5 keys for empty prefix, got %v", keys)
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, db.FeatureSave|db.FeatureLoad)

	for i := 0; i < 500; i++ {
		mustSet(t, source, fmt.Sprintf("key-%03d", i), []byte(fmt.Sprintf("value-%d", i)))
	}
	mustSet(t, source, "empty", []byte{})

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	target := factory()
	defer target.Close()
	mustSet(t, target, "stale", []byte("must disappear"))

	if err := target.Load(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key-%03d", i)
		got, ok := target.Get(key)
		if !ok {
			t.Errorf("Key %s missing after Load", key)
			continue
		}
		if want := []byte(fmt.Sprintf("value-%d", i)); !bytes.Equal(got, want) {
			t.Errorf("Key %s: expected %s, got %s", key, want, got)
		}
	}
	if !target.Has("empty") {
		t.Errorf("Key with empty value missing after Load")
	}
	if target.Has("stale") {
		t.Errorf("Load should replace the previous content")
	}

	// equal content produces an equal snapshot
	var again bytes.Buffer
	if err := target.Save(&again); err != nil {
		t.Fatalf("Second Save failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), again.Bytes()) {
		t.Errorf("Expected identical snapshots for identical content")
	}
}

func testLoadCorrupt(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureLoad|db.FeatureSet)

	mustSet(t, database, "keep", []byte("me"))

	if err := database.Load(bytes.NewReader([]byte("definitely not a snapshot"))); err == nil {
		t.Errorf("Expected Load of garbage to fail")
	}
	if err := database.Load(bytes.NewReader(nil)); err == nil {
		t.Errorf("Expected Load of an empty reader to fail")
	}

	if got, ok := database.Get("keep"); !ok || string(got) != "me" {
		t.Errorf("Failed Load must leave the database unchanged")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	// empty key
	mustSet(t, database, "", []byte("empty-key-value"))
	if got, ok := database.Get(""); !ok || string(got) != "empty-key-value" {
		t.Errorf("Empty key should be usable, got %q (found=%v)", got, ok)
	}

	// nil value
	mustSet(t, database, "nil-value", nil)
	if got, ok := database.Get("nil-value"); !ok || len(got) != 0 {
		t.Errorf("Nil value should be stored as empty value, got %q (found=%v)", got, ok)
	}

	// unicode and separators in keys
	key := "kiln:pieces:töpfer/🏺"
	mustSet(t, database, key, []byte("vase"))
	if got, ok := database.Get(key); !ok || string(got) != "vase" {
		t.Errorf("Unicode key should round-trip, got %q", got)
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1<<20)
	mustSet(t, database, "large", large)
	if got, _ := database.Get("large"); !bytes.Equal(got, large) {
		t.Errorf("Large value should round-trip")
	}
}

func testConcurrent(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := database.Set(key, []byte(key)); err != nil {
					t.Errorf("Set(%s) failed: %v", key, err)
					return
				}
				if got, ok := database.Get(key); !ok || string(got) != key {
					t.Errorf("Get(%s) returned %q (found=%v)", key, got, ok)
				}
				if i%2 == 0 {
					database.Delete(key)
				}
			}
		}(w)
	}
	wg.Wait()

	if info := database.GetInfo(); info.Keys != workers*perWorker/2 {
		t.Errorf("Expected %d keys, got %d", workers*perWorker/2, info.Keys)
	}
}
