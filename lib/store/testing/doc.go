// Package testing provides the contract test suite for store.IStore implementations.
//
// Every implementation runs the same suite from its own _test.go file:
//
//	func TestStore(t *testing.T) {
//		storetesting.RunStoreTests(t, "lstore", func(t *testing.T) store.IStore {
//			return lstore.NewLocalStore(maple.NewMapleDB(nil), lstore.Config{})
//		})
//	}
//
// The suite covers index consistency, idempotent writes and deletes, tolerant
// reads of missing collections, partial and bulk update semantics, date and
// nested value fidelity, and backup/restore including partial and corrupt documents.
package testing
