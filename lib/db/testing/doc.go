// Package testing provides a reusable test suite and benchmarks for db.KVDB
// implementations. Every engine runs the same suite from its own _test.go:
//
//	func Test(t *testing.T) {
//		dbtesting.RunKVDBTests(t, "MapleDB", func() db.KVDB {
//			return maple.NewMapleDB(nil)
//		})
//	}
//
// Tests for features an implementation does not advertise through
// SupportsFeature are skipped.
package testing
