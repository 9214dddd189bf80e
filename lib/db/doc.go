// Package db provides a standardized interface for flat key-value media.
// It defines the KVDB interface the local collection store is written against,
// so that the medium can be swapped without touching the store.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//
// Key Components:
//
//   - KVDB Interface: The core interface that all media must satisfy.
//     It provides methods for basic operations (Set, Get, Has, Delete),
//     a batched write (SetMany), prefix enumeration (Keys), metadata retrieval
//     (GetInfo), and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. The local store uses
//     FeatureSetMany to decide whether bulk updates can be written in one call.
//
//   - Quota: Media may enforce a size limit. Writes that would exceed it fail
//     with ErrQuotaExceeded and leave the medium unchanged. This models the
//     storage quota of browser-local key-value stores.
//
//   - Snapshots: LoadFile and SaveFile persist a medium to a single file so that
//     an otherwise in-memory medium survives process restarts. SaveFile writes
//     to a temporary file and renames it, so a crash never leaves a truncated
//     snapshot behind.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/kiln/lib/db/engines/maple)
// provides a sharded in-memory implementation of the KVDB interface with an
// optional quota and a binary snapshot format.
//
// The testing package (github.com/ValentinKolb/kiln/lib/db/testing) provides
// standardized tests for implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
package db
