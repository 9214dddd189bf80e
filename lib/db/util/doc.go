// Package util provides small helpers shared by the db engines.
//
//   - HashString: seeded xxhash of string keys into a UintKey
//   - GenerateSeed: a random seed so that independent database instances
//     distribute keys differently across their shards
package util
