// Package resttest provides an in-memory fake of the PostgREST table API for
// tests of restclient and of stores built on it. It understands exactly the
// requests restclient sends: filtered selects, merge-duplicate upserts, patches
// and deletes by id, and the error responses for missing tables and columns.
package resttest
