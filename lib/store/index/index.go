package index

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	"slices"
	"strings"
)

var log = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Key Layout
// --------------------------------------------------------------------------

const (
	// Separator joins the namespace, collection and id parts of a key.
	Separator = ":"
	// ReservedID is the id part of the index key. No record may use it.
	ReservedID = "_index"
)

// Prefix returns the prefix shared by every key of the collection.
// With an empty collection it returns the prefix of the whole namespace.
func Prefix(namespace, collection string) string {
	if collection == "" {
		return namespace + Separator
	}
	return namespace + Separator + collection + Separator
}

// RecordKey returns the key a record is stored under: <namespace>:<collection>:<id>
func RecordKey(namespace, collection, id string) string {
	return Prefix(namespace, collection) + id
}

// IndexKey returns the key the index of a collection is stored under: <namespace>:<collection>:_index
func IndexKey(namespace, collection string) string {
	return Prefix(namespace, collection) + ReservedID
}

// KeyInfo describes a key of the local layout.
type KeyInfo struct {
	Collection string
	ID         string // empty for index keys
	IsIndex    bool
}

// ParseKey splits a key of the given namespace into its parts.
// The boolean is false for keys outside the namespace and for namespace keys
// that belong to no collection (e.g. markers).
func ParseKey(namespace, key string) (KeyInfo, bool) {
	rest, ok := strings.CutPrefix(key, Prefix(namespace, ""))
	if !ok {
		return KeyInfo{}, false
	}
	collection, id, ok := strings.Cut(rest, Separator)
	if !ok || collection == "" || id == "" {
		return KeyInfo{}, false
	}
	if id == ReservedID {
		return KeyInfo{Collection: collection, IsIndex: true}, true
	}
	return KeyInfo{Collection: collection, ID: id}, true
}

// RewriteNamespace moves a key from one namespace to another. Keys outside
// the source namespace are returned unchanged with false.
func RewriteNamespace(key, from, to string) (string, bool) {
	rest, ok := strings.CutPrefix(key, Prefix(from, ""))
	if !ok {
		return key, false
	}
	return Prefix(to, "") + rest, true
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

// Index maintains the ordered list of record ids per collection inside a flat
// key-value medium. The index is the only source for enumerating a collection,
// the medium is never scanned for record keys.
//
// Index is not safe for concurrent modification of the same collection.
type Index struct {
	database  db.KVDB
	namespace string
}

// New creates an index over database for the given namespace.
func New(database db.KVDB, namespace string) *Index {
	return &Index{database: database, namespace: namespace}
}

// Get returns the ids of the collection in insertion order.
// A missing index is an empty list. A corrupt index is logged and treated as empty.
func (idx *Index) Get(collection string) []string {
	raw, ok := idx.database.Get(IndexKey(idx.namespace, collection))
	if !ok {
		return []string{}
	}
	ids, err := Decode(raw)
	if err != nil {
		log.Warningf("ignoring corrupt index of collection %q: %v", collection, err)
		return []string{}
	}
	return ids
}

// Add appends id to the index of the collection. Adding an id that is already
// present does nothing.
func (idx *Index) Add(collection, id string) error {
	ids := idx.Get(collection)
	if slices.Contains(ids, id) {
		return nil
	}
	return idx.put(collection, append(ids, id))
}

// AddMany appends every id that is not yet present.
func (idx *Index) AddMany(collection string, newIDs []string) error {
	ids := idx.Get(collection)
	changed := false
	for _, id := range newIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return idx.put(collection, ids)
}

// Remove drops id from the index of the collection. Removing an absent id does nothing.
func (idx *Index) Remove(collection, id string) error {
	ids := idx.Get(collection)
	pos := slices.Index(ids, id)
	if pos < 0 {
		return nil
	}
	return idx.put(collection, slices.Delete(ids, pos, pos+1))
}

// Reset writes an empty index for the collection.
func (idx *Index) Reset(collection string) error {
	return idx.put(collection, []string{})
}

// Drop removes the index key of the collection.
func (idx *Index) Drop(collection string) {
	idx.database.Delete(IndexKey(idx.namespace, collection))
}

// Exists reports whether the index of the collection lists at least one id.
// An empty or dropped index does not exist.
func (idx *Index) Exists(collection string) bool {
	return len(idx.Get(collection)) > 0
}

func (idx *Index) put(collection string, ids []string) error {
	raw, err := Encode(ids)
	if err != nil {
		return err
	}
	if err := idx.database.Set(IndexKey(idx.namespace, collection), raw); err != nil {
		return fmt.Errorf("write index of collection %q: %w", collection, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Serialization
// --------------------------------------------------------------------------

// Encode serializes an id list to its stored JSON array form.
func Encode(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(ids)
}

// Decode parses a stored index value.
func Decode(raw []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("invalid index: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
