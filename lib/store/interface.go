package store

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Records and Patches
// --------------------------------------------------------------------------

const (
	// FieldID is the field holding the identifier of a record.
	FieldID = "id"
	// FieldUpdatedAt is the field stamped by partial and bulk updates.
	FieldUpdatedAt = "updatedAt"
)

// Record is a single entity of a collection. Values may be primitives, nested
// maps, slices or time.Time instants. The store only inspects the id field.
type Record map[string]any

// ID returns the identifier of the record or "" if the record has none.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Patch is a partial set of fields merged into an existing record.
// Implementations are the generic Fields type and the typed per-collection
// patches of the model package.
type Patch interface {
	// Fields returns the fields to merge. Only fields that are set are returned.
	Fields() Record
}

// CollectionPatch is a Patch bound to a single collection.
// Stores reject a CollectionPatch applied to a different collection.
type CollectionPatch interface {
	Patch
	Collection() string
}

// Fields is an untyped Patch.
type Fields Record

// Fields implements Patch.
func (f Fields) Fields() Record {
	return Record(f)
}

// BulkUpdate is one entry of an UpdateBulk call.
type BulkUpdate struct {
	ID    string
	Patch Patch
}

// ResolvePatch validates patch against the target record and returns the fields to merge.
// It is shared by all IStore implementations so that they reject the same patches.
func ResolvePatch(collection, id string, patch Patch) (Record, error) {
	if patch == nil {
		return nil, NewRecordError(RetCInvalidOperation, collection, id, "patch is nil")
	}
	if cp, ok := patch.(CollectionPatch); ok && cp.Collection() != collection {
		return nil, NewRecordError(RetCInvalidOperation, collection, id,
			fmt.Sprintf("patch for collection %q cannot be applied here", cp.Collection()))
	}
	fields := patch.Fields()
	if raw, ok := fields[FieldID]; ok && raw != id {
		return nil, NewRecordError(RetCInvalidOperation, collection, id, "patch must not change the record id")
	}
	return fields, nil
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the collection store every storage backend implements with identical
// observable semantics. Records are grouped into named collections and keyed by id.
//
// Absence is never an error: ReadAll of an unknown collection returns an empty list,
// ReadOne reports absence with its boolean result and DeleteOne with false.
// All failures are returned as *Error.
type IStore interface {
	// ReadAll returns every decodable record of the collection in unspecified order.
	// Records that fail to decode are skipped.
	ReadAll(collection string) (records []Record, err error)

	// ReadOne returns the record with the given id. The boolean reports whether it was found.
	ReadOne(collection, id string) (record Record, loaded bool, err error)

	// WriteAll replaces the collection with records. Every record must carry an id.
	WriteAll(collection string, records []Record) (err error)

	// WriteOne inserts the record or fully replaces the existing record with the same id.
	// The id field of the stored record is set to id.
	WriteOne(collection, id string, record Record) (err error)

	// UpdatePartial merges the patch into the existing record and stamps FieldUpdatedAt.
	// A missing record fails with RetCNotFound.
	UpdatePartial(collection, id string, patch Patch) (err error)

	// UpdateBulk applies every entry with as few calls to the underlying medium as possible.
	// Entries for missing records are inserted. No atomicity across entries is guaranteed.
	UpdateBulk(collection string, updates []BulkUpdate) (err error)

	// DeleteOne removes the record and reports whether it existed.
	DeleteOne(collection, id string) (loaded bool, err error)

	// Exists reports whether the collection currently holds at least one record.
	// A collection that was emptied (WriteAll of no records, last record deleted) does not exist.
	Exists(collection string) (exists bool, err error)

	// Clear removes every record of the collection.
	Clear(collection string) (err error)

	// Backup returns a snapshot of the whole store.
	Backup() (doc *Document, err error)

	// Restore replaces every collection present in doc. Collections absent from doc are left untouched.
	// An invalid document fails with RetCBackupCorruption before anything is changed.
	Restore(doc *Document) (err error)
}
