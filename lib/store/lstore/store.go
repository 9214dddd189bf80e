package lstore

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/index"
	"github.com/lni/dragonboat/v4/logger"
	"maps"
	"strings"
	"time"
)

var log = logger.GetLogger("store")

// Config configures the local store.
type Config struct {
	Namespace string           // Prefix of every key written by the store (default "kiln")
	Clock     func() time.Time // Source of update timestamps (default time.Now)
}

// DefaultNamespace is used when Config.Namespace is empty.
const DefaultNamespace = "kiln"

type storeImpl struct {
	db        db.KVDB
	namespace string
	index     *index.Index
	clock     func() time.Time
}

// NewLocalStore creates a new local store on top of database.
// The store does not take ownership of database, closing and persisting it is up to the caller.
func NewLocalStore(database db.KVDB, conf Config) store.IStore {
	if conf.Namespace == "" {
		conf.Namespace = DefaultNamespace
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &storeImpl{
		db:        database,
		namespace: conf.Namespace,
		index:     index.New(database, conf.Namespace),
		clock:     conf.Clock,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ReadAll(collection string) ([]store.Record, error) {
	if err := s.require(db.FeatureGet, "ReadAll"); err != nil {
		return nil, err
	}
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	ids := s.index.Get(collection)
	records := make([]store.Record, 0, len(ids))
	for _, id := range ids {
		record, ok, err := s.readRecord(collection, id)
		if err != nil {
			log.Warningf("skipping record %s/%s: %v", collection, id, err)
			continue
		}
		if !ok {
			// the index may reference records whose write never completed
			log.Debugf("index of %q references missing record %q", collection, id)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *storeImpl) ReadOne(collection, id string) (store.Record, bool, error) {
	if err := s.require(db.FeatureGet, "ReadOne"); err != nil {
		return nil, false, err
	}
	if err := validTarget(collection, id); err != nil {
		return nil, false, err
	}
	return s.readRecord(collection, id)
}

func (s *storeImpl) WriteAll(collection string, records []store.Record) error {
	if err := s.require(db.FeatureSet|db.FeatureGet|db.FeatureDelete, "WriteAll"); err != nil {
		return err
	}
	encoded, err := prepareAll(collection, records)
	if err != nil {
		return err
	}
	return s.replaceAll(collection, encoded)
}

func (s *storeImpl) WriteOne(collection, id string, record store.Record) error {
	if err := s.require(db.FeatureSet|db.FeatureGet, "WriteOne"); err != nil {
		return err
	}
	if err := validTarget(collection, id); err != nil {
		return err
	}
	value, err := encodeRecord(collection, id, record)
	if err != nil {
		return err
	}
	return s.put(collection, id, value)
}

func (s *storeImpl) UpdatePartial(collection, id string, patch store.Patch) error {
	if err := s.require(db.FeatureSet|db.FeatureGet, "UpdatePartial"); err != nil {
		return err
	}
	if err := validTarget(collection, id); err != nil {
		return err
	}
	fields, err := store.ResolvePatch(collection, id, patch)
	if err != nil {
		return err
	}

	existing, ok, err := s.readRecord(collection, id)
	if err != nil {
		return err
	}
	if !ok {
		return store.NewRecordError(store.RetCNotFound, collection, id, "cannot update a record that does not exist")
	}

	value, err := encodeRecord(collection, id, merge(existing, fields, s.clock()))
	if err != nil {
		return err
	}
	return s.put(collection, id, value)
}

func (s *storeImpl) UpdateBulk(collection string, updates []store.BulkUpdate) error {
	if err := s.require(db.FeatureSet|db.FeatureGet, "UpdateBulk"); err != nil {
		return err
	}
	if err := validCollection(collection); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	// merge every entry onto its current state, later entries for the same id win
	pending := make(map[string]store.Record, len(updates))
	order := make([]string, 0, len(updates))
	for _, update := range updates {
		if err := validTarget(collection, update.ID); err != nil {
			return err
		}
		fields, err := store.ResolvePatch(collection, update.ID, update.Patch)
		if err != nil {
			return err
		}

		base, seen := pending[update.ID]
		if !seen {
			existing, ok, err := s.readRecord(collection, update.ID)
			if err != nil {
				return err
			}
			if ok {
				base = existing
			}
			order = append(order, update.ID)
		}
		pending[update.ID] = merge(base, fields, s.clock())
	}

	values := make(map[string][]byte, len(pending))
	for _, id := range order {
		value, err := encodeRecord(collection, id, pending[id])
		if err != nil {
			return err
		}
		values[index.RecordKey(s.namespace, collection, id)] = value
	}

	if s.db.SupportsFeature(db.FeatureSetMany) {
		if err := s.db.SetMany(values); err != nil {
			return s.writeFailure(collection, "", err)
		}
	} else {
		for _, id := range order {
			if err := s.db.Set(index.RecordKey(s.namespace, collection, id), values[index.RecordKey(s.namespace, collection, id)]); err != nil {
				return s.writeFailure(collection, id, err)
			}
		}
	}

	if err := s.index.AddMany(collection, order); err != nil {
		return s.writeFailure(collection, "", err)
	}
	return nil
}

func (s *storeImpl) DeleteOne(collection, id string) (bool, error) {
	if err := s.require(db.FeatureDelete|db.FeatureGet, "DeleteOne"); err != nil {
		return false, err
	}
	if err := validTarget(collection, id); err != nil {
		return false, err
	}

	loaded := s.db.Delete(index.RecordKey(s.namespace, collection, id))
	if err := s.index.Remove(collection, id); err != nil {
		return loaded, s.writeFailure(collection, id, err)
	}
	return loaded, nil
}

func (s *storeImpl) Exists(collection string) (bool, error) {
	if err := s.require(db.FeatureGet, "Exists"); err != nil {
		return false, err
	}
	if err := validCollection(collection); err != nil {
		return false, err
	}
	return s.index.Exists(collection), nil
}

func (s *storeImpl) Clear(collection string) error {
	if err := s.require(db.FeatureDelete|db.FeatureGet, "Clear"); err != nil {
		return err
	}
	if err := validCollection(collection); err != nil {
		return err
	}

	for _, id := range s.index.Get(collection) {
		s.db.Delete(index.RecordKey(s.namespace, collection, id))
	}
	s.index.Drop(collection)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// require returns an unsupported operation error if the medium lacks one of the features.
func (s *storeImpl) require(features db.Feature, op string) error {
	if !s.db.SupportsFeature(features) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported by the local medium")
	}
	return nil
}

// readRecord loads and decodes a single record.
// A value that cannot be decoded is reported as schema drift.
func (s *storeImpl) readRecord(collection, id string) (store.Record, bool, error) {
	raw, ok := s.db.Get(index.RecordKey(s.namespace, collection, id))
	if !ok {
		return nil, false, nil
	}
	record, err := codec.Unmarshal(raw)
	if err != nil {
		return nil, false, store.NewRecordError(store.RetCSchemaDrift, collection, id, fmt.Sprintf("stored record cannot be decoded: %v", err))
	}
	record[store.FieldID] = id
	return record, true, nil
}

// encodedRecord is a record ready to be written by replaceAll
type encodedRecord struct {
	id    string
	value []byte
}

// prepareAll validates and encodes the records of a collection without touching the medium.
func prepareAll(collection string, records []store.Record) ([]encodedRecord, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	encoded := make([]encodedRecord, 0, len(records))
	for i, record := range records {
		id := record.ID()
		if id == "" {
			return nil, store.NewRecordError(store.RetCInvalidOperation, collection, "", fmt.Sprintf("record %d has no id", i))
		}
		if err := validTarget(collection, id); err != nil {
			return nil, err
		}
		value, err := encodeRecord(collection, id, record)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, encodedRecord{id, value})
	}
	return encoded, nil
}

// replaceAll clears the collection and writes the prepared records.
// The index is cleared first so that it never references state of the old collection.
func (s *storeImpl) replaceAll(collection string, encoded []encodedRecord) error {
	old := s.index.Get(collection)
	if err := s.index.Reset(collection); err != nil {
		return s.writeFailure(collection, "", err)
	}
	for _, id := range old {
		s.db.Delete(index.RecordKey(s.namespace, collection, id))
	}

	for _, item := range encoded {
		if err := s.db.Set(index.RecordKey(s.namespace, collection, item.id), item.value); err != nil {
			return s.writeFailure(collection, item.id, err)
		}
		if err := s.index.Add(collection, item.id); err != nil {
			return s.writeFailure(collection, item.id, err)
		}
	}
	return nil
}

// put stores an encoded record and adds it to the index.
func (s *storeImpl) put(collection, id string, value []byte) error {
	if err := s.db.Set(index.RecordKey(s.namespace, collection, id), value); err != nil {
		return s.writeFailure(collection, id, err)
	}
	if err := s.index.Add(collection, id); err != nil {
		return s.writeFailure(collection, id, err)
	}
	return nil
}

// writeFailure translates a medium error into a store error. The raw error is only logged.
func (s *storeImpl) writeFailure(collection, id string, err error) error {
	log.Warningf("local write of %s/%s failed: %v", collection, id, err)
	if errors.Is(err, db.ErrQuotaExceeded) {
		return store.NewRecordError(store.RetCWriteFailure, collection, id, "local storage quota exceeded")
	}
	return store.NewRecordError(store.RetCWriteFailure, collection, id, "local medium rejected the write")
}

// encodeRecord copies the record, sets its id and encodes it.
func encodeRecord(collection, id string, record store.Record) ([]byte, error) {
	stored := maps.Clone(record)
	if stored == nil {
		stored = store.Record{}
	}
	stored[store.FieldID] = id

	value, err := codec.Marshal(stored)
	if err != nil {
		return nil, store.NewRecordError(store.RetCInvalidOperation, collection, id, fmt.Sprintf("record cannot be encoded: %v", err))
	}
	return value, nil
}

// merge returns a copy of base with fields applied and the update stamp set.
func merge(base store.Record, fields store.Record, now time.Time) store.Record {
	merged := make(store.Record, len(base)+len(fields)+1)
	maps.Copy(merged, base)
	maps.Copy(merged, fields)
	merged[store.FieldUpdatedAt] = now
	return merged
}

func validCollection(collection string) error {
	if collection == "" || strings.Contains(collection, index.Separator) {
		return store.NewRecordError(store.RetCInvalidOperation, collection, "", "invalid collection name")
	}
	return nil
}

func validTarget(collection, id string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if id == "" || id == index.ReservedID {
		return store.NewRecordError(store.RetCInvalidOperation, collection, id, "invalid record id")
	}
	return nil
}
