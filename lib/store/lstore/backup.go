package lstore

import (
	"fmt"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/index"
	"sort"
)

// --------------------------------------------------------------------------
// Backup and Restore (docu see store/interface.go)
// --------------------------------------------------------------------------

// Backup dumps every key of the namespace verbatim.
func (s *storeImpl) Backup() (*store.Document, error) {
	if err := s.require(db.FeatureKeys|db.FeatureGet, "Backup"); err != nil {
		return nil, err
	}

	raw := make(map[string]string)
	for _, key := range s.db.Keys(index.Prefix(s.namespace, "")) {
		if value, ok := s.db.Get(key); ok {
			raw[key] = string(value)
		}
	}

	return &store.Document{
		Timestamp: s.clock().UTC(),
		Version:   store.DocumentVersion,
		Backend:   store.BackendLocal,
		Namespace: s.namespace,
		Raw:       raw,
	}, nil
}

// Restore replaces every collection present in doc.
// A raw document is moved into this store's namespace and written verbatim,
// a collection document is written collection by collection with WriteAll.
func (s *storeImpl) Restore(doc *store.Document) error {
	if err := s.require(db.FeatureSet|db.FeatureGet|db.FeatureDelete, "Restore"); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}

	if doc.Backend != store.BackendLocal {
		return s.restoreCollections(doc)
	}

	pairs := make(map[string][]byte, len(doc.Raw))
	for key, value := range doc.Raw {
		target, _ := index.RewriteNamespace(key, doc.Namespace, s.namespace)
		pairs[target] = []byte(value)
	}

	for _, collection := range doc.CollectionNames() {
		if err := s.Clear(collection); err != nil {
			return err
		}
	}

	if s.db.SupportsFeature(db.FeatureSetMany) {
		if err := s.db.SetMany(pairs); err != nil {
			return s.writeFailure("", "", err)
		}
		return nil
	}

	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := s.db.Set(key, pairs[key]); err != nil {
			return s.writeFailure("", "", fmt.Errorf("restore key %q: %w", key, err))
		}
	}
	return nil
}

// restoreCollections encodes every collection of doc before the first one is replaced,
// so a record that cannot be written rejects the whole document.
func (s *storeImpl) restoreCollections(doc *store.Document) error {
	collections, err := doc.CollectionRecords()
	if err != nil {
		return err
	}

	names := doc.CollectionNames()
	prepared := make(map[string][]encodedRecord, len(names))
	for _, collection := range names {
		encoded, err := prepareAll(collection, collections[collection])
		if err != nil {
			return store.RejectBackup(err)
		}
		prepared[collection] = encoded
	}

	for _, collection := range names {
		if err := s.replaceAll(collection, prepared[collection]); err != nil {
			return err
		}
	}
	return nil
}
