package rstore

import (
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/store"
)

// --------------------------------------------------------------------------
// Backup and Restore (docu see store/interface.go)
// --------------------------------------------------------------------------

// Backup reads every configured collection. Missing tables yield empty collections.
func (s *storeImpl) Backup() (*store.Document, error) {
	collections := make(map[string][]store.Record, len(s.conf.Collections))
	for _, collection := range s.conf.Collections {
		records, err := s.ReadAll(collection)
		if err != nil {
			return nil, err
		}
		collections[collection] = records
	}

	return &store.Document{
		Timestamp:   s.clock().UTC(),
		Version:     store.DocumentVersion,
		Backend:     store.BackendRemote,
		Collections: collections,
	}, nil
}

// Restore replaces every collection present in doc, in name order. Every record is
// translated before the first table is cleared, so a record that cannot be written
// rejects the whole document.
func (s *storeImpl) Restore(doc *store.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	collections, err := doc.CollectionRecords()
	if err != nil {
		return err
	}

	names := doc.CollectionNames()
	prepared := make(map[string][]relational.Row, len(names))
	for _, collection := range names {
		rows, err := s.prepareRows(collection, collections[collection])
		if err != nil {
			return store.RejectBackup(err)
		}
		prepared[collection] = rows
	}

	for _, collection := range names {
		if err := s.replaceRows(collection, prepared[collection]); err != nil {
			return err
		}
	}
	return nil
}
