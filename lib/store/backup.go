package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/store/index"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Backup Document
// --------------------------------------------------------------------------

const (
	// DocumentVersion is the only backup format version understood by Restore.
	DocumentVersion = 1

	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Document is a full-store snapshot. A remote store fills Collections with one
// record list per collection. A local store fills Raw with every key/value pair
// of its namespace verbatim.
type Document struct {
	Timestamp   time.Time
	Version     int
	Backend     string
	Namespace   string
	Collections map[string][]Record
	Raw         map[string]string
}

// wireDocument is the JSON form of a Document. Records are stored codec encoded.
type wireDocument struct {
	Timestamp   time.Time                    `json:"timestamp"`
	Version     int                          `json:"version"`
	Backend     string                       `json:"backend"`
	Namespace   string                       `json:"namespace,omitempty"`
	Collections map[string][]json.RawMessage `json:"collections,omitempty"`
	Raw         map[string]string            `json:"raw,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	wire := wireDocument{
		Timestamp: d.Timestamp.UTC(),
		Version:   d.Version,
		Backend:   d.Backend,
		Namespace: d.Namespace,
		Raw:       d.Raw,
	}
	if len(d.Collections) > 0 {
		wire.Collections = make(map[string][]json.RawMessage, len(d.Collections))
		for collection, records := range d.Collections {
			encoded := make([]json.RawMessage, 0, len(records))
			for _, record := range records {
				b, err := codec.Marshal(record)
				if err != nil {
					return nil, fmt.Errorf("encode record %q of collection %q: %w", record.ID(), collection, err)
				}
				encoded = append(encoded, b)
			}
			wire.Collections[collection] = encoded
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(b []byte) error {
	var wire wireDocument
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*d = Document{
		Timestamp: wire.Timestamp,
		Version:   wire.Version,
		Backend:   wire.Backend,
		Namespace: wire.Namespace,
		Raw:       wire.Raw,
	}
	if len(wire.Collections) > 0 {
		d.Collections = make(map[string][]Record, len(wire.Collections))
		for collection, encoded := range wire.Collections {
			records := make([]Record, 0, len(encoded))
			for i, raw := range encoded {
				record, err := codec.Unmarshal(raw)
				if err != nil {
					return fmt.Errorf("decode record %d of collection %q: %w", i, collection, err)
				}
				records = append(records, record)
			}
			d.Collections[collection] = records
		}
	}
	return nil
}

// EncodeDocument writes doc as indented JSON.
func EncodeDocument(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return NewError(RetCInternalError, fmt.Sprintf("encode backup: %v", err))
	}
	return nil
}

// DecodeDocument reads and validates a document written by EncodeDocument.
// Every failure is a RetCBackupCorruption error.
func DecodeDocument(r io.Reader) (*Document, error) {
	doc := &Document{}
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return nil, NewError(RetCBackupCorruption, fmt.Sprintf("invalid backup document: %v", err))
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// Validate checks the shape of the document. Restore calls it before changing anything.
func (d *Document) Validate() error {
	corrupt := func(format string, args ...any) error {
		return NewError(RetCBackupCorruption, fmt.Sprintf(format, args...))
	}

	if d == nil {
		return corrupt("backup document is nil")
	}
	if d.Version != DocumentVersion {
		return corrupt("unsupported backup version %d (expected %d)", d.Version, DocumentVersion)
	}

	switch d.Backend {
	case BackendRemote:
		if len(d.Raw) > 0 {
			return corrupt("remote backup must not contain raw pairs")
		}
		for collection, records := range d.Collections {
			if collection == "" {
				return corrupt("collection without name")
			}
			for i, record := range records {
				if record.ID() == "" {
					return corrupt("record %d of collection %q has no id", i, collection)
				}
			}
		}
	case BackendLocal:
		if len(d.Collections) > 0 {
			return corrupt("local backup must not contain collection arrays")
		}
		if d.Namespace == "" {
			return corrupt("local backup has no namespace")
		}
		for key, value := range d.Raw {
			if !strings.HasPrefix(key, index.Prefix(d.Namespace, "")) {
				return corrupt("key %q is outside namespace %q", key, d.Namespace)
			}
			info, ok := index.ParseKey(d.Namespace, key)
			if !ok {
				continue
			}
			if info.IsIndex {
				if _, err := index.Decode([]byte(value)); err != nil {
					return corrupt("index of collection %q: %v", info.Collection, err)
				}
				continue
			}
			if _, err := codec.Unmarshal([]byte(value)); err != nil {
				return corrupt("record %q of collection %q: %v", info.ID, info.Collection, err)
			}
		}
	default:
		return corrupt("unknown backend %q", d.Backend)
	}
	return nil
}

// RejectBackup turns the error of a record that cannot be restored into a
// RetCBackupCorruption error, keeping collection, id and message.
func RejectBackup(err error) error {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return NewRecordError(RetCBackupCorruption, storeErr.Collection, storeErr.ID, "backup cannot be restored: "+storeErr.Msg)
	}
	return NewError(RetCBackupCorruption, fmt.Sprintf("backup cannot be restored: %v", err))
}

// CollectionNames returns the sorted names of the collections present in the document.
func (d *Document) CollectionNames() []string {
	if d.Backend == BackendRemote {
		names := slices.Collect(maps.Keys(d.Collections))
		sort.Strings(names)
		return names
	}

	seen := make(map[string]struct{})
	for key := range d.Raw {
		if info, ok := index.ParseKey(d.Namespace, key); ok {
			seen[info.Collection] = struct{}{}
		}
	}
	names := slices.Collect(maps.Keys(seen))
	sort.Strings(names)
	return names
}

// CollectionRecords returns the records of every collection present in the document,
// independent of its shape. Raw records are ordered by the stored index, records
// the index misses follow in id order. The document must be valid.
func (d *Document) CollectionRecords() (map[string][]Record, error) {
	if d.Backend == BackendRemote {
		out := make(map[string][]Record, len(d.Collections))
		for collection, records := range d.Collections {
			out[collection] = records
		}
		return out, nil
	}

	type collectionDump struct {
		order   []string
		records map[string]Record
	}
	dumps := make(map[string]*collectionDump)
	dumpOf := func(collection string) *collectionDump {
		dump, ok := dumps[collection]
		if !ok {
			dump = &collectionDump{records: make(map[string]Record)}
			dumps[collection] = dump
		}
		return dump
	}

	for key, value := range d.Raw {
		info, ok := index.ParseKey(d.Namespace, key)
		if !ok {
			continue
		}
		dump := dumpOf(info.Collection)
		if info.IsIndex {
			ids, err := index.Decode([]byte(value))
			if err != nil {
				return nil, NewError(RetCBackupCorruption, err.Error())
			}
			dump.order = ids
			continue
		}
		record, err := codec.Unmarshal([]byte(value))
		if err != nil {
			return nil, NewRecordError(RetCBackupCorruption, info.Collection, info.ID, err.Error())
		}
		record[FieldID] = info.ID
		dump.records[info.ID] = record
	}

	out := make(map[string][]Record, len(dumps))
	for collection, dump := range dumps {
		records := make([]Record, 0, len(dump.records))
		placed := make(map[string]struct{}, len(dump.records))
		for _, id := range dump.order {
			if record, ok := dump.records[id]; ok {
				if _, dup := placed[id]; !dup {
					records = append(records, record)
					placed[id] = struct{}{}
				}
			}
		}
		rest := make([]string, 0)
		for id := range dump.records {
			if _, ok := placed[id]; !ok {
				rest = append(rest, id)
			}
		}
		sort.Strings(rest)
		for _, id := range rest {
			records = append(records, dump.records[id])
		}
		out[collection] = records
	}
	return out, nil
}
