package migrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/ValentinKolb/kiln/lib/store/index"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var log = logger.GetLogger("migrate")

const (
	// DefaultLegacyPrefix is prepended to the collection name to form the legacy key.
	DefaultLegacyPrefix = "studio_"
	// MarkerID is the key part of the marker written after a successful run.
	MarkerID = "_migrated"
)

// Config configures a migration run.
type Config struct {
	Namespace    string               // Namespace of the marker key (default "kiln")
	LegacyPrefix string               // Prefix of the legacy keys (default DefaultLegacyPrefix)
	Collections  []string             // Collections to migrate
	Schemas      *relational.Registry // Used to find the date fields of every collection
	RemoveLegacy bool                 // Delete the legacy keys after they were migrated
	Clock        func() time.Time     // Source of the marker timestamp (default time.Now)
}

// Report summarizes a migration run.
type Report struct {
	AlreadyDone bool           // The marker was present, nothing was done
	Migrated    map[string]int // Records written per collection
	Kept        []string       // Collections skipped because the destination was already populated
	Skipped     int            // Legacy records that could not be converted
}

// MarkerKey returns the key of the marker written into the legacy medium.
func MarkerKey(namespace string) string {
	return index.Prefix(namespace, "") + MarkerID
}

// Run copies the legacy collections of legacy into dst.
//
// Every legacy key holds a JSON array of records whose dates are plain strings.
// Fields the schema declares as dates are converted to time.Time. A collection is
// only written if dst reports it as not existing, so data written after the legacy
// era is never overwritten. After every collection was handled a marker is written
// to legacy; a later run sees the marker and does nothing.
func Run(legacy db.KVDB, dst store.IStore, conf Config) (Report, error) {
	if conf.Namespace == "" {
		conf.Namespace = "kiln"
	}
	if conf.LegacyPrefix == "" {
		conf.LegacyPrefix = DefaultLegacyPrefix
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}

	report := Report{Migrated: make(map[string]int)}
	if legacy.Has(MarkerKey(conf.Namespace)) {
		log.Debugf("legacy data of namespace %q already migrated", conf.Namespace)
		report.AlreadyDone = true
		return report, nil
	}

	migrated := make([]string, 0, len(conf.Collections))
	for _, collection := range conf.Collections {
		raw, ok := legacy.Get(conf.LegacyPrefix + collection)
		if !ok {
			continue
		}

		exists, err := dst.Exists(collection)
		if err != nil {
			return report, err
		}
		if exists {
			log.Infof("collection %q already populated, legacy data is kept as is", collection)
			report.Kept = append(report.Kept, collection)
			continue
		}

		schema, _ := conf.Schemas.Get(collection)
		records, skipped, err := convert(collection, schema, raw)
		if err != nil {
			return report, err
		}
		report.Skipped += skipped

		if err := dst.WriteAll(collection, records); err != nil {
			return report, err
		}
		report.Migrated[collection] = len(records)
		migrated = append(migrated, collection)
		log.Infof("migrated %d records of collection %q", len(records), collection)
	}

	marker := []byte(codec.FormatDate(conf.Clock()))
	if err := legacy.Set(MarkerKey(conf.Namespace), marker); err != nil {
		return report, fmt.Errorf("write migration marker: %w", err)
	}

	if conf.RemoveLegacy {
		for _, collection := range migrated {
			legacy.Delete(conf.LegacyPrefix + collection)
		}
	}
	return report, nil
}

// --------------------------------------------------------------------------
// Conversion
// --------------------------------------------------------------------------

// convert parses a legacy collection. Records without id or with malformed
// dates are skipped and counted.
func convert(collection string, schema *relational.Schema, raw []byte) ([]store.Record, int, error) {
	var items []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, 0, store.NewRecordError(store.RetCSchemaDrift, collection, "", fmt.Sprintf("legacy collection is not a JSON array: %v", err))
	}

	records := make([]store.Record, 0, len(items))
	skipped := 0
	for i, item := range items {
		record, err := convertRecord(schema, item)
		if err != nil {
			log.Warningf("skipping legacy record %d of %q: %v", i, collection, err)
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped, nil
}

var errMissingID = errors.New("record has no id")

// convertRecord converts the top-level date fields of the schema. Values nested in
// JSON columns are left as they are.
func convertRecord(schema *relational.Schema, item map[string]any) (store.Record, error) {
	record := store.Record(numbers(item).(map[string]any))
	if record.ID() == "" {
		return nil, errMissingID
	}
	if schema == nil {
		return record, nil
	}

	for name, value := range record {
		field, ok := schema.ByName(name)
		if !ok || field.Kind != relational.KindDate {
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if s == "" {
			delete(record, name)
			continue
		}
		t, err := codec.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		record[name] = t
	}
	return record, nil
}

// numbers converts the json.Number values of a legacy tree to int64 or float64.
// Legacy data carries no codec tags, so the tree is not passed to codec.Decode.
func numbers(tree any) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = numbers(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = numbers(child)
		}
		return out
	case json.Number:
		n, _ := codec.Decode(v)
		return n
	default:
		return tree
	}
}
