package rstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kiln/lib/codec"
	"github.com/ValentinKolb/kiln/lib/relational"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"maps"
	"time"
)

var log = logger.GetLogger("store")

// DefaultTimeoutSecond bounds every operation when Config.TimeoutSecond is not set.
const DefaultTimeoutSecond = 10

// Config configures the remote store.
type Config struct {
	Schemas       *relational.Registry // Field/column tables per collection
	Tables        map[string]string    // Closed lookup from collection to table name
	Collections   []string             // Collections covered by Backup (default: every collection of Schemas)
	TimeoutSecond int                  // Deadline of a single operation
	Clock         func() time.Time     // Source of update timestamps (default time.Now)
}

type storeImpl struct {
	client  relational.Client
	conf    Config
	timeout time.Duration
	clock   func() time.Time
}

// NewRemoteStore creates a new remote store talking to a relational service through client.
// The store does not take ownership of client.
func NewRemoteStore(client relational.Client, conf Config) store.IStore {
	if conf.TimeoutSecond <= 0 {
		conf.TimeoutSecond = DefaultTimeoutSecond
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	if conf.Collections == nil {
		conf.Collections = conf.Schemas.Collections()
	}
	return &storeImpl{
		client:  client,
		conf:    conf,
		timeout: time.Duration(conf.TimeoutSecond) * time.Second,
		clock:   conf.Clock,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ReadAll(collection string) ([]store.Record, error) {
	ctx, cancel := s.context()
	defer cancel()

	rows, err := s.client.SelectAll(ctx, s.table(collection))
	if errors.Is(err, relational.ErrTableNotFound) {
		return []store.Record{}, nil
	}
	if err != nil {
		return nil, s.failure(store.RetCInternalError, collection, "", "read", err)
	}

	schema := s.schema(collection)
	records := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		record, err := fromRow(schema, row)
		if err != nil {
			log.Warningf("skipping row %v of %q: %v", row[relational.IDColumn], collection, err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *storeImpl) ReadOne(collection, id string) (store.Record, bool, error) {
	if err := validTarget(collection, id); err != nil {
		return nil, false, err
	}
	ctx, cancel := s.context()
	defer cancel()

	row, ok, err := s.client.SelectOne(ctx, s.table(collection), id)
	if errors.Is(err, relational.ErrTableNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.failure(store.RetCInternalError, collection, id, "read", err)
	}
	if !ok {
		return nil, false, nil
	}

	record, err := fromRow(s.schema(collection), row)
	if err != nil {
		return nil, false, store.NewRecordError(store.RetCSchemaDrift, collection, id, fmt.Sprintf("stored row cannot be decoded: %v", err))
	}
	return record, true, nil
}

func (s *storeImpl) WriteAll(collection string, records []store.Record) error {
	rows, err := s.prepareRows(collection, records)
	if err != nil {
		return err
	}
	return s.replaceRows(collection, rows)
}

func (s *storeImpl) WriteOne(collection, id string, record store.Record) error {
	if err := validTarget(collection, id); err != nil {
		return err
	}

	stored := maps.Clone(record)
	if stored == nil {
		stored = store.Record{}
	}
	stored[store.FieldID] = id

	row, err := toRow(s.schema(collection), stored, true)
	if err != nil {
		return store.NewRecordError(store.RetCInvalidOperation, collection, id, fmt.Sprintf("record cannot be encoded: %v", err))
	}

	ctx, cancel := s.context()
	defer cancel()
	if err := s.client.Upsert(ctx, s.table(collection), []relational.Row{row}); err != nil {
		return s.failure(store.RetCWriteFailure, collection, id, "write", err)
	}
	return nil
}

func (s *storeImpl) UpdatePartial(collection, id string, patch store.Patch) error {
	if err := validTarget(collection, id); err != nil {
		return err
	}
	fields, err := store.ResolvePatch(collection, id, patch)
	if err != nil {
		return err
	}

	row, err := s.patchRow(collection, id, fields)
	if err != nil {
		return err
	}
	delete(row, relational.IDColumn)

	ctx, cancel := s.context()
	defer cancel()
	matched, err := s.client.Update(ctx, s.table(collection), id, row)
	if errors.Is(err, relational.ErrTableNotFound) {
		matched, err = false, nil
	}
	if err != nil {
		return s.failure(store.RetCWriteFailure, collection, id, "update", err)
	}
	if !matched {
		return store.NewRecordError(store.RetCNotFound, collection, id, "cannot update a record that does not exist")
	}
	return nil
}

func (s *storeImpl) UpdateBulk(collection string, updates []store.BulkUpdate) error {
	if collection == "" {
		return store.NewError(store.RetCInvalidOperation, "invalid collection name")
	}
	if len(updates) == 0 {
		return nil
	}

	// later entries for the same id are merged onto earlier ones
	pending := make(map[string]relational.Row, len(updates))
	order := make([]string, 0, len(updates))
	for _, update := range updates {
		if err := validTarget(collection, update.ID); err != nil {
			return err
		}
		fields, err := store.ResolvePatch(collection, update.ID, update.Patch)
		if err != nil {
			return err
		}
		row, err := s.patchRow(collection, update.ID, fields)
		if err != nil {
			return err
		}
		if existing, ok := pending[update.ID]; ok {
			maps.Copy(existing, row)
			continue
		}
		pending[update.ID] = row
		order = append(order, update.ID)
	}

	rows := make([]relational.Row, 0, len(order))
	for _, id := range order {
		rows = append(rows, pending[id])
	}

	ctx, cancel := s.context()
	defer cancel()
	if err := s.client.Upsert(ctx, s.table(collection), rows); err != nil {
		return s.failure(store.RetCWriteFailure, collection, "", "bulk update", err)
	}
	return nil
}

func (s *storeImpl) DeleteOne(collection, id string) (bool, error) {
	if err := validTarget(collection, id); err != nil {
		return false, err
	}
	ctx, cancel := s.context()
	defer cancel()

	loaded, err := s.client.Delete(ctx, s.table(collection), id)
	if errors.Is(err, relational.ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.failure(store.RetCWriteFailure, collection, id, "delete", err)
	}
	return loaded, nil
}

func (s *storeImpl) Exists(collection string) (bool, error) {
	ctx, cancel := s.context()
	defer cancel()

	populated, err := s.client.Probe(ctx, s.table(collection))
	if errors.Is(err, relational.ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.failure(store.RetCInternalError, collection, "", "probe", err)
	}
	return populated, nil
}

func (s *storeImpl) Clear(collection string) error {
	ctx, cancel := s.context()
	defer cancel()

	err := s.client.DeleteAll(ctx, s.table(collection))
	if err != nil && !errors.Is(err, relational.ErrTableNotFound) {
		return s.failure(store.RetCWriteFailure, collection, "", "clear", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// context returns the deadline context of a single operation.
func (s *storeImpl) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// table maps a collection to its table. Unknown collections pass through unchanged.
func (s *storeImpl) table(collection string) string {
	if table, ok := s.conf.Tables[collection]; ok {
		return table
	}
	return collection
}

// schema returns the schema of the collection or nil for unknown collections.
func (s *storeImpl) schema(collection string) *relational.Schema {
	schema, _ := s.conf.Schemas.Get(collection)
	return schema
}

// patchRow translates patch fields into a row carrying the id and the update stamp.
func (s *storeImpl) patchRow(collection, id string, fields store.Record) (relational.Row, error) {
	stamped := maps.Clone(fields)
	if stamped == nil {
		stamped = store.Record{}
	}
	stamped[store.FieldID] = id
	stamped[store.FieldUpdatedAt] = s.clock()

	row, err := toRow(s.schema(collection), stamped, false)
	if err != nil {
		return nil, store.NewRecordError(store.RetCInvalidOperation, collection, id, fmt.Sprintf("patch cannot be encoded: %v", err))
	}
	return row, nil
}

// prepareRows translates the records of a collection into rows without calling the client.
// A later record with the same id replaces an earlier one.
func (s *storeImpl) prepareRows(collection string, records []store.Record) ([]relational.Row, error) {
	if collection == "" {
		return nil, store.NewError(store.RetCInvalidOperation, "invalid collection name")
	}

	schema := s.schema(collection)
	rows := make([]relational.Row, 0, len(records))
	positions := make(map[string]int, len(records))
	for i, record := range records {
		id := record.ID()
		if id == "" {
			return nil, store.NewRecordError(store.RetCInvalidOperation, collection, "", fmt.Sprintf("record %d has no id", i))
		}
		row, err := toRow(schema, record, true)
		if err != nil {
			return nil, store.NewRecordError(store.RetCInvalidOperation, collection, id, fmt.Sprintf("record cannot be encoded: %v", err))
		}
		if pos, dup := positions[id]; dup {
			rows[pos] = row
			continue
		}
		positions[id] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

// replaceRows deletes every row of the collection's table and writes rows.
func (s *storeImpl) replaceRows(collection string, rows []relational.Row) error {
	ctx, cancel := s.context()
	defer cancel()

	table := s.table(collection)
	if err := s.client.DeleteAll(ctx, table); err != nil && !errors.Is(err, relational.ErrTableNotFound) {
		return s.failure(store.RetCWriteFailure, collection, "", "clear", err)
	}
	if err := s.client.Upsert(ctx, table, rows); err != nil {
		return s.failure(store.RetCWriteFailure, collection, "", "write", err)
	}
	return nil
}

// failure translates a client error into a store error. The raw error is only logged.
func (s *storeImpl) failure(code store.RetCode, collection, id, op string, err error) error {
	log.Warningf("remote %s of %s/%s failed: %v", op, collection, id, err)

	var relErr *relational.Error
	switch {
	case errors.Is(err, relational.ErrTableNotFound):
		return store.NewRecordError(code, collection, id, fmt.Sprintf("remote %s failed: table %q does not exist", op, s.table(collection)))
	case errors.Is(err, context.DeadlineExceeded):
		return store.NewRecordError(code, collection, id, fmt.Sprintf("remote %s timed out after %s", op, s.timeout))
	case errors.Is(err, codec.ErrMalformedDate):
		return store.NewRecordError(store.RetCSchemaDrift, collection, id, fmt.Sprintf("remote %s failed: malformed date", op))
	case errors.As(err, &relErr):
		return store.NewRecordError(code, collection, id, fmt.Sprintf("remote %s rejected by the service (code %s)", op, relErr.Code))
	default:
		return store.NewRecordError(code, collection, id, fmt.Sprintf("remote %s failed: service unavailable", op))
	}
}

func validTarget(collection, id string) error {
	if collection == "" {
		return store.NewError(store.RetCInvalidOperation, "invalid collection name")
	}
	if id == "" {
		return store.NewRecordError(store.RetCInvalidOperation, collection, id, "invalid record id")
	}
	return nil
}
