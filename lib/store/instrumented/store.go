package instrumented

import (
	"fmt"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// Status labels of the operation counter.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

type storeImpl struct {
	next    store.IStore
	backend string
	set     *metrics.Set
}

// Store is an IStore that records metrics for every operation of the wrapped store.
type Store interface {
	store.IStore

	// WritePrometheus writes the collected metrics in Prometheus text format.
	WritePrometheus(w io.Writer)

	// Count returns how often op finished with status ("ok" or "error").
	Count(op, status string) uint64
}

// New wraps next. backend is used as label of every metric (e.g. "local" or "remote").
func New(next store.IStore, backend string) Store {
	return &storeImpl{
		next:    next,
		backend: backend,
		set:     metrics.NewSet(),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) ReadAll(collection string) ([]store.Record, error) {
	defer s.observe("read_all", time.Now())
	records, err := s.next.ReadAll(collection)
	s.count("read_all", err)
	return records, err
}

func (s *storeImpl) ReadOne(collection, id string) (store.Record, bool, error) {
	defer s.observe("read_one", time.Now())
	record, ok, err := s.next.ReadOne(collection, id)
	s.count("read_one", err)
	return record, ok, err
}

func (s *storeImpl) WriteAll(collection string, records []store.Record) error {
	defer s.observe("write_all", time.Now())
	err := s.next.WriteAll(collection, records)
	s.count("write_all", err)
	return err
}

func (s *storeImpl) WriteOne(collection, id string, record store.Record) error {
	defer s.observe("write_one", time.Now())
	err := s.next.WriteOne(collection, id, record)
	s.count("write_one", err)
	return err
}

func (s *storeImpl) UpdatePartial(collection, id string, patch store.Patch) error {
	defer s.observe("update_partial", time.Now())
	err := s.next.UpdatePartial(collection, id, patch)
	s.count("update_partial", err)
	return err
}

func (s *storeImpl) UpdateBulk(collection string, updates []store.BulkUpdate) error {
	defer s.observe("update_bulk", time.Now())
	err := s.next.UpdateBulk(collection, updates)
	s.count("update_bulk", err)
	if err == nil {
		s.set.GetOrCreateCounter(s.name("kiln_store_bulk_entries_total", "update_bulk")).Add(len(updates))
	}
	return err
}

func (s *storeImpl) DeleteOne(collection, id string) (bool, error) {
	defer s.observe("delete_one", time.Now())
	loaded, err := s.next.DeleteOne(collection, id)
	s.count("delete_one", err)
	return loaded, err
}

func (s *storeImpl) Exists(collection string) (bool, error) {
	defer s.observe("exists", time.Now())
	exists, err := s.next.Exists(collection)
	s.count("exists", err)
	return exists, err
}

func (s *storeImpl) Clear(collection string) error {
	defer s.observe("clear", time.Now())
	err := s.next.Clear(collection)
	s.count("clear", err)
	return err
}

func (s *storeImpl) Backup() (*store.Document, error) {
	defer s.observe("backup", time.Now())
	doc, err := s.next.Backup()
	s.count("backup", err)
	return doc, err
}

func (s *storeImpl) Restore(doc *store.Document) error {
	defer s.observe("restore", time.Now())
	err := s.next.Restore(doc)
	s.count("restore", err)
	return err
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

func (s *storeImpl) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}

func (s *storeImpl) Count(op, status string) uint64 {
	return s.set.GetOrCreateCounter(s.name("kiln_store_operations_total", op, "status", status)).Get()
}

// count increments the operation counter, failures are additionally counted per return code.
func (s *storeImpl) count(op string, err error) {
	if err == nil {
		s.set.GetOrCreateCounter(s.name("kiln_store_operations_total", op, "status", StatusOK)).Inc()
		return
	}
	s.set.GetOrCreateCounter(s.name("kiln_store_operations_total", op, "status", StatusError)).Inc()
	s.set.GetOrCreateCounter(s.name("kiln_store_errors_total", op, "code", store.Code(err).String())).Inc()
}

// observe records the duration of an operation in seconds.
func (s *storeImpl) observe(op string, start time.Time) {
	s.set.GetOrCreateHistogram(s.name("kiln_store_operation_duration_seconds", op)).Update(time.Since(start).Seconds())
}

// name builds a metric name with the backend and op labels followed by extra label pairs.
func (s *storeImpl) name(metric, op string, labels ...string) string {
	out := fmt.Sprintf(`%s{backend=%q`, metric, s.backend)
	if op != "" {
		out += fmt.Sprintf(`,op=%q`, op)
	}
	for i := 0; i+1 < len(labels); i += 2 {
		out += fmt.Sprintf(`,%s=%q`, labels[i], labels[i+1])
	}
	return out + "}"
}
