// Package instrumented provides a store.IStore decorator that records metrics
// for every operation of the wrapped store, using github.com/VictoriaMetrics/metrics.
//
// Collected metrics (all labelled with backend and op):
//
//	kiln_store_operations_total{status="ok"|"error"}   finished operations
//	kiln_store_errors_total{code="<RetCode>"}           failures by return code
//	kiln_store_operation_duration_seconds               duration histogram
//	kiln_store_bulk_entries_total                        entries applied by UpdateBulk
//
// The decorator does not change the semantics of the wrapped store: results and
// errors are passed through unchanged. Every Store owns its own metrics.Set, so
// several instances in one process do not share counters.
package instrumented
