package store

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/kiln/cmd/util"
	"github.com/ValentinKolb/kiln/lib/common"
	"github.com/ValentinKolb/kiln/lib/model"
	"github.com/ValentinKolb/kiln/lib/store"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the configured store",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfCollection = model.Templates
	perfNumThreads = 4
	perfOps        = 200
	perfBatchSize  = 20
	perfSkip       = make([]string, 0)

	perfTests = []string{"write-one", "read-one", "update-partial", "update-bulk", "read-all", "delete-one"}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. read-all,update-bulk)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of concurrent workers (the local backend always uses one)"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 200, util.WrapString("Operations per worker and benchmark"))
	key = "batch"
	perfTestCmd.Flags().Int(key, 20, util.WrapString("Entries per update-bulk call"))
	key = "collection"
	perfTestCmd.Flags().String(key, model.Templates, util.WrapString("Collection the benchmark records are written to. Records are removed afterward"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfCollection = viper.GetString("collection")
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfOps = max(1, viper.GetInt("ops"))
	perfBatchSize = max(1, viper.GetInt("batch"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	// the local index is not safe for concurrent writers
	if handle.Config.Backend == common.BackendLocal && perfNumThreads > 1 {
		fmt.Println("local backend: running with a single worker")
		perfNumThreads = 1
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for kiln stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(handle.Config.String())
	fmt.Printf("Collection: %s, Threads: %d, Ops per thread: %d\n", perfCollection, perfNumThreads, perfOps)
	fmt.Println()

	// every worker owns its own ids
	ids := make([][]string, perfNumThreads)
	for w := range ids {
		ids[w] = make([]string, perfOps)
		for i := range ids[w] {
			ids[w][i] = "perf-" + uuid.NewString()
		}
	}
	defer cleanup(ids)

	registry := metrics.NewRegistry()
	s := handle.Store

	// the other benchmarks need the records of write-one
	if slices.Contains(perfSkip, "write-one") {
		if err := runWorkers(func(worker int) error {
			for _, id := range ids[worker] {
				if err := s.WriteOne(perfCollection, id, store.Record{"name": id}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("seeding benchmark records failed: %w", err)
		}
	}

	for _, test := range perfTests {
		if slices.Contains(perfSkip, test) {
			continue
		}
		timer := metrics.GetOrRegisterTimer(test, registry)

		start := time.Now()
		err := runWorkers(func(worker int) error {
			own := ids[worker]
			switch test {
			case "write-one":
				for i, id := range own {
					if err := measure(timer, func() error {
						return s.WriteOne(perfCollection, id, store.Record{"name": id, "body": "perf " + strconv.Itoa(i)})
					}); err != nil {
						return err
					}
				}
			case "read-one":
				for _, id := range own {
					if err := measure(timer, func() error {
						_, _, err := s.ReadOne(perfCollection, id)
						return err
					}); err != nil {
						return err
					}
				}
			case "update-partial":
				for _, id := range own {
					if err := measure(timer, func() error {
						return s.UpdatePartial(perfCollection, id, store.Fields{"subject": "updated"})
					}); err != nil {
						return err
					}
				}
			case "update-bulk":
				for batch := range slices.Chunk(own, perfBatchSize) {
					updates := make([]store.BulkUpdate, len(batch))
					for i, id := range batch {
						updates[i] = store.BulkUpdate{ID: id, Patch: store.Fields{"channel": "email"}}
					}
					if err := measure(timer, func() error {
						return s.UpdateBulk(perfCollection, updates)
					}); err != nil {
						return err
					}
				}
			case "read-all":
				for i := 0; i < max(1, perfOps/perfBatchSize); i++ {
					if err := measure(timer, func() error {
						_, err := s.ReadAll(perfCollection)
						return err
					}); err != nil {
						return err
					}
				}
			case "delete-one":
				for _, id := range own {
					if err := measure(timer, func() error {
						_, err := s.DeleteOne(perfCollection, id)
						return err
					}); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("benchmark %s failed: %w", test, err)
		}
		printResult(test, timer.Snapshot(), time.Since(start))
	}
	handle.MarkModified()

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runWorkers runs fn once per worker and waits for all of them
func runWorkers(fn func(worker int) error) error {
	var g errgroup.Group
	for w := 0; w < perfNumThreads; w++ {
		g.Go(func() error { return fn(w) })
	}
	return g.Wait()
}

// measure times a single store operation
func measure(timer metrics.Timer, op func() error) error {
	start := time.Now()
	err := op()
	timer.UpdateSince(start)
	return err
}

// cleanup removes every record written by the benchmark
func cleanup(ids [][]string) {
	for _, own := range ids {
		for _, id := range own {
			if _, err := handle.Store.DeleteOne(perfCollection, id); err != nil {
				fmt.Printf("(cleanup) - error deleting %s: %v\n", id, err)
			}
		}
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, t metrics.Timer, elapsed time.Duration) {
	if t.Count() == 0 {
		fmt.Printf("%-16sskipped\n", test)
		return
	}
	opsPerSec := float64(t.Count()) / elapsed.Seconds()
	fmt.Printf("%-16s%6d ops  mean %-12s p50 %-12s p99 %-12s %.0f ops/sec\n",
		test, t.Count(),
		time.Duration(t.Mean()), time.Duration(t.Percentile(0.5)), time.Duration(t.Percentile(0.99)),
		opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, registry metrics.Registry) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Test", "Count", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "Backend", "Threads", "Collection"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	var rowErr error
	registry.Each(func(name string, i interface{}) {
		t, ok := i.(metrics.Timer)
		if !ok || rowErr != nil {
			return
		}
		snap := t.Snapshot()
		row := []string{
			name,
			strconv.FormatInt(snap.Count(), 10),
			fmt.Sprintf("%.0f", snap.Mean()),
			fmt.Sprintf("%.0f", snap.Percentile(0.5)),
			fmt.Sprintf("%.0f", snap.Percentile(0.99)),
			strconv.FormatInt(snap.Max(), 10),
			string(handle.Config.Backend),
			strconv.Itoa(perfNumThreads),
			perfCollection,
		}
		if err := writer.Write(row); err != nil {
			rowErr = fmt.Errorf("failed to write row for test %s: %v", name, err)
		}
	})
	return rowErr
}
