package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/cell"
	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	lazyWorkers int
	lazyDelay   time.Duration
)

func init() {
	cmd := newLazyCmd()
	cmd.Flags().IntVar(&lazyWorkers, "workers", 16, "Goroutines racing for first use")
	cmd.Flags().DurationVar(&lazyDelay, "delay", 10*time.Millisecond, "Time the initializer takes")
	rootCmd.AddCommand(cmd)
}

func newLazyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lazy",
		Short: "Race goroutines on the first use of a lazy cell",
		Long: `The lazy command releases several goroutines at once against an
uninitialized lazy cell whose initializer is slow. It checks that the
initializer ran exactly once and that every goroutine observed its value.

Example:
  heapctl lazy
  heapctl lazy --workers 64 --delay 50ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLazy()
		},
	}
	return cmd
}

// LazyResult is the report printed by lazy.
type LazyResult struct {
	Workers int           `json:"workers"`
	Inits   int64         `json:"inits"`
	Value   int64         `json:"value"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

func runLazy() error {
	if lazyWorkers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}

	var inits atomic.Int64
	c := cell.New(func() int64 {
		n := inits.Add(1)
		time.Sleep(lazyDelay)
		return 42 * n
	})

	logger.Debug("lazy start", "workers", lazyWorkers, "delay", lazyDelay)

	seen := make([]int64, lazyWorkers)
	gate := make(chan struct{})
	start := time.Now()
	var wg sync.WaitGroup
	for i := range lazyWorkers {
		wg.Go(func() {
			<-gate
			seen[i] = c.Get()
		})
	}
	close(gate)
	wg.Wait()
	elapsed := time.Since(start)

	res := LazyResult{Workers: lazyWorkers, Inits: inits.Load(), Value: seen[0], Elapsed: elapsed}
	if res.Inits != 1 {
		return fmt.Errorf("initializer ran %d times", res.Inits)
	}
	for i, v := range seen {
		if v != res.Value {
			return fmt.Errorf("worker %d saw %d, want %d", i, v, res.Value)
		}
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("Initializer runs: %d\n", res.Inits)
	printInfo("Value:            %d (seen by %d goroutines)\n", res.Value, res.Workers)
	printInfo("Elapsed:          %v\n", res.Elapsed)
	return nil
}
