package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	churnOps     int
	churnMaxSize uint
	churnMaxLive int
	churnSeed    uint64
	churnAligned bool
	churnHeap    heapOptions
)

func init() {
	cmd := newChurnCmd()
	cmd.Flags().IntVar(&churnOps, "ops", 10000, "Number of allocate/free operations")
	cmd.Flags().UintVar(&churnMaxSize, "max-size", 2048, "Largest request in bytes")
	cmd.Flags().IntVar(&churnMaxLive, "max-live", 256, "Most allocations held at once")
	cmd.Flags().Uint64Var(&churnSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&churnAligned, "aligned", false, "Request random power-of-two alignments")
	churnHeap.register(cmd)
	rootCmd.AddCommand(cmd)
}

func newChurnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "churn",
		Short: "Run a randomized allocate/free workload",
		Long: `The churn command allocates and frees randomly sized blocks on a fresh
heap, stamping every block with a pattern and checking it before release. The
registry is verified after the run and the allocator counters are reported.

Example:
  heapctl churn
  heapctl churn --ops 100000 --max-size 8192 --coalesce freed
  heapctl churn --aligned --seed 7 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChurn()
		},
	}
	return cmd
}

// ChurnResult is the report printed by churn.
type ChurnResult struct {
	Ops      int           `json:"ops"`
	Seed     uint64        `json:"seed"`
	Coalesce string        `json:"coalesce"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Blocks   int           `json:"blocks"`
	Free     int           `json:"free_blocks"`
	Stats    heap.Stats    `json:"stats"`
}

type liveBlock struct {
	p    []byte
	seed byte
}

func runChurn() error {
	if churnOps < 0 || churnMaxLive <= 0 || churnMaxSize == 0 {
		return fmt.Errorf("ops must be >= 0, max-live and max-size must be > 0")
	}
	h, err := churnHeap.newHeap()
	if err != nil {
		return err
	}

	logger.Debug("churn start", "ops", churnOps, "seed", churnSeed, "max_size", churnMaxSize)

	rng := rand.New(rand.NewPCG(churnSeed, churnSeed^0x9e3779b97f4a7c15))
	live := make([]liveBlock, 0, churnMaxLive)
	start := time.Now()

	release := func(i int) error {
		lb := live[i]
		if err := checkStamp(lb.p, lb.seed); err != nil {
			return err
		}
		h.Free(lb.p)
		live[i] = live[len(live)-1]
		live = live[:len(live)-1]
		return nil
	}

	for op := 0; op < churnOps; op++ {
		if len(live) > 0 && (len(live) == churnMaxLive || rng.IntN(2) == 0) {
			if err := release(rng.IntN(len(live))); err != nil {
				return fmt.Errorf("op %d: %w", op, err)
			}
			continue
		}
		size := uintptr(rng.UintN(churnMaxSize)) + 1
		var align uintptr
		if churnAligned {
			align = 1 << rng.UintN(8)
		}
		p, err := h.Alloc(size, align)
		if err != nil {
			return fmt.Errorf("op %d: alloc %d bytes: %w", op, size, err)
		}
		seed := byte(op)
		stamp(p, seed)
		live = append(live, liveBlock{p: p, seed: seed})
	}
	for len(live) > 0 {
		if err := release(len(live) - 1); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	if err := h.Verify(); err != nil {
		return fmt.Errorf("registry check failed: %w", err)
	}
	logger.Info("churn done", "elapsed", elapsed)

	res := ChurnResult{
		Ops:      churnOps,
		Seed:     churnSeed,
		Coalesce: churnHeap.coalesce,
		Elapsed:  elapsed,
		Stats:    h.Stats(),
	}
	h.Walk(func(b heap.BlockInfo) bool {
		res.Blocks++
		if b.Free {
			res.Free++
		}
		return true
	})

	if jsonOut {
		return printJSON(res)
	}
	printChurn(res)
	return nil
}

func printChurn(r ChurnResult) {
	printInfo("Operations:    %d (seed %d, coalesce %s)\n", r.Ops, r.Seed, r.Coalesce)
	printInfo("Elapsed:       %v\n", r.Elapsed)
	printInfo("Mapped:        %d bytes in %d regions\n", r.Stats.MappedBytes, r.Stats.MapCalls)
	printInfo("Allocations:   %d (%d exact, %d best fit)\n", r.Stats.AllocCalls, r.Stats.ExactFits, r.Stats.BestFits)
	printInfo("Frees:         %d\n", r.Stats.FreeCalls)
	printInfo("Splits/Merges: %d/%d\n", r.Stats.Splits, r.Stats.Merges)
	printInfo("Registry:      %d blocks, %d free\n", r.Blocks, r.Free)
}

func stamp(p []byte, seed byte) {
	for i := range p {
		p[i] = seed + byte(i)
	}
}

func checkStamp(p []byte, seed byte) error {
	for i := range p {
		if p[i] != seed+byte(i) {
			return fmt.Errorf("block at %p corrupted at byte %d", &p[0], i)
		}
	}
	return nil
}
