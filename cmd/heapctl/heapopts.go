package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/logger"
)

// heapOptions are the allocator flags shared by churn and dump.
type heapOptions struct {
	pageSize uint
	coalesce string
	limit    uint
}

func (o *heapOptions) register(cmd *cobra.Command) {
	cmd.Flags().UintVar(&o.pageSize, "page-size", uint(heap.DefaultConfig.PageSize), "Growth granularity in bytes")
	cmd.Flags().StringVar(&o.coalesce, "coalesce", "all", "Coalescing after free: all or freed")
	cmd.Flags().UintVar(&o.limit, "limit", 0, "Cap on mapped bytes (0 = unlimited)")
}

func (o *heapOptions) reset() {
	o.pageSize = uint(heap.DefaultConfig.PageSize)
	o.coalesce = "all"
	o.limit = 0
}

// parseCoalesce maps a flag value to a coalescing mode.
func parseCoalesce(s string) (heap.CoalesceMode, error) {
	switch s {
	case "all", "":
		return heap.CoalesceAll, nil
	case "freed":
		return heap.CoalesceFreed, nil
	default:
		return 0, fmt.Errorf("unknown coalesce mode %q (want all or freed)", s)
	}
}

// newHeap builds a private heap from the flags. Verbose runs route the
// allocator's debug records through the CLI logger.
func (o *heapOptions) newHeap() (*heap.Heap, error) {
	mode, err := parseCoalesce(o.coalesce)
	if err != nil {
		return nil, err
	}
	cfg := heap.Config{
		PageSize: uintptr(o.pageSize),
		Coalesce: mode,
		Limit:    uintptr(o.limit),
	}
	if verbose && !quiet {
		cfg.Logger = logger.L
	}
	h, err := heap.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create heap: %w", err)
	}
	return h, nil
}
