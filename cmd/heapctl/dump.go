package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/logger"
)

var dumpHeap heapOptions

func init() {
	cmd := newDumpCmd()
	dumpHeap.register(cmd)
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <step>...",
		Short: "Replay an allocation script and print the block registry",
		Long: `The dump command replays a script of allocation steps against a fresh
heap and prints every registry entry afterwards, in registry order.

Steps:
  a<size>[@<align>]  allocate size bytes, optionally aligned
  f<n>               free the n-th allocation of the script (from 0)

Example:
  heapctl dump a100 a200 f0
  heapctl dump a64@256 a10 f1 f0 --coalesce freed
  heapctl dump a5000 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args)
		},
	}
	return cmd
}

type stepKind int

const (
	stepAlloc stepKind = iota
	stepFree
)

// step is one parsed script entry.
type step struct {
	kind  stepKind
	size  uintptr
	align uintptr
	index int
}

// parseStep parses a single script token.
func parseStep(tok string) (step, error) {
	if len(tok) < 2 {
		return step{}, fmt.Errorf("invalid step %q", tok)
	}
	switch tok[0] {
	case 'a':
		sizeStr, alignStr, hasAlign := strings.Cut(tok[1:], "@")
		size, err := strconv.ParseUint(sizeStr, 10, 64)
		if err != nil {
			return step{}, fmt.Errorf("invalid size in step %q: %w", tok, err)
		}
		s := step{kind: stepAlloc, size: uintptr(size)}
		if hasAlign {
			align, err := strconv.ParseUint(alignStr, 10, 64)
			if err != nil {
				return step{}, fmt.Errorf("invalid alignment in step %q: %w", tok, err)
			}
			s.align = uintptr(align)
		}
		return s, nil
	case 'f':
		idx, err := strconv.Atoi(tok[1:])
		if err != nil || idx < 0 {
			return step{}, fmt.Errorf("invalid index in step %q", tok)
		}
		return step{kind: stepFree, index: idx}, nil
	default:
		return step{}, fmt.Errorf("invalid step %q: must start with 'a' or 'f'", tok)
	}
}

// DumpBlock is one registry entry in the dump output. Offset is relative
// to the lowest block address.
type DumpBlock struct {
	Addr    string `json:"addr"`
	Offset  uint64 `json:"offset"`
	DataLen uint64 `json:"data_len"`
	Free    bool   `json:"free"`
}

// DumpResult is the report printed by dump.
type DumpResult struct {
	Steps  []string    `json:"steps"`
	Blocks []DumpBlock `json:"blocks"`
	Stats  heap.Stats  `json:"stats"`
}

func runDump(args []string) error {
	steps := make([]step, 0, len(args))
	for _, tok := range args {
		s, err := parseStep(tok)
		if err != nil {
			return err
		}
		steps = append(steps, s)
	}

	h, err := dumpHeap.newHeap()
	if err != nil {
		return err
	}

	var allocs [][]byte
	freed := make(map[int]bool)
	for i, s := range steps {
		switch s.kind {
		case stepAlloc:
			p, err := h.Alloc(s.size, s.align)
			if err != nil {
				return fmt.Errorf("step %d (%s): %w", i, args[i], err)
			}
			logger.Debug("alloc", "step", args[i], "addr", fmt.Sprintf("%p", p), "cap", cap(p))
			allocs = append(allocs, p)
		case stepFree:
			if s.index >= len(allocs) {
				return fmt.Errorf("step %d (%s): only %d allocations so far", i, args[i], len(allocs))
			}
			if freed[s.index] {
				return fmt.Errorf("step %d (%s): allocation %d already freed", i, args[i], s.index)
			}
			h.Free(allocs[s.index])
			freed[s.index] = true
		}
	}

	if err := h.Verify(); err != nil {
		return fmt.Errorf("registry check failed: %w", err)
	}
	if live := len(allocs) - len(freed); live > 0 {
		logger.Warn("script leaves allocations live", "count", live)
	}

	res := DumpResult{Steps: args, Stats: h.Stats()}
	var base uintptr
	h.Walk(func(b heap.BlockInfo) bool {
		if base == 0 || b.Addr < base {
			base = b.Addr
		}
		res.Blocks = append(res.Blocks, DumpBlock{
			Addr:    fmt.Sprintf("%#x", b.Addr),
			Offset:  uint64(b.Addr),
			DataLen: uint64(b.DataLen),
			Free:    b.Free,
		})
		return true
	})
	for i := range res.Blocks {
		res.Blocks[i].Offset -= uint64(base)
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("Registry (%d blocks, header %d bytes):\n", len(res.Blocks), heap.HeaderSize())
	for i, b := range res.Blocks {
		state := "used"
		if b.Free {
			state = "free"
		}
		printInfo("  %3d  %s  +%-8d len=%-8d %s\n", i, b.Addr, b.Offset, b.DataLen, state)
	}
	printInfo("Mapped: %d bytes in %d regions\n", res.Stats.MappedBytes, res.Stats.MapCalls)
	return nil
}
