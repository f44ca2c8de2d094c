package heap

import (
	"fmt"
	"slices"
	"unsafe"
)

type span struct {
	start, end uintptr
}

// Verify checks the registry invariants:
//
//   - the chain from head terminates
//   - every data length is a multiple of the header size
//   - every block lies inside memory obtained from the source
//   - no two blocks overlap
//   - the blocks account for every mapped byte
//
// It returns an error wrapping ErrCorrupt describing the first violation.
func (h *Heap) Verify() error {
	g := h.mu.Lock()
	defer g.Unlock()
	return g.Value().verify()
}

func (r *registry) verify() error {
	mapped := mergeSpans(r.regions)

	limit := r.mapped/headerSize + 1
	var blocks []span
	var covered uintptr
	for b := r.head; b != nil; b = b.next {
		if uintptr(len(blocks)) >= limit {
			return fmt.Errorf("%w: cycle after %d blocks", ErrCorrupt, len(blocks))
		}
		if b.dataLen%headerSize != 0 {
			return fmt.Errorf("%w: block %#x data length %d not a multiple of %d",
				ErrCorrupt, b.addr(), b.dataLen, headerSize)
		}
		s := span{start: b.addr(), end: b.end()}
		if !contained(mapped, s) {
			return fmt.Errorf("%w: block %#x-%#x outside mapped memory", ErrCorrupt, s.start, s.end)
		}
		blocks = append(blocks, s)
		covered += s.end - s.start
	}

	slices.SortFunc(blocks, func(a, b span) int {
		switch {
		case a.start < b.start:
			return -1
		case a.start > b.start:
			return 1
		}
		return 0
	})
	for i := 1; i < len(blocks); i++ {
		if blocks[i-1].end > blocks[i].start {
			return fmt.Errorf("%w: blocks %#x and %#x overlap", ErrCorrupt, blocks[i-1].start, blocks[i].start)
		}
	}

	if covered != r.mapped {
		return fmt.Errorf("%w: blocks cover %d bytes, %d mapped", ErrCorrupt, covered, r.mapped)
	}
	return nil
}

// mergeSpans returns the address ranges of regions sorted, with touching
// ranges joined. Coalescing may legitimately merge blocks across two
// regions the source happened to place back to back.
func mergeSpans(regions [][]byte) []span {
	out := make([]span, 0, len(regions))
	for _, m := range regions {
		start := uintptr(unsafe.Pointer(unsafe.SliceData(m)))
		out = append(out, span{start: start, end: start + uintptr(len(m))})
	}
	slices.SortFunc(out, func(a, b span) int {
		switch {
		case a.start < b.start:
			return -1
		case a.start > b.start:
			return 1
		}
		return 0
	})

	merged := out[:0]
	for _, s := range out {
		if n := len(merged); n > 0 && merged[n-1].end == s.start {
			merged[n-1].end = s.end
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func contained(spans []span, s span) bool {
	i, found := slices.BinarySearchFunc(spans, s.start, func(sp span, addr uintptr) int {
		switch {
		case sp.end <= addr:
			return -1
		case sp.start > addr:
			return 1
		}
		return 0
	})
	return found && s.end <= spans[i].end
}
