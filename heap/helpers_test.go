package heap

import (
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// countingSource forwards to MmapSource and records every request.
type countingSource struct {
	calls atomic.Int32
	sizes []uintptr
}

func (s *countingSource) Map(size uintptr) ([]byte, error) {
	s.calls.Add(1)
	s.sizes = append(s.sizes, size)
	return MmapSource.Map(size)
}

// gappedSource maps twice the requested size and hands out the upper half,
// so no two regions it returns are ever contiguous.
type gappedSource struct {
	calls atomic.Int32
}

func (s *gappedSource) Map(size uintptr) ([]byte, error) {
	s.calls.Add(1)
	m, err := MmapSource.Map(2 * size)
	if err != nil {
		return nil, err
	}
	return m[size:], nil
}

// stackedSource serves regions from one mapping top-down, each new region
// ending exactly where the previous one starts.
type stackedSource struct {
	mem []byte
	top uintptr
}

func newStackedSource(t testing.TB, size uintptr) *stackedSource {
	t.Helper()
	m, err := MmapSource.Map(size)
	require.NoError(t, err)
	return &stackedSource{mem: m, top: size}
}

func (s *stackedSource) Map(size uintptr) ([]byte, error) {
	if size > s.top {
		return nil, errNoMemory
	}
	s.top -= size
	return s.mem[s.top : s.top+size : s.top+size], nil
}

// failingSource refuses every request.
type failingSource struct{}

var errNoMemory = errors.New("no physical memory")

func (failingSource) Map(uintptr) ([]byte, error) { return nil, errNoMemory }

// newTestHeap creates a heap over a countingSource.
func newTestHeap(t testing.TB, mode CoalesceMode) (*Heap, *countingSource) {
	t.Helper()
	src := &countingSource{}
	h, err := New(&Config{Source: src, Coalesce: mode})
	require.NoError(t, err)
	return h, src
}

// mustAlloc allocates or fails the test.
func mustAlloc(t testing.TB, h *Heap, size, align uintptr) []byte {
	t.Helper()
	p, err := h.Alloc(size, align)
	require.NoError(t, err)
	require.Len(t, p, int(size))
	return p
}

func addrOf(p []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

// fill writes a pattern derived from seed over the whole usable region.
func fill(p []byte, seed byte) {
	p = p[:cap(p)]
	for i := range p {
		p[i] = seed + byte(i*7)
	}
}

// checkPattern reports the first byte that no longer matches fill(p, seed).
func checkPattern(p []byte, seed byte) (int, bool) {
	p = p[:cap(p)]
	for i := range p {
		if p[i] != seed+byte(i*7) {
			return i, false
		}
	}
	return 0, true
}

// requireNoOverlap fails if any two live allocations share a byte.
func requireNoOverlap(t testing.TB, live [][]byte) {
	t.Helper()
	type rng struct{ start, end uintptr }
	ranges := make([]rng, 0, len(live))
	for _, p := range live {
		start := addrOf(p)
		ranges = append(ranges, rng{start, start + uintptr(cap(p))})
	}
	slices.SortFunc(ranges, func(a, b rng) int {
		switch {
		case a.start < b.start:
			return -1
		case a.start > b.start:
			return 1
		}
		return 0
	})
	for i := 1; i < len(ranges); i++ {
		require.LessOrEqual(t, ranges[i-1].end, ranges[i].start,
			"allocations %#x and %#x overlap", ranges[i-1].start, ranges[i].start)
	}
}

// blocks snapshots the registry.
func blocks(h *Heap) []BlockInfo {
	var out []BlockInfo
	h.Walk(func(b BlockInfo) bool {
		out = append(out, b)
		return true
	})
	return out
}

// blockFor finds the registry entry owning allocation p.
func blockFor(t testing.TB, h *Heap, p []byte) BlockInfo {
	t.Helper()
	want := addrOf(p) - headerSize
	for _, b := range blocks(h) {
		if b.Addr == want {
			return b
		}
	}
	t.Fatalf("no block for allocation %#x", addrOf(p))
	return BlockInfo{}
}

// removeAt deletes s[i] without preserving order.
func removeAt(s [][]byte, i int) [][]byte {
	s[i] = s[len(s)-1]
	return s[:len(s)-1]
}

func unsafePtr(p []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(p))
}
