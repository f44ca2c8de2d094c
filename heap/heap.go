package heap

import (
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/locks"
)

// Runtime debug flag for allocation logging - controlled by HEAPKIT_LOG_ALLOC env var.
var logAllocEnv = os.Getenv("HEAPKIT_LOG_ALLOC") != ""

// Stats holds allocator counters. All byte counts are data bytes unless
// noted.
type Stats struct {
	MapCalls     int    // Calls to the memory source
	MappedBytes  uint64 // Bytes obtained from the memory source, headers included
	AllocCalls   int    // Alloc calls, including failed ones
	FreeCalls    int    // Free calls
	ExactFits    int    // Allocations served by a block of exactly the normalized size
	BestFits     int    // Allocations served by the smallest larger block
	Splits       int    // Blocks split to return a remainder to the registry
	Merges       int    // Successor blocks absorbed by coalescing
	AlignRejects int    // Requests rejected for unsupported alignment
	Failures     int    // Requests that failed for any other reason
	InUseBytes   uint64 // Data bytes currently handed out
}

// BlockInfo describes one registry entry.
type BlockInfo struct {
	Addr    uintptr // Header address
	DataLen uintptr // Usable bytes after the header
	Free    bool
}

// registry is the state guarded by a Heap's mutex.
type registry struct {
	head     *block
	cfg      Config
	regions  [][]byte // keeps every mapping reachable; never released
	mapped   uintptr
	stats    Stats
	log      *slog.Logger
	logAlloc bool
}

// Heap turns coarse regions from a Source into individually sized
// allocations. It keeps a single free-block registry guarded by a futex
// mutex, so it is safe for concurrent use.
type Heap struct {
	mu locks.Mutex[registry]
}

// New creates a heap. A nil config selects DefaultConfig. No memory is
// requested until the first allocation.
func New(config *Config) (*Heap, error) {
	if config == nil {
		config = &DefaultConfig
	}
	cfg := config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := registry{cfg: cfg, log: cfg.Logger, logAlloc: cfg.Logger != nil}
	if r.log == nil {
		if logAllocEnv {
			r.log = logger.New(logger.Options{Enabled: true, Level: slog.LevelDebug})
			r.logAlloc = true
		} else {
			r.log = logger.L
		}
	}

	h := &Heap{}
	*h.mu.Inner() = r
	return h, nil
}

// Alloc returns size usable bytes whose address is a multiple of align.
// align must be a power of two no larger than the page size; 0 means no
// requirement. The slice has len == size and cap equal to the block's data
// length. Contents are unspecified.
//
// Alloc returns an error wrapping ErrOutOfMemory when memory runs out; it
// never panics on that path.
func (h *Heap) Alloc(size, align uintptr) ([]byte, error) {
	g := h.mu.Lock()
	defer g.Unlock()

	b, err := g.Value().allocate(size, align)
	if err != nil {
		return nil, err
	}
	return b.bytes()[:size], nil
}

// AllocPtr is Alloc for callers that deal in raw pointers. It returns the
// data pointer and the usable length, or nil and 0 with an error.
func (h *Heap) AllocPtr(size, align uintptr) (unsafe.Pointer, uintptr, error) {
	g := h.mu.Lock()
	defer g.Unlock()

	b, err := g.Value().allocate(size, align)
	if err != nil {
		return nil, 0, err
	}
	return b.data(), b.dataLen, nil
}

// Free returns an allocation to the heap. p must be a slice returned by
// Alloc (or a reslice starting at the same address) that has not been
// freed; anything else corrupts the heap. A nil p is ignored.
func (h *Heap) Free(p []byte) {
	h.FreePtr(unsafe.Pointer(unsafe.SliceData(p)))
}

// FreePtr is Free for a pointer returned by AllocPtr.
func (h *Heap) FreePtr(p unsafe.Pointer) {
	if p == nil {
		return
	}
	g := h.mu.Lock()
	defer g.Unlock()
	g.Value().free(p)
}

// Stats returns a snapshot of the allocator counters.
func (h *Heap) Stats() Stats {
	g := h.mu.Lock()
	defer g.Unlock()
	return g.Value().stats
}

// Walk calls fn for every block in registry order until fn returns false.
// The heap is locked for the duration; fn must not call back into h.
func (h *Heap) Walk(fn func(BlockInfo) bool) {
	g := h.mu.Lock()
	defer g.Unlock()
	for b := g.Value().head; b != nil; b = b.next {
		if !fn(BlockInfo{Addr: b.addr(), DataLen: b.dataLen, Free: b.free}) {
			return
		}
	}
}

// HeaderSize is the per-block overhead and the granularity of data lengths.
func HeaderSize() uintptr {
	return headerSize
}

// normalize rounds a request up to a whole number of header units. Zero
// becomes one unit so that live allocations never share an address.
func normalize(size uintptr) (uintptr, bool) {
	return buf.AlignUp(max(size, 1), headerSize)
}

func (r *registry) allocate(size, align uintptr) (*block, error) {
	r.stats.AllocCalls++

	if align == 0 {
		align = 1
	}
	if !buf.IsPow2(align) || align > r.cfg.PageSize {
		r.stats.AlignRejects++
		if r.logAlloc {
			r.log.Debug("alloc rejected", "size", size, "align", align, "page_size", r.cfg.PageSize)
		}
		return nil, fmt.Errorf("%w: %d (page size %d)", ErrBadAlign, align, r.cfg.PageSize)
	}

	n, ok := normalize(size)
	if !ok {
		r.stats.Failures++
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	b, exact := r.find(n, align)
	switch {
	case b != nil && exact:
		r.stats.ExactFits++
	case b != nil:
		r.stats.BestFits++
		if r.split(b, n) && r.logAlloc {
			r.log.Debug("split", "block", b.addr(), "need", n, "rest", b.next.dataLen)
		}
	default:
		var err error
		if b, err = r.grow(n, align); err != nil {
			r.stats.Failures++
			if r.logAlloc {
				r.log.Debug("alloc failed", "size", size, "align", align, "err", err)
			}
			return nil, err
		}
	}

	b.free = false
	r.stats.InUseBytes += uint64(b.dataLen)
	return b, nil
}

// find walks the registry for a free block whose data start satisfies
// align. An exact length match ends the walk; otherwise the smallest larger
// block wins.
func (r *registry) find(n, align uintptr) (best *block, exact bool) {
	for b := r.head; b != nil; b = b.next {
		if !b.free || !buf.IsAligned(b.dataAddr(), align) {
			continue
		}
		if b.dataLen == n {
			return b, true
		}
		if b.dataLen > n && (best == nil || b.dataLen < best.dataLen) {
			best = b
		}
	}
	return best, false
}

// grow maps a new region holding a block of n data bytes aligned to align
// and prepends it to the registry. Space in front of the block (needed only
// for alignments above the header size) and any excess behind it become
// free blocks of their own.
func (r *registry) grow(n, align uintptr) (*block, error) {
	var pad uintptr
	if align > headerSize {
		pad = align - headerSize
	}

	need, ok := buf.AddOverflowSafe(n, pad+headerSize)
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	size, ok := buf.AlignUp(need, r.cfg.PageSize)
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	if lim := r.cfg.Limit; lim != 0 && (size > lim || r.mapped > lim-size) {
		return nil, fmt.Errorf("%w: limit %d reached (mapped %d, need %d)", ErrOutOfMemory, lim, r.mapped, size)
	}

	r.stats.MapCalls++
	mem, err := r.cfg.Source.Map(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	if uintptr(len(mem)) < size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrShortMap, len(mem), size)
	}
	base := unsafe.Pointer(unsafe.SliceData(mem))
	if !buf.IsAligned(uintptr(base), r.cfg.PageSize) {
		return nil, fmt.Errorf("%w: %#x", ErrMisaligned, uintptr(base))
	}

	total := uintptr(len(mem))
	r.regions = append(r.regions, mem)
	r.mapped += total
	r.stats.MappedBytes += uint64(total)

	b := carve(unsafe.Add(base, pad), n, true, nil)
	first, last := b, b
	if pad > 0 {
		first = carve(base, pad-headerSize, true, b)
	}
	if rest := total - pad - headerSize - n; rest > headerSize {
		last = carve(unsafe.Add(b.data(), n), rest-headerSize, true, nil)
		b.next = last
	} else {
		b.dataLen += rest
	}
	r.insertHead(first, last)

	if r.logAlloc {
		r.log.Debug("grow",
			"need", n,
			"align", align,
			"mapped", total,
			"regions", len(r.regions),
			"total_mapped", r.mapped,
		)
	}
	return b, nil
}

func (r *registry) free(p unsafe.Pointer) {
	b := blockOf(p)
	r.stats.FreeCalls++
	r.stats.InUseBytes -= uint64(b.dataLen)
	b.free = true

	if r.cfg.Coalesce == CoalesceFreed {
		r.coalesce(b)
		return
	}
	r.coalesceAll()
}
