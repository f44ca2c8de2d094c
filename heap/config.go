package heap

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/sys"
)

// Source supplies fresh memory to the heap.
//
// Map must return at least size bytes starting on a page boundary, or an
// error when the address space or physical memory is exhausted. The heap
// never gives memory back, so a Source does not need a release operation.
type Source interface {
	Map(size uintptr) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(size uintptr) ([]byte, error)

// Map implements Source.
func (f SourceFunc) Map(size uintptr) ([]byte, error) { return f(size) }

// MmapSource maps anonymous private memory from the OS.
var MmapSource Source = SourceFunc(sys.MapAnon)

// CoalesceMode selects how much of the registry is merged after a free.
// Both modes only ever merge a block into its registry successor.
type CoalesceMode int

const (
	// CoalesceAll walks the whole registry from its head after every free.
	CoalesceAll CoalesceMode = iota

	// CoalesceFreed walks forward from the freed block only.
	CoalesceFreed
)

func (m CoalesceMode) String() string {
	switch m {
	case CoalesceAll:
		return "all"
	case CoalesceFreed:
		return "freed"
	default:
		return fmt.Sprintf("CoalesceMode(%d)", int(m))
	}
}

// Config configures a Heap. The zero value of each field selects the
// corresponding DefaultConfig value.
type Config struct {
	// PageSize is the growth granularity and the largest supported
	// alignment. Must be a power of two.
	PageSize uintptr

	// Source supplies memory. Default: MmapSource.
	Source Source

	// Coalesce selects the merge strategy after Free. Default: CoalesceAll.
	Coalesce CoalesceMode

	// Limit caps the total bytes requested from Source. 0 means unlimited.
	Limit uintptr

	// Logger receives allocator debug records. When nil, records are only
	// emitted if HEAPKIT_LOG_ALLOC is set.
	Logger *slog.Logger
}

// DefaultConfig is used when New is called with a nil config.
var DefaultConfig = Config{
	PageSize: sys.DefaultPageSize,
	Source:   MmapSource,
	Coalesce: CoalesceAll,
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultConfig.PageSize
	}
	if c.Source == nil {
		c.Source = DefaultConfig.Source
	}
	return c
}

// Validate reports whether c can drive a Heap.
func (c Config) Validate() error {
	if !buf.IsPow2(c.PageSize) || c.PageSize < 2*headerSize {
		return fmt.Errorf("%w: page size %d must be a power of two >= %d", ErrBadConfig, c.PageSize, 2*headerSize)
	}
	if c.Source == nil {
		return fmt.Errorf("%w: nil source", ErrBadConfig)
	}
	if c.Coalesce != CoalesceAll && c.Coalesce != CoalesceFreed {
		return fmt.Errorf("%w: coalesce mode %v", ErrBadConfig, c.Coalesce)
	}
	if c.Limit != 0 && c.Limit < c.PageSize {
		return fmt.Errorf("%w: limit %d below page size %d", ErrBadConfig, c.Limit, c.PageSize)
	}
	return nil
}
