package heap

import (
	"fmt"
	"unsafe"

	"github.com/joshuapare/heapkit/cell"
)

// Allocator is the allocation surface the rest of the runtime programs
// against.
type Allocator interface {
	Alloc(size, align uintptr) ([]byte, error)
	Free(p []byte)
}

var _ Allocator = (*Heap)(nil)

// defaultHeap is created on first use and lives for the rest of the process.
var defaultHeap = cell.New(func() *Heap {
	h, err := New(nil)
	if err != nil {
		panic(fmt.Sprintf("heap: default heap: %v", err))
	}
	return h
})

// Default returns the process-wide heap.
func Default() *Heap {
	return defaultHeap.Get()
}

// Create allocates size bytes aligned to align from the process-wide heap.
// It returns the data pointer and its usable length, or nil and 0 when the
// request cannot be satisfied.
func Create(size, align uintptr) (unsafe.Pointer, uintptr) {
	p, n, err := Default().AllocPtr(size, align)
	if err != nil {
		return nil, 0
	}
	return p, n
}

// Destroy frees a pointer returned by Create. nil is ignored.
func Destroy(p unsafe.Pointer) {
	if p == nil {
		return
	}
	Default().FreePtr(p)
}
