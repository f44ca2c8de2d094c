package heap

import "unsafe"

// block is the header placed immediately before every data region. Headers
// live inside memory obtained from a Source and are chained through next in
// registry order, which is not necessarily address order.
//
// The trailing pad keeps the header a power-of-two size so that every data
// start inherits the header's alignment.
type block struct {
	free    bool
	next    *block
	dataLen uintptr
	_       uintptr
}

// headerSize is both the header's footprint and the unit every data length
// is a multiple of.
const headerSize = unsafe.Sizeof(block{})

// carve writes a fresh header at p.
func carve(p unsafe.Pointer, dataLen uintptr, free bool, next *block) *block {
	b := (*block)(p)
	*b = block{free: free, next: next, dataLen: dataLen}
	return b
}

// blockOf recovers the header of a data pointer returned by the heap.
func blockOf(data unsafe.Pointer) *block {
	return (*block)(unsafe.Add(data, -int(headerSize)))
}

func (b *block) addr() uintptr {
	return uintptr(unsafe.Pointer(b))
}

func (b *block) data() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(b), headerSize)
}

func (b *block) dataAddr() uintptr {
	return b.addr() + headerSize
}

// end is the address one past the block's data region.
func (b *block) end() uintptr {
	return b.dataAddr() + b.dataLen
}

// bytes returns the whole data region.
func (b *block) bytes() []byte {
	return unsafe.Slice((*byte)(b.data()), b.dataLen)
}

// adjacent reports whether o starts exactly where b's data ends.
func (b *block) adjacent(o *block) bool {
	return o != nil && b.end() == o.addr()
}

// mergeable reports whether b can absorb its registry successor.
func (b *block) mergeable() bool {
	return b.free && b.next != nil && b.next.free && b.adjacent(b.next)
}

// insertHead links the chain first..last in front of the registry.
func (r *registry) insertHead(first, last *block) {
	last.next = r.head
	r.head = first
}

// split shrinks free block b to n data bytes and links the remainder after
// it as a new free block. Leftovers no larger than a header stay with b.
func (r *registry) split(b *block, n uintptr) bool {
	if b.dataLen <= n || b.dataLen-n <= headerSize {
		return false
	}
	tail := carve(unsafe.Add(b.data(), n), b.dataLen-n-headerSize, true, b.next)
	b.next = tail
	b.dataLen = n
	r.stats.Splits++
	return true
}

// coalesce merges b with each successor that is free and starts where b
// ends, stopping at the first that is not. It returns the number merged.
func (r *registry) coalesce(b *block) int {
	merged := 0
	for b.mergeable() {
		next := b.next
		b.dataLen += headerSize + next.dataLen
		b.next = next.next
		merged++
	}
	r.stats.Merges += merged
	return merged
}

// coalesceAll runs coalesce on every free block from the head.
func (r *registry) coalesceAll() int {
	merged := 0
	for b := r.head; b != nil; b = b.next {
		if b.free {
			merged += r.coalesce(b)
		}
	}
	return merged
}
