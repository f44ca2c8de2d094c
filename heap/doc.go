// Package heap implements a general-purpose allocator over memory obtained
// in page-sized regions from the operating system.
//
// # Layout
//
// Every allocation is preceded by a fixed-size header:
//
//	+--------+------------------------+--------+-------------- ...
//	| header | data (dataLen bytes)   | header | data
//	+--------+------------------------+--------+-------------- ...
//	^        ^
//	block    pointer handed to the caller
//
// Headers are threaded into a single singly-linked registry. Data lengths are
// always a multiple of the header size, so every data start inherits the
// header's alignment (HeaderSize bytes).
//
// # Allocation
//
// Alloc rounds the request up to a whole number of header units, then walks
// the registry for a free block whose data start satisfies the alignment:
//
//   - a block of exactly that length is taken immediately
//   - otherwise the smallest larger block is taken and, if more than one
//     header's worth is left over, split
//   - if nothing fits, a new region is mapped and prepended; excess beyond
//     the request becomes a second free block
//
// Alignments above the page size are rejected.
//
// # Deallocation
//
// Free marks the block free and merges free blocks into their registry
// successors when the two are contiguous in memory. Merging is forward only:
// a block is never merged into the block before it in the same pass. With
// CoalesceAll (the default) the whole registry is walked after each free, so
// a pair freed in either order ends up merged. Memory is never returned to
// the operating system.
//
// # Concurrency
//
// A Heap is safe for concurrent use. Every operation runs under a
// locks.Mutex, which does not allocate and so may guard the allocator.
//
// # Process-wide Heap
//
// Default returns a heap created on first use that is never torn down.
// Create and Destroy reach the same heap through raw pointers for callers
// outside Go; package capi exports them with C linkage.
//
// # Usage Example
//
//	h, err := heap.New(nil)
//	if err != nil {
//	    return err
//	}
//	buf, err := h.Alloc(256, 64)
//	if err != nil {
//	    return err
//	}
//	copy(buf, payload)
//	h.Free(buf)
package heap
