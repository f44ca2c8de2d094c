//go:build cgo

// Package capi exports the process-wide heap with C linkage so that code
// outside Go (a libc shim, for instance) allocates from the same registry.
//
// Link it into a c-archive or c-shared build by importing it for side
// effects from the main package; heapkit.h declares the entry points.
package capi

/*
#include <stddef.h>
*/
import "C"

import (
	"unsafe"

	"github.com/joshuapare/heapkit/heap"
)

//export heapkit_create
func heapkit_create(size, align C.size_t, outLen *C.size_t) unsafe.Pointer {
	p, n := create(uintptr(size), uintptr(align))
	if outLen != nil {
		*outLen = C.size_t(n)
	}
	return p
}

//export heapkit_destroy
func heapkit_destroy(p unsafe.Pointer) {
	destroy(p)
}

func create(size, align uintptr) (unsafe.Pointer, uintptr) {
	return heap.Create(size, align)
}

func destroy(p unsafe.Pointer) {
	heap.Destroy(p)
}
