//go:build !unix

package sys

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/joshuapare/heapkit/internal/buf"
)

// MapAnon returns n zeroed bytes aligned to DefaultPageSize. Without mmap the
// memory comes from the Go heap; the caller must keep the slice reachable.
func MapAnon(n uintptr) ([]byte, error) {
	if n == 0 || n > buf.MaxOffset-DefaultPageSize {
		return nil, fmt.Errorf("sys: invalid mapping size %d", n)
	}
	raw := make([]byte, n+DefaultPageSize)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	aligned, _ := buf.AlignUp(base, DefaultPageSize)
	off := aligned - base
	return raw[off : off+n : off+n], nil
}

// PageSize returns the OS page size.
func PageSize() int {
	return os.Getpagesize()
}
