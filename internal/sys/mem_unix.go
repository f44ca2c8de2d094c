//go:build unix

package sys

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/heapkit/internal/buf"
)

// MapAnon maps n bytes of private, zeroed, read-write memory. The mapping is
// page aligned and is never returned to the OS.
func MapAnon(n uintptr) ([]byte, error) {
	if n == 0 || n > buf.MaxOffset {
		return nil, fmt.Errorf("sys: invalid mapping size %d", n)
	}
	data, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("sys: mmap %d bytes: %w", n, err)
	}
	return data, nil
}

// PageSize returns the OS page size.
func PageSize() int {
	return unix.Getpagesize()
}
