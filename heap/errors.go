package heap

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory indicates that no free block fit and the memory source
	// could not supply more.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrTooLarge indicates a request whose header-adjusted size overflows the
	// signed offset range. It matches ErrOutOfMemory under errors.Is.
	ErrTooLarge = fmt.Errorf("%w: request too large", ErrOutOfMemory)

	// ErrBadAlign indicates an alignment that is not a power of two or is
	// larger than the page size.
	ErrBadAlign = errors.New("heap: unsupported alignment")

	// ErrShortMap indicates the memory source returned fewer bytes than asked.
	ErrShortMap = errors.New("heap: memory source returned a short region")

	// ErrMisaligned indicates the memory source returned a region that does
	// not start on a page boundary.
	ErrMisaligned = errors.New("heap: memory source returned a misaligned region")

	// ErrBadConfig indicates an invalid Config.
	ErrBadConfig = errors.New("heap: invalid config")

	// ErrCorrupt indicates the block registry failed verification.
	ErrCorrupt = errors.New("heap: corrupt block registry")
)
