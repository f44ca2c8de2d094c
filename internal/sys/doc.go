// Package sys wraps the operating-system primitives the runtime layer is
// built on: anonymous memory mappings, futex-style wait/wake on a 32-bit
// word, and a cooperative yield.
//
// Each primitive has a native implementation where the platform offers one
// and a portable fallback elsewhere, selected by build tags.
package sys

import "time"

// NoTimeout makes FutexWait block until woken or until the word changes.
const NoTimeout time.Duration = -1

// DefaultPageSize is the granularity the allocator requests memory in. It is
// never smaller than the OS page size on supported platforms.
const DefaultPageSize = 4096
