package sys

import "runtime"

// Yield gives up the rest of the current scheduling quantum without
// blocking. Callers are goroutines, so the Go scheduler's yield is the one
// that lets the goroutine being waited on make progress.
func Yield() {
	runtime.Gosched()
}
