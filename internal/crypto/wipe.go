package crypto

import "runtime"

// Wipe zeroes the buffer. Best-effort; aims to keep the compiler from
// eliding the writes.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
