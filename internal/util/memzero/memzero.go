// Package memzero wipes key material from memory on a best-effort basis.
package memzero

import "runtime"

// Zero overwrites b with zeros.
//
//go:noinline
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

// All zeroes every buffer in bs.
func All(bs ...[]byte) {
	for _, b := range bs {
		Zero(b)
	}
}
