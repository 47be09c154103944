// Package dblock serializes Postgres-backed tests across test binaries. Every
// package that truncates shared tables takes the lock first.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:45432"

// Acquire blocks until this process holds the lock and returns its release
// func. DBLOCK_ADDR overrides the listener address used as the lock.
func Acquire() func() {
	addr := os.Getenv("DBLOCK_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
