package dblock

import (
	"net"
	"time"
)

const lockAddr = "127.0.0.1:45433"

// Acquire serializes integration tests that share one database, across
// packages and processes. Release by calling the returned func.
func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
