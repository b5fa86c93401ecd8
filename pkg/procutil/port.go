package procutil

import (
	"fmt"
	"net"
	"time"
)

// connectTimeout bounds how long PortListening waits for a TCP handshake.
const connectTimeout = 1 * time.Second

// PortBindable reports whether a TCP listener can be opened on host:port.
// Success means the port is currently free; it never leaks the listener it
// opens to test this; the listener is always closed before returning.
func PortBindable(host string, port int) bool {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// PortListening reports whether something is already accepting connections
// on host:port, within a 1 second timeout. Connection refused, timeout, and
// any other dial error are all treated as "not listening".
func PortListening(host string, port int) bool {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
