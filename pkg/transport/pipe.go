package transport

import "net"

// Pipe returns two connected in-memory Conns. Bytes written to one side
// arrive at the other. Used to run a session against a loopback accessory
// in tests.
func Pipe() (Conn, Conn) {
	c1, c2 := net.Pipe()
	return &tcpConn{conn: c1}, &tcpConn{conn: c2}
}
