package transport

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultDialTimeout bounds connection establishment when the caller does
// not supply a timeout.
const DefaultDialTimeout = 10 * time.Second

// recvBufferSize is the read chunk size. Companion frames are small; 4 KiB
// keeps copies cheap without fragmenting typical frames.
const recvBufferSize = 4096

// TCPConfig configures Dial.
type TCPConfig struct {
	// Timeout bounds connection establishment. Zero means
	// DefaultDialTimeout.
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// tcpConn adapts a net.Conn to the Conn interface.
type tcpConn struct {
	conn net.Conn
	log  logging.LeveledLogger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Dial opens a TCP connection to the device.
func Dial(host string, port int, config TCPConfig) (Conn, error) {
	if host == "" || port <= 0 || port > 65535 {
		return nil, ErrInvalidAddress
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}

	t := &tcpConn{conn: conn}
	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
		t.log.Debugf("connected to %s", addr)
	}
	return t, nil
}

// Send implements Conn.
func (t *tcpConn) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := t.conn.Write(data)
	if err != nil {
		return t.mapError(err)
	}
	return nil
}

// Recv implements Conn.
func (t *tcpConn) Recv() ([]byte, error) {
	buf := make([]byte, recvBufferSize)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil {
		return nil, t.mapError(err)
	}
	return nil, nil
}

// Close implements Conn.
func (t *tcpConn) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Debugf("closing connection to %s", t.conn.RemoteAddr())
	}
	return t.conn.Close()
}

// RemoteAddr implements Conn.
func (t *tcpConn) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// mapError folds peer shutdown and local close into ErrClosed.
func (t *tcpConn) mapError(err error) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed || err == io.EOF || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
