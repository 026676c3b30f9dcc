// Package transport provides the datagram connections the DTLS session runs
// over: connected UDP sockets for deployment and in-memory pipes for tests.
package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// Conn is a connected datagram endpoint. Delivery and ordering are not
// guaranteed. Receive never blocks past its timeout; a zero timeout blocks
// until a datagram arrives or the connection is closed.
type Conn interface {
	Send(b []byte) (int, error)
	Receive(buf []byte, timeout time.Duration) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// Dialer opens a Conn to host:port.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// NewConn adapts a connected net.Conn, such as a *net.UDPConn, to Conn.
// Timeouts are implemented with read deadlines.
func NewConn(c net.Conn) Conn {
	return &netConn{conn: c}
}

type netConn struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

func (c *netConn) Send(b []byte) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	if len(b) > MaxDatagramSize {
		return 0, ErrMessageTooLarge
	}
	return c.conn.Write(b)
}

func (c *netConn) Receive(buf []byte, timeout time.Duration) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, ErrTimeout
		}
		if c.isClosed() || errors.Is(err, net.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, err
	}
	return n, nil
}

func (c *netConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *netConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *netConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
