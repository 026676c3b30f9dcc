package transport

import (
	"context"
	"net"
	"strconv"

	"github.com/pion/logging"
)

// Default CoAP ports (RFC 7252 Section 6).
const (
	DefaultCoAPPort  = 5683
	DefaultCoAPSPort = 5684
)

// UDPDialer dials connected UDP sockets.
type UDPDialer struct {
	// LocalAddr optionally binds the local side (e.g. ":56830").
	LocalAddr string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Dial resolves host and opens a UDP socket connected to it.
func (d *UDPDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	if host == "" || port <= 0 || port > 0xFFFF {
		return nil, ErrInvalidAddress
	}

	var log logging.LeveledLogger
	if d.LoggerFactory != nil {
		log = d.LoggerFactory.NewLogger("transport-udp")
	}

	nd := net.Dialer{}
	if d.LocalAddr != "" {
		laddr, err := net.ResolveUDPAddr("udp", d.LocalAddr)
		if err != nil {
			return nil, err
		}
		nd.LocalAddr = laddr
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c, err := nd.DialContext(ctx, "udp", addr)
	if err != nil {
		if log != nil {
			log.Warnf("dial %s failed: %v", addr, err)
		}
		return nil, err
	}
	if log != nil {
		log.Debugf("connected %s -> %s", c.LocalAddr(), c.RemoteAddr())
	}
	return NewConn(c), nil
}

var _ Dialer = (*UDPDialer)(nil)
