package lwm2m

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lwm2m/pkg/coap"
	"github.com/backkem/lwm2m/pkg/dtls"
	"github.com/backkem/lwm2m/pkg/transport"
)

// securedConn is the record layer under an endpoint, a *dtls.Session.
type securedConn interface {
	Send(b []byte) (int, error)
	Receive(buf []byte, timeout time.Duration) (int, error)
	Close() error
	RemoteAddr() string
}

// endpoint is one secured CoAP association with a server: a DTLS session
// carrying CoAP messages with their message-ID and token state.
type endpoint struct {
	name string
	dtls securedConn
	coap *coap.Session
	log  logging.LeveledLogger
	buf  []byte

	ackTimeout time.Duration

	// backlog holds server requests that arrived while a client request
	// was waiting for its response.
	backlog [][]byte

	// cache is the response to the last confirmable request, resent when
	// the server retransmits it.
	cache responseCache
}

type responseCache struct {
	valid     bool
	messageID uint16
	token     []byte
	response  []byte
}

func (c *responseCache) lookup(m *coap.Message) ([]byte, bool) {
	if !c.valid || m.Type != coap.Confirmable || m.MessageID != c.messageID || !bytes.Equal(m.Token, c.token) {
		return nil, false
	}
	return c.response, true
}

func (c *responseCache) store(m *coap.Message, response []byte) {
	c.valid = true
	c.messageID = m.MessageID
	c.token = append(c.token[:0], m.Token...)
	c.response = append(c.response[:0], response...)
}

// dial opens a DTLS session to host:port and readies a CoAP session on it.
func (c *Client) dial(ctx context.Context, name, host string, port int, identity, psk []byte) (*endpoint, error) {
	conn, err := c.config.Dialer.Dial(ctx, host, port)
	if err != nil {
		return nil, fmt.Errorf("dial %s server: %w", name, err)
	}
	sess, err := dtls.NewSession(conn, dtls.Config{
		Identity:         identity,
		PSK:              psk,
		Rand:             c.config.Rand,
		HandshakeTimeout: c.config.HandshakeTimeout,
		LoggerFactory:    c.config.LoggerFactory,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := sess.Handshake(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s server handshake: %w", name, err)
	}

	ep := &endpoint{
		name: name,
		dtls: sess,
		coap: coap.NewSession(c.config.Rand),
		log:  c.log,
		buf:  make([]byte, dtls.MaxPlaintextSize),

		ackTimeout: c.config.ACKTimeout,
	}
	if err := ep.coap.Prepare(); err != nil {
		sess.Close()
		return nil, err
	}
	if c.log != nil {
		c.log.Infof("secured session to %s server %s", name, sess.RemoteAddr())
	}
	return ep, nil
}

func (e *endpoint) close() error {
	return e.dtls.Close()
}

func (e *endpoint) send(b []byte) error {
	_, err := e.dtls.Send(b)
	return err
}

// receive returns the next CoAP message, taking the backlog first. Rejected
// DTLS records are dropped. transport.ErrTimeout is returned when nothing
// usable arrives within timeout. For a CoAP parse error, coap.ErrorHeader
// recovers the header fields that did decode.
func (e *endpoint) receive(timeout time.Duration) (*coap.Message, error) {
	if len(e.backlog) > 0 {
		raw := e.backlog[0]
		e.backlog = e.backlog[1:]
		return coap.ParseMessage(raw)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, transport.ErrTimeout
		}
		n, err := e.dtls.Receive(e.buf, remaining)
		if err != nil {
			if dtls.IsRecordError(err) {
				if e.log != nil {
					e.log.Debugf("dropping record from %s server: %v", e.name, err)
				}
				continue
			}
			return nil, err
		}
		raw := append([]byte(nil), e.buf[:n]...)
		return coap.ParseMessage(raw)
	}
}

// request sends a confirmable request and waits for its response, either
// piggybacked on the acknowledgement or sent separately after an empty
// acknowledgement. Server requests that arrive meanwhile are queued for the
// next receive.
func (e *endpoint) request(ctx context.Context, code coap.Code, opts *coap.Options, payload []byte, timeout time.Duration) (*coap.Message, error) {
	out, req, err := e.coap.NewRequest(coap.Confirmable, code, opts, payload)
	if err != nil {
		return nil, err
	}
	if err := e.send(out); err != nil {
		return nil, err
	}
	if e.log != nil {
		e.log.Debugf("-> %s server: %s", e.name, req)
	}
	tx := coap.NewTransmission(out, time.Now(), e.ackTimeout, rand.Float64())

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	acked := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrRequestTimeout, code, opts.Path())
		}
		wait := remaining
		if !acked && !tx.Exhausted() {
			wait = min(wait, max(time.Until(tx.Deadline()), time.Millisecond))
		}
		n, err := e.dtls.Receive(e.buf, wait)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				if !acked && tx.Retransmit(time.Now()) {
					if e.log != nil {
						e.log.Debugf("retransmitting %s %s to %s server (attempt %d)", code, opts.Path(), e.name, tx.SendCount)
					}
					if err := e.send(tx.Message); err != nil {
						return nil, err
					}
				}
				continue
			}
			if dtls.IsRecordError(err) {
				continue
			}
			return nil, err
		}
		raw := append([]byte(nil), e.buf[:n]...)
		m, err := coap.ParseMessage(raw)
		if err != nil {
			if e.log != nil {
				e.log.Debugf("dropping malformed message from %s server: %v", e.name, err)
			}
			continue
		}

		switch {
		case m.Type == coap.Reset && m.MessageID == req.MessageID:
			return nil, fmt.Errorf("%w: %s %s", ErrRequestReset, code, opts.Path())

		case m.Type == coap.Acknowledgement && m.MessageID == req.MessageID:
			if m.Code == coap.Empty {
				acked = true
				continue
			}
			if !bytes.Equal(m.Token, req.Token) {
				continue
			}
			e.logResponse(m)
			return m, nil

		case (acked || m.Type != coap.Acknowledgement) && !m.Code.IsRequest() && m.Code != coap.Empty &&
			bytes.Equal(m.Token, req.Token):
			// Separate response.
			if m.Type == coap.Confirmable {
				ack := &coap.Message{Type: coap.Acknowledgement, Code: coap.Empty, MessageID: m.MessageID}
				b, err := ack.Marshal()
				if err != nil {
					return nil, err
				}
				if err := e.send(b); err != nil {
					return nil, err
				}
			}
			e.logResponse(m)
			return m, nil

		case m.Code.IsRequest():
			e.backlog = append(e.backlog, raw)

		default:
			if e.log != nil {
				e.log.Tracef("ignoring %s while waiting for a response", m)
			}
		}
	}
}

func (e *endpoint) logResponse(m *coap.Message) {
	if e.log != nil {
		e.log.Debugf("<- %s server: %s", e.name, m)
	}
}

// respond answers m, a request from the server, and caches the response
// when m is confirmable. Non-confirmable requests get a non-confirmable
// response.
func (e *endpoint) respond(m *coap.Message, code coap.Code, opts *coap.Options, payload []byte) error {
	typ := coap.Acknowledgement
	if m.Type == coap.NonConfirmable {
		typ = coap.NonConfirmable
	}
	e.coap.Observe(m)
	out, err := e.coap.NewResponse(typ, code, opts, payload)
	if err != nil {
		return err
	}
	if m.Type == coap.Confirmable {
		e.cache.store(m, out)
	}
	if e.log != nil {
		e.log.Debugf("-> %s server: %s %s for %s", e.name, typ, code, m.Options.Path())
	}
	return e.send(out)
}

// resendCached answers a retransmitted confirmable request with the
// response already sent for it. It returns false if m is not a duplicate.
func (e *endpoint) resendCached(m *coap.Message) (bool, error) {
	out, ok := e.cache.lookup(m)
	if !ok {
		return false, nil
	}
	if e.log != nil {
		e.log.Debugf("duplicate request mid=%d from %s server, resending response", m.MessageID, e.name)
	}
	return true, e.send(out)
}

// reset rejects a message with a Reset, used for pings and for
// confirmable messages that cannot be processed.
func (e *endpoint) reset(m *coap.Message) error {
	rst := &coap.Message{Type: coap.Reset, Code: coap.Empty, MessageID: m.MessageID}
	b, err := rst.Marshal()
	if err != nil {
		return err
	}
	return e.send(b)
}
