package coap

import (
	"crypto/rand"
	"io"

	"github.com/backkem/lwm2m/pkg/wire"
)

// Session holds the per-connection message-ID and token bookkeeping: the
// next outgoing message ID and the message ID and token of the last inbound
// request that still awaits a response.
//
// A Session is not safe for concurrent use.
type Session struct {
	rand io.Reader

	nextMessageID uint16
	ackMessageID  uint16
	ackToken      []byte
	ackPending    bool
}

// NewSession creates a session drawing message IDs and tokens from r.
// A nil r uses crypto/rand.
func NewSession(r io.Reader) *Session {
	if r == nil {
		r = rand.Reader
	}
	return &Session{rand: r}
}

// Prepare resets the session for a new logical exchange sequence: the next
// message ID is re-seeded at random and any pending acknowledgement is
// dropped.
func (s *Session) Prepare() error {
	var b [2]byte
	if _, err := io.ReadFull(s.rand, b[:]); err != nil {
		return err
	}
	s.nextMessageID = wire.Uint16(b[:])
	s.ackMessageID = 0
	s.ackToken = nil
	s.ackPending = false
	return nil
}

// NextMessageID returns the message ID the next request will use.
func (s *Session) NextMessageID() uint16 {
	return s.nextMessageID
}

// AllocateMessageID returns the next message ID and advances the counter,
// wrapping at 16 bits.
func (s *Session) AllocateMessageID() uint16 {
	id := s.nextMessageID
	s.nextMessageID++
	return id
}

// RequestHeader appends a request header with a fresh message ID and a fresh
// 8-byte token to dst. It returns the extended buffer, the message ID and the
// token.
func (s *Session) RequestHeader(dst []byte, typ Type, code Code) ([]byte, uint16, []byte, error) {
	token := make([]byte, TokenSize)
	if _, err := io.ReadFull(s.rand, token); err != nil {
		return dst, 0, nil, err
	}
	id := s.AllocateMessageID()
	dst = appendHeader(dst, typ, code, id, token)
	return dst, id, token, nil
}

// Observe records an inbound request as the one awaiting a response.
func (s *Session) Observe(m *Message) {
	s.ackMessageID = m.MessageID
	s.ackToken = append(s.ackToken[:0], m.Token...)
	s.ackPending = true
}

// ResponseHeader appends a response header echoing the pending request's
// token. A piggybacked Acknowledgement reuses the request's message ID;
// separate responses (CON or NON) take a fresh one.
func (s *Session) ResponseHeader(dst []byte, typ Type, code Code) ([]byte, error) {
	if !s.ackPending {
		return dst, ErrNoPendingRequest
	}
	id := s.ackMessageID
	if typ != Acknowledgement {
		id = s.AllocateMessageID()
	}
	dst = appendHeader(dst, typ, code, id, s.ackToken)
	s.ackPending = false
	return dst, nil
}

// PendingMessageID returns the message ID of the request awaiting a
// response, and whether there is one.
func (s *Session) PendingMessageID() (uint16, bool) {
	return s.ackMessageID, s.ackPending
}

func appendHeader(dst []byte, typ Type, code Code, id uint16, token []byte) []byte {
	dst = append(dst, Version<<6|byte(typ&0x3)<<4|byte(len(token)), byte(code))
	dst = wire.AppendUint16(dst, id)
	return append(dst, token...)
}
