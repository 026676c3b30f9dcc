package dtls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/lwm2m/pkg/crypto"
	"github.com/backkem/lwm2m/pkg/transport"
)

// MaxPlaintextSize is the largest application payload per record.
const MaxPlaintextSize = 1 << 14

// Session is a DTLS 1.2 PSK client session over a datagram connection.
//
// A Session is not safe for concurrent use. The caller drives it from a
// single goroutine, as the LWM2M client loop does.
type Session struct {
	conn   transport.Conn
	config Config
	log    logging.LeveledLogger

	state   State
	write   direction
	read    direction
	replay  ReceptionState
	pending []rawRecord
	rxBuf   []byte

	clientRandom []byte
	serverRandom []byte
}

// NewSession creates a session over conn. The handshake is not started.
func NewSession(conn transport.Conn, config Config) (*Session, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil conn", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	config.Identity = append([]byte(nil), config.Identity...)
	config.PSK = append([]byte(nil), config.PSK...)

	s := &Session{
		conn:   conn,
		config: config,
		rxBuf:  make([]byte, transport.MaxDatagramSize),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("dtls")
	}
	return s, nil
}

// State returns the session state.
func (s *Session) State() State { return s.state }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// handshakeState is scratch space for one handshake attempt.
type handshakeState struct {
	transcript *transcript
	queue      []handshakeMessage
	sendSeq    uint16

	firstHello []byte
	cookie     []byte
	gotHello   bool
	gotKX      bool
	hint       []byte

	expectedServerVerify []byte
}

func (hs *handshakeState) clear() {
	hs.transcript.clear()
	crypto.Zero(hs.expectedServerVerify)
}

// Handshake runs the client handshake to completion. On failure the session
// returns to StateUninitialized and Handshake may be called again.
func (s *Session) Handshake(ctx context.Context) error {
	if s.state != StateUninitialized {
		return fmt.Errorf("%w: handshake in state %s", ErrInvalidState, s.state)
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()

	s.resetRecordLayer()
	s.state = StateHandshakeInProgress
	hs := &handshakeState{transcript: newTranscript(s.config.MaxTranscriptSize)}
	defer hs.clear()

	if s.log != nil {
		s.log.Debugf("starting handshake with %s", s.conn.RemoteAddr())
	}
	if err := s.handshake(ctx, hs); err != nil {
		if desc, ok := alertFor(err); ok {
			s.sendAlert(AlertLevelFatal, desc)
		}
		s.resetRecordLayer()
		s.state = StateUninitialized
		if s.log != nil {
			s.log.Warnf("handshake with %s failed: %v", s.conn.RemoteAddr(), err)
		}
		return err
	}
	s.state = StateEstablished
	if s.log != nil {
		s.log.Infof("handshake with %s complete", s.conn.RemoteAddr())
	}
	return nil
}

func (s *Session) handshake(ctx context.Context, hs *handshakeState) error {
	s.clientRandom = make([]byte, crypto.RandomSize)
	if _, err := io.ReadFull(s.config.Rand, s.clientRandom); err != nil {
		return fmt.Errorf("dtls: client random: %w", err)
	}

	hello := clientHello{random: s.clientRandom}
	raw, err := s.sendClientHello(hs, &hello)
	if err != nil {
		return err
	}
	hs.firstHello = raw

	if err := s.readServerHelloFlight(ctx, hs, &hello); err != nil {
		return err
	}
	if err := s.sendClientFinishedFlight(hs); err != nil {
		return err
	}
	return s.readServerFinishedFlight(ctx, hs)
}

func (s *Session) sendClientHello(hs *handshakeState, hello *clientHello) ([]byte, error) {
	body, err := hello.marshal()
	if err != nil {
		return nil, err
	}
	raw, record, err := s.handshakeRecord(hs, HandshakeTypeClientHello, body)
	if err != nil {
		return nil, err
	}
	if _, err := s.conn.Send(record); err != nil {
		return nil, err
	}
	return raw, nil
}

// handshakeRecord frames body as the next outbound handshake message and
// seals it into a record.
func (s *Session) handshakeRecord(hs *handshakeState, typ HandshakeType, body []byte) (raw, record []byte, err error) {
	raw, err = marshalHandshake(typ, hs.sendSeq, body)
	if err != nil {
		return nil, nil, err
	}
	hs.sendSeq++
	record, err = s.write.seal(ContentTypeHandshake, raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, record, nil
}

// readServerHelloFlight consumes HelloVerifyRequest (at most one cookie
// exchange), ServerHello, the optional PSK ServerKeyExchange and
// ServerHelloDone.
func (s *Session) readServerHelloFlight(ctx context.Context, hs *handshakeState, hello *clientHello) error {
	for {
		msg, ccs, err := s.nextHandshakeMessage(ctx, hs)
		if err != nil {
			return err
		}
		if ccs {
			return fmt.Errorf("%w: ChangeCipherSpec before ServerHelloDone", ErrUnexpectedMessage)
		}

		switch msg.typ {
		case HandshakeTypeHelloVerifyRequest:
			if hs.gotHello {
				continue
			}
			var hvr helloVerifyRequest
			if err := hvr.unmarshal(msg.body); err != nil {
				return err
			}
			if hs.cookie != nil {
				if bytes.Equal(hvr.cookie, hs.cookie) {
					continue
				}
				return ErrCookieRetryExhausted
			}
			if len(hvr.cookie) == 0 {
				return fmt.Errorf("%w: empty cookie", ErrMalformedHandshake)
			}
			hs.cookie = hvr.cookie
			if s.log != nil {
				s.log.Debugf("retrying ClientHello with %d-byte cookie", len(hs.cookie))
			}

			// The cookie exchange is stateless on the server, so neither
			// hello so far is part of the transcript and record numbering
			// on the server side may start over.
			hs.firstHello = nil
			hs.transcript.reset()
			s.replay.Reset()
			hello.cookie = hs.cookie
			raw, err := s.sendClientHello(hs, hello)
			if err != nil {
				return err
			}
			if err := hs.transcript.add(raw); err != nil {
				return err
			}

		case HandshakeTypeServerHello:
			if hs.gotHello {
				continue
			}
			if hs.firstHello != nil {
				if err := hs.transcript.add(hs.firstHello); err != nil {
					return err
				}
				hs.firstHello = nil
			}
			var sh serverHello
			if err := sh.unmarshal(msg.body); err != nil {
				return err
			}
			if sh.version != ProtocolVersion {
				return fmt.Errorf("%w: %#04x", ErrUnsupportedVersion, sh.version)
			}
			if sh.cipherSuite != CipherSuitePSKWithAES128CCM8 || sh.compression != compressionNull {
				return fmt.Errorf("%w: suite %#04x compression %d", ErrUnsupportedCipherSuite, sh.cipherSuite, sh.compression)
			}
			if err := hs.transcript.add(msg.raw); err != nil {
				return err
			}
			s.serverRandom = sh.random
			hs.gotHello = true

		case HandshakeTypeServerKeyExchange:
			if !hs.gotHello {
				return fmt.Errorf("%w: ServerKeyExchange before ServerHello", ErrUnexpectedMessage)
			}
			if hs.gotKX {
				continue
			}
			var kx pskIdentity
			if err := kx.unmarshal(msg.body); err != nil {
				return err
			}
			if err := hs.transcript.add(msg.raw); err != nil {
				return err
			}
			hs.hint = kx.identity
			hs.gotKX = true
			if s.log != nil {
				s.log.Tracef("server identity hint %q", hs.hint)
			}

		case HandshakeTypeServerHelloDone:
			if !hs.gotHello {
				return fmt.Errorf("%w: ServerHelloDone before ServerHello", ErrUnexpectedMessage)
			}
			if len(msg.body) != 0 {
				return fmt.Errorf("%w: ServerHelloDone body", ErrMalformedHandshake)
			}
			return hs.transcript.add(msg.raw)

		default:
			return fmt.Errorf("%w: %s while awaiting ServerHelloDone", ErrUnexpectedMessage, msg.typ)
		}
	}
}

// sendClientFinishedFlight derives the keys and sends ClientKeyExchange,
// ChangeCipherSpec and Finished in one datagram.
func (s *Session) sendClientFinishedFlight(hs *handshakeState) error {
	kx := pskIdentity{identity: s.config.Identity}
	body, err := kx.marshal()
	if err != nil {
		return err
	}
	raw, kxRecord, err := s.handshakeRecord(hs, HandshakeTypeClientKeyExchange, body)
	if err != nil {
		return err
	}
	if err := hs.transcript.add(raw); err != nil {
		return err
	}

	preMaster := crypto.PSKPreMasterSecret(s.config.PSK)
	defer crypto.Zero(preMaster)
	master, err := crypto.MasterSecret(preMaster, s.clientRandom, s.serverRandom)
	if err != nil {
		return err
	}
	defer crypto.Zero(master)
	keys, err := crypto.ExpandKeys(master, s.clientRandom, s.serverRandom)
	if err != nil {
		return err
	}
	defer zeroKeys(keys)

	ccsRecord, err := s.write.seal(ContentTypeChangeCipherSpec, changeCipherSpecPayload)
	if err != nil {
		return err
	}
	if err := s.write.changeCipherSpec(keys.ClientWriteKey, keys.ClientWriteIV); err != nil {
		return err
	}
	// The read side switches when the server's ChangeCipherSpec arrives.
	if err := s.read.stage(keys.ServerWriteKey, keys.ServerWriteIV); err != nil {
		return err
	}

	verify, err := crypto.VerifyData(master, crypto.LabelClientFinished, hs.transcript.bytes())
	if err != nil {
		return err
	}
	raw, finRecord, err := s.handshakeRecord(hs, HandshakeTypeFinished, verify)
	if err != nil {
		return err
	}
	if err := hs.transcript.add(raw); err != nil {
		return err
	}
	hs.expectedServerVerify, err = crypto.VerifyData(master, crypto.LabelServerFinished, hs.transcript.bytes())
	if err != nil {
		return err
	}

	flight := make([]byte, 0, len(kxRecord)+len(ccsRecord)+len(finRecord))
	flight = append(flight, kxRecord...)
	flight = append(flight, ccsRecord...)
	flight = append(flight, finRecord...)
	_, err = s.conn.Send(flight)
	return err
}

// readServerFinishedFlight waits for the server's ChangeCipherSpec and
// Finished. Retransmitted epoch 0 handshake messages are ignored.
func (s *Session) readServerFinishedFlight(ctx context.Context, hs *handshakeState) error {
	for {
		msg, ccs, err := s.nextHandshakeMessage(ctx, hs)
		if err != nil {
			return err
		}
		if ccs {
			if s.read.epoch == 0 {
				if err := s.read.activate(); err != nil {
					return err
				}
			}
			continue
		}
		if s.read.epoch == 0 {
			// Retransmission of the server hello flight.
			continue
		}
		if msg.typ != HandshakeTypeFinished {
			return fmt.Errorf("%w: %s while awaiting Finished", ErrUnexpectedMessage, msg.typ)
		}
		if !crypto.HMACEqual(msg.body, hs.expectedServerVerify) {
			return ErrFinishedMismatch
		}
		return nil
	}
}

// nextHandshakeMessage returns the next queued handshake message, reading
// records as needed. ccs is true when a ChangeCipherSpec record arrived
// instead. Records that fail authentication or replay checks are dropped.
func (s *Session) nextHandshakeMessage(ctx context.Context, hs *handshakeState) (msg handshakeMessage, ccs bool, err error) {
	for {
		if len(hs.queue) > 0 {
			msg = hs.queue[0]
			hs.queue = hs.queue[1:]
			return msg, false, nil
		}

		if err := ctx.Err(); err != nil {
			return msg, false, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		timeout := s.config.HandshakeTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return msg, false, ErrHandshakeTimeout
			}
		}

		h, payload, err := s.readRecord(time.Now().Add(timeout))
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return msg, false, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
			}
			if IsRecordError(err) {
				if s.log != nil {
					s.log.Debugf("dropping record during handshake: %v", err)
				}
				continue
			}
			return msg, false, err
		}

		switch h.contentType {
		case ContentTypeHandshake:
			msgs, err := parseHandshakeMessages(payload)
			if err != nil {
				return msg, false, err
			}
			hs.queue = append(hs.queue, msgs...)
		case ContentTypeChangeCipherSpec:
			if !bytes.Equal(payload, changeCipherSpecPayload) {
				return msg, false, fmt.Errorf("%w: ChangeCipherSpec payload", ErrMalformedRecord)
			}
			return msg, true, nil
		case ContentTypeAlert:
			alert, err := parseAlert(payload)
			if err != nil {
				return msg, false, err
			}
			if alert.Level == AlertLevelFatal || alert.Description == AlertCloseNotify {
				return msg, false, alert
			}
		default:
			return msg, false, fmt.Errorf("%w: %s during handshake", ErrUnexpectedMessage, h.contentType)
		}
	}
}

// readRecord returns the next record in the current read epoch, decrypted.
// Records from other epochs are skipped. A zero deadline waits without
// bound.
func (s *Session) readRecord(deadline time.Time) (recordHeader, []byte, error) {
	for {
		if len(s.pending) == 0 {
			var timeout time.Duration
			if !deadline.IsZero() {
				timeout = time.Until(deadline)
				if timeout <= 0 {
					return recordHeader{}, nil, transport.ErrTimeout
				}
			}
			n, err := s.conn.Receive(s.rxBuf, timeout)
			if err != nil {
				return recordHeader{}, nil, err
			}
			datagram := append([]byte(nil), s.rxBuf[:n]...)
			records, err := splitRecords(datagram)
			if len(records) == 0 {
				if err == nil {
					err = fmt.Errorf("%w: empty datagram", ErrMalformedRecord)
				}
				return recordHeader{}, nil, err
			}
			if err != nil && s.log != nil {
				s.log.Debugf("ignoring datagram tail: %v", err)
			}
			s.pending = records
		}

		r := s.pending[0]
		s.pending = s.pending[1:]

		if r.header.epoch != s.read.epoch {
			if s.log != nil {
				s.log.Tracef("skipping %s record from epoch %d", r.header.contentType, r.header.epoch)
			}
			continue
		}
		if !s.replay.Check(r.header.epoch, r.header.sequence) {
			return r.header, nil, fmt.Errorf("%w: epoch %d seq %d", ErrReplayedRecord, r.header.epoch, r.header.sequence)
		}
		payload, err := s.read.open(&r)
		if err != nil {
			return r.header, nil, err
		}
		s.replay.Accept(r.header.epoch, r.header.sequence)
		return r.header, payload, nil
	}
}

// Send protects data as one application data record and sends it.
func (s *Session) Send(data []byte) (int, error) {
	if s.state != StateEstablished {
		return 0, fmt.Errorf("%w: send in state %s", ErrInvalidState, s.state)
	}
	if len(data) > MaxPlaintextSize {
		return 0, fmt.Errorf("%w: %d bytes", transport.ErrMessageTooLarge, len(data))
	}
	record, err := s.write.seal(ContentTypeApplicationData, data)
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.Send(record); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Receive waits up to timeout for one application data record and copies
// its plaintext into buf. It returns transport.ErrTimeout when nothing
// arrives, a record error (see IsRecordError) for a rejected record, and an
// *AlertError when the peer closes the session.
func (s *Session) Receive(buf []byte, timeout time.Duration) (int, error) {
	if s.state != StateEstablished {
		return 0, fmt.Errorf("%w: receive in state %s", ErrInvalidState, s.state)
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		h, payload, err := s.readRecord(deadline)
		if err != nil {
			return 0, err
		}
		switch h.contentType {
		case ContentTypeApplicationData:
			if len(payload) > len(buf) {
				return 0, fmt.Errorf("dtls: %w: record of %d bytes", io.ErrShortBuffer, len(payload))
			}
			return copy(buf, payload), nil
		case ContentTypeAlert:
			alert, err := parseAlert(payload)
			if err != nil {
				return 0, err
			}
			if alert.Level == AlertLevelFatal || alert.Description == AlertCloseNotify {
				s.state = StateClosed
				s.clearKeys()
				return 0, alert
			}
			if s.log != nil {
				s.log.Debugf("ignoring %v", alert)
			}
		default:
			if s.log != nil {
				s.log.Tracef("ignoring %s record after handshake", h.contentType)
			}
		}
	}
}

// Close sends close_notify if the session is established, discards the key
// material and closes the underlying connection.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	if s.state == StateEstablished {
		s.sendAlert(AlertLevelWarning, AlertCloseNotify)
	}
	s.state = StateClosed
	s.clearKeys()
	return s.conn.Close()
}

func (s *Session) sendAlert(level AlertLevel, desc AlertDescription) {
	record, err := s.write.seal(ContentTypeAlert, marshalAlert(level, desc))
	if err != nil {
		return
	}
	s.conn.Send(record)
}

func (s *Session) resetRecordLayer() {
	s.clearKeys()
	s.replay.Reset()
	s.pending = nil
}

func (s *Session) clearKeys() {
	s.write.clear()
	s.read.clear()
}

func zeroKeys(k *crypto.KeyBlock) {
	crypto.Zero(k.ClientWriteKey)
	crypto.Zero(k.ServerWriteKey)
	crypto.Zero(k.ClientWriteIV)
	crypto.Zero(k.ServerWriteIV)
}

// alertFor maps a local handshake failure to the alert sent to the server.
// Timeouts and transport errors are not reported.
func alertFor(err error) (AlertDescription, bool) {
	switch {
	case errors.Is(err, ErrFinishedMismatch):
		return AlertDecryptError, true
	case errors.Is(err, ErrUnsupportedCipherSuite):
		return AlertHandshakeFailure, true
	case errors.Is(err, ErrUnsupportedVersion):
		return AlertProtocolVersion, true
	case errors.Is(err, ErrMalformedHandshake), errors.Is(err, ErrFragmentedHandshake):
		return AlertDecodeError, true
	case errors.Is(err, ErrUnexpectedMessage):
		return AlertUnexpectedMessage, true
	case errors.Is(err, ErrHandshakeTooLarge):
		return AlertInternalError, true
	}
	return 0, false
}
