package dtls

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/backkem/lwm2m/pkg/crypto"
	"github.com/backkem/lwm2m/pkg/transport"
)

// testServer is a scripted DTLS PSK server built from this package's own
// record and handshake codecs. It exists so tests can observe and tamper
// with the server side of the exchange.
type testServer struct {
	conn transport.Conn

	identity []byte
	psk      []byte
	random   []byte
	hint     []byte

	// cookieRounds is how many HelloVerifyRequests to send. Each round uses
	// a distinct cookie.
	cookieRounds int
	suite        uint16
	badFinished  bool

	write      direction
	read       direction
	sendSeq    uint16
	transcript []byte
	pending    []rawRecord

	// appRecords holds every raw application data record received.
	appRecords [][]byte
	// lastSent is the last application data record sent to the client.
	lastSent []byte
}

func newTestServer(conn transport.Conn, identity, psk []byte) *testServer {
	return &testServer{
		conn:     conn,
		identity: identity,
		psk:      psk,
		random:   bytes.Repeat([]byte{0x5A}, crypto.RandomSize),
		suite:    CipherSuitePSKWithAES128CCM8,
	}
}

func (srv *testServer) next() (rawRecord, []byte, error) {
	for len(srv.pending) == 0 {
		buf := make([]byte, transport.MaxDatagramSize)
		n, err := srv.conn.Receive(buf, 2*time.Second)
		if err != nil {
			return rawRecord{}, nil, err
		}
		recs, err := splitRecords(buf[:n])
		if err != nil {
			return rawRecord{}, nil, err
		}
		srv.pending = recs
	}
	r := srv.pending[0]
	srv.pending = srv.pending[1:]
	pt, err := srv.read.open(&r)
	return r, pt, err
}

func (srv *testServer) nextHandshake(want HandshakeType) (handshakeMessage, error) {
	r, pt, err := srv.next()
	if err != nil {
		return handshakeMessage{}, err
	}
	if r.header.contentType != ContentTypeHandshake {
		return handshakeMessage{}, fmt.Errorf("got %s record, want handshake", r.header.contentType)
	}
	msgs, err := parseHandshakeMessages(pt)
	if err != nil {
		return handshakeMessage{}, err
	}
	if len(msgs) != 1 || msgs[0].typ != want {
		return handshakeMessage{}, fmt.Errorf("got %v, want one %s", msgs, want)
	}
	m := msgs[0]
	m.raw = append([]byte(nil), m.raw...)
	return m, nil
}

func (srv *testServer) handshakeRecord(typ HandshakeType, body []byte) ([]byte, []byte) {
	raw, err := marshalHandshake(typ, srv.sendSeq, body)
	if err != nil {
		panic(err)
	}
	srv.sendSeq++
	rec, err := srv.write.seal(ContentTypeHandshake, raw)
	if err != nil {
		panic(err)
	}
	return raw, rec
}

// handshake runs the server side to completion.
func (srv *testServer) handshake() error {
	msg, err := srv.nextHandshake(HandshakeTypeClientHello)
	if err != nil {
		return err
	}
	for i := 0; i < srv.cookieRounds; i++ {
		cookie := []byte(fmt.Sprintf("cookie-%d", i))
		hvr := helloVerifyRequest{version: ProtocolVersion, cookie: cookie}
		body, _ := hvr.marshal()
		_, rec := srv.handshakeRecord(HandshakeTypeHelloVerifyRequest, body)
		if _, err := srv.conn.Send(rec); err != nil {
			return err
		}
		if msg, err = srv.nextHandshake(HandshakeTypeClientHello); err != nil {
			return err
		}
		var ch clientHello
		if err := ch.unmarshal(msg.body); err != nil {
			return err
		}
		if !bytes.Equal(ch.cookie, cookie) {
			return fmt.Errorf("cookie %q, want %q", ch.cookie, cookie)
		}
	}

	var ch clientHello
	if err := ch.unmarshal(msg.body); err != nil {
		return err
	}
	clientRandom := append([]byte(nil), ch.random...)
	srv.transcript = append(srv.transcript, msg.raw...)

	sh := serverHello{version: ProtocolVersion, random: srv.random, cipherSuite: srv.suite}
	body, _ := sh.marshal()
	raw, flight := srv.handshakeRecord(HandshakeTypeServerHello, body)
	srv.transcript = append(srv.transcript, raw...)
	if srv.hint != nil {
		kx := pskIdentity{identity: srv.hint}
		body, _ := kx.marshal()
		raw, rec := srv.handshakeRecord(HandshakeTypeServerKeyExchange, body)
		srv.transcript = append(srv.transcript, raw...)
		flight = append(flight, rec...)
	}
	raw, rec := srv.handshakeRecord(HandshakeTypeServerHelloDone, nil)
	srv.transcript = append(srv.transcript, raw...)
	flight = append(flight, rec...)
	if _, err := srv.conn.Send(flight); err != nil {
		return err
	}

	if msg, err = srv.nextHandshake(HandshakeTypeClientKeyExchange); err != nil {
		return err
	}
	var kx pskIdentity
	if err := kx.unmarshal(msg.body); err != nil {
		return err
	}
	if !bytes.Equal(kx.identity, srv.identity) {
		return fmt.Errorf("identity %q, want %q", kx.identity, srv.identity)
	}
	srv.transcript = append(srv.transcript, msg.raw...)

	master, err := crypto.MasterSecret(crypto.PSKPreMasterSecret(srv.psk), clientRandom, srv.random)
	if err != nil {
		return err
	}
	keys, err := crypto.ExpandKeys(master, clientRandom, srv.random)
	if err != nil {
		return err
	}

	r, _, err := srv.next()
	if err != nil {
		return err
	}
	if r.header.contentType != ContentTypeChangeCipherSpec {
		return fmt.Errorf("got %s, want ChangeCipherSpec", r.header.contentType)
	}
	if err := srv.read.changeCipherSpec(keys.ClientWriteKey, keys.ClientWriteIV); err != nil {
		return err
	}

	if msg, err = srv.nextHandshake(HandshakeTypeFinished); err != nil {
		return err
	}
	want, _ := crypto.VerifyData(master, crypto.LabelClientFinished, srv.transcript)
	if !bytes.Equal(msg.body, want) {
		return errors.New("client finished mismatch")
	}
	srv.transcript = append(srv.transcript, msg.raw...)

	ccs, err := srv.write.seal(ContentTypeChangeCipherSpec, changeCipherSpecPayload)
	if err != nil {
		return err
	}
	if err := srv.write.changeCipherSpec(keys.ServerWriteKey, keys.ServerWriteIV); err != nil {
		return err
	}
	verify, _ := crypto.VerifyData(master, crypto.LabelServerFinished, srv.transcript)
	if srv.badFinished {
		verify[0] ^= 0xFF
	}
	_, fin := srv.handshakeRecord(HandshakeTypeFinished, verify)
	_, err = srv.conn.Send(append(ccs, fin...))
	return err
}

// receive returns the next application data payload.
func (srv *testServer) receive() ([]byte, error) {
	r, pt, err := srv.next()
	if err != nil {
		return nil, err
	}
	if r.header.contentType != ContentTypeApplicationData {
		return nil, fmt.Errorf("got %s record", r.header.contentType)
	}
	full := make([]byte, 0, RecordHeaderSize+len(r.payload))
	full = r.header.appendTo(full)
	srv.appRecords = append(srv.appRecords, append(full, r.payload...))
	return pt, nil
}

func (srv *testServer) send(data []byte) error {
	rec, err := srv.write.seal(ContentTypeApplicationData, data)
	if err != nil {
		return err
	}
	srv.lastSent = rec
	_, err = srv.conn.Send(rec)
	return err
}

func (srv *testServer) sendRaw(rec []byte) error {
	_, err := srv.conn.Send(rec)
	return err
}

func (srv *testServer) sendAlert(level AlertLevel, desc AlertDescription) error {
	rec, err := srv.write.seal(ContentTypeAlert, marshalAlert(level, desc))
	if err != nil {
		return err
	}
	_, err = srv.conn.Send(rec)
	return err
}

// echo answers each application record with "echo:" + payload, n times.
func (srv *testServer) echo(n int) error {
	for i := 0; i < n; i++ {
		pt, err := srv.receive()
		if err != nil {
			return err
		}
		if err := srv.send(append([]byte("echo:"), pt...)); err != nil {
			return err
		}
	}
	return nil
}
