package lwm2m

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	piondtls "github.com/pion/dtls/v2"

	"github.com/backkem/lwm2m/pkg/coap"
)

var (
	bootstrapIdentity = []byte("bs-client")
	bootstrapPSK      = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	serverIdentity    = []byte("dm-client")
	serverPSK         = []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80}
)

// testServer is an LWM2M server on pion's DTLS server. Client requests are
// answered by handle and queued on requests; client responses to server
// requests are queued on responses.
type testServer struct {
	t      *testing.T
	handle func(m *coap.Message) *coap.Message

	requests  chan *coap.Message
	responses chan *coap.Message

	mu   sync.Mutex
	conn *piondtls.Conn
	mid  uint16
}

func newTestServer(t *testing.T, handle func(m *coap.Message) *coap.Message) *testServer {
	return &testServer{
		t:         t,
		handle:    handle,
		requests:  make(chan *coap.Message, 64),
		responses: make(chan *coap.Message, 64),
		mid:       0x7000,
	}
}

func pionConfig() *piondtls.Config {
	return &piondtls.Config{
		PSK: func(identity []byte) ([]byte, error) {
			switch {
			case bytes.Equal(identity, bootstrapIdentity):
				return bootstrapPSK, nil
			case bytes.Equal(identity, serverIdentity):
				return serverPSK, nil
			}
			return nil, errors.New("unknown identity")
		},
		PSKIdentityHint: []byte("lwm2m"),
		CipherSuites:    []piondtls.CipherSuiteID{piondtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
}

// serve runs one DTLS association. It is registered with
// PipeDialer.HandleNet.
func (s *testServer) serve(nc net.Conn) {
	conn, err := piondtls.Server(nc, pionConfig())
	if err != nil {
		s.t.Logf("server handshake: %v", err)
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		m, err := coap.ParseMessage(append([]byte(nil), buf[:n]...))
		if err != nil {
			continue
		}
		if m.Code.IsRequest() {
			s.push(s.requests, m)
			s.mu.Lock()
			handle := s.handle
			s.mu.Unlock()
			if handle != nil {
				if resp := handle(m); resp != nil {
					s.write(resp)
				}
			}
			continue
		}
		s.push(s.responses, m)
	}
}

func (s *testServer) setHandler(handle func(m *coap.Message) *coap.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = handle
}

func (s *testServer) push(ch chan *coap.Message, m *coap.Message) {
	select {
	case ch <- m:
	default:
	}
}

func (s *testServer) write(m *coap.Message) {
	b, err := m.Marshal()
	if err != nil {
		s.t.Errorf("marshal %s: %v", m, err)
		return
	}
	s.writeRaw(b)
}

func (s *testServer) writeRaw(b []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Errorf("server write before handshake")
		return
	}
	if _, err := conn.Write(b); err != nil {
		s.t.Errorf("server write: %v", err)
	}
}

// request builds a confirmable server request to path.
func (s *testServer) request(code coap.Code, path string, payload []byte) *coap.Message {
	s.mu.Lock()
	s.mid++
	mid := s.mid
	s.mu.Unlock()
	m := &coap.Message{
		Type:      coap.Confirmable,
		Code:      code,
		MessageID: mid,
		Token:     []byte{0xB0, byte(mid >> 8), byte(mid)},
		Payload:   payload,
	}
	if err := m.Options.SetPath(path); err != nil {
		s.t.Fatalf("path %q: %v", path, err)
	}
	return m
}

func (s *testServer) nextRequest(t *testing.T) *coap.Message {
	t.Helper()
	return s.next(t, s.requests, "request")
}

func (s *testServer) nextResponse(t *testing.T) *coap.Message {
	t.Helper()
	return s.next(t, s.responses, "response")
}

func (s *testServer) next(t *testing.T, ch chan *coap.Message, what string) *coap.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(10 * time.Second):
		t.Fatalf("no %s from client", what)
		return nil
	}
}

// reply builds a piggybacked response to req.
func reply(req *coap.Message, code coap.Code) *coap.Message {
	return &coap.Message{
		Type:      coap.Acknowledgement,
		Code:      code,
		MessageID: req.MessageID,
		Token:     append([]byte(nil), req.Token...),
	}
}

// registrationHandler accepts registrations at /rd/5a3f.
func registrationHandler(m *coap.Message) *coap.Message {
	switch {
	case m.Code == coap.POST && m.IsPath("rd"):
		resp := reply(m, coap.Created)
		resp.Options.AddLocation("rd")
		resp.Options.AddLocation("5a3f")
		return resp
	case m.Code == coap.POST && m.IsPath("rd", "5a3f"):
		return reply(m, coap.Changed)
	case m.Code == coap.DELETE && m.IsPath("rd", "5a3f"):
		return reply(m, coap.Deleted)
	}
	return reply(m, coap.NotFound)
}

// bootstrapHandler accepts Bootstrap-Request.
func bootstrapHandler(m *coap.Message) *coap.Message {
	if m.Code == coap.POST && m.IsPath("bs") {
		return reply(m, coap.Changed)
	}
	return reply(m, coap.NotFound)
}
