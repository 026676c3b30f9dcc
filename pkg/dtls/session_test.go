package dtls

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/backkem/lwm2m/pkg/transport"
)

var (
	testIdentity = []byte("urn:imei:490154203237518")
	testPSK      = []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}
)

// fixedReader yields the same byte forever.
type fixedReader byte

func (r fixedReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

type sessionHarness struct {
	client *Session
	server *testServer
	done   chan error
}

// newHarness wires a client session to a testServer over a pipe. The server
// runs configure before the handshake and serve after it.
func newHarness(t *testing.T, cfg Config, configure, serve func(*testServer) error) *sessionHarness {
	t.Helper()
	p := transport.NewPipe()
	t.Cleanup(func() { p.Close() })

	srv := newTestServer(p.Conn1(), testIdentity, testPSK)
	if configure != nil {
		configure(srv)
	}
	h := &sessionHarness{server: srv, done: make(chan error, 1)}
	go func() {
		err := srv.handshake()
		if err == nil && serve != nil {
			err = serve(srv)
		}
		h.done <- err
	}()

	if cfg.Identity == nil {
		cfg.Identity = testIdentity
	}
	if cfg.PSK == nil {
		cfg.PSK = testPSK
	}
	if cfg.Rand == nil {
		cfg.Rand = fixedReader(0x11)
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 2 * time.Second
	}
	s, err := NewSession(p.Conn0(), cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h.client = s
	return h
}

func (h *sessionHarness) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("server: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not finish")
	}
}

func TestSession_Handshake(t *testing.T) {
	tests := []struct {
		name         string
		cookieRounds int
		hint         []byte
	}{
		{"no cookie, no hint", 0, nil},
		{"cookie", 1, nil},
		{"cookie and hint", 1, []byte("lwm2m-server")},
		{"hint", 0, []byte("h")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{},
				func(srv *testServer) error {
					srv.cookieRounds = tt.cookieRounds
					srv.hint = tt.hint
					return nil
				},
				func(srv *testServer) error { return srv.echo(1) })

			if h.client.State() != StateUninitialized {
				t.Fatalf("initial state = %s", h.client.State())
			}
			if err := h.client.Handshake(context.Background()); err != nil {
				t.Fatalf("Handshake: %v", err)
			}
			if h.client.State() != StateEstablished {
				t.Fatalf("state = %s", h.client.State())
			}

			if _, err := h.client.Send([]byte("</3/0>")); err != nil {
				t.Fatalf("Send: %v", err)
			}
			buf := make([]byte, 64)
			n, err := h.client.Receive(buf, 2*time.Second)
			if err != nil {
				t.Fatalf("Receive: %v", err)
			}
			if got := string(buf[:n]); got != "echo:</3/0>" {
				t.Errorf("Receive = %q", got)
			}
			h.wait(t)
		})
	}
}

func TestSession_Deterministic(t *testing.T) {
	firstRecord := func(rand fixedReader) []byte {
		var rec []byte
		h := newHarness(t, Config{Rand: rand}, nil, func(srv *testServer) error {
			if _, err := srv.receive(); err != nil {
				return err
			}
			rec = srv.appRecords[0]
			return nil
		})
		if err := h.client.Handshake(context.Background()); err != nil {
			t.Fatalf("Handshake: %v", err)
		}
		if _, err := h.client.Send([]byte("payload")); err != nil {
			t.Fatalf("Send: %v", err)
		}
		h.wait(t)
		return rec
	}

	a := firstRecord(0x11)
	b := firstRecord(0x11)
	if !bytes.Equal(a, b) {
		t.Errorf("same randoms gave different records:\n%x\n%x", a, b)
	}
	c := firstRecord(0x22)
	if bytes.Equal(a, c) {
		t.Error("different client random gave identical records")
	}
}

func TestSession_SequenceNumbersIncrease(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(srv *testServer) error { return srv.echo(3) })
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	buf := make([]byte, 64)
	for i := 0; i < 3; i++ {
		if _, err := h.client.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if _, err := h.client.Receive(buf, 2*time.Second); err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
	}
	h.wait(t)

	// Finished took sequence 0 of epoch 1.
	for i, rec := range h.server.appRecords {
		var hdr recordHeader
		if err := hdr.unmarshal(rec); err != nil {
			t.Fatal(err)
		}
		if hdr.epoch != 1 || hdr.sequence != uint64(i+1) {
			t.Errorf("record %d: epoch %d seq %d, want epoch 1 seq %d", i, hdr.epoch, hdr.sequence, i+1)
		}
	}
}

func TestSession_RejectsReplay(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(srv *testServer) error {
		if err := srv.send([]byte("first")); err != nil {
			return err
		}
		if err := srv.sendRaw(srv.lastSent); err != nil {
			return err
		}
		return srv.send([]byte("second"))
	})
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	h.wait(t)

	buf := make([]byte, 64)
	n, err := h.client.Receive(buf, time.Second)
	if err != nil || string(buf[:n]) != "first" {
		t.Fatalf("Receive 1 = %q, %v", buf[:n], err)
	}
	_, err = h.client.Receive(buf, time.Second)
	if !errors.Is(err, ErrReplayedRecord) {
		t.Fatalf("Receive 2 err = %v, want ErrReplayedRecord", err)
	}
	if !IsRecordError(err) {
		t.Error("replay should be a record error")
	}
	n, err = h.client.Receive(buf, time.Second)
	if err != nil || string(buf[:n]) != "second" {
		t.Fatalf("Receive 3 = %q, %v", buf[:n], err)
	}
}

func TestSession_ReceiveTimeoutWithIgnoredRecords(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(srv *testServer) error {
		for i := 0; i < 40; i++ {
			rec, err := srv.write.seal(ContentTypeAlert, marshalAlert(AlertLevelWarning, AlertUnexpectedMessage))
			if err != nil {
				return err
			}
			if err := srv.sendRaw(rec); err != nil {
				return err
			}
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	})
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	buf := make([]byte, 64)
	start := time.Now()
	_, err := h.client.Receive(buf, 100*time.Millisecond)
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("Receive took %s with a 100ms timeout", elapsed)
	}
	h.wait(t)
}

func TestSession_BadRecordMAC(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(srv *testServer) error {
		rec, err := srv.write.seal(ContentTypeApplicationData, []byte("tampered"))
		if err != nil {
			return err
		}
		rec[len(rec)-1] ^= 0x01
		if err := srv.sendRaw(rec); err != nil {
			return err
		}
		return srv.send([]byte("intact"))
	})
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	h.wait(t)

	buf := make([]byte, 64)
	if _, err := h.client.Receive(buf, time.Second); !errors.Is(err, ErrBadRecordMAC) {
		t.Fatalf("err = %v, want ErrBadRecordMAC", err)
	}
	n, err := h.client.Receive(buf, time.Second)
	if err != nil || string(buf[:n]) != "intact" {
		t.Fatalf("Receive = %q, %v", buf[:n], err)
	}
}

func TestSession_HandshakeFailures(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		configure func(*testServer) error
		wantErr   error
	}{
		{
			name:      "second cookie",
			configure: func(srv *testServer) error { srv.cookieRounds = 2; return nil },
			wantErr:   ErrCookieRetryExhausted,
		},
		{
			name:      "server finished mismatch",
			configure: func(srv *testServer) error { srv.badFinished = true; return nil },
			wantErr:   ErrFinishedMismatch,
		},
		{
			name:      "unsupported suite",
			configure: func(srv *testServer) error { srv.suite = 0xC0AE; return nil },
			wantErr:   ErrUnsupportedCipherSuite,
		},
		{
			name:    "transcript bound",
			cfg:     Config{MaxTranscriptSize: 64},
			wantErr: ErrHandshakeTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg, tt.configure, nil)
			err := h.client.Handshake(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Handshake err = %v, want %v", err, tt.wantErr)
			}
			if h.client.State() != StateUninitialized {
				t.Errorf("state after failure = %s", h.client.State())
			}
			if _, err := h.client.Send([]byte("x")); !errors.Is(err, ErrInvalidState) {
				t.Errorf("Send after failure: %v", err)
			}
		})
	}
}

func TestSession_HandshakeTimeout(t *testing.T) {
	p := transport.NewPipe()
	defer p.Close()

	s, err := NewSession(p.Conn0(), Config{
		Identity:         testIdentity,
		PSK:              testPSK,
		HandshakeTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Handshake(context.Background()); !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("err = %v, want ErrHandshakeTimeout", err)
	}
	if s.State() != StateUninitialized {
		t.Errorf("state = %s", s.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Handshake(ctx); !errors.Is(err, ErrHandshakeTimeout) {
		t.Errorf("cancelled ctx: err = %v", err)
	}
}

func TestSession_InvalidState(t *testing.T) {
	p := transport.NewPipe()
	defer p.Close()
	s, err := NewSession(p.Conn0(), Config{Identity: testIdentity, PSK: testPSK})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send([]byte("x")); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Send: %v", err)
	}
	if _, err := s.Receive(make([]byte, 8), time.Millisecond); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Receive: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := s.Handshake(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Handshake after Close: %v", err)
	}
}

func TestSession_SequenceOverflow(t *testing.T) {
	h := newHarness(t, Config{}, nil, nil)
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	h.wait(t)

	h.client.write.sequence = MaxSequenceNumber
	if _, err := h.client.Send([]byte("last")); err != nil {
		t.Fatalf("Send at max sequence: %v", err)
	}
	if _, err := h.client.Send([]byte("one too many")); !errors.Is(err, ErrSequenceOverflow) {
		t.Fatalf("err = %v, want ErrSequenceOverflow", err)
	}
}

func TestSession_PeerCloseNotify(t *testing.T) {
	h := newHarness(t, Config{}, nil, func(srv *testServer) error {
		return srv.sendAlert(AlertLevelWarning, AlertCloseNotify)
	})
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	h.wait(t)

	_, err := h.client.Receive(make([]byte, 16), time.Second)
	if !errors.Is(err, ErrAlert) {
		t.Fatalf("err = %v, want ErrAlert", err)
	}
	var alert *AlertError
	if !errors.As(err, &alert) || alert.Description != AlertCloseNotify {
		t.Errorf("alert = %v", err)
	}
	if h.client.State() != StateClosed {
		t.Errorf("state = %s", h.client.State())
	}
}

func TestSession_CloseSendsCloseNotify(t *testing.T) {
	got := make(chan []byte, 1)
	h := newHarness(t, Config{}, nil, func(srv *testServer) error {
		r, pt, err := srv.next()
		if err != nil {
			return err
		}
		if r.header.contentType != ContentTypeAlert {
			return errors.New("expected alert record")
		}
		got <- pt
		return nil
	})
	if err := h.client.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := h.client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h.wait(t)

	if pt := <-got; !bytes.Equal(pt, []byte{byte(AlertLevelWarning), byte(AlertCloseNotify)}) {
		t.Errorf("alert payload = %x", pt)
	}
	if err := h.client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	long := bytes.Repeat([]byte{1}, MaxIdentityLen+1)
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Identity: testIdentity, PSK: testPSK}, false},
		{"no identity", Config{PSK: testPSK}, true},
		{"identity too long", Config{Identity: long, PSK: testPSK}, true},
		{"no psk", Config{Identity: testIdentity}, true},
		{"psk too long", Config{Identity: testIdentity, PSK: make([]byte, MaxPSKLen+1)}, true},
		{"negative transcript", Config{Identity: testIdentity, PSK: testPSK, MaxTranscriptSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := NewSession(nil, Config{Identity: testIdentity, PSK: testPSK}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil conn: %v", err)
	}
}
