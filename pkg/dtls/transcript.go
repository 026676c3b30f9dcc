package dtls

import "fmt"

// DefaultMaxTranscriptSize bounds the buffered handshake transcript.
const DefaultMaxTranscriptSize = 1024

// transcript accumulates the handshake messages hashed into Finished.
// It refuses to grow beyond limit bytes.
type transcript struct {
	buf   []byte
	limit int
}

func newTranscript(limit int) *transcript {
	return &transcript{buf: make([]byte, 0, limit), limit: limit}
}

func (t *transcript) add(msg []byte) error {
	if len(t.buf)+len(msg) > t.limit {
		return fmt.Errorf("%w: %d + %d > %d", ErrHandshakeTooLarge, len(t.buf), len(msg), t.limit)
	}
	t.buf = append(t.buf, msg...)
	return nil
}

func (t *transcript) bytes() []byte { return t.buf }

func (t *transcript) len() int { return len(t.buf) }

func (t *transcript) reset() { t.buf = t.buf[:0] }

func (t *transcript) clear() {
	clear(t.buf[:cap(t.buf)])
	t.buf = t.buf[:0]
}
