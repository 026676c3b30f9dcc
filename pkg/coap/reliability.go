package coap

import "time"

// Transmission parameters from RFC 7252 section 4.8.
const (
	// ACKTimeout is the initial wait for an acknowledgement.
	ACKTimeout = 2 * time.Second

	// ACKRandomFactor scales the initial timeout to spread retransmissions
	// of different clients.
	ACKRandomFactor = 1.5

	// MaxRetransmit is how many times a confirmable message is resent
	// before giving up.
	MaxRetransmit = 4
)

// Transmission tracks a confirmable message until it is acknowledged or
// MaxRetransmit retransmissions have been sent.
//
// The first timeout is drawn from [ackTimeout, ackTimeout*ACKRandomFactor)
// and doubles after each retransmission (RFC 7252 section 4.2).
type Transmission struct {
	// Message is the encoded message to resend.
	Message []byte

	// SendCount is the number of times the message has been sent.
	// Starts at 1 for the initial transmission.
	SendCount int

	timeout time.Duration
	next    time.Time
}

// NewTransmission starts tracking msg, sent at now. random is a value in
// [0, 1) choosing the initial timeout. A zero ackTimeout uses ACKTimeout.
func NewTransmission(msg []byte, now time.Time, ackTimeout time.Duration, random float64) *Transmission {
	if ackTimeout <= 0 {
		ackTimeout = ACKTimeout
	}
	timeout := time.Duration(float64(ackTimeout) * (1 + random*(ACKRandomFactor-1)))
	return &Transmission{
		Message:   msg,
		SendCount: 1,
		timeout:   timeout,
		next:      now.Add(timeout),
	}
}

// Deadline returns when the current attempt times out.
func (t *Transmission) Deadline() time.Time { return t.next }

// Exhausted reports whether every retransmission has been sent.
func (t *Transmission) Exhausted() bool { return t.SendCount > MaxRetransmit }

// Retransmit reports whether the message is due to be sent again at now.
// When it is, the send count is incremented and the next timeout doubled.
func (t *Transmission) Retransmit(now time.Time) bool {
	if t.Exhausted() || now.Before(t.next) {
		return false
	}
	t.SendCount++
	t.timeout *= 2
	t.next = now.Add(t.timeout)
	return true
}
