package dtls

import "sync"

// ReceptionState tracks the highest (epoch, sequence) pair accepted from the
// peer. A record is new only if its pair is strictly greater, so duplicated
// and reordered records are both dropped.
type ReceptionState struct {
	last        uint64 // epoch<<48 | sequence of the newest accepted record
	initialized bool
	mu          sync.Mutex
}

func recordPosition(epoch uint16, sequence uint64) uint64 {
	return uint64(epoch)<<48 | (sequence & MaxSequenceNumber)
}

// Check reports whether a record with the given epoch and sequence number
// would be accepted. It does not change the state, so callers can check
// before spending work on decryption.
func (r *ReceptionState) Check(epoch uint16, sequence uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.initialized || recordPosition(epoch, sequence) > r.last
}

// Accept records a pair as seen. Call it only after the record authenticated.
func (r *ReceptionState) Accept(epoch uint16, sequence uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos := recordPosition(epoch, sequence); !r.initialized || pos > r.last {
		r.last = pos
		r.initialized = true
	}
}

// CheckAndAccept combines Check and Accept for unprotected records.
func (r *ReceptionState) CheckAndAccept(epoch uint16, sequence uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := recordPosition(epoch, sequence)
	if r.initialized && pos <= r.last {
		return false
	}
	r.last = pos
	r.initialized = true
	return true
}

// Reset forgets every accepted record.
func (r *ReceptionState) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = 0
	r.initialized = false
}
