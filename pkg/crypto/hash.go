// Package crypto provides the symmetric primitives used by the DTLS session:
// AES-128 block encryption, CCM counter mode and CBC-MAC, SHA-256, HMAC-SHA256
// and the TLS 1.2 pseudorandom function.
package crypto

import (
	"crypto/sha256"
	"hash"
)

// SHA256LenBytes is the SHA-256 output length in bytes.
const SHA256LenBytes = 32

// SHA256 computes the SHA-256 digest of message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// NewSHA256 returns a hash.Hash for computing SHA-256 digests incrementally.
func NewSHA256() hash.Hash {
	return sha256.New()
}
