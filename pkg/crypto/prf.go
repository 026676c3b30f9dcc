package crypto

import (
	"errors"
)

// Lengths of the TLS 1.2 key schedule values for TLS_PSK_WITH_AES_128_CCM_8.
const (
	MasterSecretSize = 48
	VerifyDataSize   = 12
	WriteKeySize     = 16
	WriteIVSize      = 4
	RandomSize       = 32

	// keyBlockSize covers both write keys and both implicit IVs. The suite
	// is AEAD, so no MAC keys are derived.
	keyBlockSize = 2*WriteKeySize + 2*WriteIVSize
)

// PRF labels (RFC 5246 Sections 8.1, 6.3 and 7.4.9).
const (
	LabelMasterSecret   = "master secret"
	LabelKeyExpansion   = "key expansion"
	LabelClientFinished = "client finished"
	LabelServerFinished = "server finished"
)

var errPRFLength = errors.New("crypto: invalid PRF output length")

// PRF is the TLS 1.2 pseudorandom function with P_SHA256:
//
//	PRF(secret, label, seed) = P_SHA256(secret, label + seed)
//	P_SHA256(secret, seed) = HMAC(secret, A(1) + seed) + HMAC(secret, A(2) + seed) + ...
//	A(0) = seed, A(i) = HMAC(secret, A(i-1))
func PRF(secret []byte, label string, seed []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, errPRFLength
	}
	labelSeed := make([]byte, 0, len(label)+len(seed))
	labelSeed = append(labelSeed, label...)
	labelSeed = append(labelSeed, seed...)

	out := make([]byte, 0, length+SHA256LenBytes)
	a := labelSeed
	for len(out) < length {
		h := NewHMACSHA256(secret)
		h.Write(a)
		a = h.Sum(nil)

		h.Reset()
		h.Write(a)
		h.Write(labelSeed)
		out = h.Sum(out)
	}
	return out[:length], nil
}

// PSKPreMasterSecret builds the plain PSK premaster secret (RFC 4279 Section 2):
// uint16(N) || N zero bytes || uint16(N) || psk.
func PSKPreMasterSecret(psk []byte) []byte {
	n := len(psk)
	out := make([]byte, 2+n+2+n)
	out[0], out[1] = byte(n>>8), byte(n)
	out[2+n], out[3+n] = byte(n>>8), byte(n)
	copy(out[4+n:], psk)
	return out
}

// MasterSecret derives the 48-byte master secret.
func MasterSecret(preMasterSecret, clientRandom, serverRandom []byte) ([]byte, error) {
	seed := append(append(make([]byte, 0, 2*RandomSize), clientRandom...), serverRandom...)
	return PRF(preMasterSecret, LabelMasterSecret, seed, MasterSecretSize)
}

// KeyBlock holds the per-direction record protection material.
type KeyBlock struct {
	ClientWriteKey []byte
	ServerWriteKey []byte
	ClientWriteIV  []byte
	ServerWriteIV  []byte
}

// ExpandKeys derives the key block from the master secret. Note the seed
// order: server random first.
func ExpandKeys(masterSecret, clientRandom, serverRandom []byte) (*KeyBlock, error) {
	seed := append(append(make([]byte, 0, 2*RandomSize), serverRandom...), clientRandom...)
	kb, err := PRF(masterSecret, LabelKeyExpansion, seed, keyBlockSize)
	if err != nil {
		return nil, err
	}
	return &KeyBlock{
		ClientWriteKey: kb[0:16],
		ServerWriteKey: kb[16:32],
		ClientWriteIV:  kb[32:36],
		ServerWriteIV:  kb[36:40],
	}, nil
}

// VerifyData computes the Finished verify_data over the handshake transcript.
// label is LabelClientFinished or LabelServerFinished.
func VerifyData(masterSecret []byte, label string, transcript []byte) ([]byte, error) {
	digest := SHA256(transcript)
	return PRF(masterSecret, label, digest[:], VerifyDataSize)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}
