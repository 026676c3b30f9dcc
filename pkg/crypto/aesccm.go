package crypto

import (
	"crypto/cipher"
	"crypto/subtle"
)

// Parameters of TLS_PSK_WITH_AES_128_CCM_8 (RFC 6655): a 4-byte implicit IV
// plus an 8-byte explicit nonce, and an 8-byte tag.
const (
	DTLSCCMNonceSize = 12
	DTLSCCMTagSize   = 8
)

// AESCCM is an AES-128-CCM AEAD built from the counter mode and CBC-MAC
// primitives in this package.
type AESCCM struct {
	block   cipher.Block
	tagSize int // M
	lenSize int // L = 15 - nonceSize
}

// NewDTLSCCM returns the CCM_8 cipher used for DTLS record protection.
func NewDTLSCCM(key []byte) (*AESCCM, error) {
	return NewAESCCMWithParams(key, DTLSCCMNonceSize, DTLSCCMTagSize)
}

// NewAESCCMWithParams creates an AES-128-CCM cipher.
//
// Parameters:
//   - key: 16-byte AES-128 key
//   - nonceSize: nonce length in bytes (7-13 per NIST 800-38C)
//   - tagSize: authentication tag length in bytes (4, 6, 8, 10, 12, 14, or 16)
func NewAESCCMWithParams(key []byte, nonceSize, tagSize int) (*AESCCM, error) {
	lenSize, err := ccmLenSize(nonceSize)
	if err != nil {
		return nil, err
	}
	if err := checkTagSize(tagSize); err != nil {
		return nil, err
	}
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	return &AESCCM{block: block, tagSize: tagSize, lenSize: lenSize}, nil
}

// NonceSize returns the required nonce size for this cipher.
func (c *AESCCM) NonceSize() int {
	return 15 - c.lenSize
}

// TagSize returns the authentication tag size for this cipher.
func (c *AESCCM) TagSize() int {
	return c.tagSize
}

// Seal encrypts and authenticates plaintext and returns ciphertext || tag.
func (c *AESCCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrInvalidNonceSize
	}
	if c.lenSize < 8 && uint64(len(plaintext)) >= 1<<(8*c.lenSize) {
		return nil, ErrPlaintextTooLong
	}

	tag := cbcMAC(c.block, c.lenSize, c.tagSize, nonce, plaintext, aad)
	out := make([]byte, len(plaintext)+c.tagSize)

	mask := s0(c.block, c.lenSize, nonce)
	for i := 0; i < c.tagSize; i++ {
		out[len(plaintext)+i] = tag[i] ^ mask[i]
	}
	ctrXOR(c.block, c.lenSize, nonce, out[:len(plaintext)], plaintext)
	return out, nil
}

// Open verifies and decrypts ciphertext || tag.
func (c *AESCCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrInvalidNonceSize
	}
	if len(ciphertext) < c.tagSize {
		return nil, ErrCiphertextShort
	}

	data := ciphertext[:len(ciphertext)-c.tagSize]
	sealedTag := ciphertext[len(ciphertext)-c.tagSize:]

	mask := s0(c.block, c.lenSize, nonce)
	received := make([]byte, c.tagSize)
	for i := range received {
		received[i] = sealedTag[i] ^ mask[i]
	}

	plaintext := make([]byte, len(data))
	ctrXOR(c.block, c.lenSize, nonce, plaintext, data)

	expected := cbcMAC(c.block, c.lenSize, c.tagSize, nonce, plaintext, aad)
	if subtle.ConstantTimeCompare(received, expected) != 1 {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
