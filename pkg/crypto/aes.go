package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

const (
	// AESKeySize is the AES-128 key size in bytes.
	AESKeySize = 16

	// aesBlockSize is the AES block size (always 16 bytes).
	aesBlockSize = 16
)

// Errors
var (
	ErrInvalidKeySize   = errors.New("crypto: invalid key size, must be 16 bytes")
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")
	ErrInvalidTagSize   = errors.New("crypto: invalid tag size, must be 4, 6, 8, 10, 12, 14, or 16")
	ErrPlaintextTooLong = errors.New("crypto: plaintext too long")
	ErrCiphertextShort  = errors.New("crypto: ciphertext too short")
	ErrAuthFailed       = errors.New("crypto: message authentication failed")
)

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != AESKeySize {
		return nil, ErrInvalidKeySize
	}
	return aes.NewCipher(key)
}

// EncryptBlock encrypts a single 16-byte block with AES-128.
func EncryptBlock(key []byte, in [aesBlockSize]byte) ([aesBlockSize]byte, error) {
	var out [aesBlockSize]byte
	block, err := newBlock(key)
	if err != nil {
		return out, err
	}
	block.Encrypt(out[:], in[:])
	return out, nil
}

// CTRXOR applies the CCM counter-mode keystream to src and writes the result
// to dst. Counter blocks follow NIST 800-38C Appendix A.3 and start at 1,
// counter 0 being reserved for the tag. Encryption and decryption are the
// same operation.
func CTRXOR(key, nonce, dst, src []byte) error {
	block, err := newBlock(key)
	if err != nil {
		return err
	}
	lenSize, err := ccmLenSize(len(nonce))
	if err != nil {
		return err
	}
	ctrXOR(block, lenSize, nonce, dst, src)
	return nil
}

// CBCMAC computes the CCM authentication value (the unencrypted tag T of
// NIST 800-38C Section 6.1) over aad and plaintext.
func CBCMAC(key, nonce, plaintext, aad []byte, tagSize int) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	lenSize, err := ccmLenSize(len(nonce))
	if err != nil {
		return nil, err
	}
	if err := checkTagSize(tagSize); err != nil {
		return nil, err
	}
	return cbcMAC(block, lenSize, tagSize, nonce, plaintext, aad), nil
}

func ccmLenSize(nonceSize int) (int, error) {
	// L = 15 - n, where 2 <= L <= 8
	lenSize := 15 - nonceSize
	if lenSize < 2 || lenSize > 8 {
		return 0, ErrInvalidNonceSize
	}
	return lenSize, nil
}

func checkTagSize(tagSize int) error {
	if tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return ErrInvalidTagSize
	}
	return nil
}

func ctrXOR(block cipher.Block, lenSize int, nonce, dst, src []byte) {
	if len(src) == 0 {
		return
	}
	// A_1: Flags = L' || Nonce || Counter(=1)
	var ctr [aesBlockSize]byte
	ctr[0] = byte(lenSize - 1)
	copy(ctr[1:], nonce)
	ctr[aesBlockSize-1] = 1

	cipher.NewCTR(block, ctr[:]).XORKeyStream(dst, src)
}

// s0 returns E(K, A_0), the keystream block that masks the tag.
func s0(block cipher.Block, lenSize int, nonce []byte) [aesBlockSize]byte {
	var a0, out [aesBlockSize]byte
	a0[0] = byte(lenSize - 1)
	copy(a0[1:], nonce)
	block.Encrypt(out[:], a0[:])
	return out
}

func cbcMAC(block cipher.Block, lenSize, tagSize int, nonce, plaintext, aad []byte) []byte {
	// B_0 flags = Reserved(1) || Adata(1) || M'(3) || L'(3)
	var b0 [aesBlockSize]byte
	if len(aad) > 0 {
		b0[0] |= 1 << 6
	}
	b0[0] |= byte((tagSize-2)/2) << 3
	b0[0] |= byte(lenSize - 1)
	copy(b0[1:], nonce)
	length := len(plaintext)
	for i := aesBlockSize - 1; i >= aesBlockSize-lenSize; i-- {
		b0[i] = byte(length)
		length >>= 8
	}

	mac := make([]byte, aesBlockSize)
	block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		// Record AAD is always short: the 2-byte length prefix form applies.
		var prefixed []byte
		if len(aad) < (1<<16)-(1<<8) {
			prefixed = make([]byte, 2, 2+len(aad))
			prefixed[0] = byte(len(aad) >> 8)
			prefixed[1] = byte(len(aad))
		} else {
			prefixed = make([]byte, 6, 6+len(aad))
			prefixed[0], prefixed[1] = 0xFF, 0xFE
			prefixed[2] = byte(len(aad) >> 24)
			prefixed[3] = byte(len(aad) >> 16)
			prefixed[4] = byte(len(aad) >> 8)
			prefixed[5] = byte(len(aad))
		}
		prefixed = append(prefixed, aad...)
		chain(block, mac, prefixed)
	}
	chain(block, mac, plaintext)

	return mac[:tagSize]
}

// chain folds data into mac one zero-padded block at a time.
func chain(block cipher.Block, mac, data []byte) {
	for len(data) > 0 {
		var blk [aesBlockSize]byte
		n := copy(blk[:], data)
		data = data[n:]
		for i := range blk {
			mac[i] ^= blk[i]
		}
		block.Encrypt(mac, mac)
	}
}
