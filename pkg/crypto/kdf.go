package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseIterations is the PBKDF2 iteration count used by PSKFromPassphrase.
const PassphraseIterations = 4096

// PSKFromPassphrase derives a keyLen-byte pre-shared key from a human
// passphrase with PBKDF2-HMAC-SHA256. The endpoint name is used as salt so
// that two devices sharing a passphrase still get distinct keys.
func PSKFromPassphrase(passphrase, endpoint string, keyLen int) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(endpoint), PassphraseIterations, keyLen, sha256.New)
}
