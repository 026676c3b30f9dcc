package crypto

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/pion/dtls/v2/pkg/crypto/prf"
)

func testRandoms() (client, server []byte) {
	client = make([]byte, RandomSize)
	server = make([]byte, RandomSize)
	for i := range client {
		client[i] = byte(i)
		server[i] = byte(0xFF - i)
	}
	return client, server
}

func TestPRF_MatchesPHash(t *testing.T) {
	secret := []byte("secret")
	seed := []byte("seed value")
	for _, n := range []int{1, 12, 32, 48, 100} {
		got, err := PRF(secret, "test label", seed, n)
		if err != nil {
			t.Fatalf("PRF(%d): %v", n, err)
		}
		want, err := prf.PHash(secret, append([]byte("test label"), seed...), n, sha256.New)
		if err != nil {
			t.Fatalf("PHash: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("PRF(%d) = %x, want %x", n, got, want)
		}
	}

	if _, err := PRF(secret, "x", seed, 0); err == nil {
		t.Error("PRF with zero length should fail")
	}
}

func TestPSKPreMasterSecret(t *testing.T) {
	psk := []byte{0xAA, 0xBB, 0xCC}
	got := PSKPreMasterSecret(psk)
	want := []byte{0x00, 0x03, 0, 0, 0, 0x00, 0x03, 0xAA, 0xBB, 0xCC}
	if !bytes.Equal(got, want) {
		t.Errorf("PSKPreMasterSecret = %x, want %x", got, want)
	}
	if ref := prf.PSKPreMasterSecret(psk); !bytes.Equal(got, ref) {
		t.Errorf("PSKPreMasterSecret = %x, reference %x", got, ref)
	}
}

func TestKeySchedule_MatchesPion(t *testing.T) {
	client, server := testRandoms()
	pms := PSKPreMasterSecret([]byte("0123456789abcdef"))

	ms, err := MasterSecret(pms, client, server)
	if err != nil {
		t.Fatalf("MasterSecret: %v", err)
	}
	refMS, err := prf.MasterSecret(pms, client, server, sha256.New)
	if err != nil {
		t.Fatalf("prf.MasterSecret: %v", err)
	}
	if !bytes.Equal(ms, refMS) {
		t.Fatalf("master secret = %x, want %x", ms, refMS)
	}

	kb, err := ExpandKeys(ms, client, server)
	if err != nil {
		t.Fatalf("ExpandKeys: %v", err)
	}
	ref, err := prf.GenerateEncryptionKeys(ms, client, server, 0, WriteKeySize, WriteIVSize, sha256.New)
	if err != nil {
		t.Fatalf("GenerateEncryptionKeys: %v", err)
	}
	checks := []struct {
		name      string
		got, want []byte
	}{
		{"client key", kb.ClientWriteKey, ref.ClientWriteKey},
		{"server key", kb.ServerWriteKey, ref.ServerWriteKey},
		{"client iv", kb.ClientWriteIV, ref.ClientWriteIV},
		{"server iv", kb.ServerWriteIV, ref.ServerWriteIV},
	}
	for _, c := range checks {
		if !bytes.Equal(c.got, c.want) {
			t.Errorf("%s = %x, want %x", c.name, c.got, c.want)
		}
	}

	transcript := []byte("handshake messages")
	vd, err := VerifyData(ms, LabelClientFinished, transcript)
	if err != nil {
		t.Fatalf("VerifyData: %v", err)
	}
	refVD, err := prf.VerifyDataClient(ms, transcript, sha256.New)
	if err != nil {
		t.Fatalf("VerifyDataClient: %v", err)
	}
	if !bytes.Equal(vd, refVD) {
		t.Errorf("client verify_data = %x, want %x", vd, refVD)
	}

	vd, _ = VerifyData(ms, LabelServerFinished, transcript)
	refVD, _ = prf.VerifyDataServer(ms, transcript, sha256.New)
	if !bytes.Equal(vd, refVD) {
		t.Errorf("server verify_data = %x, want %x", vd, refVD)
	}
}

func TestKeySchedule_Deterministic(t *testing.T) {
	client, server := testRandoms()
	pms := PSKPreMasterSecret([]byte("key"))
	a, _ := MasterSecret(pms, client, server)
	b, _ := MasterSecret(pms, client, server)
	if !bytes.Equal(a, b) {
		t.Error("master secret is not deterministic")
	}
	server[0] ^= 1
	c, _ := MasterSecret(pms, client, server)
	if bytes.Equal(a, c) {
		t.Error("master secret ignores the server random")
	}
}

func TestPSKFromPassphrase(t *testing.T) {
	a := PSKFromPassphrase("correct horse", "urn:dev:1", 16)
	b := PSKFromPassphrase("correct horse", "urn:dev:2", 16)
	if len(a) != 16 {
		t.Fatalf("len = %d", len(a))
	}
	if bytes.Equal(a, b) {
		t.Error("different endpoints produced the same key")
	}
	if !bytes.Equal(a, PSKFromPassphrase("correct horse", "urn:dev:1", 16)) {
		t.Error("derivation is not deterministic")
	}
}
