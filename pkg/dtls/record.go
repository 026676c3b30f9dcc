package dtls

import (
	"fmt"

	"github.com/backkem/lwm2m/pkg/crypto"
	"github.com/backkem/lwm2m/pkg/wire"
)

// Record layer sizes.
const (
	RecordHeaderSize  = 13
	ExplicitNonceSize = 8

	// MaxSequenceNumber is the largest 48-bit record sequence number.
	MaxSequenceNumber = wire.MaxUint48

	// recordOverhead is the expansion of a protected record payload.
	recordOverhead = ExplicitNonceSize + crypto.DTLSCCMTagSize
)

// recordHeader is the 13-byte DTLS record header:
//
//	type(1) | version(2) | epoch(2) | sequence_number(6) | length(2)
type recordHeader struct {
	contentType ContentType
	version     uint16
	epoch       uint16
	sequence    uint64
	length      uint16
}

func (h *recordHeader) appendTo(dst []byte) []byte {
	dst = append(dst, byte(h.contentType))
	dst = wire.AppendUint16(dst, h.version)
	dst = wire.AppendUint16(dst, h.epoch)
	dst = wire.AppendUint48(dst, h.sequence)
	return wire.AppendUint16(dst, h.length)
}

func (h *recordHeader) unmarshal(b []byte) error {
	if len(b) < RecordHeaderSize {
		return fmt.Errorf("%w: header needs %d bytes, have %d", ErrMalformedRecord, RecordHeaderSize, len(b))
	}
	h.contentType = ContentType(b[0])
	h.version = wire.Uint16(b[1:3])
	h.epoch = wire.Uint16(b[3:5])
	h.sequence = wire.Uint48(b[5:11])
	h.length = wire.Uint16(b[11:13])
	if !h.contentType.IsValid() {
		return fmt.Errorf("%w: content type %d", ErrMalformedRecord, uint8(h.contentType))
	}
	if h.version != ProtocolVersion && h.version != protocolVersion10 {
		return fmt.Errorf("%w: version %#04x", ErrMalformedRecord, h.version)
	}
	return nil
}

// rawRecord is one record cut from a datagram, payload still protected.
type rawRecord struct {
	header  recordHeader
	payload []byte
}

// splitRecords cuts a datagram into its records. A datagram may carry
// several records back to back.
func splitRecords(datagram []byte) ([]rawRecord, error) {
	var out []rawRecord
	for len(datagram) > 0 {
		var r rawRecord
		if err := r.header.unmarshal(datagram); err != nil {
			return out, err
		}
		end := RecordHeaderSize + int(r.header.length)
		if end > len(datagram) {
			return out, fmt.Errorf("%w: length %d exceeds datagram", ErrMalformedRecord, r.header.length)
		}
		r.payload = datagram[RecordHeaderSize:end]
		out = append(out, r)
		datagram = datagram[end:]
	}
	return out, nil
}

// direction holds the record protection state for one direction of
// traffic. With a nil aead the direction is in epoch 0 and passes payloads
// through unprotected.
type direction struct {
	epoch    uint16
	sequence uint64
	aead     *crypto.AESCCM
	iv       []byte

	pendingAEAD *crypto.AESCCM
	pendingIV   []byte
}

// changeCipherSpec installs the new key and IV, advances the epoch and
// restarts the sequence number at zero.
func (d *direction) changeCipherSpec(key, iv []byte) error {
	if err := d.stage(key, iv); err != nil {
		return err
	}
	return d.activate()
}

// stage prepares the next epoch's key without using it yet.
func (d *direction) stage(key, iv []byte) error {
	aead, err := crypto.NewDTLSCCM(key)
	if err != nil {
		return err
	}
	if len(iv) != crypto.WriteIVSize {
		return fmt.Errorf("dtls: implicit IV of %d bytes", len(iv))
	}
	d.pendingAEAD = aead
	d.pendingIV = append([]byte(nil), iv...)
	return nil
}

// activate switches to the staged key.
func (d *direction) activate() error {
	if d.pendingAEAD == nil {
		return fmt.Errorf("%w: ChangeCipherSpec without pending keys", ErrUnexpectedMessage)
	}
	crypto.Zero(d.iv)
	d.aead, d.iv = d.pendingAEAD, d.pendingIV
	d.pendingAEAD, d.pendingIV = nil, nil
	d.epoch++
	d.sequence = 0
	return nil
}

// nonce builds the CCM nonce: implicit IV(4) || explicit nonce(8). The
// explicit part is epoch(2) || sequence(6).
func (d *direction) nonce(explicit []byte) []byte {
	n := make([]byte, 0, crypto.DTLSCCMNonceSize)
	n = append(n, d.iv...)
	return append(n, explicit...)
}

// additionalData builds the AEAD additional data for a record.
func additionalData(h *recordHeader, plaintextLen int) []byte {
	ad := make([]byte, 0, RecordHeaderSize)
	ad = wire.AppendUint16(ad, h.epoch)
	ad = wire.AppendUint48(ad, h.sequence)
	ad = append(ad, byte(h.contentType))
	ad = wire.AppendUint16(ad, h.version)
	return wire.AppendUint16(ad, uint16(plaintextLen))
}

// seal builds a complete record carrying payload and consumes one sequence
// number.
func (d *direction) seal(ct ContentType, payload []byte) ([]byte, error) {
	if d.sequence > MaxSequenceNumber {
		return nil, ErrSequenceOverflow
	}
	h := recordHeader{
		contentType: ct,
		version:     ProtocolVersion,
		epoch:       d.epoch,
		sequence:    d.sequence,
	}

	body := payload
	if d.aead != nil {
		explicit := make([]byte, 0, ExplicitNonceSize)
		explicit = wire.AppendUint16(explicit, h.epoch)
		explicit = wire.AppendUint48(explicit, h.sequence)

		sealed, err := d.aead.Seal(d.nonce(explicit), payload, additionalData(&h, len(payload)))
		if err != nil {
			return nil, err
		}
		body = append(explicit, sealed...)
	}
	if len(body) > 0xFFFF {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrMalformedRecord, len(body))
	}
	h.length = uint16(len(body))

	out := make([]byte, 0, RecordHeaderSize+len(body))
	out = h.appendTo(out)
	out = append(out, body...)
	d.sequence++
	return out, nil
}

// open authenticates and decrypts a record payload. Epoch 0 payloads are
// returned as is.
func (d *direction) open(r *rawRecord) ([]byte, error) {
	if d.aead == nil {
		return r.payload, nil
	}
	if len(r.payload) < recordOverhead {
		return nil, fmt.Errorf("%w: protected payload of %d bytes", ErrMalformedRecord, len(r.payload))
	}
	explicit := r.payload[:ExplicitNonceSize]
	ciphertext := r.payload[ExplicitNonceSize:]
	ad := additionalData(&r.header, len(ciphertext)-crypto.DTLSCCMTagSize)

	plaintext, err := d.aead.Open(d.nonce(explicit), ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: epoch %d seq %d", ErrBadRecordMAC, r.header.epoch, r.header.sequence)
	}
	return plaintext, nil
}

// clear drops key material.
func (d *direction) clear() {
	crypto.Zero(d.iv)
	crypto.Zero(d.pendingIV)
	*d = direction{}
}
