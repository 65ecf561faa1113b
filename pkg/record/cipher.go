// Package record implements the TLS 1.2/1.3 record layer: framing, AEAD and
// CBC-HMAC protection, per-direction sequence counters, nonce derivation,
// alerts, and the TLS 1.3 key update schedule.
//
// The package is the hot core of the data plane. Application-data records
// take a single predictable branch per operation; handshake and alert
// records follow cold paths. Nothing here blocks: stream I/O lives in
// pkg/conn, and ReadRecord only ever touches the io.Reader it is given.
package record

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"hash"
	"math"
	"runtime"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// cbcMode is the block mode used by CBC suites. The standard library's CBC
// implementations satisfy it, allowing the per-record explicit IV to be set
// without reconstructing the mode.
type cbcMode interface {
	cipher.BlockMode
	SetIV([]byte)
}

// halfState holds the cipher state for one direction of a connection.
//
// The two halves of a Cipher share no mutable state, so encrypt and decrypt
// may run concurrently on different goroutines (the suite descriptor and
// key material are read-only after construction).
type halfState struct {
	seq uint64 // next record sequence number

	aead cipher.AEAD // AEAD suites

	cbcEnc cbcMode   // CBC suites, encrypt direction
	cbcDec cbcMode   // CBC suites, decrypt direction
	mac    hash.Hash // CBC suites, HMAC instance (Reset per record)

	iv [16]byte // static IV (TLS 1.3) or implicit salt (TLS 1.2 AEAD)

	// trafficSecret backs TLS 1.3 key updates. Nil for TLS 1.2.
	trafficSecret []byte

	// scratch backs nonce and additional-data construction; interface
	// method arguments escape, so a per-half array keeps the hot path
	// allocation free.
	scratch [29]byte
}

// KeyMaterial is the keying output the handshake hands to the record plane
// for one direction.
type KeyMaterial struct {
	// Key is the symmetric key (AEAD or CBC block key).
	Key []byte

	// IV is the static IV (TLS 1.3 AEAD), the 4-byte implicit salt
	// (TLS 1.2 AEAD), or empty (CBC).
	IV []byte

	// MACKey is the HMAC key for CBC-HMAC suites; empty otherwise.
	MACKey []byte

	// TrafficSecret, when set, enables TLS 1.3 key updates for this
	// direction. The record plane keeps its own copy and zeroizes that copy
	// on close; the caller's slice is left as it is.
	TrafficSecret []byte
}

// Cipher is the negotiated record protection for a connection: a suite, a
// protocol version, and independent encrypt/decrypt halves.
type Cipher struct {
	suite   *Suite
	version uint16

	enc halfState
	dec halfState
}

// NewCipher builds the record protection state from negotiated key
// material. Sequence counters start at zero in both directions.
func NewCipher(id constants.CipherSuite, version uint16, send, recv KeyMaterial) (*Cipher, error) {
	suite := suiteByID(id)
	if suite == nil {
		return nil, werrors.ErrUnsupportedSuite
	}

	if version != constants.VersionTLS12 && version != constants.VersionTLS13 {
		return nil, werrors.ErrDecode
	}
	if suite.IsTLS13() != (version == constants.VersionTLS13) {
		return nil, werrors.ErrUnsupportedSuite
	}

	c := &Cipher{suite: suite, version: version}
	if err := c.enc.init(suite, send); err != nil {
		return nil, err
	}
	if err := c.dec.init(suite, recv); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCipherFromSecrets builds a TLS 1.3 Cipher by running the traffic key
// schedule over one secret per direction. This is the form key updates and
// the handshake's application-traffic secrets feed.
func NewCipherFromSecrets(id constants.CipherSuite, sendSecret, recvSecret []byte) (*Cipher, error) {
	suite := suiteByID(id)
	if suite == nil {
		return nil, werrors.ErrUnsupportedSuite
	}
	if !suite.IsTLS13() {
		return nil, werrors.ErrUnsupportedSuite
	}

	send, err := TrafficKeys(id, sendSecret)
	if err != nil {
		return nil, err
	}
	recv, err := TrafficKeys(id, recvSecret)
	if err != nil {
		return nil, err
	}
	return NewCipher(id, constants.VersionTLS13, send, recv)
}

func (h *halfState) init(suite *Suite, km KeyMaterial) error {
	if len(km.Key) != suite.keyLen {
		return werrors.ErrInvalidKeySize
	}

	switch suite.kind {
	case kindTLS13AEAD, kindTLS12AEAD:
		if len(km.IV) != suite.ivLen {
			return werrors.ErrInvalidKeySize
		}
		aead, err := suite.newAEAD(km.Key)
		if err != nil {
			return err
		}
		h.aead = aead
		copy(h.iv[:], km.IV)
	case kindCBCHMAC:
		if len(km.MACKey) != suite.macKeyLen {
			return werrors.ErrInvalidKeySize
		}
		block, err := newCBCBlock(km.Key)
		if err != nil {
			return err
		}
		zeroIV := make([]byte, block.BlockSize())
		h.cbcEnc = cipher.NewCBCEncrypter(block, zeroIV).(cbcMode)
		h.cbcDec = cipher.NewCBCDecrypter(block, zeroIV).(cbcMode)
		h.mac = hmac.New(suite.hash.New, km.MACKey)
	}

	if km.TrafficSecret != nil {
		h.trafficSecret = make([]byte, len(km.TrafficSecret))
		copy(h.trafficSecret, km.TrafficSecret)
	}
	h.seq = 0
	return nil
}

// IsTLS13 reports whether the suite is defined only for TLS 1.3.
func (s *Suite) IsTLS13() bool {
	return s.kind == kindTLS13AEAD
}

// Suite returns the suite descriptor.
func (c *Cipher) Suite() *Suite {
	return c.suite
}

// Version returns the negotiated protocol version.
func (c *Cipher) Version() uint16 {
	return c.version
}

// EncSeq returns the next encrypt-direction sequence number.
func (c *Cipher) EncSeq() uint64 {
	return c.enc.seq
}

// DecSeq returns the next decrypt-direction sequence number.
func (c *Cipher) DecSeq() uint64 {
	return c.dec.seq
}

// SetEncSeq sets the encrypt-direction sequence number. Only for resuming
// known state and for exercising the overflow path; normal operation never
// needs it.
func (c *Cipher) SetEncSeq(seq uint64) {
	c.enc.seq = seq
}

// SetDecSeq sets the decrypt-direction sequence number. See SetEncSeq.
func (c *Cipher) SetDecSeq(seq uint64) {
	c.dec.seq = seq
}

// checkSeq refuses the record that would consume the final sequence number.
// Per RFC 8446 Section 5.5 the counter must not wrap within a keying epoch.
func (h *halfState) checkSeq() error {
	if h.seq == math.MaxUint64 {
		return werrors.ErrSequenceOverflow
	}
	return nil
}

// nonce derives the per-record AEAD nonce into the half's scratch space:
// the static IV with the big-endian sequence number XORed into its
// trailing eight bytes (RFC 8446 Section 5.3).
func (h *halfState) nonce(nonceLen int, seq uint64) []byte {
	n := h.scratch[:nonceLen]
	copy(n, h.iv[:nonceLen])
	for i := 0; i < 8; i++ {
		n[nonceLen-1-i] ^= byte(seq >> (8 * i))
	}
	return n
}

// additionalData12 builds the TLS 1.2 additional data into scratch space
// after the nonce region: seq (8) || type (1) || version (2) || length (2).
func (h *halfState) additionalData12(typ constants.ContentType, version uint16, length int) []byte {
	ad := h.scratch[16:29]
	binary.BigEndian.PutUint64(ad[:8], h.seq)
	ad[8] = byte(typ)
	binary.BigEndian.PutUint16(ad[9:11], version)
	binary.BigEndian.PutUint16(ad[11:13], uint16(length))
	return ad
}

// ZeroizeKeys clears the traffic secrets held for key updates. Called when
// the connection reaches a terminal state; per RFC 8446 Section 6, secrets
// of failed connections must be forgotten.
func (c *Cipher) ZeroizeKeys() {
	zeroize(c.enc.trafficSecret)
	c.enc.trafficSecret = nil
	zeroize(c.dec.trafficSecret)
	c.dec.trafficSecret = nil
}

// zeroize overwrites b with zeros. The KeepAlive prevents the compiler from
// eliding the wipe of a buffer about to become unreachable.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
