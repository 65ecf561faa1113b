// decrypt.go implements the deprotect path: framed records in, cleartext
// out.
//
// Application-data records are the common case and take one branch on the
// suite kind. The CBC-HMAC path performs its padding and MAC checks in
// constant time; distinguishing a padding failure from a MAC failure is a
// decryption oracle (see RFC 5246 Section 6.2.3.2).
package record

import (
	"crypto/subtle"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// Open deprotects a single record into sink and returns the real content
// type and the plaintext (a slice of sink). Advances the decrypt sequence
// counter by one on success.
//
// Failures: ErrBadRecordMac on tag or MAC mismatch (or misaligned
// sequence), ErrDecode on malformed framing, ErrBufferTooSmall when sink
// cannot hold the plaintext.
func (c *Cipher) Open(rec Record, sink []byte) (constants.ContentType, []byte, error) {
	return c.open(rec, sink, false)
}

// OpenInPlace deprotects a record writing the plaintext over its own
// ciphertext. Only valid for AEAD suites, whose implementations support
// exact-prefix aliasing of input and output; CBC suites must use Open.
// The returned plaintext aliases rec.Payload.
func (c *Cipher) OpenInPlace(rec Record) (constants.ContentType, []byte, error) {
	if c.suite.kind == kindCBCHMAC {
		return 0, nil, werrors.ErrInvalidBuffer
	}
	return c.open(rec, rec.Payload, true)
}

func (c *Cipher) open(rec Record, sink []byte, inPlace bool) (constants.ContentType, []byte, error) {
	if len(rec.Payload) > constants.MaxCiphertextRecordLen {
		return 0, nil, werrors.ErrRecordOverflow
	}
	if err := c.dec.checkSeq(); err != nil {
		return 0, nil, err
	}

	switch c.suite.kind {
	case kindTLS13AEAD:
		return c.openRecord13(rec, sink, inPlace)
	case kindTLS12AEAD:
		return c.openRecord12(rec, sink, inPlace)
	default:
		return c.openRecordCBC(rec, sink)
	}
}

// openRecord13 deprotects a TLS 1.3 record and recovers the inner content
// type from the end of the plaintext, skipping trailing zero padding.
func (c *Cipher) openRecord13(rec Record, sink []byte, inPlace bool) (constants.ContentType, []byte, error) {
	// Middlebox-compatibility change_cipher_spec records are not protected
	// and are ignored without consuming a sequence number (RFC 8446,
	// Appendix D.4). The caller decides whether to skip or reject them.
	if rec.Type == constants.ContentTypeChangeCipherSpec {
		return rec.Type, rec.Payload, nil
	}
	if rec.Type != constants.ContentTypeApplicationData {
		return 0, nil, werrors.ErrUnexpectedMessage
	}
	if len(rec.Payload) < constants.AEADTagSize+1 {
		return 0, nil, werrors.ErrBadRecordMac
	}

	innerLen := len(rec.Payload) - constants.AEADTagSize
	if !inPlace && len(sink) < innerLen {
		return 0, nil, werrors.ErrBufferTooSmall
	}

	nonce := c.dec.nonce(c.suite.nonceLen, c.dec.seq)
	inner, err := c.dec.aead.Open(sink[:0], nonce, rec.Payload, rec.Header())
	if err != nil {
		return 0, nil, werrors.ErrBadRecordMac
	}

	if len(inner) > constants.MaxPlaintextRecordLen+1 {
		return 0, nil, werrors.ErrRecordOverflow
	}

	// The real content type is the last non-zero byte; everything after it
	// is padding (RFC 8446 Section 5.4). A record of only zeros is illegal.
	for i := len(inner) - 1; i >= 0; i-- {
		if inner[i] != 0 {
			c.dec.seq++
			return constants.ContentType(inner[i]), inner[:i], nil
		}
	}
	return 0, nil, werrors.ErrUnexpectedMessage
}

// openRecord12 deprotects a TLS 1.2 AEAD record. The explicit nonce leads
// the payload; sequence number and header are the additional data.
func (c *Cipher) openRecord12(rec Record, sink []byte, inPlace bool) (constants.ContentType, []byte, error) {
	explicitLen := c.suite.explicitNonceLen
	if len(rec.Payload) < explicitLen+constants.AEADTagSize {
		return 0, nil, werrors.ErrBadRecordMac
	}

	ciphertext := rec.Payload[explicitLen:]
	plainLen := len(ciphertext) - constants.AEADTagSize
	if !inPlace && len(sink) < plainLen {
		return 0, nil, werrors.ErrBufferTooSmall
	}

	nonce := c.dec.scratch[:c.suite.nonceLen]
	copy(nonce, c.dec.iv[:c.suite.ivLen])
	copy(nonce[c.suite.ivLen:], rec.Payload[:explicitLen])

	ad := c.dec.additionalData12(rec.Type, rec.Version, plainLen)

	dst := sink[:0]
	if inPlace {
		dst = ciphertext[:0]
	}
	plaintext, err := c.dec.aead.Open(dst, nonce, ciphertext, ad)
	if err != nil {
		return 0, nil, werrors.ErrBadRecordMac
	}

	c.dec.seq++
	return rec.Type, plaintext, nil
}

// openRecordCBC deprotects a TLS 1.2 CBC-HMAC record: decrypt, then verify
// padding and MAC in constant time, then copy the plaintext into sink.
func (c *Cipher) openRecordCBC(rec Record, sink []byte) (constants.ContentType, []byte, error) {
	blockSize := c.dec.cbcDec.BlockSize()
	macLen := c.suite.macLen
	explicitLen := c.suite.explicitNonceLen

	payload := rec.Payload
	minLen := explicitLen + roundUp(macLen+1, blockSize)
	if len(payload) < minLen || (len(payload)-explicitLen)%blockSize != 0 {
		return 0, nil, werrors.ErrBadRecordMac
	}

	c.dec.cbcDec.SetIV(payload[:explicitLen])
	body := payload[explicitLen:]
	c.dec.cbcDec.CryptBlocks(body, body)

	paddingLen, paddingGood := extractPadding(body)

	n := len(body) - macLen - paddingLen
	n = subtle.ConstantTimeSelect(int(uint32(n)>>31), 0, n) // if n < 0 { n = 0 }
	if len(sink) < n {
		return 0, nil, werrors.ErrBufferTooSmall
	}

	remoteMAC := body[n : n+macLen]

	// The data past the padding boundary is fed into the HMAC after the
	// digest so the MAC cost does not depend on the secret padding length
	// (the Lucky13 countermeasure).
	var macBuf [48]byte
	c.dec.mac.Reset()
	c.dec.mac.Write(c.dec.additionalData12(rec.Type, rec.Version, n))
	c.dec.mac.Write(body[:n])
	localMAC := c.dec.mac.Sum(macBuf[:0])
	c.dec.mac.Reset()
	c.dec.mac.Write(body[n+macLen:])

	macAndPaddingGood := subtle.ConstantTimeCompare(localMAC, remoteMAC) & int(paddingGood)
	if macAndPaddingGood != 1 {
		return 0, nil, werrors.ErrBadRecordMac
	}

	c.dec.seq++
	copy(sink, body[:n])
	return rec.Type, sink[:n], nil
}

// extractPadding returns, in constant time, the length of the padding to
// remove from the end of payload, and a byte equal to 255 if the padding
// was valid and 0 otherwise. See RFC 2246 Section 6.2.3.2.
func extractPadding(payload []byte) (toRemove int, good byte) {
	if len(payload) < 1 {
		return 0, 0
	}

	paddingLen := payload[len(payload)-1]
	t := uint(len(payload)-1) - uint(paddingLen)
	// if len(payload) >= (paddingLen - 1) then the MSB of t is zero
	good = byte(int32(^t) >> 31)

	// The maximum possible padding length plus the actual length field.
	toCheck := 256
	// The length of the padded data is public, so we can use an if here.
	if toCheck > len(payload) {
		toCheck = len(payload)
	}

	for i := 0; i < toCheck; i++ {
		t := uint(paddingLen) - uint(i)
		// if i <= paddingLen then the MSB of t is zero
		mask := byte(int32(^t) >> 31)
		b := payload[len(payload)-1-i]
		good &^= mask&paddingLen ^ mask&b
	}

	// AND together the bits of good and replicate the result across all
	// the bits.
	good &= good << 4
	good &= good << 2
	good &= good << 1
	good = uint8(int8(good) >> 7)

	// Zero the padding length on error so any unchecked bytes are included
	// in the MAC, keeping padding failures indistinguishable from MAC
	// failures.
	paddingLen &= good

	toRemove = int(paddingLen) + 1
	return
}

func roundUp(a, b int) int {
	return a + (b-a%b)%b
}
