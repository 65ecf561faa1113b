// encrypt.go implements the protect path: cleartext in, framed records out.
//
// The caller supplies the destination buffer (normally a pooled record
// buffer); the record plane never allocates on this path. Encryption is
// performed directly into the destination following a pre-written header,
// and the header length field is patched afterwards.
package record

import (
	"crypto/rand"
	"io"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// EncryptedSize returns the number of sink bytes Encrypt needs for n bytes
// of cleartext, across all records. For CBC suites this is the worst case;
// the actual output may be up to one block shorter per record.
func (c *Cipher) EncryptedSize(n int) int {
	if n == 0 {
		return 0
	}
	full := n / constants.MaxPlaintextRecordLen
	rem := n % constants.MaxPlaintextRecordLen

	perRecord := constants.RecordHeaderLen + c.suite.Overhead()
	size := full * (constants.MaxPlaintextRecordLen + perRecord)
	if rem > 0 {
		size += rem + perRecord
	}
	return size
}

// Encrypt fragments cleartext into application-data records of up to 2^14
// cleartext bytes each, protects them, and writes them to sink. It returns
// the number of sink bytes written.
//
// The whole output is validated to fit before the first record is
// protected; a short sink fails with ErrBufferTooSmall and leaves the
// sequence counter untouched.
func (c *Cipher) Encrypt(sink, cleartext []byte) (int, error) {
	if len(sink) < c.EncryptedSize(len(cleartext)) {
		return 0, werrors.ErrBufferTooSmall
	}

	written := 0
	for len(cleartext) > 0 {
		n := len(cleartext)
		if n > constants.MaxPlaintextRecordLen {
			n = constants.MaxPlaintextRecordLen
		}

		w, err := c.EncryptRecord(sink[written:], constants.ContentTypeApplicationData, cleartext[:n])
		if err != nil {
			return written, err
		}
		written += w
		cleartext = cleartext[n:]
	}
	return written, nil
}

// EncryptRecord protects a single record of the given content type into
// sink and returns the bytes written. Alerts and post-handshake messages
// go through here with their own content types; in TLS 1.3 the outward
// type is always application_data and the real type rides encrypted at the
// end of the plaintext.
func (c *Cipher) EncryptRecord(sink []byte, typ constants.ContentType, payload []byte) (int, error) {
	if len(payload) > constants.MaxPlaintextRecordLen {
		return 0, werrors.ErrRecordOverflow
	}
	if err := c.enc.checkSeq(); err != nil {
		return 0, err
	}

	switch c.suite.kind {
	case kindTLS13AEAD:
		return c.encryptRecord13(sink, typ, payload)
	case kindTLS12AEAD:
		return c.encryptRecord12(sink, typ, payload)
	default:
		return c.encryptRecordCBC(sink, typ, payload)
	}
}

// encryptRecord13 protects one TLS 1.3 record: plaintext || content type,
// sealed with the record header as additional data.
func (c *Cipher) encryptRecord13(sink []byte, typ constants.ContentType, payload []byte) (int, error) {
	innerLen := len(payload) + 1
	cipherLen := innerLen + constants.AEADTagSize
	total := constants.RecordHeaderLen + cipherLen
	if len(sink) < total {
		return 0, werrors.ErrBufferTooSmall
	}

	putHeader(sink, constants.ContentTypeApplicationData, cipherLen)

	inner := sink[constants.RecordHeaderLen : constants.RecordHeaderLen+innerLen]
	copy(inner, payload)
	inner[len(payload)] = byte(typ)

	nonce := c.enc.nonce(c.suite.nonceLen, c.enc.seq)
	c.enc.aead.Seal(inner[:0], nonce, inner, sink[:constants.RecordHeaderLen])

	c.enc.seq++
	return total, nil
}

// encryptRecord12 protects one TLS 1.2 AEAD record. The 8-byte explicit
// nonce is the sequence number; the full nonce prepends the implicit salt
// (RFC 5288 Section 3).
func (c *Cipher) encryptRecord12(sink []byte, typ constants.ContentType, payload []byte) (int, error) {
	cipherLen := c.suite.explicitNonceLen + len(payload) + constants.AEADTagSize
	total := constants.RecordHeaderLen + cipherLen
	if len(sink) < total {
		return 0, werrors.ErrBufferTooSmall
	}

	putHeader(sink, typ, cipherLen)

	explicit := sink[constants.RecordHeaderLen : constants.RecordHeaderLen+c.suite.explicitNonceLen]
	seq := c.enc.seq
	for i := 0; i < 8; i++ {
		explicit[7-i] = byte(seq >> (8 * i))
	}

	nonce := c.enc.scratch[:c.suite.nonceLen]
	copy(nonce, c.enc.iv[:c.suite.ivLen])
	copy(nonce[c.suite.ivLen:], explicit)

	ad := c.enc.additionalData12(typ, constants.VersionTLS12, len(payload))
	dst := sink[constants.RecordHeaderLen+c.suite.explicitNonceLen:]
	c.enc.aead.Seal(dst[:0], nonce, payload, ad)

	c.enc.seq++
	return total, nil
}

// encryptRecordCBC protects one TLS 1.2 CBC-HMAC record: a fresh random
// explicit IV, then CBC(plaintext || HMAC || padding) MAC-then-encrypt.
func (c *Cipher) encryptRecordCBC(sink []byte, typ constants.ContentType, payload []byte) (int, error) {
	blockSize := c.enc.cbcEnc.BlockSize()
	macLen := c.suite.macLen

	plainLen := len(payload) + macLen
	padLen := blockSize - plainLen%blockSize
	cipherLen := c.suite.explicitNonceLen + plainLen + padLen
	total := constants.RecordHeaderLen + cipherLen
	if len(sink) < total {
		return 0, werrors.ErrBufferTooSmall
	}

	putHeader(sink, typ, cipherLen)

	iv := sink[constants.RecordHeaderLen : constants.RecordHeaderLen+c.suite.explicitNonceLen]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return 0, werrors.NewRecordError("encrypt", err)
	}

	body := sink[constants.RecordHeaderLen+c.suite.explicitNonceLen : constants.RecordHeaderLen+cipherLen]
	copy(body, payload)

	// MAC over seq || type || version || plaintext length || plaintext.
	var macBuf [48]byte
	c.enc.mac.Reset()
	c.enc.mac.Write(c.enc.additionalData12(typ, constants.VersionTLS12, len(payload)))
	c.enc.mac.Write(payload)
	mac := c.enc.mac.Sum(macBuf[:0])
	copy(body[len(payload):], mac)

	for i := plainLen; i < len(body); i++ {
		body[i] = byte(padLen - 1)
	}

	c.enc.cbcEnc.SetIV(iv)
	c.enc.cbcEnc.CryptBlocks(body, body)

	c.enc.seq++
	return total, nil
}
