// suites.go defines the cipher suite registry for the record plane.
//
// Each suite descriptor carries the key geometry and an AEAD constructor;
// the record machinery dispatches on the suite kind in a single branch per
// record rather than through per-record dynamic dispatch.
package record

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	_ "crypto/sha256" // linked in for suite transcript hashes
	_ "crypto/sha512"

	"github.com/ericlagergren/aegis"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// suiteKind selects the record transform. It is the single hot branch on
// the encrypt and decrypt paths.
type suiteKind int

const (
	// kindTLS13AEAD: no explicit nonce, nonce = static IV XOR sequence,
	// inner content type, header as additional data.
	kindTLS13AEAD suiteKind = iota

	// kindTLS12AEAD: 8-byte explicit nonce (the sequence number) following
	// a 4-byte implicit salt, sequence and header as additional data.
	kindTLS12AEAD

	// kindCBCHMAC: explicit per-record IV, MAC-then-encrypt with HMAC and
	// PKCS-style TLS padding.
	kindCBCHMAC
)

// Suite describes a cipher suite's record-layer geometry.
type Suite struct {
	ID   constants.CipherSuite
	kind suiteKind

	keyLen int
	ivLen  int // static IV (TLS 1.3) or implicit salt (TLS 1.2 AEAD) or 0 (CBC)

	// nonceLen is the AEAD nonce length. 12 for GCM and ChaCha20-Poly1305,
	// 16 for AEGIS-128L. Zero for CBC suites.
	nonceLen int

	// explicitNonceLen is the number of per-record nonce/IV bytes on the
	// wire. 8 for TLS 1.2 AEAD, the block size for CBC, 0 for TLS 1.3.
	explicitNonceLen int

	// macKeyLen and macLen are nonzero only for CBC-HMAC suites.
	macKeyLen int
	macLen    int

	// hash backs the TLS 1.3 key schedule for this suite.
	hash crypto.Hash

	// newAEAD constructs the keyed AEAD. Nil for CBC suites.
	newAEAD func(key []byte) (cipher.AEAD, error)
}

// Kind-level capability queries used by the zero-copy engine.

// InPlaceCapable returns true if the suite's AEAD supports decrypting with
// input and output referring to the same region. The CBC-HMAC suites are
// excluded: padding and MAC trimming need the copy path.
func (s *Suite) InPlaceCapable() bool {
	return s.kind != kindCBCHMAC && s.nonceLen > 0
}

// Overhead returns the per-record expansion beyond the cleartext, excluding
// the record header.
func (s *Suite) Overhead() int {
	switch s.kind {
	case kindTLS13AEAD:
		return 1 + constants.AEADTagSize // inner content type + tag
	case kindTLS12AEAD:
		return s.explicitNonceLen + constants.AEADTagSize
	default:
		// Explicit IV + MAC + maximal padding.
		return s.explicitNonceLen + s.macLen + aes.BlockSize
	}
}

// newCBCBlock builds the block cipher behind the CBC-HMAC suites.
func newCBCBlock(key []byte) (cipher.Block, error) {
	return aes.NewCipher(key)
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, werrors.NewRecordError("newAESGCM", err)
	}
	return cipher.NewGCM(block)
}

func newChaCha20Poly1305(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

func newAEGIS128L(key []byte) (cipher.AEAD, error) {
	return aegis.New(key)
}

var (
	suiteAES128GCMSHA256 = &Suite{
		ID:       constants.TLSAES128GCMSHA256,
		kind:     kindTLS13AEAD,
		keyLen:   16,
		ivLen:    12,
		nonceLen: 12,
		hash:     crypto.SHA256,
		newAEAD:  newAESGCM,
	}

	suiteAES256GCMSHA384 = &Suite{
		ID:       constants.TLSAES256GCMSHA384,
		kind:     kindTLS13AEAD,
		keyLen:   32,
		ivLen:    12,
		nonceLen: 12,
		hash:     crypto.SHA384,
		newAEAD:  newAESGCM,
	}

	suiteChaCha20Poly1305SHA256 = &Suite{
		ID:       constants.TLSChaCha20Poly1305SHA256,
		kind:     kindTLS13AEAD,
		keyLen:   32,
		ivLen:    12,
		nonceLen: 12,
		hash:     crypto.SHA256,
		newAEAD:  newChaCha20Poly1305,
	}

	suiteAEGIS128LSHA256 = &Suite{
		ID:       constants.TLSAEGIS128LSHA256,
		kind:     kindTLS13AEAD,
		keyLen:   16,
		ivLen:    16,
		nonceLen: 16,
		hash:     crypto.SHA256,
		newAEAD:  newAEGIS128L,
	}

	suiteECDHEAES128GCMSHA256 = &Suite{
		ID:               constants.TLSECDHERSAWithAES128GCMSHA256,
		kind:             kindTLS12AEAD,
		keyLen:           16,
		ivLen:            4,
		nonceLen:         12,
		explicitNonceLen: 8,
		hash:             crypto.SHA256,
		newAEAD:          newAESGCM,
	}

	suiteECDHEAES256GCMSHA384 = &Suite{
		ID:               constants.TLSECDHERSAWithAES256GCMSHA384,
		kind:             kindTLS12AEAD,
		keyLen:           32,
		ivLen:            4,
		nonceLen:         12,
		explicitNonceLen: 8,
		hash:             crypto.SHA384,
		newAEAD:          newAESGCM,
	}

	suiteECDHEAES128CBCSHA256 = &Suite{
		ID:               constants.TLSECDHERSAWithAES128CBCSHA256,
		kind:             kindCBCHMAC,
		keyLen:           16,
		explicitNonceLen: aes.BlockSize,
		macKeyLen:        32,
		macLen:           32,
		hash:             crypto.SHA256,
	}
)

// suiteByID returns the descriptor for a suite, or nil if unsupported.
func suiteByID(id constants.CipherSuite) *Suite {
	switch id {
	case constants.TLSAES128GCMSHA256:
		return suiteAES128GCMSHA256
	case constants.TLSAES256GCMSHA384:
		return suiteAES256GCMSHA384
	case constants.TLSChaCha20Poly1305SHA256:
		return suiteChaCha20Poly1305SHA256
	case constants.TLSAEGIS128LSHA256:
		return suiteAEGIS128LSHA256
	case constants.TLSECDHERSAWithAES128GCMSHA256:
		return suiteECDHEAES128GCMSHA256
	case constants.TLSECDHERSAWithAES256GCMSHA384:
		return suiteECDHEAES256GCMSHA384
	case constants.TLSECDHERSAWithAES128CBCSHA256:
		return suiteECDHEAES128CBCSHA256
	default:
		return nil
	}
}

// SuiteByID returns the public descriptor for a supported suite.
func SuiteByID(id constants.CipherSuite) (*Suite, error) {
	s := suiteByID(id)
	if s == nil {
		return nil, werrors.ErrUnsupportedSuite
	}
	return s, nil
}
