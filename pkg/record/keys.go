// keys.go implements the slice of the TLS 1.3 key schedule the data plane
// needs: deriving record keys from a traffic secret and rotating a traffic
// secret on key update (RFC 8446 Sections 7.2 and 7.3).
//
// The handshake owns the rest of the schedule; it hands the data plane one
// application-traffic secret per direction.
package record

import (
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// hkdfExpandLabel implements HKDF-Expand-Label with the "tls13 " prefix
// (RFC 8446 Section 7.1).
func hkdfExpandLabel(suite *Suite, secret []byte, label string, context []byte, length int) ([]byte, error) {
	var hkdfLabel cryptobyte.Builder
	hkdfLabel.AddUint16(uint16(length))
	hkdfLabel.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte("tls13 "))
		b.AddBytes([]byte(label))
	})
	hkdfLabel.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	info, err := hkdfLabel.Bytes()
	if err != nil {
		return nil, werrors.NewRecordError("hkdfExpandLabel", err)
	}

	out := make([]byte, length)
	if _, err := hkdf.Expand(suite.hash.New, secret, info).Read(out); err != nil {
		return nil, werrors.NewRecordError("hkdfExpandLabel", err)
	}
	return out, nil
}

// TrafficKeys derives the record key and IV for one direction from a
// TLS 1.3 traffic secret (RFC 8446 Section 7.3). The returned material
// carries the secret so the direction supports key updates.
func TrafficKeys(id constants.CipherSuite, secret []byte) (KeyMaterial, error) {
	suite := suiteByID(id)
	if suite == nil {
		return KeyMaterial{}, werrors.ErrUnsupportedSuite
	}
	if !suite.IsTLS13() {
		return KeyMaterial{}, werrors.ErrUnsupportedSuite
	}
	if len(secret) != suite.hash.Size() {
		return KeyMaterial{}, werrors.ErrInvalidKeySize
	}

	key, err := hkdfExpandLabel(suite, secret, "key", nil, suite.keyLen)
	if err != nil {
		return KeyMaterial{}, err
	}
	iv, err := hkdfExpandLabel(suite, secret, "iv", nil, suite.ivLen)
	if err != nil {
		return KeyMaterial{}, err
	}

	sec := make([]byte, len(secret))
	copy(sec, secret)
	return KeyMaterial{Key: key, IV: iv, TrafficSecret: sec}, nil
}

// NextTrafficSecret derives the traffic secret of the next generation:
// HKDF-Expand-Label(secret, "traffic upd", "", Hash.length)
// (RFC 8446 Section 7.2).
func NextTrafficSecret(id constants.CipherSuite, secret []byte) ([]byte, error) {
	suite := suiteByID(id)
	if suite == nil {
		return nil, werrors.ErrUnsupportedSuite
	}
	return hkdfExpandLabel(suite, secret, "traffic upd", nil, suite.hash.Size())
}

// DeriveSecret implements Derive-Secret over an empty transcript:
// HKDF-Expand-Label(secret, label, Hash(""), Hash.length). Handshakers use
// it to split a master secret into directional traffic secrets.
func DeriveSecret(id constants.CipherSuite, secret []byte, label string) ([]byte, error) {
	suite := suiteByID(id)
	if suite == nil {
		return nil, werrors.ErrUnsupportedSuite
	}
	emptyHash := suite.hash.New().Sum(nil)
	return hkdfExpandLabel(suite, secret, label, emptyHash, suite.hash.Size())
}

// UpdateSendKeys rotates the encrypt direction to the next key generation
// and resets its sequence counter. Only valid for TLS 1.3 directions
// constructed with a traffic secret.
func (c *Cipher) UpdateSendKeys() error {
	return c.updateHalf(&c.enc)
}

// UpdateRecvKeys rotates the decrypt direction to the next key generation
// and resets its sequence counter. Called after the peer announces a key
// update.
func (c *Cipher) UpdateRecvKeys() error {
	return c.updateHalf(&c.dec)
}

func (c *Cipher) updateHalf(h *halfState) error {
	if c.suite.kind != kindTLS13AEAD || h.trafficSecret == nil {
		return werrors.ErrUnsupportedSuite
	}

	next, err := NextTrafficSecret(c.suite.ID, h.trafficSecret)
	if err != nil {
		return err
	}
	km, err := TrafficKeys(c.suite.ID, next)
	if err != nil {
		return err
	}

	old := h.trafficSecret
	if err := h.init(c.suite, km); err != nil {
		return err
	}
	zeroize(old)
	zeroize(km.Key)
	zeroize(next)
	return nil
}
