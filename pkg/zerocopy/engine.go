// Package zerocopy implements the in-place record decryption engine: it
// decides per record whether ciphertext can be transformed into plaintext
// inside the buffer it already occupies, and falls back to the normal copy
// path when it cannot.
//
// The decision is a pure pointer analysis plus a suite capability check.
// Engines are per-connection single-producer structures; their statistics
// are written without locks.
package zerocopy

import (
	"unsafe"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
	"github.com/dkhalov/tlswire/pkg/record"
)

// Config controls the safety predicate.
type Config struct {
	// Alignment is the pointer alignment both buffers must satisfy before
	// the engine decrypts in place. Zero disables the alignment check.
	Alignment int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{Alignment: constants.DefaultInPlaceAlignment}
}

// Stats counts engine decisions. Single-producer: one engine belongs to
// one connection's read path, so plain stores suffice.
type Stats struct {
	InPlaceDecrypts uint64
	CopyDecrypts    uint64

	// BytesSaved is the total plaintext bytes produced without a second
	// buffer.
	BytesSaved uint64
}

// Result is the outcome of one record decryption.
type Result struct {
	ContentType constants.ContentType
	Plaintext   []byte
	InPlace     bool
}

// Engine decides and performs in-place or copy decryption for one
// connection.
type Engine struct {
	cfg   Config
	stats Stats
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// PointerOf returns the address of the first byte of b, or 0 for an empty
// slice. Exported for alignment-sensitive tests and diagnostics.
func PointerOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// CanDecryptInPlace reports whether a record held in ciphertext may be
// decrypted with its plaintext written to output without a copy:
//
//  1. The suite is an approved AEAD with a 16-byte tag (AES-GCM,
//     ChaCha20-Poly1305, AEGIS-128L). CBC-HMAC is excluded: padding and MAC
//     trimming need the copy path.
//  2. The output pointer equals the ciphertext pointer, or sits after it by
//     no more than the tag size. Output before ciphertext is never safe:
//     the transform would overwrite bytes it has not read yet.
//  3. Both pointers satisfy the configured alignment.
func (e *Engine) CanDecryptInPlace(suite *record.Suite, ciphertext, output []byte) bool {
	if suite == nil || !suite.InPlaceCapable() {
		return false
	}
	if len(ciphertext) == 0 || len(output) == 0 {
		return false
	}

	cp := uintptr(unsafe.Pointer(&ciphertext[0]))
	op := uintptr(unsafe.Pointer(&output[0]))
	if op < cp || op-cp > constants.AEADTagSize {
		return false
	}

	if a := e.cfg.Alignment; a > 0 {
		if cp%uintptr(a) != 0 || op%uintptr(a) != 0 {
			return false
		}
	}
	return true
}

// DecryptRecord deprotects one record. When the safety predicate holds for
// (rec.Payload, output) the transform runs inside the ciphertext buffer;
// otherwise the plaintext is decrypted into output.
func (e *Engine) DecryptRecord(c *record.Cipher, rec record.Record, output []byte) (Result, error) {
	if e.CanDecryptInPlace(c.Suite(), rec.Payload, output) {
		typ, plaintext, err := e.decryptInPlace(c, rec, output)
		if err != nil {
			return Result{}, err
		}
		e.stats.InPlaceDecrypts++
		e.stats.BytesSaved += uint64(len(plaintext))
		return Result{ContentType: typ, Plaintext: plaintext, InPlace: true}, nil
	}

	// The AEADs reject an output that partially overlaps their input, so a
	// copy-path output that overlaps the ciphertext without sharing its
	// start reads the ciphertext from a private copy.
	if len(rec.Payload) > 0 && len(output) > 0 {
		cp := uintptr(unsafe.Pointer(&rec.Payload[0]))
		op := uintptr(unsafe.Pointer(&output[0]))
		if op != cp && op < cp+uintptr(len(rec.Payload)) && cp < op+uintptr(len(output)) {
			rec.Payload = append([]byte(nil), rec.Payload...)
		}
	}

	typ, plaintext, err := c.Open(rec, output)
	if err != nil {
		return Result{}, err
	}
	e.stats.CopyDecrypts++
	return Result{ContentType: typ, Plaintext: plaintext, InPlace: false}, nil
}

// decryptInPlace runs the aliased transform. The supported AEADs accept
// exact-prefix aliasing of input and output; for the forward-offset window
// the ciphertext is first moved up to the output position (an overlapping
// move, still inside the one buffer).
func (e *Engine) decryptInPlace(c *record.Cipher, rec record.Record, output []byte) (constants.ContentType, []byte, error) {
	cp := uintptr(unsafe.Pointer(&rec.Payload[0]))
	op := uintptr(unsafe.Pointer(&output[0]))

	if off := int(op - cp); off != 0 {
		if len(output) < len(rec.Payload) {
			return 0, nil, werrors.ErrInvalidBuffer
		}
		copy(output[:len(rec.Payload)], rec.Payload)
		rec.Payload = output[:len(rec.Payload)]
	}

	return c.OpenInPlace(rec)
}
