// Package fuzz holds fuzz harnesses for the record plane's parsers: the
// framing layer, the alert codec, and the deprotect path. The parsers must
// never panic on attacker-controlled bytes; only typed errors may surface.
package fuzz

import (
	"bytes"
	"testing"

	"github.com/dkhalov/tlswire/internal/constants"
	"github.com/dkhalov/tlswire/pkg/record"
)

func FuzzParseRecord(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x17, 0x03, 0x03, 0x00, 0x05, 1, 2, 3, 4, 5})
	f.Add([]byte{0x17, 0x03, 0x03, 0xff, 0xff})
	f.Add([]byte{0x15, 0x03, 0x01, 0x00, 0x02, 0x02, 0x14})
	f.Add(bytes.Repeat([]byte{0xff}, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		rec, consumed, err := record.ParseRecord(data)
		if err != nil {
			return
		}
		if consumed == 0 {
			return // incomplete
		}
		if consumed > len(data) {
			t.Fatalf("consumed %d of %d bytes", consumed, len(data))
		}
		if len(rec.Payload) > constants.MaxCiphertextRecordLen {
			t.Fatalf("oversize payload accepted: %d", len(rec.Payload))
		}
	})
}

func FuzzReadRecord(f *testing.F) {
	f.Add([]byte{0x17, 0x03, 0x03, 0x00, 0x01, 0xab})
	f.Add([]byte{0x16, 0x03, 0x01, 0x00, 0x00})

	f.Fuzz(func(t *testing.T, data []byte) {
		scratch := make([]byte, constants.MaxCiphertextRecordLen)
		_, _ = record.ReadRecord(bytes.NewReader(data), scratch)
	})
}

func FuzzParseAlert(f *testing.F) {
	f.Add([]byte{2, 20})
	f.Add([]byte{1, 0})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		alert, err := record.ParseAlert(data)
		if err != nil {
			return
		}
		if alert.Err() == nil {
			t.Fatal("parsed alert must map to an error")
		}
	})
}

func FuzzParseKeyUpdate(f *testing.F) {
	f.Add([]byte{24, 0, 0, 1, 0})
	f.Add([]byte{24, 0, 0, 1, 1})
	f.Add([]byte{4, 0, 0, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _, _ = record.ParseKeyUpdate(data)
	})
}

// FuzzOpen feeds arbitrary payloads to the deprotect path. Everything
// must be rejected with a typed error; a panic or a successful open of
// unauthentic data is a bug.
func FuzzOpen(f *testing.F) {
	f.Add([]byte{})
	f.Add(bytes.Repeat([]byte{0}, 17))
	f.Add(bytes.Repeat([]byte{0xaa}, 100))

	km := record.KeyMaterial{Key: bytes.Repeat([]byte{1}, 16), IV: bytes.Repeat([]byte{2}, 12)}
	cipher, err := record.NewCipher(constants.TLSAES128GCMSHA256, constants.VersionTLS13, km, km)
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, payload []byte) {
		if len(payload) > constants.MaxCiphertextRecordLen {
			payload = payload[:constants.MaxCiphertextRecordLen]
		}
		rec := record.Record{
			Type:    constants.ContentTypeApplicationData,
			Version: constants.VersionTLS12,
			Payload: payload,
		}
		sink := make([]byte, constants.MaxCiphertextRecordLen)
		if _, _, err := cipher.Open(rec, sink); err == nil {
			t.Fatal("unauthentic record accepted")
		}
	})
}
