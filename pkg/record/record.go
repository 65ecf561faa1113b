// record.go implements TLS record framing: the 5-byte header, bounds
// validation, and reading framed records from a byte stream.
//
// Wire format (RFC 8446 Section 5.1):
//
//	+------+----------------+--------+-------------------+
//	| Type | Legacy Version | Length | Protected Payload |
//	| 1B   | 2B BE          | 2B BE  | up to 2^14 + 256  |
//	+------+----------------+--------+-------------------+
package record

import (
	"encoding/binary"
	"io"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// Record is a single framed TLS record. Payload aliases the buffer it was
// read or parsed from; the record does not own it.
type Record struct {
	Type    constants.ContentType
	Version uint16
	Payload []byte

	// hdr preserves the original header bytes; TLS 1.3 AEAD authenticates
	// them verbatim as additional data.
	hdr [constants.RecordHeaderLen]byte
}

// Header returns the record's original 5-byte header.
func (r *Record) Header() []byte {
	return r.hdr[:]
}

// validHeader checks the fields every inbound record must satisfy before
// any cipher work: a plausible legacy version and a payload length within
// the protocol bound.
func validHeader(version uint16, length int) error {
	if version != constants.VersionTLS10 && version != constants.VersionTLS12 {
		return werrors.ErrDecode
	}
	if length > constants.MaxCiphertextRecordLen {
		return werrors.ErrRecordOverflow
	}
	return nil
}

// ReadRecord reads one complete record from r into scratch. Short reads are
// retried until the record is complete or the stream ends; an EOF in the
// middle of a record surfaces as io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader, scratch []byte) (Record, error) {
	var rec Record
	if _, err := io.ReadFull(r, rec.hdr[:]); err != nil {
		return Record{}, err
	}

	rec.Type = constants.ContentType(rec.hdr[0])
	rec.Version = binary.BigEndian.Uint16(rec.hdr[1:3])
	length := int(binary.BigEndian.Uint16(rec.hdr[3:5]))

	if err := validHeader(rec.Version, length); err != nil {
		return Record{}, err
	}
	if length > len(scratch) {
		return Record{}, werrors.ErrBufferTooSmall
	}

	rec.Payload = scratch[:length]
	if _, err := io.ReadFull(r, rec.Payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	return rec, nil
}

// ParseRecord frames one record from the beginning of data without copying.
// It returns the record and the number of bytes consumed. consumed == 0
// with a nil error means data does not yet hold a complete record.
func ParseRecord(data []byte) (Record, int, error) {
	if len(data) < constants.RecordHeaderLen {
		return Record{}, 0, nil
	}

	var rec Record
	copy(rec.hdr[:], data[:constants.RecordHeaderLen])
	rec.Type = constants.ContentType(rec.hdr[0])
	rec.Version = binary.BigEndian.Uint16(rec.hdr[1:3])
	length := int(binary.BigEndian.Uint16(rec.hdr[3:5]))

	if err := validHeader(rec.Version, length); err != nil {
		return Record{}, 0, err
	}

	total := constants.RecordHeaderLen + length
	if len(data) < total {
		return Record{}, 0, nil
	}

	rec.Payload = data[constants.RecordHeaderLen:total]
	return rec, total, nil
}

// putHeader writes a record header for a payload of the given length.
func putHeader(dst []byte, typ constants.ContentType, length int) {
	dst[0] = byte(typ)
	binary.BigEndian.PutUint16(dst[1:3], constants.VersionTLS12)
	binary.BigEndian.PutUint16(dst[3:5], uint16(length))
}
