// keyupdate.go frames the TLS 1.3 key_update post-handshake message, the
// one handshake message the data plane handles itself (RFC 8446
// Section 4.6.3).
//
// Wire format, carried in a handshake-typed record:
//
//	+------+----------+-------------------+
//	| Type | Length   | update_requested  |
//	| 0x18 | 3B BE =1 | 1B                |
//	+------+----------+-------------------+
package record

import (
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// handshakeTypeKeyUpdate is the HandshakeType code point for key_update.
const handshakeTypeKeyUpdate = 24

// keyUpdateMsgLen is the framed size of a key_update message.
const keyUpdateMsgLen = 5

// EncodeKeyUpdate writes a key_update handshake message into dst.
// requestUpdate asks the peer to rotate its own send keys in response.
func EncodeKeyUpdate(dst []byte, requestUpdate bool) (int, error) {
	if len(dst) < keyUpdateMsgLen {
		return 0, werrors.ErrBufferTooSmall
	}
	dst[0] = handshakeTypeKeyUpdate
	dst[1] = 0
	dst[2] = 0
	dst[3] = 1
	dst[4] = 0
	if requestUpdate {
		dst[4] = 1
	}
	return keyUpdateMsgLen, nil
}

// ParseKeyUpdate decodes a handshake-typed plaintext. It reports whether
// the message is a key_update at all, and if so whether the peer requested
// an update in return. Non-key_update handshake messages are not an error
// here; the caller decides (pkg/conn rejects them as unexpected messages).
func ParseKeyUpdate(payload []byte) (isKeyUpdate, requestUpdate bool, err error) {
	if len(payload) < 4 || payload[0] != handshakeTypeKeyUpdate {
		return false, false, nil
	}
	length := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if length != 1 || len(payload) != keyUpdateMsgLen {
		return true, false, werrors.ErrDecode
	}
	switch payload[4] {
	case 0:
		return true, false, nil
	case 1:
		return true, true, nil
	default:
		return true, false, werrors.ErrDecode
	}
}
