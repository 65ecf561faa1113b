// alert.go implements the TLS alert protocol payload: two bytes, a level
// and a description (RFC 8446 Section 6).
package record

import (
	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// Alert is a decoded alert record payload.
type Alert struct {
	Level constants.AlertLevel
	Code  constants.AlertCode
}

// EncodeAlert writes the 2-byte alert payload into dst.
func EncodeAlert(dst []byte, level constants.AlertLevel, code constants.AlertCode) (int, error) {
	if len(dst) < 2 {
		return 0, werrors.ErrBufferTooSmall
	}
	dst[0] = byte(level)
	dst[1] = byte(code)
	return 2, nil
}

// ParseAlert decodes an alert record payload.
func ParseAlert(payload []byte) (Alert, error) {
	if len(payload) != 2 {
		return Alert{}, werrors.ErrDecode
	}
	return Alert{
		Level: constants.AlertLevel(payload[0]),
		Code:  constants.AlertCode(payload[1]),
	}, nil
}

// Err converts an alert to the error surfaced to callers. close_notify maps
// to its sentinel so the connection can turn it into EOF.
func (a Alert) Err() error {
	if a.Code == constants.AlertCloseNotify {
		return werrors.ErrCloseNotify
	}
	return &werrors.AlertError{Level: uint8(a.Level), Code: uint8(a.Code), Desc: a.Code.String()}
}

// AlertFor maps a fatal record-plane error to the alert that should be sent
// to the peer before the connection fails (RFC 8446 Section 6.2).
func AlertFor(err error) (constants.AlertCode, bool) {
	switch {
	case werrors.Is(err, werrors.ErrBadRecordMac):
		return constants.AlertBadRecordMac, true
	case werrors.Is(err, werrors.ErrRecordOverflow):
		return constants.AlertRecordOverflow, true
	case werrors.Is(err, werrors.ErrDecode):
		return constants.AlertDecodeError, true
	case werrors.Is(err, werrors.ErrUnexpectedMessage):
		return constants.AlertUnexpectedMessage, true
	case werrors.Is(err, werrors.ErrSequenceOverflow):
		return constants.AlertInternalError, true
	default:
		return 0, false
	}
}
