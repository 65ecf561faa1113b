package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrDecode,
		ErrBadRecordMac,
		ErrUnexpectedMessage,
		ErrCloseNotify,
		ErrRecordOverflow,
		ErrSequenceOverflow,
		ErrUnsupportedSuite,
		ErrInvalidKeySize,
		ErrBufferTooSmall,
		ErrInvalidBuffer,
		ErrDoubleRelease,
		ErrForeignBuffer,
		ErrPoolClosed,
		ErrPipeClosed,
		ErrConnClosed,
		ErrConnFailed,
		ErrHandshakeIncomplete,
	}

	seen := make(map[string]bool)
	for _, err := range sentinels {
		if err.Error() == "" {
			t.Error("sentinel error with empty message")
		}
		if seen[err.Error()] {
			t.Errorf("duplicate error message: %q", err.Error())
		}
		seen[err.Error()] = true
	}
}

func TestRecordError(t *testing.T) {
	err := NewRecordError("decrypt", ErrBadRecordMac)

	if !errors.Is(err, ErrBadRecordMac) {
		t.Error("RecordError should unwrap to its cause")
	}

	var re *RecordError
	if !errors.As(err, &re) {
		t.Fatal("errors.As should find RecordError")
	}
	if re.Op != "decrypt" {
		t.Errorf("Op = %q, want decrypt", re.Op)
	}

	msg := err.Error()
	if msg != "decrypt: record: bad record MAC" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestRecordErrorWrapping(t *testing.T) {
	inner := fmt.Errorf("wrapped: %w", ErrDecode)
	err := NewRecordError("read", inner)

	if !Is(err, ErrDecode) {
		t.Error("Is should traverse the chain")
	}
}

func TestAlertError(t *testing.T) {
	warn := &AlertError{Level: 1, Code: 0, Desc: "close_notify"}
	if warn.Error() != "alert (warning): close_notify" {
		t.Errorf("unexpected message: %q", warn.Error())
	}

	fatal := &AlertError{Level: 2, Code: 20}
	if fatal.Error() != "alert (fatal): code 20" {
		t.Errorf("unexpected message: %q", fatal.Error())
	}
}

func TestIsAs(t *testing.T) {
	err := NewRecordError("encrypt", ErrSequenceOverflow)

	if !Is(err, ErrSequenceOverflow) {
		t.Error("Is failed")
	}

	var re *RecordError
	if !As(err, &re) {
		t.Error("As failed")
	}
}
