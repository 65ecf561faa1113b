// engine.go implements the non-blocking data plane: the caller owns every
// byte of I/O and feeds the engine explicit input and output buffers. This
// is the surface a descriptor-driven reactor uses.
package conn

import (
	"sync/atomic"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
	"github.com/dkhalov/tlswire/pkg/record"
	"github.com/dkhalov/tlswire/pkg/signal"
	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

// EngineConfig configures a non-blocking engine.
type EngineConfig struct {
	// ZeroCopy configures the in-place decryption engine.
	ZeroCopy zerocopy.Config

	// Signal, when set, is signalled whenever Encrypt produces output, so
	// a reactor multiplexing many engines learns that a send is pending.
	Signal signal.Signaler
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{ZeroCopy: zerocopy.DefaultConfig()}
}

// DecryptResult is the outcome of one Engine.Decrypt call.
type DecryptResult struct {
	// Plaintext aliases the output buffer (or the input buffer when the
	// record was decrypted in place). Nil when Consumed is zero or the
	// record carried no application data.
	Plaintext []byte

	// Consumed is the number of input bytes framing the processed record.
	// Zero means the input does not yet hold a complete record.
	Consumed int

	// ContentType is the record's real content type.
	ContentType constants.ContentType
}

// Engine is the non-blocking connection variant. It is not safe for
// concurrent use of the same direction; like Conn, the two directions may
// be driven from two goroutines.
type Engine struct {
	cipher *record.Cipher
	zc     *zerocopy.Engine
	sig    signal.Signaler

	failed atomic.Bool
	closed atomic.Bool

	// keyUpdateResponse is set when the peer requested a key update and
	// the engine's owner has not yet sent one.
	keyUpdateResponse atomic.Bool
}

// NewEngine creates a non-blocking engine around a negotiated cipher.
func NewEngine(cipher *record.Cipher, cfg EngineConfig) (*Engine, error) {
	if cipher == nil {
		return nil, werrors.ErrHandshakeIncomplete
	}
	var sig signal.Signaler = signal.NopPipe{}
	if cfg.Signal != nil {
		sig = cfg.Signal
	}
	return &Engine{
		cipher: cipher,
		zc:     zerocopy.NewEngine(cfg.ZeroCopy),
		sig:    sig,
	}, nil
}

// Encrypt protects as much of input as fits into output as complete
// records. It returns the output bytes written and the input bytes
// consumed. A zero-record fit returns ErrBufferTooSmall.
func (e *Engine) Encrypt(input, output []byte) (written, consumed int, err error) {
	if err := e.checkState(); err != nil {
		return 0, 0, err
	}

	for consumed < len(input) {
		n := len(input) - consumed
		if n > constants.MaxPlaintextRecordLen {
			n = constants.MaxPlaintextRecordLen
		}
		need := e.cipher.EncryptedSize(n)
		if len(output)-written < need {
			break
		}

		w, err := e.cipher.EncryptRecord(output[written:], constants.ContentTypeApplicationData, input[consumed:consumed+n])
		if err != nil {
			e.failed.Store(true)
			return written, consumed, err
		}
		written += w
		consumed += n
	}

	if consumed == 0 && len(input) > 0 {
		return 0, 0, werrors.ErrBufferTooSmall
	}
	if written > 0 {
		_ = e.sig.Signal() // send pending
	}
	return written, consumed, nil
}

// Decrypt frames and deprotects one record from input, writing plaintext
// into output (or in place when the overlap predicate allows). A partial
// record yields Consumed == 0 with no error; the caller reads more input.
//
// Alerts and key updates are handled internally: close_notify closes the
// engine, other alerts fail it, key_update rotates the receive keys (a
// requested response is surfaced by KeyUpdateResponsePending). In those
// cases Plaintext is nil and the caller simply continues with the next
// record.
func (e *Engine) Decrypt(input, output []byte) (DecryptResult, error) {
	if err := e.checkState(); err != nil {
		return DecryptResult{}, err
	}

	rec, consumed, err := record.ParseRecord(input)
	if err != nil {
		e.failed.Store(true)
		return DecryptResult{}, err
	}
	if consumed == 0 {
		return DecryptResult{}, nil
	}

	res, err := e.zc.DecryptRecord(e.cipher, rec, output)
	if err != nil {
		e.failed.Store(true)
		return DecryptResult{Consumed: consumed}, err
	}

	out := DecryptResult{Consumed: consumed, ContentType: res.ContentType}

	switch res.ContentType {
	case constants.ContentTypeApplicationData:
		out.Plaintext = res.Plaintext

	case constants.ContentTypeAlert:
		alert, err := record.ParseAlert(res.Plaintext)
		if err != nil {
			e.failed.Store(true)
			return out, err
		}
		if alert.Code == constants.AlertCloseNotify {
			e.closed.Store(true)
			return out, werrors.ErrCloseNotify
		}
		e.failed.Store(true)
		return out, alert.Err()

	case constants.ContentTypeHandshake:
		isKeyUpdate, requested, err := record.ParseKeyUpdate(res.Plaintext)
		if err != nil || !isKeyUpdate {
			e.failed.Store(true)
			if err == nil {
				err = werrors.ErrUnexpectedMessage
			}
			return out, err
		}
		if err := e.cipher.UpdateRecvKeys(); err != nil {
			e.failed.Store(true)
			return out, err
		}
		if requested {
			e.keyUpdateResponse.Store(true)
		}

	case constants.ContentTypeChangeCipherSpec:
		// Ignored middlebox-compatibility record.

	default:
		e.failed.Store(true)
		return out, werrors.ErrUnexpectedMessage
	}

	return out, nil
}

// EncryptKeyUpdate emits a key_update record into output and rotates the
// send keys. Call when KeyUpdateResponsePending reports true, or
// spontaneously to rotate this side's keys.
func (e *Engine) EncryptKeyUpdate(output []byte, requestUpdate bool) (int, error) {
	if err := e.checkState(); err != nil {
		return 0, err
	}

	var msg [8]byte
	n, err := record.EncodeKeyUpdate(msg[:], requestUpdate)
	if err != nil {
		return 0, err
	}
	w, err := e.cipher.EncryptRecord(output, constants.ContentTypeHandshake, msg[:n])
	if err != nil {
		return 0, err
	}
	if err := e.cipher.UpdateSendKeys(); err != nil {
		e.failed.Store(true)
		return 0, err
	}
	e.keyUpdateResponse.Store(false)
	_ = e.sig.Signal()
	return w, nil
}

// EncryptClose emits a close_notify alert into output and closes the
// engine.
func (e *Engine) EncryptClose(output []byte) (int, error) {
	if err := e.checkState(); err != nil {
		return 0, err
	}

	var payload [2]byte
	if _, err := record.EncodeAlert(payload[:], constants.AlertLevelWarning, constants.AlertCloseNotify); err != nil {
		return 0, err
	}
	w, err := e.cipher.EncryptRecord(output, constants.ContentTypeAlert, payload[:])
	if err != nil {
		return 0, err
	}
	e.closed.Store(true)
	e.cipher.ZeroizeKeys()
	_ = e.sig.Signal()
	return w, nil
}

// KeyUpdateResponsePending reports whether the peer asked for a key update
// this engine has not answered yet.
func (e *Engine) KeyUpdateResponsePending() bool {
	return e.keyUpdateResponse.Load()
}

// Stats returns the zero-copy statistics.
func (e *Engine) Stats() zerocopy.Stats {
	return e.zc.Stats()
}

// Cipher returns the engine's cipher state.
func (e *Engine) Cipher() *record.Cipher {
	return e.cipher
}

func (e *Engine) checkState() error {
	if e.failed.Load() {
		return werrors.ErrConnFailed
	}
	if e.closed.Load() {
		return werrors.ErrConnClosed
	}
	return nil
}
