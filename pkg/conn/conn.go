// Package conn implements the connection data plane: the glue between a
// byte stream, a negotiated record.Cipher, the pooled buffers, the
// zero-copy engine, and the reactor signal pipe.
//
// A Conn is the blocking surface (Read/Write/Close over a net.Conn); the
// Engine in engine.go is the non-blocking variant where all I/O belongs to
// the caller. Encrypt and decrypt may run concurrently on one Conn: the
// two directions share no mutable cipher state beyond their independent
// sequence counters.
package conn

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
	"github.com/dkhalov/tlswire/pkg/pool"
	"github.com/dkhalov/tlswire/pkg/record"
	"github.com/dkhalov/tlswire/pkg/signal"
	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

// State is the externally visible data-plane state.
type State int32

const (
	// StateIdle: no record operation in flight.
	StateIdle State = iota

	// StateEncryptInProgress: a Write is protecting records.
	StateEncryptInProgress

	// StateDecryptInProgress: a Read is deprotecting records.
	StateDecryptInProgress

	// StateClosed: close_notify observed or local close. Terminal.
	StateClosed

	// StateFailed: a fatal record error occurred. Terminal for the data
	// plane.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEncryptInProgress:
		return "EncryptInProgress"
	case StateDecryptInProgress:
		return "DecryptInProgress"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// status is the internal terminal-state word; the in-progress states are
// derived from the per-direction latches so concurrent encrypt and decrypt
// stay representable.
const (
	statusActive int32 = iota
	statusClosed
	statusFailed
)

// Conn is a blocking TLS data-plane connection over an established stream.
type Conn struct {
	nc     net.Conn
	cipher *record.Cipher
	zc     *zerocopy.Engine
	bufs   *pool.BufferPool
	sig    signal.Signaler

	observer Observer
	isClient bool

	status  atomic.Int32
	encBusy atomic.Bool
	decBusy atomic.Bool

	// Read side. readMu serializes Reads; the pooled buffer holds the
	// current record and recvPlain the plaintext not yet handed out.
	readMu    sync.Mutex
	recvBuf   *pool.Buffer
	recvPlain []byte

	// Write side.
	writeMu sync.Mutex

	closeOnce sync.Once

	// Statistics.
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64
	RecordsRead  atomic.Uint64
	RecordsSent  atomic.Uint64
}

func bind(nc net.Conn, cipher *record.Cipher, cfg *Config, isClient bool) *Conn {
	bufs := cfg.Buffers
	if bufs == nil {
		bufs = pool.NewRecordBufferPool(2)
	}
	var sig signal.Signaler = signal.NopPipe{}
	if cfg.Signal != nil {
		sig = cfg.Signal
	}

	c := &Conn{
		nc:       nc,
		cipher:   cipher,
		zc:       zerocopy.NewEngine(cfg.ZeroCopy),
		bufs:     bufs,
		sig:      sig,
		isClient: isClient,
	}
	c.observer = observerFromConfig(cfg, c)
	if c.observer != nil {
		c.observer.OnConnOpen()
	}
	return c
}

// State returns the current data-plane state.
func (c *Conn) State() State {
	switch c.status.Load() {
	case statusFailed:
		return StateFailed
	case statusClosed:
		return StateClosed
	}
	if c.encBusy.Load() {
		return StateEncryptInProgress
	}
	if c.decBusy.Load() {
		return StateDecryptInProgress
	}
	return StateIdle
}

func (c *Conn) checkStatus() error {
	switch c.status.Load() {
	case statusFailed:
		return werrors.ErrConnFailed
	case statusClosed:
		return io.EOF
	}
	return nil
}

// Write encrypts b into application-data records and writes them to the
// underlying stream. It returns the number of cleartext bytes consumed.
func (c *Conn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.checkStatus(); err != nil {
		if err == io.EOF {
			err = werrors.ErrConnClosed
		}
		return 0, err
	}

	c.encBusy.Store(true)
	defer c.encBusy.Store(false)

	var done func(error)
	if c.observer != nil {
		_, done = c.observer.OnEncrypt(context.Background(), len(b))
	}

	if len(b) == 0 {
		if done != nil {
			done(nil)
		}
		return 0, nil
	}

	buf := c.bufs.Acquire()
	defer buf.Release()

	written := 0
	for written < len(b) {
		n := len(b) - written
		if n > constants.MaxPlaintextRecordLen {
			n = constants.MaxPlaintextRecordLen
		}

		w, err := c.cipher.EncryptRecord(buf.Bytes(), constants.ContentTypeApplicationData, b[written:written+n])
		if err != nil {
			c.fail(err, true)
			if done != nil {
				done(err)
			}
			return written, err
		}

		if _, err := c.nc.Write(buf.Bytes()[:w]); err != nil {
			if done != nil {
				done(err)
			}
			return written, err
		}

		written += n
		c.RecordsSent.Add(1)
	}

	c.BytesWritten.Add(uint64(written))
	if done != nil {
		done(nil)
	}
	return written, nil
}

// Read decrypts application data from the stream into b. Peer close_notify
// surfaces as io.EOF.
func (c *Conn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if len(c.recvPlain) > 0 {
			n := copy(b, c.recvPlain)
			c.recvPlain = c.recvPlain[n:]
			c.BytesRead.Add(uint64(n))
			if len(c.recvPlain) == 0 {
				c.releaseRecvLocked()
			}
			return n, nil
		}

		if err := c.checkStatus(); err != nil {
			return 0, err
		}

		typ, plaintext, err := c.readRecordLocked()
		if err != nil {
			return 0, err
		}

		switch typ {
		case constants.ContentTypeApplicationData:
			if len(plaintext) == 0 {
				c.releaseRecvLocked()
				continue // empty record, keep reading
			}
			c.recvPlain = plaintext
			// Buffered input exists: hint the reactor.
			_ = c.sig.Signal()

		case constants.ContentTypeAlert:
			err := c.handleAlertLocked(plaintext)
			c.releaseRecvLocked()
			if err != nil {
				return 0, err
			}

		case constants.ContentTypeHandshake:
			err := c.handleHandshakeLocked(plaintext)
			c.releaseRecvLocked()
			if err != nil {
				return 0, err
			}

		case constants.ContentTypeChangeCipherSpec:
			// Middlebox-compatibility records; ignored.
			c.releaseRecvLocked()

		default:
			c.releaseRecvLocked()
			err := werrors.ErrUnexpectedMessage
			c.fail(err, false)
			return 0, err
		}
	}
}

// readRecordLocked reads and deprotects one record into a pooled buffer.
// The returned plaintext aliases c.recvBuf.
func (c *Conn) readRecordLocked() (constants.ContentType, []byte, error) {
	c.decBusy.Store(true)
	defer c.decBusy.Store(false)

	buf := c.bufs.Acquire()
	rec, err := record.ReadRecord(c.nc, buf.Bytes())
	if err != nil {
		buf.Release()
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		if werrors.Is(err, werrors.ErrDecode) || werrors.Is(err, werrors.ErrRecordOverflow) {
			c.fail(err, false)
		}
		return 0, nil, err
	}

	var done func(error)
	if c.observer != nil {
		_, done = c.observer.OnDecrypt(context.Background(), len(rec.Payload))
	}

	// Output at the payload position: the engine decrypts in place when
	// the suite allows it and falls back to the copy path otherwise.
	res, err := c.zc.DecryptRecord(c.cipher, rec, rec.Payload)
	if err != nil {
		buf.Release()
		if c.observer != nil {
			c.observer.OnBadRecord()
		}
		if done != nil {
			done(err)
		}
		c.fail(err, false)
		return 0, nil, err
	}
	if done != nil {
		done(nil)
	}

	c.recvBuf = buf
	c.RecordsRead.Add(1)
	return res.ContentType, res.Plaintext, nil
}

func (c *Conn) releaseRecvLocked() {
	if c.recvBuf != nil {
		c.recvBuf.Release()
		c.recvBuf = nil
		c.recvPlain = nil
	}
}

// handleAlertLocked processes an alert record. close_notify transitions to
// Closed and surfaces io.EOF on the next Read; every other alert fails the
// connection.
func (c *Conn) handleAlertLocked(plaintext []byte) error {
	alert, err := record.ParseAlert(plaintext)
	if err != nil {
		c.fail(err, false)
		return err
	}

	if alert.Code == constants.AlertCloseNotify {
		c.status.CompareAndSwap(statusActive, statusClosed)
		c.cipher.ZeroizeKeys()
		if c.observer != nil {
			c.observer.OnConnClose()
		}
		return io.EOF
	}

	c.status.CompareAndSwap(statusActive, statusFailed)
	c.cipher.ZeroizeKeys()
	aerr := alert.Err()
	if c.observer != nil {
		c.observer.OnConnFailed(aerr)
	}
	return aerr
}

// handleHandshakeLocked processes post-handshake messages on the data
// plane. key_update is handled here; anything else is unexpected, since
// the handshake subsystem owns the stream until the cipher exists.
func (c *Conn) handleHandshakeLocked(plaintext []byte) error {
	isKeyUpdate, requested, err := record.ParseKeyUpdate(plaintext)
	if err != nil {
		c.fail(err, false)
		return err
	}
	if !isKeyUpdate {
		err := werrors.ErrUnexpectedMessage
		c.fail(err, false)
		return err
	}

	if err := c.cipher.UpdateRecvKeys(); err != nil {
		c.fail(err, false)
		return err
	}
	if c.observer != nil {
		c.observer.OnKeyUpdate()
	}

	if requested {
		return c.sendKeyUpdate(false)
	}
	return nil
}

// UpdateKeys rotates this side's send keys, announcing the update to the
// peer first. requestUpdate asks the peer to rotate its own send keys too.
func (c *Conn) UpdateKeys(requestUpdate bool) error {
	if err := c.checkStatus(); err != nil {
		if err == io.EOF {
			err = werrors.ErrConnClosed
		}
		return err
	}
	return c.sendKeyUpdate(requestUpdate)
}

// sendKeyUpdate writes the key_update message under the old keys, then
// rotates the send direction (RFC 8446 Section 4.6.3: the update message
// itself is protected by the previous generation).
func (c *Conn) sendKeyUpdate(requestUpdate bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var msg [8]byte
	n, err := record.EncodeKeyUpdate(msg[:], requestUpdate)
	if err != nil {
		return err
	}

	buf := c.bufs.Acquire()
	defer buf.Release()

	w, err := c.cipher.EncryptRecord(buf.Bytes(), constants.ContentTypeHandshake, msg[:n])
	if err != nil {
		c.fail(err, true)
		return err
	}
	if _, err := c.nc.Write(buf.Bytes()[:w]); err != nil {
		return err
	}
	if err := c.cipher.UpdateSendKeys(); err != nil {
		c.fail(err, true)
		return err
	}
	if c.observer != nil {
		c.observer.OnKeyUpdate()
	}
	return nil
}

// fail transitions to Failed, emits the mapped alert best effort, wipes
// the traffic secrets, and closes the descriptor. Terminal. writeLocked
// states whether the caller already holds writeMu; the alert write must
// not race a concurrent Write on the encrypt state.
func (c *Conn) fail(err error, writeLocked bool) {
	if !c.status.CompareAndSwap(statusActive, statusFailed) {
		return
	}

	if code, ok := record.AlertFor(err); ok {
		if writeLocked {
			c.sendAlert(constants.AlertLevelFatal, code)
		} else {
			c.writeMu.Lock()
			c.sendAlert(constants.AlertLevelFatal, code)
			c.writeMu.Unlock()
		}
	}
	c.cipher.ZeroizeKeys()
	_ = c.nc.Close()

	if c.observer != nil {
		c.observer.OnConnFailed(err)
	}
}

// sendAlert writes an alert record. Best effort: failures are swallowed,
// there is nothing useful to do with them on a failing connection.
func (c *Conn) sendAlert(level constants.AlertLevel, code constants.AlertCode) {
	var payload [2]byte
	if _, err := record.EncodeAlert(payload[:], level, code); err != nil {
		return
	}

	buf := c.bufs.Acquire()
	defer buf.Release()

	w, err := c.cipher.EncryptRecord(buf.Bytes(), constants.ContentTypeAlert, payload[:])
	if err != nil {
		return
	}
	_, _ = c.nc.Write(buf.Bytes()[:w])
	if c.observer != nil {
		c.observer.OnAlertSent(uint8(code))
	}
}

// Close sends close_notify, wipes secrets, and closes the underlying
// stream. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		wasActive := c.status.CompareAndSwap(statusActive, statusClosed)

		if wasActive {
			c.writeMu.Lock()
			c.sendAlert(constants.AlertLevelWarning, constants.AlertCloseNotify)
			c.writeMu.Unlock()
		}

		c.readMu.Lock()
		c.releaseRecvLocked()
		c.readMu.Unlock()

		c.cipher.ZeroizeKeys()
		err = c.nc.Close()

		if wasActive && c.observer != nil {
			c.observer.OnConnClose()
		}
	})
	return err
}

// IsClient reports whether the connection is the client side.
func (c *Conn) IsClient() bool {
	return c.isClient
}

// NetConn returns the underlying stream.
func (c *Conn) NetConn() net.Conn {
	return c.nc
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// ZeroCopyStats returns the in-place decryption statistics.
func (c *Conn) ZeroCopyStats() zerocopy.Stats {
	return c.zc.Stats()
}

// Signal returns the readiness hint bound to the connection.
func (c *Conn) Signal() signal.Signaler {
	return c.sig
}
