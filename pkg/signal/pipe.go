//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// pipe.go holds the platform-independent half of the signal pipe: the
// atomic state machine. Descriptor creation, the one-byte write, and the
// drain live in the per-platform files.
package signal

import (
	"sync/atomic"

	werrors "github.com/dkhalov/tlswire/internal/errors"
)

// Options configures a Pipe.
type Options struct {
	// EdgeTriggered prepares the pipe for EPOLLET / EV_CLEAR registration:
	// Clear drains the descriptor completely instead of consuming a single
	// byte.
	EdgeTriggered bool
}

// Pipe is the coalescing wake primitive. All methods are safe for
// concurrent use; Signal is lock-free.
type Pipe struct {
	state atomic.Uint32

	rfd, wfd int // rfd == wfd when backed by an eventfd
	edge     bool
	closed   atomic.Bool
}

// NewPipe creates a signal pipe with default options.
func NewPipe() (*Pipe, error) {
	return NewPipeOptions(Options{})
}

// NewPipeOptions creates a signal pipe. The descriptors are non-blocking
// and close-on-exec, set atomically at creation where the OS supports it.
func NewPipeOptions(opts Options) (*Pipe, error) {
	rfd, wfd, err := newDescriptors()
	if err != nil {
		return nil, err
	}
	return &Pipe{rfd: rfd, wfd: wfd, edge: opts.EdgeTriggered}, nil
}

// Signal marks the readiness edge. The first caller since the last Clear
// writes one byte; every other caller coalesces into that byte.
func (p *Pipe) Signal() error {
	if p.closed.Load() {
		return werrors.ErrPipeClosed
	}
	if !p.state.CompareAndSwap(stateIdle, statePending) {
		return nil // already pending or sent; coalesce
	}
	if err := writeWake(p.wfd, p.rfd == p.wfd); err != nil {
		p.state.Store(stateIdle)
		return err
	}
	p.state.Store(stateSent)
	return nil
}

// Clear consumes the edge. If the signalling write already landed the
// descriptor is drained; if the writer is still between its CAS and its
// write there is nothing in the kernel buffer yet and the late byte will
// surface as one spurious wake.
func (p *Pipe) Clear() error {
	if p.closed.Load() {
		return werrors.ErrPipeClosed
	}
	if p.state.Swap(stateIdle) == stateSent {
		return drainWake(p.rfd, p.rfd == p.wfd, p.edge)
	}
	return nil
}

// IsPending reports whether an un-cleared edge exists.
func (p *Pipe) IsPending() bool {
	return p.state.Load() != stateIdle
}

// ReadFd returns the descriptor to register with the reactor.
func (p *Pipe) ReadFd() int {
	return p.rfd
}

// Close releases the descriptors. Signal and Clear fail afterwards.
func (p *Pipe) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return closeDescriptors(p.rfd, p.wfd)
}

var _ Signaler = (*Pipe)(nil)
var _ Signaler = NopPipe{}
