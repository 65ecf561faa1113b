// Package signal implements the coalescing readiness primitive the data
// plane uses to wake an external reactor: a descriptor that becomes
// readable when the TLS engine has produced output or holds buffered input
// to drain.
//
// Any number of logical signals between two Clear calls collapse into at
// most one byte in the kernel buffer. The collapse is driven by a single
// atomic state word:
//
//	IDLE --Signal()--> PENDING --write one byte--> SENT
//	PENDING/SENT --Signal()--> no-op (coalesced)
//	SENT --Clear()--> IDLE (drain the descriptor)
//	PENDING --Clear()--> IDLE (writer not yet through; nothing to drain)
//
// On Linux the primitive is an eventfd when available, otherwise a
// non-blocking close-on-exec pipe; on the BSDs it is a pipe. The choice is
// not observable through the API.
package signal

// State word values.
const (
	stateIdle    uint32 = 0
	statePending uint32 = 1
	stateSent    uint32 = 2
)

// Signaler is the readiness hint surface the connection layer binds to.
// Pipe is the real implementation; NopPipe disables signalling with no
// per-operation cost.
type Signaler interface {
	// Signal marks the event edge. Concurrent calls coalesce; at most one
	// byte reaches the kernel buffer.
	Signal() error

	// Clear consumes the pending edge and drains the descriptor if a byte
	// was written.
	Clear() error

	// IsPending reports whether an edge has been signalled and not yet
	// cleared.
	IsPending() bool

	// ReadFd returns the descriptor the reactor polls, or -1 when
	// signalling is disabled.
	ReadFd() int

	// Close releases the descriptors.
	Close() error
}

// NopPipe is the disabled variant: a zero-sized Signaler whose descriptor
// is -1 and whose methods do nothing.
type NopPipe struct{}

func (NopPipe) Signal() error   { return nil }
func (NopPipe) Clear() error    { return nil }
func (NopPipe) IsPending() bool { return false }
func (NopPipe) ReadFd() int     { return -1 }
func (NopPipe) Close() error    { return nil }
