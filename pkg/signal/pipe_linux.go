//go:build linux

// pipe_linux.go backs the signal pipe with an eventfd: one descriptor, one
// counter, the same coalesced-edge contract. If eventfd creation fails the
// pipe falls back to pipe2. Both paths get non-blocking close-on-exec
// descriptors atomically at creation.
package signal

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// newDescriptors creates the wake descriptor(s). rfd == wfd marks an
// eventfd.
func newDescriptors() (rfd, wfd int, err error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err == nil {
		return efd, efd, nil
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// writeWake makes the descriptor readable. An eventfd takes an 8-byte
// host-order counter increment; a pipe takes a single byte. EAGAIN means
// the readable state is already visible, which is all a coalesced signal
// needs.
func writeWake(wfd int, eventfd bool) error {
	var buf [8]byte
	n := 1
	if eventfd {
		binary.NativeEndian.PutUint64(buf[:], 1)
		n = 8
	}
	_, err := unix.Write(wfd, buf[:n])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drainWake consumes the readable state. An eventfd read returns and
// resets the whole counter, so one read suffices in either trigger mode; a
// pipe read consumes one byte in level-triggered mode and loops until
// EAGAIN in edge-triggered mode.
func drainWake(rfd int, eventfd, edge bool) error {
	var buf [8]byte
	for {
		_, err := unix.Read(rfd, buf[:])
		switch {
		case err == unix.EAGAIN:
			return nil
		case err != nil:
			return err
		}
		if eventfd || !edge {
			return nil
		}
	}
}

func closeDescriptors(rfd, wfd int) error {
	err := unix.Close(rfd)
	if wfd != rfd {
		if cerr := unix.Close(wfd); err == nil {
			err = cerr
		}
	}
	return err
}

// PollEvents returns the epoll event mask to register the pipe with:
// EPOLLIN, OR'd with EPOLLET when the pipe was created edge-triggered.
func (p *Pipe) PollEvents() uint32 {
	ev := uint32(unix.EPOLLIN)
	if p.edge {
		ev |= uint32(unix.EPOLLET)
	}
	return ev
}
