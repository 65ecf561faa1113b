//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// pipe_bsd.go backs the signal pipe with a plain pipe on the BSDs. The
// descriptors are made non-blocking and close-on-exec through the fcntl
// helpers, using the OS-provided flag constants.
package signal

import (
	"golang.org/x/sys/unix"
)

// newDescriptors creates the pipe. rfd never equals wfd on this path.
func newDescriptors() (rfd, wfd int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return -1, -1, err
		}
		unix.CloseOnExec(fd)
	}
	return fds[0], fds[1], nil
}

// writeWake writes the single wake byte. EAGAIN means the pipe already has
// unread data, which keeps the coalescing contract.
func writeWake(wfd int, _ bool) error {
	var buf [1]byte
	_, err := unix.Write(wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// drainWake consumes one byte in level-triggered mode and loops until
// EAGAIN in edge-triggered mode.
func drainWake(rfd int, _, edge bool) error {
	var buf [8]byte
	for {
		_, err := unix.Read(rfd, buf[:])
		switch {
		case err == unix.EAGAIN:
			return nil
		case err != nil:
			return err
		}
		if !edge {
			return nil
		}
	}
}

func closeDescriptors(rfd, wfd int) error {
	err := unix.Close(rfd)
	if cerr := unix.Close(wfd); err == nil {
		err = cerr
	}
	return err
}

// Kevent returns the kevent registration for the pipe: EVFILT_READ with
// EV_ADD|EV_ENABLE, OR'd with EV_CLEAR when the pipe was created
// edge-triggered.
func (p *Pipe) Kevent() unix.Kevent_t {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if p.edge {
		flags |= unix.EV_CLEAR
	}
	return unix.Kevent_t{
		Ident:  uint64(p.rfd),
		Filter: unix.EVFILT_READ,
		Flags:  flags,
	}
}
