//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package signal

import (
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	werrors "github.com/dkhalov/tlswire/internal/errors"
)

func newTestPipe(t *testing.T, opts Options) *Pipe {
	t.Helper()
	p, err := NewPipeOptions(opts)
	if err != nil {
		t.Fatalf("NewPipeOptions: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// readable polls the pipe descriptor without blocking and reports whether
// it holds data.
func readable(t *testing.T, p *Pipe) bool {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(p.ReadFd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	return n == 1 && fds[0].Revents&unix.POLLIN != 0
}

func TestSignalClear(t *testing.T) {
	p := newTestPipe(t, Options{})

	if p.IsPending() {
		t.Fatal("fresh pipe should not be pending")
	}

	if err := p.Signal(); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if !p.IsPending() {
		t.Fatal("signalled pipe should be pending")
	}
	if !readable(t, p) {
		t.Fatal("signalled pipe should be readable")
	}

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if p.IsPending() {
		t.Fatal("cleared pipe should not be pending")
	}
	if readable(t, p) {
		t.Fatal("cleared pipe should hold no data")
	}
}

// TestCoalescing drives many concurrent signals and verifies at most one
// wake is buffered: after a single Clear nothing remains readable.
func TestCoalescing(t *testing.T) {
	p := newTestPipe(t, Options{})

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := p.Signal(); err != nil {
					t.Errorf("Signal: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if !p.IsPending() {
		t.Fatal("pipe should be pending after signals")
	}
	if err := p.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if p.IsPending() {
		t.Fatal("IsPending should be false after Clear")
	}
	if readable(t, p) {
		t.Fatal("more than one wake was buffered")
	}
}

func TestSignalAfterClearFiresAgain(t *testing.T) {
	p := newTestPipe(t, Options{})

	for round := 0; round < 5; round++ {
		if err := p.Signal(); err != nil {
			t.Fatal(err)
		}
		if !readable(t, p) {
			t.Fatalf("round %d: signal did not reach the pipe", round)
		}
		if err := p.Clear(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEdgeTriggeredDrain(t *testing.T) {
	p := newTestPipe(t, Options{EdgeTriggered: true})

	if err := p.Signal(); err != nil {
		t.Fatal(err)
	}
	if err := p.Clear(); err != nil {
		t.Fatal(err)
	}
	if readable(t, p) {
		t.Fatal("edge-triggered Clear must drain completely")
	}
}

func TestClearWithoutSignal(t *testing.T) {
	p := newTestPipe(t, Options{})
	if err := p.Clear(); err != nil {
		t.Fatalf("Clear on idle pipe: %v", err)
	}
}

func TestClosedPipe(t *testing.T) {
	p, err := NewPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := p.Signal(); !werrors.Is(err, werrors.ErrPipeClosed) {
		t.Errorf("Signal after close = %v", err)
	}
	if err := p.Clear(); !werrors.Is(err, werrors.ErrPipeClosed) {
		t.Errorf("Clear after close = %v", err)
	}
}

func TestNopPipe(t *testing.T) {
	var s Signaler = NopPipe{}

	if err := s.Signal(); err != nil {
		t.Error(err)
	}
	if err := s.Clear(); err != nil {
		t.Error(err)
	}
	if s.IsPending() {
		t.Error("NopPipe is never pending")
	}
	if s.ReadFd() != -1 {
		t.Errorf("NopPipe fd = %d, want -1", s.ReadFd())
	}
	if err := s.Close(); err != nil {
		t.Error(err)
	}
}

func TestReadFd(t *testing.T) {
	p := newTestPipe(t, Options{})
	if p.ReadFd() < 0 {
		t.Errorf("ReadFd = %d", p.ReadFd())
	}
}
