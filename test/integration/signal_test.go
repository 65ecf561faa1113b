//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package integration

import (
	"bytes"
	"testing"

	"github.com/dkhalov/tlswire/internal/constants"
	"github.com/dkhalov/tlswire/pkg/conn"
	"github.com/dkhalov/tlswire/pkg/signal"
)

// TestSignalPipeHints binds a real signal pipe to a connection and checks
// that buffered inbound data raises the readiness edge for a reactor.
func TestSignalPipeHints(t *testing.T) {
	pipe, err := signal.NewPipe()
	if err != nil {
		t.Fatalf("NewPipe: %v", err)
	}
	defer pipe.Close()

	cfg := conn.DefaultConfig()
	cfg.Handshaker = conn.NewStaticHandshaker(constants.TLSAES128GCMSHA256, secretFor(constants.TLSAES128GCMSHA256))
	cfg.Signal = pipe

	client, server := dialPair(t, cfg)

	// A multi-byte message read one byte at a time leaves plaintext
	// buffered in the connection, which must raise the hint.
	done := make(chan error, 1)
	go func() {
		_, err := client.Write([]byte("buffered input"))
		done <- err
	}()

	one := make([]byte, 1)
	if _, err := server.Read(one); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !pipe.IsPending() {
		t.Fatal("buffered plaintext should signal the pipe")
	}
	if pipe.ReadFd() < 0 {
		t.Error("pipe descriptor should be pollable")
	}
	if err := pipe.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	// Drain the rest.
	rest := make([]byte, 64)
	got := []byte{one[0]}
	for len(got) < len("buffered input") {
		n, err := server.Read(rest)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, rest[:n]...)
	}
	if !bytes.Equal(got, []byte("buffered input")) {
		t.Fatalf("got %q", got)
	}
}
