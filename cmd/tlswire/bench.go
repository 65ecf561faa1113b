package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkhalov/tlswire/internal/constants"
	"github.com/dkhalov/tlswire/pkg/conn"
	"github.com/dkhalov/tlswire/pkg/record"
	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

func runBench(suiteName string, size int, durationStr string, useZeroCopy bool) {
	id, ok := suiteByName(suiteName)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown suite %q\n", suiteName)
		os.Exit(1)
	}
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid duration %q\n", durationStr)
		os.Exit(1)
	}
	if size <= 0 || size > constants.MaxPlaintextRecordLen {
		fmt.Fprintf(os.Stderr, "Error: size must be in (0, %d]\n", constants.MaxPlaintextRecordLen)
		os.Exit(1)
	}

	fmt.Printf("tlswire bench: %s, %d-byte messages, %v, zerocopy=%v\n", id, size, duration, useZeroCopy)
	fmt.Println(strings.Repeat("-", 60))

	s1 := make([]byte, secretSize(id))
	s2 := make([]byte, secretSize(id))
	mustRand(s1)
	mustRand(s2)

	sender, err := record.NewCipherFromSecrets(id, s1, s2)
	if err != nil {
		fatal(err)
	}
	recvCipher, err := record.NewCipherFromSecrets(id, s2, s1)
	if err != nil {
		fatal(err)
	}

	// Record payloads sit 5 bytes into the wire buffer, so the default
	// 16-byte alignment requirement would force the copy path; the bench
	// waives it to exercise aliased decryption. With zero copy off, an
	// unsatisfiable alignment forces the copy path everywhere instead.
	zcCfg := zerocopy.Config{Alignment: 0}
	if !useZeroCopy {
		zcCfg.Alignment = 1 << 30
	}
	receiver, err := conn.NewEngine(recvCipher, conn.EngineConfig{ZeroCopy: zcCfg})
	if err != nil {
		fatal(err)
	}

	payload := make([]byte, size)
	mustRand(payload)

	wire := make([]byte, sender.EncryptedSize(size)+64)
	out := make([]byte, constants.MaxRecordLen)

	var records, bytes uint64
	deadline := time.Now().Add(duration)
	start := time.Now()

	for time.Now().Before(deadline) {
		n, err := sender.Encrypt(wire, payload)
		if err != nil {
			fatal(err)
		}

		// Aim the output at the ciphertext itself so the engine can run
		// the aliased transform; with zero copy off it lands in out.
		dst := out
		if useZeroCopy {
			dst = wire[constants.RecordHeaderLen:]
		}
		res, err := receiver.Decrypt(wire[:n], dst)
		if err != nil {
			fatal(err)
		}
		records++
		bytes += uint64(len(res.Plaintext))
	}
	elapsed := time.Since(start)

	mbps := float64(bytes) / elapsed.Seconds() / (1 << 20)
	rps := float64(records) / elapsed.Seconds()

	fmt.Printf("records:     %d\n", records)
	fmt.Printf("plaintext:   %.1f MiB\n", float64(bytes)/(1<<20))
	fmt.Printf("throughput:  %.1f MiB/s\n", mbps)
	fmt.Printf("records/sec: %.0f\n", rps)

	stats := receiver.Stats()
	fmt.Printf("zero-copy:   %d in-place, %d copied, %.1f MiB saved\n",
		stats.InPlaceDecrypts, stats.CopyDecrypts, float64(stats.BytesSaved)/(1<<20))
}

func mustRand(b []byte) {
	if _, err := rand.Read(b); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
