package main

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dkhalov/tlswire/internal/constants"
	"github.com/dkhalov/tlswire/pkg/conn"
	"github.com/dkhalov/tlswire/pkg/metrics"
	"github.com/dkhalov/tlswire/pkg/pool"
)

func suiteByName(name string) (constants.CipherSuite, bool) {
	switch name {
	case "aes128":
		return constants.TLSAES128GCMSHA256, true
	case "aes256":
		return constants.TLSAES256GCMSHA384, true
	case "chacha20":
		return constants.TLSChaCha20Poly1305SHA256, true
	case "aegis":
		return constants.TLSAEGIS128LSHA256, true
	default:
		return 0, false
	}
}

func secretSize(id constants.CipherSuite) int {
	if id == constants.TLSAES256GCMSHA384 {
		return 48
	}
	return 32
}

func runDemo(suiteName string, messages int, verbose bool) {
	id, ok := suiteByName(suiteName)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown suite %q\n", suiteName)
		os.Exit(1)
	}

	level := metrics.LevelInfo
	if verbose {
		level = metrics.LevelDebug
	}
	log := metrics.NewLogger(metrics.WithLevel(level))

	fmt.Printf("tlswire demo: %s, %d messages\n\n", id, messages)

	secret := make([]byte, secretSize(id))
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()

	collector := metrics.NewCollector(metrics.Labels{"demo": "echo"})
	bufs := pool.NewRecordBufferPool(4)

	cfg := conn.DefaultConfig()
	cfg.Handshaker = conn.NewStaticHandshaker(id, secret)
	cfg.Buffers = bufs
	cfg.ObserverFactory = func(c *conn.Conn) conn.Observer {
		return metrics.NewConnObserver(metrics.ConnObserverConfig{
			Collector: collector,
			Logger:    log,
			Role:      "demo",
		})
	}

	var g errgroup.Group

	// Echo server.
	g.Go(func() error {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		server, err := conn.Server(nc, cfg)
		if err != nil {
			return err
		}
		defer server.Close()

		buf := make([]byte, 4096)
		for {
			n, err := server.Read(buf)
			if err != nil {
				return nil // peer closed
			}
			if _, err := server.Write(buf[:n]); err != nil {
				return err
			}
		}
	})

	// Client.
	g.Go(func() error {
		nc, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return err
		}
		client, err := conn.Client(nc, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		buf := make([]byte, 4096)
		for i := 0; i < messages; i++ {
			msg := fmt.Sprintf("message %d through the record plane", i+1)
			if _, err := client.Write([]byte(msg)); err != nil {
				return err
			}

			got := 0
			for got < len(msg) {
				n, err := client.Read(buf[got:])
				if err != nil {
					return err
				}
				got += n
			}
			fmt.Printf("  echo %d: %s\n", i+1, buf[:got])
		}

		stats := client.ZeroCopyStats()
		fmt.Printf("\nclient zero-copy: %d in-place, %d copied, %d bytes saved\n",
			stats.InPlaceDecrypts, stats.CopyDecrypts, stats.BytesSaved)
		return nil
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ps := bufs.Stats()
	fmt.Printf("buffer pool: %d hits, %d misses, peak %d\n", ps.Hits, ps.Misses, ps.PeakBuffers)

	snap := collector.Snapshot()
	fmt.Printf("collector: %d records sent, %d received, %d bad\n",
		snap.RecordsSent, snap.RecordsRecv, snap.BadRecords)
}
