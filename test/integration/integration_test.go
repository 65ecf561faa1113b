// Package integration exercises the full data plane end to end: two
// connections over loopback TCP, every supported suite, close semantics,
// key updates, and pooled buffers shared between both sides.
package integration

import (
	"bytes"
	"io"
	"net"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/dkhalov/tlswire/internal/constants"
	"github.com/dkhalov/tlswire/pkg/conn"
	"github.com/dkhalov/tlswire/pkg/metrics"
	"github.com/dkhalov/tlswire/pkg/pool"
	"github.com/dkhalov/tlswire/pkg/record"
)

func secretFor(id constants.CipherSuite) []byte {
	n := 32
	if id == constants.TLSAES256GCMSHA384 {
		n = 48
	}
	return bytes.Repeat([]byte{0x77}, n)
}

// dialPair establishes a TCP loopback pair and wraps both ends.
func dialPair(t *testing.T, cfg *conn.Config) (*conn.Conn, *conn.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	type result struct {
		c   *conn.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			ch <- result{nil, err}
			return
		}
		s, err := conn.Server(nc, cfg)
		ch <- result{s, err}
	}()

	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client, err := conn.Client(nc, cfg)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}

	res := <-ch
	if res.err != nil {
		t.Fatalf("Server: %v", res.err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		_ = res.c.Close()
	})
	return client, res.c
}

func echoOnce(t *testing.T, a, b *conn.Conn, payload []byte) {
	t.Helper()

	var g errgroup.Group
	g.Go(func() error {
		_, err := a.Write(payload)
		return err
	})

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 32*1024)
	for len(got) < len(payload) {
		n, err := b.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
}

func TestAllSuitesEndToEnd(t *testing.T) {
	for _, id := range record.SupportedSuites() {
		if !id.IsTLS13() {
			continue // the static handshake derives TLS 1.3 secrets
		}
		t.Run(id.String(), func(t *testing.T) {
			cfg := conn.DefaultConfig()
			cfg.Handshaker = conn.NewStaticHandshaker(id, secretFor(id))

			client, server := dialPair(t, cfg)
			echoOnce(t, client, server, []byte("integration probe"))
			echoOnce(t, server, client, bytes.Repeat([]byte{0xee}, 70000))
		})
	}
}

func TestTLS12EndToEnd(t *testing.T) {
	suites := []constants.CipherSuite{
		constants.TLSECDHERSAWithAES128GCMSHA256,
		constants.TLSECDHERSAWithAES128CBCSHA256,
	}

	for _, id := range suites {
		t.Run(id.String(), func(t *testing.T) {
			kmA := record.KeyMaterial{Key: bytes.Repeat([]byte{0x21}, 16), IV: bytes.Repeat([]byte{0x31}, 4)}
			kmB := record.KeyMaterial{Key: bytes.Repeat([]byte{0x41}, 16), IV: bytes.Repeat([]byte{0x51}, 4)}
			if id == constants.TLSECDHERSAWithAES128CBCSHA256 {
				kmA = record.KeyMaterial{Key: bytes.Repeat([]byte{0x21}, 16), MACKey: bytes.Repeat([]byte{0x61}, 32)}
				kmB = record.KeyMaterial{Key: bytes.Repeat([]byte{0x41}, 16), MACKey: bytes.Repeat([]byte{0x71}, 32)}
			}

			clientCipher, err := record.NewCipher(id, constants.VersionTLS12, kmA, kmB)
			if err != nil {
				t.Fatal(err)
			}
			serverCipher, err := record.NewCipher(id, constants.VersionTLS12, kmB, kmA)
			if err != nil {
				t.Fatal(err)
			}

			clientCfg := conn.DefaultConfig()
			clientCfg.Handshaker = &conn.CipherHandshaker{Cipher: clientCipher}
			serverCfg := conn.DefaultConfig()
			serverCfg.Handshaker = &conn.CipherHandshaker{Cipher: serverCipher}

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			defer ln.Close()

			ch := make(chan *conn.Conn, 1)
			go func() {
				nc, err := ln.Accept()
				if err != nil {
					ch <- nil
					return
				}
				s, err := conn.Server(nc, serverCfg)
				if err != nil {
					ch <- nil
					return
				}
				ch <- s
			}()

			nc, err := net.Dial("tcp", ln.Addr().String())
			if err != nil {
				t.Fatal(err)
			}
			client, err := conn.Client(nc, clientCfg)
			if err != nil {
				t.Fatal(err)
			}
			server := <-ch
			if server == nil {
				t.Fatal("server setup failed")
			}
			defer client.Close()
			defer server.Close()

			echoOnce(t, client, server, []byte("legacy record protection"))
		})
	}
}

func TestGracefulClose(t *testing.T) {
	cfg := conn.DefaultConfig()
	cfg.Handshaker = conn.NewStaticHandshaker(constants.TLSAES128GCMSHA256, secretFor(constants.TLSAES128GCMSHA256))

	client, server := dialPair(t, cfg)
	echoOnce(t, client, server, []byte("last words"))

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf := make([]byte, 16)
	if _, err := server.Read(buf); err != io.EOF {
		t.Fatalf("Read after close = %v, want io.EOF", err)
	}
}

func TestKeyUpdateUnderLoad(t *testing.T) {
	cfg := conn.DefaultConfig()
	cfg.Handshaker = conn.NewStaticHandshaker(constants.TLSChaCha20Poly1305SHA256, secretFor(constants.TLSChaCha20Poly1305SHA256))

	client, server := dialPair(t, cfg)

	payload := bytes.Repeat([]byte{0x42}, 4096)
	for round := 0; round < 5; round++ {
		echoOnce(t, client, server, payload)
		if err := client.UpdateKeys(round%2 == 0); err != nil {
			t.Fatalf("UpdateKeys round %d: %v", round, err)
		}
		echoOnce(t, client, server, payload)
	}
}

func TestSharedPoolsAndObservers(t *testing.T) {
	bufs := pool.NewRecordBufferPool(8)
	arenas := pool.NewArenaPool(0)
	collector := metrics.NewCollector(metrics.Labels{"suite": "integration"})

	cfg := conn.DefaultConfig()
	cfg.Handshaker = conn.NewStaticHandshaker(constants.TLSAES128GCMSHA256, secretFor(constants.TLSAES128GCMSHA256))
	cfg.Buffers = bufs
	cfg.Arenas = arenas
	cfg.ObserverFactory = func(c *conn.Conn) conn.Observer {
		return metrics.NewConnObserver(metrics.ConnObserverConfig{
			Collector: collector,
			Logger:    metrics.NullLogger(),
			Role:      "test",
		})
	}

	client, server := dialPair(t, cfg)
	echoOnce(t, client, server, bytes.Repeat([]byte{9}, 50000))

	snap := collector.Snapshot()
	if snap.ConnsTotal != 2 {
		t.Errorf("ConnsTotal = %d, want 2", snap.ConnsTotal)
	}
	if snap.RecordsSent == 0 || snap.RecordsRecv == 0 {
		t.Errorf("records: sent=%d recv=%d", snap.RecordsSent, snap.RecordsRecv)
	}

	po := metrics.NewPoolObserver(collector, bufs, 0)
	po.Sample()
	po.Stop()

	if collector.Snapshot().PoolPeak == 0 {
		t.Error("pool peak gauge never moved")
	}

	if bufs.Stats().ActiveBuffers != 0 {
		t.Errorf("buffers leaked: %d active", bufs.Stats().ActiveBuffers)
	}
}

func TestZeroCopyEndToEnd(t *testing.T) {
	cfg := conn.DefaultConfig()
	cfg.Handshaker = conn.NewStaticHandshaker(constants.TLSAES128GCMSHA256, secretFor(constants.TLSAES128GCMSHA256))

	client, server := dialPair(t, cfg)
	echoOnce(t, client, server, bytes.Repeat([]byte{3}, 100000))

	stats := server.ZeroCopyStats()
	if stats.InPlaceDecrypts+stats.CopyDecrypts == 0 {
		t.Fatal("no decrypts recorded")
	}
	// Pool buffers are record-aligned, so the hot path should be aliased.
	if stats.InPlaceDecrypts == 0 {
		t.Log("warning: no in-place decrypts; pool buffers unaligned on this platform")
	}
}
