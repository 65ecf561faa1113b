// Package tlswire provides a throughput-oriented TLS 1.2/1.3 record-layer
// data plane: zero-allocation steady-state record I/O, in-place AEAD
// decryption, pooled record buffers, and a coalescing signal pipe for
// event-driven reactors.
//
// The library deliberately does not implement the TLS handshake or X.509
// validation. A handshake subsystem (external) negotiates keys and hands the
// data plane a record.Cipher; everything after that (framing, sequence
// numbers, nonce derivation, alerts, key updates) is handled here.
//
// # Quick Start
//
// For a blocking connection over an established net.Conn:
//
//	import "github.com/dkhalov/tlswire/pkg/conn"
//
//	cfg := conn.DefaultConfig()
//	cfg.Handshaker = conn.NewStaticHandshaker(constants.TLSAES128GCMSHA256, secret)
//
//	c, err := conn.Client(tcpConn, cfg)
//	n, err := c.Write([]byte("hello"))
//	n, err = c.Read(buf)
//
// For reactor-driven use, the non-blocking Engine leaves all I/O to the
// caller:
//
//	eng, _ := conn.NewEngine(cipher, conn.DefaultEngineConfig())
//	written, consumed, err := eng.Encrypt(input, output)
//
// # Package Structure
//
//   - pkg/record: record framing, cipher suites, key schedule
//   - pkg/zerocopy: in-place decryption engine with overlap analysis
//   - pkg/pool: buffer pool, thread-local cache, arena pool
//   - pkg/signal: coalescing readiness pipe for epoll/kqueue reactors
//   - pkg/conn: blocking Conn and non-blocking Engine data planes
//   - pkg/metrics: logging, counters, histograms, Prometheus, tracing
//   - internal/constants: record-layer sizes, suites, alerts
//   - internal/errors: error taxonomy for the data plane
//
// # Performance Properties
//
// The steady-state record path performs no heap allocation: record buffers
// come from a pool (with a single-threaded fast-path cache), decryption is
// done in place whenever the overlap predicate allows, and per-record nonces
// are derived into scratch space held in the cipher state. Counters on the
// hot path are plain
// atomics; observers are optional and nil-checked once per operation.
package tlswire
