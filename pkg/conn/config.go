// config.go holds the connection configuration and the handshake contract.
//
// The handshake itself is an external collaborator: it runs over the raw
// stream before the data plane starts, allocates its transient state from
// a pooled arena, and hands back a negotiated record.Cipher. Two small
// in-repo handshakers cover pre-shared-key deployments and tests.
package conn

import (
	"context"
	"crypto/x509"
	"net"

	"github.com/dkhalov/tlswire/internal/constants"
	werrors "github.com/dkhalov/tlswire/internal/errors"
	"github.com/dkhalov/tlswire/pkg/pool"
	"github.com/dkhalov/tlswire/pkg/record"
	"github.com/dkhalov/tlswire/pkg/signal"
	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

// HandshakeContext is what the connection hands to the handshake
// subsystem.
type HandshakeContext struct {
	// IsClient distinguishes the two sides of the exchange.
	IsClient bool

	// ServerName is the SNI host name (client side).
	ServerName string

	// RootCAs is the certificate-validation root set. Nil means the
	// handshaker's own default source.
	RootCAs *x509.CertPool

	// Arena backs handshake-scoped allocations. Everything allocated from
	// it is invalidated when the handshake scope releases; nothing
	// arena-backed may survive into the data plane.
	Arena *pool.Arena
}

// Handshaker negotiates record protection over the raw stream.
type Handshaker interface {
	Handshake(ctx context.Context, nc net.Conn, hctx *HandshakeContext) (*record.Cipher, error)
}

// Config configures a connection.
type Config struct {
	// ServerName is the SNI host name for client connections.
	ServerName string

	// RootCAs is the root-CA source passed through to the handshaker.
	RootCAs *x509.CertPool

	// Handshaker performs the key negotiation. Required.
	Handshaker Handshaker

	// Buffers is the record buffer pool. Nil gets a private pool.
	Buffers *pool.BufferPool

	// Arenas is the arena pool for handshake-scoped allocations. Nil gets
	// a private pool.
	Arenas *pool.ArenaPool

	// Signal is the readiness hint bound to the connection. Nil disables
	// signalling (signal.NopPipe).
	Signal signal.Signaler

	// ZeroCopy configures the in-place decryption engine.
	ZeroCopy zerocopy.Config

	// Observer is a shared observer for all connections (ignored if
	// ObserverFactory is set).
	Observer Observer

	// ObserverFactory builds a per-connection observer (takes precedence
	// over Observer).
	ObserverFactory ObserverFactory
}

// DefaultConfig returns sensible defaults. The Handshaker must still be
// set by the caller.
func DefaultConfig() *Config {
	return &Config{
		ZeroCopy: zerocopy.DefaultConfig(),
	}
}

// Client wraps an established stream as the client side of a connection,
// running the configured handshake first.
func Client(nc net.Conn, cfg *Config) (*Conn, error) {
	return newConn(context.Background(), nc, cfg, true)
}

// Server wraps an established stream as the server side of a connection,
// running the configured handshake first.
func Server(nc net.Conn, cfg *Config) (*Conn, error) {
	return newConn(context.Background(), nc, cfg, false)
}

// ClientContext is Client with handshake cancellation.
func ClientContext(ctx context.Context, nc net.Conn, cfg *Config) (*Conn, error) {
	return newConn(ctx, nc, cfg, true)
}

// ServerContext is Server with handshake cancellation.
func ServerContext(ctx context.Context, nc net.Conn, cfg *Config) (*Conn, error) {
	return newConn(ctx, nc, cfg, false)
}

func newConn(ctx context.Context, nc net.Conn, cfg *Config, isClient bool) (*Conn, error) {
	if cfg == nil || cfg.Handshaker == nil {
		return nil, werrors.ErrHandshakeIncomplete
	}

	arenas := cfg.Arenas
	if arenas == nil {
		arenas = pool.NewArenaPool(0)
	}

	// The arena scope closes before the first data-plane call; handshake
	// memory must not leak across that boundary.
	scope := arenas.AcquireScoped()
	hctx := &HandshakeContext{
		IsClient:   isClient,
		ServerName: cfg.ServerName,
		RootCAs:    cfg.RootCAs,
		Arena:      scope.Arena(),
	}
	cipher, err := cfg.Handshaker.Handshake(ctx, nc, hctx)
	scope.Release()
	if err != nil {
		return nil, err
	}

	return bind(nc, cipher, cfg, isClient), nil
}

// NewConn binds a connection around an externally negotiated cipher,
// skipping the handshake step. This is the entry point for handshake
// subsystems that drive the negotiation themselves.
func NewConn(nc net.Conn, cipher *record.Cipher, cfg *Config, isClient bool) *Conn {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return bind(nc, cipher, cfg, isClient)
}

// --- In-repo handshakers ---

// StaticHandshaker derives TLS 1.3 application-traffic secrets for both
// directions from a pre-shared master secret, with no wire exchange. Both
// peers must be configured with the same suite and secret.
type StaticHandshaker struct {
	suite  constants.CipherSuite
	secret []byte
}

// NewStaticHandshaker creates a pre-shared-secret handshaker. The secret
// must be hash-sized for the suite (32 bytes for the SHA-256 suites).
func NewStaticHandshaker(suite constants.CipherSuite, secret []byte) *StaticHandshaker {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &StaticHandshaker{suite: suite, secret: s}
}

// Handshake derives the directional secrets into the handshake arena and
// builds the cipher. Nothing arena-backed escapes: NewCipherFromSecrets
// copies what it keeps.
func (h *StaticHandshaker) Handshake(ctx context.Context, nc net.Conn, hctx *HandshakeContext) (*record.Cipher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clientSecret, err := record.DeriveSecret(h.suite, h.secret, "c ap traffic")
	if err != nil {
		return nil, err
	}
	serverSecret, err := record.DeriveSecret(h.suite, h.secret, "s ap traffic")
	if err != nil {
		return nil, err
	}

	// Stage the secrets in the arena so they are wiped with the handshake
	// scope.
	cs := hctx.Arena.Alloc(len(clientSecret))
	copy(cs, clientSecret)
	ss := hctx.Arena.Alloc(len(serverSecret))
	copy(ss, serverSecret)
	wipe(clientSecret)
	wipe(serverSecret)

	if hctx.IsClient {
		return record.NewCipherFromSecrets(h.suite, cs, ss)
	}
	return record.NewCipherFromSecrets(h.suite, ss, cs)
}

// CipherHandshaker hands a prebuilt cipher to the connection. Used when
// the negotiation already happened elsewhere.
type CipherHandshaker struct {
	Cipher *record.Cipher
}

func (h *CipherHandshaker) Handshake(ctx context.Context, nc net.Conn, hctx *HandshakeContext) (*record.Cipher, error) {
	if h.Cipher == nil {
		return nil, werrors.ErrHandshakeIncomplete
	}
	return h.Cipher, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
