// conn_observer.go bridges the connection observer hooks into the
// collector, the tracer, and the logger. Attach one per connection (or
// share one) to record metrics and traces automatically.
package metrics

import (
	"context"
	"time"

	"github.com/dkhalov/tlswire/pkg/conn"
)

var _ conn.Observer = (*ConnObserver)(nil)

// ConnObserver implements the conn.Observer interface and records metrics,
// traces, and logs for one connection.
type ConnObserver struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
	role      string
}

// ConnObserverConfig configures a connection observer.
type ConnObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
	Role      string // "client" or "server"
}

// NewConnObserver creates a new connection observer.
func NewConnObserver(cfg ConnObserverConfig) *ConnObserver {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &ConnObserver{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("conn").With(Fields{"role": cfg.Role}),
		role:      cfg.Role,
	}
}

// OnConnOpen records a new connection.
func (o *ConnObserver) OnConnOpen() {
	o.collector.ConnOpened()
	o.logger.Debug("connection opened")
}

// OnConnClose records a graceful close.
func (o *ConnObserver) OnConnClose() {
	o.collector.ConnClosed()
	o.logger.Debug("connection closed")
}

// OnConnFailed records a fatal data-plane error.
func (o *ConnObserver) OnConnFailed(err error) {
	o.collector.ConnFailed()
	o.collector.ConnClosed()
	o.logger.Error("connection failed", Fields{"error": err.Error()})
}

// OnEncrypt traces one encrypt operation. The returned function must be
// called when the operation completes.
func (o *ConnObserver) OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, end := o.tracer.StartSpan(ctx, "tlswire.encrypt",
		WithAttributes(map[string]interface{}{"plaintext_len": plaintextLen}))

	return ctx, func(err error) {
		if err != nil {
			o.collector.RecordEncryptError()
		} else {
			o.collector.RecordSent(uint64(plaintextLen))
			o.collector.RecordEncryptLatency(time.Since(start))
		}
		end(err)
	}
}

// OnDecrypt traces one decrypt operation.
func (o *ConnObserver) OnDecrypt(ctx context.Context, ciphertextLen int) (context.Context, func(error)) {
	start := time.Now()
	ctx, end := o.tracer.StartSpan(ctx, "tlswire.decrypt",
		WithAttributes(map[string]interface{}{"ciphertext_len": ciphertextLen}))

	return ctx, func(err error) {
		if err != nil {
			o.collector.RecordDecryptError()
		} else {
			o.collector.RecordReceived(uint64(ciphertextLen))
			o.collector.RecordDecryptLatency(time.Since(start))
		}
		end(err)
	}
}

// OnBadRecord records a MAC or framing failure.
func (o *ConnObserver) OnBadRecord() {
	o.collector.RecordBadRecord()
	o.logger.Warn("bad record")
}

// OnAlertSent records an alert emitted to the peer.
func (o *ConnObserver) OnAlertSent(code uint8) {
	o.collector.RecordAlertSent()
	o.logger.Debug("alert sent", Fields{"code": code})
}

// OnKeyUpdate records a key generation rotation.
func (o *ConnObserver) OnKeyUpdate() {
	o.collector.RecordKeyUpdate()
	o.logger.Info("key update")
}
