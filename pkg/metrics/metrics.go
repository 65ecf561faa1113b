// Package metrics provides observability primitives for the tlswire data
// plane.
//
// The package includes:
//   - A Collector of counters and gauges, and a Histogram type
//   - Prometheus-compatible metrics export
//   - OpenTelemetry tracing support
//   - Structured logging with levels
//   - Health check functionality
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkhalov/tlswire/pkg/pool"
	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

// Collector aggregates metrics from connections, engines, and pools.
type Collector struct {
	// Connection metrics
	connsActive atomic.Uint64
	connsTotal  atomic.Uint64
	connsFailed atomic.Uint64

	// Record metrics
	recordsSent atomic.Uint64
	recordsRecv atomic.Uint64
	bytesSent   atomic.Uint64
	bytesRecv   atomic.Uint64

	// Data-plane error metrics
	badRecords    atomic.Uint64
	alertsSent    atomic.Uint64
	encryptErrors atomic.Uint64
	decryptErrors atomic.Uint64
	keyUpdates    atomic.Uint64

	// Zero-copy engine totals, merged when a connection closes.
	inPlaceDecrypts atomic.Uint64
	copyDecrypts    atomic.Uint64
	zcBytesSaved    atomic.Uint64

	// Buffer pool gauges, refreshed by the pool observer.
	poolHits   atomic.Uint64
	poolMisses atomic.Uint64
	poolActive atomic.Uint64
	poolPeak   atomic.Uint64

	// Performance histograms
	encryptLatency *Histogram
	decryptLatency *Histogram

	// Creation time for uptime tracking
	createdAt time.Time

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	return &Collector{
		encryptLatency: NewHistogram(LatencyBuckets),
		decryptLatency: NewHistogram(LatencyBuckets),
		createdAt:      time.Now(),
		labels:         labels,
	}
}

// LatencyBuckets for encrypt/decrypt operations (microseconds).
var LatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

// --- Connection Metrics ---

// ConnOpened increments active and total connection counters.
func (c *Collector) ConnOpened() {
	c.connsActive.Add(1)
	c.connsTotal.Add(1)
}

// ConnClosed decrements the active connection counter.
func (c *Collector) ConnClosed() {
	for {
		current := c.connsActive.Load()
		if current == 0 {
			return
		}
		if c.connsActive.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ConnFailed records a connection that reached the Failed state.
func (c *Collector) ConnFailed() {
	c.connsFailed.Add(1)
}

// --- Record Metrics ---

// RecordSent adds one protected record of n plaintext bytes.
func (c *Collector) RecordSent(n uint64) {
	c.recordsSent.Add(1)
	c.bytesSent.Add(n)
}

// RecordReceived adds one deprotected record of n plaintext bytes.
func (c *Collector) RecordReceived(n uint64) {
	c.recordsRecv.Add(1)
	c.bytesRecv.Add(n)
}

// --- Data-Plane Error Metrics ---

// RecordBadRecord counts a record that failed MAC or framing validation.
func (c *Collector) RecordBadRecord() {
	c.badRecords.Add(1)
}

// RecordAlertSent counts an alert emitted to the peer.
func (c *Collector) RecordAlertSent() {
	c.alertsSent.Add(1)
}

// RecordEncryptError increments the encryption error counter.
func (c *Collector) RecordEncryptError() {
	c.encryptErrors.Add(1)
}

// RecordDecryptError increments the decryption error counter.
func (c *Collector) RecordDecryptError() {
	c.decryptErrors.Add(1)
}

// RecordKeyUpdate counts a key generation rotation in either direction.
func (c *Collector) RecordKeyUpdate() {
	c.keyUpdates.Add(1)
}

// --- Zero-Copy Metrics ---

// MergeZeroCopy folds a connection's engine statistics into the totals.
// Call once per engine, when the connection ends.
func (c *Collector) MergeZeroCopy(s zerocopy.Stats) {
	c.inPlaceDecrypts.Add(s.InPlaceDecrypts)
	c.copyDecrypts.Add(s.CopyDecrypts)
	c.zcBytesSaved.Add(s.BytesSaved)
}

// --- Pool Metrics ---

// ObservePool refreshes the buffer pool gauges from a stats snapshot.
func (c *Collector) ObservePool(s pool.Stats) {
	c.poolHits.Store(s.Hits)
	c.poolMisses.Store(s.Misses)
	c.poolActive.Store(s.ActiveBuffers)
	c.poolPeak.Store(s.PeakBuffers)
}

// --- Performance Metrics ---

// RecordEncryptLatency records one encrypt operation's duration.
func (c *Collector) RecordEncryptLatency(d time.Duration) {
	c.encryptLatency.Observe(float64(d.Microseconds()))
}

// RecordDecryptLatency records one decrypt operation's duration.
func (c *Collector) RecordDecryptLatency(d time.Duration) {
	c.decryptLatency.Observe(float64(d.Microseconds()))
}

// --- Snapshot ---

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	ConnsActive uint64
	ConnsTotal  uint64
	ConnsFailed uint64

	RecordsSent uint64
	RecordsRecv uint64
	BytesSent   uint64
	BytesRecv   uint64

	BadRecords    uint64
	AlertsSent    uint64
	EncryptErrors uint64
	DecryptErrors uint64
	KeyUpdates    uint64

	InPlaceDecrypts uint64
	CopyDecrypts    uint64
	ZeroCopySaved   uint64

	PoolHits   uint64
	PoolMisses uint64
	PoolActive uint64
	PoolPeak   uint64

	EncryptLatency HistogramSummary
	DecryptLatency HistogramSummary

	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:       time.Now(),
		Uptime:          time.Since(c.createdAt),
		ConnsActive:     c.connsActive.Load(),
		ConnsTotal:      c.connsTotal.Load(),
		ConnsFailed:     c.connsFailed.Load(),
		RecordsSent:     c.recordsSent.Load(),
		RecordsRecv:     c.recordsRecv.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesRecv:       c.bytesRecv.Load(),
		BadRecords:      c.badRecords.Load(),
		AlertsSent:      c.alertsSent.Load(),
		EncryptErrors:   c.encryptErrors.Load(),
		DecryptErrors:   c.decryptErrors.Load(),
		KeyUpdates:      c.keyUpdates.Load(),
		InPlaceDecrypts: c.inPlaceDecrypts.Load(),
		CopyDecrypts:    c.copyDecrypts.Load(),
		ZeroCopySaved:   c.zcBytesSaved.Load(),
		PoolHits:        c.poolHits.Load(),
		PoolMisses:      c.poolMisses.Load(),
		PoolActive:      c.poolActive.Load(),
		PoolPeak:        c.poolPeak.Load(),
		EncryptLatency:  c.encryptLatency.Summary(),
		DecryptLatency:  c.decryptLatency.Summary(),
		Labels:          c.labels,
	}
}

// --- Global Collector ---

var (
	globalCollector   *Collector
	globalCollectorMu sync.RWMutex
)

func init() {
	globalCollector = NewCollector(nil)
}

// Global returns the global collector.
func Global() *Collector {
	globalCollectorMu.RLock()
	defer globalCollectorMu.RUnlock()
	return globalCollector
}

// SetGlobal replaces the global collector.
func SetGlobal(c *Collector) {
	globalCollectorMu.Lock()
	defer globalCollectorMu.Unlock()
	globalCollector = c
}
