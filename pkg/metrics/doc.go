// Package metrics provides observability primitives for the tlswire
// record-layer library.
//
// # Overview
//
// The metrics package offers:
//   - Metrics collection (counters, gauges, histograms)
//   - Prometheus-compatible metrics export
//   - Distributed tracing support (OpenTelemetry-compatible interface)
//   - Structured logging with levels
//   - Health check endpoints
//
// # Quick Start
//
// Basic usage with the global collector:
//
//	import "github.com/dkhalov/tlswire/pkg/metrics"
//
//	// Record metrics
//	metrics.Global().ConnOpened()
//	metrics.Global().RecordSent(1024)
//
//	// Start Prometheus server
//	go metrics.ServePrometheus(":9090", metrics.Global(), "tlswire")
//
// # Observers
//
// The usual wiring is through observers rather than direct collector
// calls: a metrics.ConnObserver plugged into conn.Config records every
// data-plane operation, and a metrics.PoolObserver samples buffer pool
// statistics on an interval:
//
//	collector := metrics.NewCollector(metrics.Labels{"instance": "node-1"})
//	cfg := conn.DefaultConfig()
//	cfg.Observer = metrics.NewConnObserver(metrics.ConnObserverConfig{
//		Collector: collector,
//		Role:      "server",
//	})
//
//	po := metrics.NewPoolObserver(collector, bufferPool, 10*time.Second)
//	po.Start()
//	defer po.Stop()
//
// # Tracing
//
// Tracing defaults to a no-op tracer. Builds with the "otel" tag wire the
// observer spans into OpenTelemetry through the global trace provider;
// without the tag the OTel types compile to stubs with zero dependencies
// on the hot path.
//
// # Logging
//
// The leveled logger supports text and JSON output and structured fields:
//
//	log := metrics.NewLogger(
//		metrics.WithLevel(metrics.LevelDebug),
//		metrics.WithFormat(metrics.FormatJSON),
//	)
//	log.Info("listener started", metrics.Fields{"addr": addr})
package metrics
