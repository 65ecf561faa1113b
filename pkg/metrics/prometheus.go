package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
)

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates a new Prometheus exporter for the given
// collector. The namespace is prepended to all metric names (e.g.,
// "tlswire").
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{
		collector: c,
		namespace: namespace,
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.WriteMetrics(w)
	})
}

// WriteMetrics writes all metrics in Prometheus text format to the writer.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	snap := e.collector.Snapshot()
	labels := e.formatLabels(snap.Labels)

	// --- Connection Metrics ---
	e.writeHelp(w, "conns_active", "Number of currently active connections")
	e.writeType(w, "conns_active", "gauge")
	e.writeMetric(w, "conns_active", labels, float64(snap.ConnsActive))

	e.writeHelp(w, "conns_total", "Total number of connections created")
	e.writeType(w, "conns_total", "counter")
	e.writeMetric(w, "conns_total", labels, float64(snap.ConnsTotal))

	e.writeHelp(w, "conns_failed_total", "Total connections that reached the Failed state")
	e.writeType(w, "conns_failed_total", "counter")
	e.writeMetric(w, "conns_failed_total", labels, float64(snap.ConnsFailed))

	// --- Record Metrics ---
	e.writeHelp(w, "records_sent_total", "Total records protected and sent")
	e.writeType(w, "records_sent_total", "counter")
	e.writeMetric(w, "records_sent_total", labels, float64(snap.RecordsSent))

	e.writeHelp(w, "records_received_total", "Total records received and deprotected")
	e.writeType(w, "records_received_total", "counter")
	e.writeMetric(w, "records_received_total", labels, float64(snap.RecordsRecv))

	e.writeHelp(w, "bytes_sent_total", "Total plaintext bytes sent")
	e.writeType(w, "bytes_sent_total", "counter")
	e.writeMetric(w, "bytes_sent_total", labels, float64(snap.BytesSent))

	e.writeHelp(w, "bytes_received_total", "Total plaintext bytes received")
	e.writeType(w, "bytes_received_total", "counter")
	e.writeMetric(w, "bytes_received_total", labels, float64(snap.BytesRecv))

	// --- Data-Plane Error Metrics ---
	e.writeHelp(w, "bad_records_total", "Total records failing MAC or framing validation")
	e.writeType(w, "bad_records_total", "counter")
	e.writeMetric(w, "bad_records_total", labels, float64(snap.BadRecords))

	e.writeHelp(w, "alerts_sent_total", "Total TLS alerts emitted")
	e.writeType(w, "alerts_sent_total", "counter")
	e.writeMetric(w, "alerts_sent_total", labels, float64(snap.AlertsSent))

	e.writeHelp(w, "encrypt_errors_total", "Total encryption errors")
	e.writeType(w, "encrypt_errors_total", "counter")
	e.writeMetric(w, "encrypt_errors_total", labels, float64(snap.EncryptErrors))

	e.writeHelp(w, "decrypt_errors_total", "Total decryption errors")
	e.writeType(w, "decrypt_errors_total", "counter")
	e.writeMetric(w, "decrypt_errors_total", labels, float64(snap.DecryptErrors))

	e.writeHelp(w, "key_updates_total", "Total key generation rotations")
	e.writeType(w, "key_updates_total", "counter")
	e.writeMetric(w, "key_updates_total", labels, float64(snap.KeyUpdates))

	// --- Zero-Copy Metrics ---
	e.writeHelp(w, "inplace_decrypts_total", "Total records decrypted in place")
	e.writeType(w, "inplace_decrypts_total", "counter")
	e.writeMetric(w, "inplace_decrypts_total", labels, float64(snap.InPlaceDecrypts))

	e.writeHelp(w, "copy_decrypts_total", "Total records decrypted through the copy path")
	e.writeType(w, "copy_decrypts_total", "counter")
	e.writeMetric(w, "copy_decrypts_total", labels, float64(snap.CopyDecrypts))

	e.writeHelp(w, "zerocopy_bytes_saved_total", "Total plaintext bytes produced without a second buffer")
	e.writeType(w, "zerocopy_bytes_saved_total", "counter")
	e.writeMetric(w, "zerocopy_bytes_saved_total", labels, float64(snap.ZeroCopySaved))

	// --- Buffer Pool Metrics ---
	e.writeHelp(w, "pool_hits_total", "Buffer pool acquires served by a free slot")
	e.writeType(w, "pool_hits_total", "counter")
	e.writeMetric(w, "pool_hits_total", labels, float64(snap.PoolHits))

	e.writeHelp(w, "pool_misses_total", "Buffer pool acquires that allocated a new slot")
	e.writeType(w, "pool_misses_total", "counter")
	e.writeMetric(w, "pool_misses_total", labels, float64(snap.PoolMisses))

	e.writeHelp(w, "pool_buffers_active", "Buffers currently acquired from the pool")
	e.writeType(w, "pool_buffers_active", "gauge")
	e.writeMetric(w, "pool_buffers_active", labels, float64(snap.PoolActive))

	e.writeHelp(w, "pool_buffers_peak", "High-water mark of acquired buffers")
	e.writeType(w, "pool_buffers_peak", "gauge")
	e.writeMetric(w, "pool_buffers_peak", labels, float64(snap.PoolPeak))

	// --- Uptime ---
	e.writeHelp(w, "uptime_seconds", "Time since the collector was created")
	e.writeType(w, "uptime_seconds", "gauge")
	e.writeMetric(w, "uptime_seconds", labels, snap.Uptime.Seconds())

	// --- Histograms ---
	e.writeHistogram(w, "encrypt_duration_microseconds", "Encryption duration in microseconds", labels, snap.EncryptLatency)
	e.writeHistogram(w, "decrypt_duration_microseconds", "Decryption duration in microseconds", labels, snap.DecryptLatency)
}

// writeHelp writes a HELP line.
func (e *PrometheusExporter) writeHelp(w io.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s_%s %s\n", e.namespace, name, help)
}

// writeType writes a TYPE line.
func (e *PrometheusExporter) writeType(w io.Writer, name, typ string) {
	fmt.Fprintf(w, "# TYPE %s_%s %s\n", e.namespace, name, typ)
}

// writeMetric writes a single metric line.
func (e *PrometheusExporter) writeMetric(w io.Writer, name, labels string, value float64) {
	if labels != "" {
		fmt.Fprintf(w, "%s_%s{%s} %g\n", e.namespace, name, labels, value)
	} else {
		fmt.Fprintf(w, "%s_%s %g\n", e.namespace, name, value)
	}
}

// writeHistogram writes a histogram in Prometheus format.
func (e *PrometheusExporter) writeHistogram(w io.Writer, name, help, labels string, h HistogramSummary) {
	e.writeHelp(w, name, help)
	e.writeType(w, name, "histogram")

	fullName := e.namespace + "_" + name

	for _, b := range h.Buckets {
		le := fmt.Sprintf("%g", b.UpperBound)
		if math.IsInf(b.UpperBound, 1) {
			le = "+Inf"
		}
		if labels != "" {
			fmt.Fprintf(w, "%s_bucket{%s,le=\"%s\"} %d\n", fullName, labels, le, b.Count)
		} else {
			fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", fullName, le, b.Count)
		}
	}

	if labels != "" {
		fmt.Fprintf(w, "%s_sum{%s} %g\n", fullName, labels, h.Sum)
		fmt.Fprintf(w, "%s_count{%s} %d\n", fullName, labels, h.Count)
	} else {
		fmt.Fprintf(w, "%s_sum %g\n", fullName, h.Sum)
		fmt.Fprintf(w, "%s_count %d\n", fullName, h.Count)
	}
}

// formatLabels converts Labels to Prometheus label format.
func (e *PrometheusExporter) formatLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", k, escapePromValue(labels[k])))
	}
	return strings.Join(parts, ",")
}

// escapePromValue escapes a string for use as a Prometheus label value.
func escapePromValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// ServePrometheus starts an HTTP server serving Prometheus metrics.
// This is a convenience function for simple use cases.
func ServePrometheus(addr string, c *Collector, namespace string) error {
	exp := NewPrometheusExporter(c, namespace)
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp.Handler())
	return newHTTPServer(addr, mux).ListenAndServe()
}
