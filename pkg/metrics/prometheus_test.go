package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkhalov/tlswire/pkg/zerocopy"
)

func TestPrometheusExport(t *testing.T) {
	c := NewCollector(nil)
	c.ConnOpened()
	c.RecordSent(512)
	c.RecordReceived(256)
	c.RecordBadRecord()
	c.MergeZeroCopy(zerocopy.Stats{InPlaceDecrypts: 3, CopyDecrypts: 1, BytesSaved: 640})

	var sb strings.Builder
	NewPrometheusExporter(c, "tlswire").WriteMetrics(&sb)
	out := sb.String()

	expected := []string{
		"# HELP tlswire_conns_active",
		"# TYPE tlswire_conns_active gauge",
		"tlswire_conns_active 1",
		"tlswire_records_sent_total 1",
		"tlswire_bytes_sent_total 512",
		"tlswire_bytes_received_total 256",
		"tlswire_bad_records_total 1",
		"tlswire_inplace_decrypts_total 3",
		"tlswire_copy_decrypts_total 1",
		"tlswire_zerocopy_bytes_saved_total 640",
		"# TYPE tlswire_encrypt_duration_microseconds histogram",
		"tlswire_decrypt_duration_microseconds_count 0",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestPrometheusLabels(t *testing.T) {
	c := NewCollector(Labels{"instance": "node-1", "env": "test"})
	c.ConnOpened()

	var sb strings.Builder
	NewPrometheusExporter(c, "tlswire").WriteMetrics(&sb)
	out := sb.String()

	// Labels are sorted by key.
	if !strings.Contains(out, `tlswire_conns_active{env="test",instance="node-1"} 1`) {
		t.Errorf("labeled metric missing:\n%s", out)
	}
}

func TestPrometheusLabelEscaping(t *testing.T) {
	if got := escapePromValue(`a"b\c` + "\n"); got != `a\"b\\c\n` {
		t.Errorf("escaped = %q", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollector(nil)
	exp := NewPrometheusExporter(c, "tlswire")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	exp.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "tlswire_uptime_seconds") {
		t.Error("body missing uptime metric")
	}
}

func TestHealthCheck(t *testing.T) {
	c := NewCollector(nil)
	c.ConnOpened()

	h := NewHealthCheck(c, "v0.1.0")
	resp := h.Check()
	if resp.Status != HealthStatusHealthy {
		t.Errorf("status = %v", resp.Status)
	}
	if resp.Metrics == nil || resp.Metrics.ConnsActive != 1 {
		t.Errorf("metrics = %+v", resp.Metrics)
	}

	h.AddCheck("failing", func() error { return errTest })
	resp = h.Check()
	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("status with failing check = %v", resp.Status)
	}
	if resp.Checks["failing"].Status != HealthStatusUnhealthy {
		t.Errorf("check result = %+v", resp.Checks["failing"])
	}

	h.RemoveCheck("failing")
	if resp := h.Check(); resp.Status != HealthStatusHealthy {
		t.Errorf("status after removal = %v", resp.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthCheck(NewCollector(nil), "v0.1.0")

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	h.AddCheck("down", func() error { return errTest })
	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 503 {
		t.Fatalf("unhealthy status = %d", rec.Code)
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "test failure" }
