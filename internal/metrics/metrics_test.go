package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	m := New()
	m.RecordRun("success", "")
	m.RecordRun("error", "decode")
	m.RecordRun("error", "decode")

	if got := testutil.ToFloat64(m.Runs.WithLabelValues("error", "decode")); got != 2 {
		t.Errorf("error/decode runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("success", "")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
}

func TestRecordAttempt(t *testing.T) {
	m := New()
	m.RecordAttempt("remote", errors.New("offline"))
	m.RecordAttempt("cache", nil)

	if got := testutil.ToFloat64(m.AcquireAttempts.WithLabelValues("remote", "failure")); got != 1 {
		t.Errorf("remote failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AcquireAttempts.WithLabelValues("cache", "success")); got != 1 {
		t.Errorf("cache successes = %v, want 1", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordSegment(time.Second)

	if got := testutil.ToFloat64(b.Segments); got != 0 {
		t.Errorf("second instance saw %v segments, want 0", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRun("success", "")
	m.RecordAttempt("remote", nil)
	m.RecordSegment(time.Second)
	m.AddDownloaded(10)
	m.ObserveInput(time.Second)
	m.ObserveStage("decode", time.Now())
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Errorf("WriteTextfile on nil = %v, want nil", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.AddDownloaded(2048)
	m.ObserveStage("detect", time.Now())

	path := filepath.Join(t.TempDir(), "vadsplit.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "vadsplit_download_bytes_total 2048") {
		t.Errorf("textfile missing download counter:\n%s", out)
	}
	if !strings.Contains(out, `vadsplit_stage_duration_seconds_count{stage="detect"} 1`) {
		t.Errorf("textfile missing stage histogram:\n%s", out)
	}
}
