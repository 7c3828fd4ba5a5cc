package models

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/chaz8081/vadsplit/internal/cache"
	"github.com/chaz8081/vadsplit/internal/config"
	"github.com/chaz8081/vadsplit/internal/failure"
	"github.com/chaz8081/vadsplit/internal/vad"
)

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	pw := &progressWriter{
		writer: &buf,
		total:  100,
		label:  "test",
	}

	data := make([]byte, 50)
	n, err := pw.Write(data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 50 {
		t.Errorf("Write() n = %d, want 50", n)
	}
	if pw.written != 50 {
		t.Errorf("written = %d, want 50", pw.written)
	}
	if _, err := pw.Write(data); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 100 {
		t.Errorf("underlying writer got %d bytes, want 100", buf.Len())
	}
}

func TestLimitWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: 4}
	if _, err := lw.Write([]byte("abc")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := lw.Write([]byte("de")); err == nil {
		t.Error("Write() past limit should fail")
	}
}

func serve(t *testing.T, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchBytes(t *testing.T) {
	srv, _ := serve(t, []byte("model-bytes"))
	d := &Downloader{}

	got, err := d.FetchBytes(context.Background(), srv.URL+"/m.onnx")
	if err != nil {
		t.Fatalf("FetchBytes() error = %v", err)
	}
	if string(got) != "model-bytes" {
		t.Errorf("FetchBytes() = %q", got)
	}

	_, err = d.FetchBytes(context.Background(), srv.URL+"/missing")
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("FetchBytes(missing) error = %v, want HTTP 404", err)
	}
}

func TestFetchBytes_Empty(t *testing.T) {
	srv, _ := serve(t, nil)
	var d Downloader
	if _, err := d.FetchBytes(context.Background(), srv.URL+"/m.onnx"); err == nil {
		t.Error("FetchBytes() on empty body should fail")
	}
}

func TestFetchFile(t *testing.T) {
	srv, _ := serve(t, []byte("zip-bytes"))
	dest := filepath.Join(t.TempDir(), "sub", "a.zip")

	if err := (&Downloader{}).FetchFile(context.Background(), srv.URL+"/a.zip", dest); err != nil {
		t.Fatalf("FetchFile() error = %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "zip-bytes" {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone")
	}

	dest2 := filepath.Join(t.TempDir(), "b.zip")
	if err := (&Downloader{}).FetchFile(context.Background(), srv.URL+"/missing", dest2); err == nil {
		t.Error("FetchFile(missing) should fail")
	}
	if _, err := os.Stat(dest2); !os.IsNotExist(err) {
		t.Error("failed download should not leave a file")
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey(config.DefaultModelURL, "silero_vad.onnx"); got != "silero_vad.onnx" {
		t.Errorf("CacheKey(default) = %q", got)
	}
	if got := CacheKey("", "silero_vad.onnx"); got != "silero_vad.onnx" {
		t.Errorf("CacheKey(\"\") = %q", got)
	}

	a := CacheKey("https://example.com/a.onnx", "silero_vad.onnx")
	b := CacheKey("https://example.com/b.onnx", "silero_vad.onnx")
	if a == b {
		t.Errorf("different URLs share key %q", a)
	}
	if !strings.HasPrefix(a, "silero_vad-") || !strings.HasSuffix(a, ".onnx") {
		t.Errorf("CacheKey() = %q, want silero_vad-<hash>.onnx", a)
	}
	if a != CacheKey("https://example.com/a.onnx", "silero_vad.onnx") {
		t.Error("CacheKey() not stable")
	}
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "repo.zip")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func repoZip(t *testing.T) string {
	return writeZip(t, map[string]string{
		"silero-vad-master/README.md":                               "readme",
		"silero-vad-master/src/silero_vad/data/silero_vad.onnx":     "v5",
		"silero-vad-master/src/silero_vad/data/silero_vad.jit":      "jit",
		"silero-vad-master/src/silero_vad/data/old/legacy.onnx":     "old",
		"silero-vad-master/examples/data/silero_vad_half.onnx":      "elsewhere",
		"silero-vad-master/src/silero_vad/data/silero_vad_16k.onnx": "16k",
	})
}

func TestExtractModels(t *testing.T) {
	store := cache.NewMemory()
	keys, err := ExtractModels(context.Background(), repoZip(t), config.DefaultArchiveDir, store)
	if err != nil {
		t.Fatalf("ExtractModels() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ExtractModels() keys = %v, want 2", keys)
	}
	got, err := store.Get(context.Background(), "silero_vad.onnx")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v5" {
		t.Errorf("silero_vad.onnx = %q, want v5", got)
	}
	if _, err := store.Get(context.Background(), "legacy.onnx"); !errors.Is(err, cache.ErrMiss) {
		t.Error("nested directory should not be extracted")
	}
}

func TestInArchiveDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		want bool
	}{
		{"src/data/a.onnx", "src/data", true},
		{"top/src/data/a.onnx", "src/data", true},
		{"top/src/data/x/a.onnx", "src/data", false},
		{"a/b/src/data/a.onnx", "src/data", false},
		{"a.onnx", "", true},
		{"deep/a.onnx", "", true},
	}
	for _, tt := range tests {
		if got := inArchiveDir(tt.name, tt.dir); got != tt.want {
			t.Errorf("inArchiveDir(%q, %q) = %v, want %v", tt.name, tt.dir, got, tt.want)
		}
	}
}

type stubDetector struct{ tag string }

func (stubDetector) Detect(context.Context, []float32, int) ([]vad.Interval, error) {
	return nil, nil
}

type stubStrategy struct {
	name  string
	det   vad.Detector
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Acquire(context.Context) (vad.Detector, error) {
	s.calls++
	return s.det, s.err
}

func TestAcquirer_FallsBack(t *testing.T) {
	first := &stubStrategy{name: "remote", err: errors.New("offline")}
	second := &stubStrategy{name: "cache", det: stubDetector{"cached"}}
	third := &stubStrategy{name: "archive", det: stubDetector{"archive"}}

	det, src, err := NewAcquirer([]Strategy{first, second, third}, nil, nil).AcquireWithSource(context.Background())
	if err != nil {
		t.Fatalf("AcquireWithSource() error = %v", err)
	}
	if src != "cache" {
		t.Errorf("source = %q, want cache", src)
	}
	if det.(stubDetector).tag != "cached" {
		t.Errorf("detector = %v", det)
	}
	if third.calls != 0 {
		t.Error("later strategies should not run after a success")
	}
}

func TestAcquirer_AllFail(t *testing.T) {
	remoteErr := errors.New("offline")
	strategies := []Strategy{
		&stubStrategy{name: "remote", err: remoteErr},
		&stubStrategy{name: "cache", err: errors.New("miss")},
		&stubStrategy{name: "archive"}, // nil detector, nil error
	}

	_, err := NewAcquirer(strategies, nil, nil).Acquire(context.Background())
	if err == nil {
		t.Fatal("Acquire() should fail")
	}
	if !failure.Is(err, failure.ModelUnavailable) {
		t.Errorf("kind = %v, want %v", failure.KindOf(err), failure.ModelUnavailable)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error %T is not an UnavailableError", err)
	}
	if len(ue.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(ue.Attempts))
	}
	if !errors.Is(err, remoteErr) {
		t.Error("attempt errors should be reachable with errors.Is")
	}
}

func TestAcquirer_NoStrategies(t *testing.T) {
	_, err := NewAcquirer(nil, nil, nil).Acquire(context.Background())
	if !failure.Is(err, failure.ModelUnavailable) {
		t.Errorf("Acquire() error = %v, want model_unavailable", err)
	}
}

func TestAcquirer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &stubStrategy{name: "remote", det: stubDetector{}}

	_, err := NewAcquirer([]Strategy{s}, nil, nil).Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
	if s.calls != 0 {
		t.Error("strategy should not run on a cancelled context")
	}
}

func loadTagged(model []byte) (vad.Detector, error) {
	if string(model) == "bad" {
		return nil, errors.New("corrupt model")
	}
	return stubDetector{string(model)}, nil
}

func TestDefaultStrategies_Order(t *testing.T) {
	o := Options{URL: "u", ArchiveURL: "a", FileName: "m.onnx", Cache: cache.NewMemory(), Load: loadTagged}
	var names []string
	for _, s := range DefaultStrategies(o) {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != "remote,cache,archive" {
		t.Errorf("strategies = %v", names)
	}

	o.URL, o.ArchiveURL = "", ""
	if got := DefaultStrategies(o); len(got) != 1 || got[0].Name() != "cache" {
		t.Errorf("without URLs, strategies = %d, want cache only", len(got))
	}
}

func TestRemoteStrategy_DownloadsAndCaches(t *testing.T) {
	srv, hits := serve(t, []byte("remote-model"))
	store := cache.NewMemory()
	o := Options{
		URL:        srv.URL + "/silero_vad.onnx",
		FileName:   "silero_vad.onnx",
		Cache:      store,
		Load:       loadTagged,
		Downloader: &Downloader{},
	}
	s := &remoteStrategy{o: o}

	det, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if det.(stubDetector).tag != "remote-model" {
		t.Errorf("detector = %v", det)
	}
	if got, err := store.Get(context.Background(), o.Key()); err != nil || string(got) != "remote-model" {
		t.Errorf("cache = %q, %v", got, err)
	}

	// Second run is served from the cache.
	if _, err := s.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestRemoteStrategy_ReplacesCorruptCache(t *testing.T) {
	srv, hits := serve(t, []byte("fresh"))
	store := cache.NewMemory()
	o := Options{URL: srv.URL + "/m.onnx", FileName: "m.onnx", Cache: store, Load: loadTagged, Downloader: &Downloader{}}
	if err := store.Put(context.Background(), o.Key(), []byte("bad")); err != nil {
		t.Fatal(err)
	}

	det, err := (&remoteStrategy{o: o}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if det.(stubDetector).tag != "fresh" || hits.Load() != 1 {
		t.Errorf("detector = %v, hits = %d", det, hits.Load())
	}
}

func TestCacheStrategy(t *testing.T) {
	store := cache.NewMemory()
	o := Options{FileName: "m.onnx", Cache: store, Load: loadTagged}
	s := &cacheStrategy{o: o}

	if _, err := s.Acquire(context.Background()); err == nil {
		t.Error("Acquire() on empty cache should fail")
	}
	if err := store.Put(context.Background(), "m.onnx", []byte("cached")); err != nil {
		t.Fatal(err)
	}
	det, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if det.(stubDetector).tag != "cached" {
		t.Errorf("detector = %v", det)
	}
}

func TestArchiveStrategy(t *testing.T) {
	zipBytes, err := os.ReadFile(repoZip(t))
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := serve(t, zipBytes)
	store := cache.NewMemory()
	o := Options{
		ArchiveURL: srv.URL + "/master.zip",
		ArchiveDir: config.DefaultArchiveDir,
		FileName:   "silero_vad.onnx",
		Cache:      store,
		Load:       loadTagged,
		Downloader: &Downloader{},
	}

	det, err := (&archiveStrategy{o: o}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if det.(stubDetector).tag != "v5" {
		t.Errorf("detector = %v, want v5", det)
	}

	o.ArchiveDir = "no/such/dir"
	if _, err := (&archiveStrategy{o: o}).Acquire(context.Background()); err == nil {
		t.Error("Acquire() with no matching models should fail")
	}
}

func TestDefaultStrategies_EndToEnd(t *testing.T) {
	// Remote is down and the cache is cold, so the archive supplies the model
	// and the remote failure is not surfaced.
	zipBytes, err := os.ReadFile(repoZip(t))
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := serve(t, zipBytes)
	o := Options{
		URL:        srv.URL + "/missing",
		ArchiveURL: srv.URL + "/master.zip",
		ArchiveDir: config.DefaultArchiveDir,
		FileName:   "silero_vad.onnx",
		Cache:      cache.NewMemory(),
		Load:       loadTagged,
		Downloader: &Downloader{},
	}

	det, src, err := NewAcquirer(DefaultStrategies(o), nil, nil).AcquireWithSource(context.Background())
	if err != nil {
		t.Fatalf("AcquireWithSource() error = %v", err)
	}
	if src != "archive" || det.(stubDetector).tag != "v5" {
		t.Errorf("source = %q, detector = %v", src, det)
	}
}

func TestValidateOnly(t *testing.T) {
	if _, err := ValidateOnly(nil); err == nil {
		t.Error("ValidateOnly(nil) should fail")
	}
	det, err := ValidateOnly([]byte{1})
	if err != nil || det == nil {
		t.Fatalf("ValidateOnly() = %v, %v", det, err)
	}
}

func TestRemoteStrategy_EvictsUnloadableCache(t *testing.T) {
	srv, _ := serve(t, nil)
	store := cache.NewMemory()
	o := Options{URL: srv.URL + "/missing", FileName: "m.onnx", Cache: store, Load: loadTagged, Downloader: &Downloader{}}
	if err := store.Put(context.Background(), o.Key(), []byte("bad")); err != nil {
		t.Fatal(err)
	}

	if _, err := (&remoteStrategy{o: o}).Acquire(context.Background()); err == nil {
		t.Fatal("Acquire() should fail when the download fails")
	}
	if _, err := store.Get(context.Background(), o.Key()); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("unloadable model should be evicted, Get() = %v", err)
	}
}

func TestArchiveStrategy_CustomURLPopulatesModelKey(t *testing.T) {
	zipBytes, err := os.ReadFile(repoZip(t))
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := serve(t, zipBytes)
	o := Options{
		URL:        srv.URL + "/missing",
		ArchiveURL: srv.URL + "/master.zip",
		ArchiveDir: config.DefaultArchiveDir,
		FileName:   "silero_vad.onnx",
		Cache:      cache.NewMemory(),
		Load:       loadTagged,
		Downloader: &Downloader{},
	}
	if o.Key() == o.FileName {
		t.Fatalf("custom URL should get its own key, got %q", o.Key())
	}

	_, src, err := NewAcquirer(DefaultStrategies(o), nil, nil).AcquireWithSource(context.Background())
	if err != nil || src != "archive" {
		t.Fatalf("first run = %q, %v, want archive", src, err)
	}

	det, err := (&cacheStrategy{o: o}).Acquire(context.Background())
	if err != nil {
		t.Fatalf("cache strategy after archive run: %v", err)
	}
	if det.(stubDetector).tag != "v5" {
		t.Errorf("detector = %v, want v5", det)
	}
}
