package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/pixelproof/internal/config"
	"github.com/standardbeagle/pixelproof/internal/imaging"
	"github.com/standardbeagle/pixelproof/internal/pipeline"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()

	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	require.NoError(t, imaging.SavePNG(solid(20, 20, red), filepath.Join(root, "prototypes", "login.png")))
	require.NoError(t, imaging.SavePNG(solid(20, 20, red), filepath.Join(root, "prototypes", "home.png")))
	require.NoError(t, imaging.SavePNG(solid(20, 20, red), filepath.Join(root, "shots", "login-actual.png")))
	require.NoError(t, imaging.SavePNG(solid(20, 20, blue), filepath.Join(root, "shots", "home-actual.png")))

	cfg := config.Default()
	cfg.OutputDir = filepath.Join(root, "results")
	cfg.ReferenceDir = filepath.Join(root, "prototypes")
	cfg.Targets = []string{"pixel", "tablet"}
	cfg.Workers = 1
	cfg.CompositeWidth, cfg.CompositeHeight = 300, 200

	logger := slog.New(slog.DiscardHandler)
	p, err := pipeline.New(cfg,
		pipeline.WithLogger(logger),
		pipeline.WithClock(func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	_, _, err = p.Run(context.Background(), pipeline.RunRequest{
		DeviceID:   "pixel",
		APILevel:   34,
		CaptureDir: filepath.Join(root, "shots"),
	})
	require.NoError(t, err)
	_, err = p.Aggregate(context.Background(), "")
	require.NoError(t, err)

	ts := httptest.NewServer(New(p, "", logger).Routes())
	t.Cleanup(ts.Close)
	return ts, root
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServer_Dashboard(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var d map[string]any
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Contains(t, d, "metrics")
	assert.Contains(t, d, "timeline")
	assert.Equal(t, []any{"tablet"}, d["missing"])
}

func TestServer_History(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(body, &entries))
	assert.Len(t, entries, 1)
}

func TestServer_Runs(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		device string
		status int
	}{
		{name: "known device", device: "pixel", status: http.StatusOK},
		{name: "known configuration", device: "pixel@api34", status: http.StatusOK},
		{name: "other API level", device: "pixel@api33", status: http.StatusNotFound},
		{name: "unknown device", device: "tablet", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, ts.URL+"/api/runs/"+tt.device)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				assert.Contains(t, string(body), "error")
				return
			}
			var report map[string]any
			require.NoError(t, json.Unmarshal(body, &report))
			assert.Equal(t, "pixel", report["deviceId"])
			assert.Equal(t, float64(2), report["totalScreens"])
			assert.Equal(t, float64(50), report["averageMatch"])
		})
	}
}

func TestServer_IndexAndFiles(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := get(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page := string(body)
	assert.Contains(t, page, "pixel")
	assert.Contains(t, page, "No results found for: tablet")
	assert.Contains(t, page, "/files/pixel@api34/20260601-080000.000/report.html")

	resp, body = get(t, ts.URL+"/files/pixel@api34/20260601-080000.000/report.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "login")

	resp, _ = get(t, ts.URL+"/files/dashboard.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ReadOnly(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/dashboard", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_MissingRoot(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(t.TempDir(), "absent")
	p, err := pipeline.New(cfg, pipeline.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	ts := httptest.NewServer(New(p, "", slog.New(slog.DiscardHandler)).Routes())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/api/dashboard")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ListenAndServeStops(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	p, err := pipeline.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(p, "", slog.New(slog.DiscardHandler)).ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
