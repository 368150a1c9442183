// Package server exposes the results root as a read-only HTTP dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/standardbeagle/pixelproof/internal/dashboard"
	"github.com/standardbeagle/pixelproof/internal/pipeline"
	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// Server serves dashboards for one results root.
type Server struct {
	pipeline *pipeline.Pipeline
	root     string
	logger   *slog.Logger
}

// New creates a server for root. An empty root uses the configured output
// directory.
func New(p *pipeline.Pipeline, root string, logger *slog.Logger) *Server {
	if root == "" {
		root = p.Config().OutputDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pipeline: p, root: root, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/dashboard", s.handleDashboard)
	r.Get("/api/history", s.handleHistory)
	r.Get("/api/runs/{config}", s.handleRun)
	r.Get("/", s.handleIndex)

	files := http.StripPrefix("/files/", http.FileServer(http.Dir(s.root)))
	r.Get("/files/*", files.ServeHTTP)

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", addr, "root", s.root)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipeline.Summarize(s.root)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary.Dashboard())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.pipeline.History(s.root)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	config := chi.URLParam(r, "config")
	report, err := s.pipeline.LatestRun(s.root, config)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	summary, err := s.pipeline.Summarize(s.root)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, newIndexView(summary)); err != nil {
		s.logger.Error("render index", "error", err)
	}
}

// fail maps pipeline errors to status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var parseErr *snapshot.ReportParseError
	switch {
	case errors.Is(err, os.ErrNotExist) && !errors.As(err, &parseErr):
		writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

type runRow struct {
	DeviceID string
	APILevel int
	When     string
	Passed   int
	Total    int
	Average  string
	Status   string
	Report   string
}

type screenRow struct {
	Name    string
	Devices int
	Average string
}

type indexView struct {
	Compliance string
	PassRate   string
	Coverage   string
	Updated    string
	Runs       []runRow
	Screens    []screenRow
	Missing    []string
}

func newIndexView(s *dashboard.SessionSummary) indexView {
	m := s.Metrics()
	v := indexView{
		Compliance: optionalPercent(s.OverallCompliance),
		PassRate:   optionalPercent(m.PassRate),
		Coverage:   optionalPercent(m.APICoverage),
		Updated:    s.GeneratedAt.Format(time.RFC1123),
		Missing:    s.Missing,
	}

	status := make(map[string]dashboard.EventStatus, len(s.Timeline))
	for _, e := range s.Timeline {
		status[e.ConfigID] = e.Status
	}
	for _, run := range s.Runs {
		v.Runs = append(v.Runs, runRow{
			DeviceID: run.DeviceID,
			APILevel: run.APILevel,
			When:     run.Timestamp.Format("2006-01-02 15:04"),
			Passed:   run.Passed,
			Total:    run.TotalScreens,
			Average:  optionalPercent(run.AverageMatch),
			Status:   string(status[run.ConfigID()]),
			Report:   path.Join("/files", snapshot.PathSegment(run.ConfigID()), run.RunID(), snapshot.ReportHTMLFile),
		})
	}
	for _, sc := range s.Screens {
		v.Screens = append(v.Screens, screenRow{
			Name:    sc.Name,
			Devices: len(sc.Devices),
			Average: snapshot.Percent(sc.Average).String(),
		})
	}
	return v
}

func optionalPercent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return snapshot.Percent(*p).String()
}

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Visual compliance</title>
<style>
body{font-family:system-ui,sans-serif;max-width:1100px;margin:2rem auto;padding:0 1rem;color:#222;background:#fafafa}
h1{font-size:1.4rem;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
h2{font-size:1.1rem;margin-top:2rem}
.metrics{display:flex;gap:1rem;flex-wrap:wrap}
.metric{background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:.75rem 1rem;min-width:140px}
.metric .v{font-size:1.5rem;font-weight:600}
.metric .k{font-size:.8rem;color:#666}
table{width:100%;border-collapse:collapse;background:#fff}
th,td{text-align:left;padding:.5rem;border-bottom:1px solid #eee;font-size:.9rem}
.badge{display:inline-block;padding:.1rem .5rem;border-radius:10px;font-size:.75rem;font-weight:600;color:#fff;background:#757575}
.passed{background:#2e7d32}.failed{background:#c62828}
.warn{color:#ef6c00}
</style></head><body>
<h1>Visual compliance</h1>
<div class="metrics">
<div class="metric"><div class="v">{{.Compliance}}</div><div class="k">overall compliance</div></div>
<div class="metric"><div class="v">{{.PassRate}}</div><div class="k">pass rate</div></div>
<div class="metric"><div class="v">{{.Coverage}}</div><div class="k">configuration coverage</div></div>
</div>
{{- if .Missing}}
<p class="warn">No results found for: {{range $i, $m := .Missing}}{{if $i}}, {{end}}{{$m}}{{end}}</p>
{{- end}}
<h2>Runs</h2>
<table>
<tr><th>Device</th><th>API</th><th>When</th><th>Status</th><th>Passed</th><th>Average</th><th></th></tr>
{{- range .Runs}}
<tr><td>{{.DeviceID}}</td><td>{{.APILevel}}</td><td>{{.When}}</td><td><span class="badge {{.Status}}">{{.Status}}</span></td>
<td>{{.Passed}} / {{.Total}}</td><td>{{.Average}}</td><td><a href="{{.Report}}">report</a></td></tr>
{{- end}}
</table>
<h2>Screens</h2>
<table>
<tr><th>Screen</th><th>Devices</th><th>Average match</th></tr>
{{- range .Screens}}
<tr><td>{{.Name}}</td><td>{{.Devices}}</td><td>{{.Average}}</td></tr>
{{- end}}
</table>
<p style="font-size:.8rem;color:#666">Updated {{.Updated}}</p>
</body></html>`))
