package snapshot

import (
	"html/template"
	"io"
	"time"
)

// screenView is the template-friendly projection of a ScreenEntry.
type screenView struct {
	Name        string
	Status      string
	Badge       string
	Match       string
	DiffPixels  int
	TotalPixels int
	Description string
	Composite   string
	DiffImage   string
	Error       string
}

var runHTMLTmpl = template.Must(template.New("run").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Visual report: {{.DeviceID}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:1100px;margin:2rem auto;padding:0 1rem;color:#222;background:#fafafa}
h1{font-size:1.4rem;border-bottom:2px solid #e0e0e0;padding-bottom:.5rem}
.metrics{display:flex;gap:1rem;flex-wrap:wrap;margin:1rem 0}
.metric{background:#fff;border:1px solid #e0e0e0;border-radius:6px;padding:.75rem 1rem;min-width:140px}
.metric .v{font-size:1.5rem;font-weight:600}
.metric .k{font-size:.8rem;color:#666}
table{width:100%;border-collapse:collapse;background:#fff}
th,td{text-align:left;padding:.5rem;border-bottom:1px solid #eee;font-size:.9rem}
.badge{display:inline-block;padding:.1rem .5rem;border-radius:10px;font-size:.75rem;font-weight:600;color:#fff}
.passed{background:#2e7d32}.failed{background:#c62828}.missing{background:#ef6c00}.error{background:#6a1b9a}
.meta{font-size:.8rem;color:#666}
.empty{color:#999;font-style:italic}
</style></head><body>
<h1>Visual report: {{.DeviceID}}{{if .APILevel}} (API {{.APILevel}}){{end}}</h1>
<p class="meta">{{.Timestamp}} &mdash; {{.Duration}}</p>
<div class="metrics">
<div class="metric"><div class="v">{{.Total}}</div><div class="k">screens</div></div>
<div class="metric"><div class="v">{{.Passed}}</div><div class="k">passed</div></div>
<div class="metric"><div class="v">{{.Failed}}</div><div class="k">failed</div></div>
<div class="metric"><div class="v">{{.Average}}</div><div class="k">average match</div></div>
</div>
{{- if eq .Total 0}}
<p class="empty">No screens were compared in this run.</p>
{{- else}}
<table>
<tr><th>Screen</th><th>Status</th><th>Match</th><th>Diff pixels</th><th>Details</th></tr>
{{- range .Screens}}
<tr><td>{{.Name}}</td><td><span class="badge {{.Badge}}">{{.Status}}</span></td><td>{{.Match}}</td>
<td>{{.DiffPixels}} / {{.TotalPixels}}</td>
<td>{{.Description}}
{{- if .Error}}<div class="meta">{{.Error}}</div>{{end}}
{{- if .Composite}}<div><a href="{{.Composite}}">composite</a>{{if .DiffImage}} &middot; <a href="{{.DiffImage}}">diff</a>{{end}}</div>{{end}}
</td></tr>
{{- end}}
</table>
{{- end}}
</body></html>`))

// RenderHTML writes a self-contained HTML summary of the run. Artifact links
// are relative to the run directory.
func RenderHTML(w io.Writer, r *RunReport) error {
	views := make([]screenView, len(r.Screens))
	for i, s := range r.Screens {
		views[i] = screenView{
			Name:        s.Name,
			Status:      string(s.Status),
			Badge:       badgeClass(s.Status),
			Match:       Percent(s.Result.Match).String(),
			DiffPixels:  s.Result.DiffPixels,
			TotalPixels: s.Result.TotalPixels,
			Description: entryDescription(s),
			Composite:   s.Result.CompositeImage,
			DiffImage:   s.Result.DiffImage,
			Error:       s.Error,
		}
	}

	average := "n/a"
	if r.AverageMatch != nil {
		average = Percent(*r.AverageMatch).String()
	}

	return runHTMLTmpl.Execute(w, struct {
		DeviceID  string
		APILevel  int
		Timestamp string
		Duration  string
		Total     int
		Passed    int
		Failed    int
		Average   string
		Screens   []screenView
	}{
		DeviceID:  r.DeviceID,
		APILevel:  r.APILevel,
		Timestamp: r.Timestamp.Format(time.RFC1123),
		Duration:  r.Duration.Round(time.Millisecond).String(),
		Total:     r.TotalScreens,
		Passed:    r.Passed,
		Failed:    r.Failed,
		Average:   average,
		Screens:   views,
	})
}

func badgeClass(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusMissingBaseline, StatusMissingCapture:
		return "missing"
	default:
		return "error"
	}
}

func entryDescription(s ScreenEntry) string {
	switch s.Status {
	case StatusMissingBaseline:
		return "Missing baseline"
	case StatusMissingCapture:
		return "Screenshot not captured"
	case StatusError:
		return "Comparison error"
	default:
		return s.Result.Description()
	}
}
