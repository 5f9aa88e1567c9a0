package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Wangx-create/TRNNew/app/news"
	"github.com/Wangx-create/TRNNew/app/runner"
)

// Renderer writes a run's reduced records as a standalone HTML document
// under the output directory and returns the artifact path.
type Renderer struct {
	outputDir string
	version   string
	tmpl      *template.Template
}

func NewRenderer(outputDir, version string) *Renderer {
	return &Renderer{
		outputDir: outputDir,
		version:   version,
		tmpl:      template.Must(template.New("report").Funcs(templateFuncs).Parse(reportTemplate)),
	}
}

type reportData struct {
	Title       string
	Mode        string
	GeneratedAt string
	Version     string
	Records     []news.AggregatedRecord
	Stats       runner.Stats
	DurationMs  int64
}

func (r *Renderer) Run(result *runner.Result) (string, error) {
	now := time.Now().In(time.Local)

	dir := filepath.Join(r.outputDir, "html", now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.html", result.Mode, result.RunID))

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	data := reportData{
		Title:       fmt.Sprintf("Trend report %s", now.Format("2006-01-02 15:04")),
		Mode:        string(result.Mode),
		GeneratedAt: now.Format(time.RFC3339),
		Version:     r.version,
		Records:     result.Records,
		Stats:       result.Stats,
		DurationMs:  result.DurationMs,
	}

	if err := r.tmpl.Execute(file, data); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	return path, nil
}

var templateFuncs = template.FuncMap{
	"rankTrail": func(rec news.AggregatedRecord) string {
		ranks := make([]string, 0, len(rec.Observations))
		for _, obs := range rec.Observations {
			ranks = append(ranks, strconv.Itoa(obs.Rank))
		}
		return strings.Join(ranks, ", ")
	},
}

const reportTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", "PingFang SC", sans-serif; margin: 2em auto; max-width: 64em; color: #222; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 0.5em 0.7em; text-align: left; }
th { background: #f5f5f5; }
.meta { color: #777; font-size: 0.85em; margin-bottom: 1.5em; }
.keyword { font-weight: 600; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">mode: {{.Mode}} · records: {{.Stats.MatchedRecords}} · raw items: {{.Stats.TotalRawItems}} · platforms: {{.Stats.PlatformsSucceeded}}/{{.Stats.PlatformsQueried}} · {{.DurationMs}}ms · generated {{.GeneratedAt}} · v{{.Version}}</p>
{{if .Records}}
<table>
<tr><th>Keyword</th><th>Title</th><th>Platform</th><th>Ranks</th><th>Seen</th></tr>
{{range .Records}}
<tr>
<td class="keyword">{{.Keyword}}</td>
<td>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</td>
<td>{{.Platform}}</td>
<td>{{rankTrail .}}</td>
<td>{{len .Observations}}×</td>
</tr>
{{end}}
</table>
{{else}}
<p>No matched records.</p>
{{end}}
</body>
</html>
`
