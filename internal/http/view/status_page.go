package view

import (
	"bytes"
	"html/template"
)

// StatusPageData fills the page shown to browsers when a short link cannot redirect.
type StatusPageData struct {
	Title      string
	StatusCode int
	Code       string
	Message    string
}

var statusPageTmpl = template.Must(template.New("status_page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Title}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		main {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(480px, 92vw);
		}
		.status { font-size: 3rem; font-weight: 700; color: var(--accent); margin: 0; }
		h1 { font-size: 1.4rem; margin: 8px 0; }
		p { color: var(--muted); }
		code { color: var(--text); }
	</style>
</head>
<body>
	<main>
		<p class="status">{{.StatusCode}}</p>
		<h1>{{.Title}}</h1>
		{{if .Code}}<p>Short link <code>/{{.Code}}</code>: {{.Message}}</p>{{else}}<p>{{.Message}}</p>{{end}}
	</main>
</body>
</html>
`))

// RenderStatusPage expands the status page template.
func RenderStatusPage(data StatusPageData) (string, error) {
	if data.Title == "" {
		data.Title = "Link unavailable"
	}
	var buf bytes.Buffer
	if err := statusPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
