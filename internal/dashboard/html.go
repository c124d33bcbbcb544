package dashboard

import (
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/MEKXH/gatekeeper/internal/engine"
	"github.com/MEKXH/gatekeeper/internal/policy"
)

var pageTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"badgeClass": func(risk policy.RiskLevel) string {
		return "badge-" + strings.ToLower(string(risk))
	},
	"ts": func(t time.Time) string {
		return t.Format(time.RFC3339)
	},
	"clip": func(s string) string {
		return clip(s, 80)
	},
}).Parse(pageHTML))

// WriteHTML renders snap as a self-contained HTML page. Approve and deny
// stay with the CLI and the API; the page shows the commands.
func WriteHTML(w io.Writer, snap engine.Snapshot) error {
	return pageTemplate.Execute(w, snap)
}

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta http-equiv="refresh" content="10">
<title>MCP Gatekeeper</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0d1117; color: #c9d1d9; padding: 20px; }
  h1 { color: #58a6ff; margin-bottom: 4px; font-size: 1.5rem; }
  h2 { color: #8b949e; font-size: 1rem; margin: 0 0 8px; border-bottom: 1px solid #21262d; padding-bottom: 4px; }
  .subtitle { color: #8b949e; font-size: 0.85rem; margin-bottom: 16px; }
  .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; }
  .card { background: #161b22; border: 1px solid #30363d; border-radius: 8px; padding: 16px; margin-bottom: 16px; }
  .badge { display: inline-block; padding: 2px 8px; border-radius: 12px; font-size: 0.75rem; font-weight: 600; }
  .badge-safe { background: #238636; color: #fff; }
  .badge-sensitive { background: #d29922; color: #000; }
  .badge-dangerous { background: #da3633; color: #fff; }
  .pending-item { background: #1c2128; border: 1px solid #30363d; border-radius: 6px; padding: 12px; margin: 8px 0; }
  .meta { color: #8b949e; font-size: 0.8rem; margin-top: 4px; }
  table { width: 100%; border-collapse: collapse; font-size: 0.8rem; }
  th { text-align: left; color: #8b949e; padding: 6px 8px; border-bottom: 1px solid #30363d; }
  td { padding: 6px 8px; border-bottom: 1px solid #21262d; }
  .locked { color: #f85149; font-size: 0.75rem; }
  .empty { color: #484f58; font-style: italic; padding: 12px; }
  code { font-family: 'SF Mono', Monaco, monospace; }
</style>
</head>
<body>
  <h1>MCP Gatekeeper</h1>
  <p class="subtitle">sandbox <code>{{.SandboxRoot}}</code> &middot; policy {{.Policy.Source}}{{with .Policy.Digest}} <code>{{.}}</code>{{end}} &middot; {{ts .GeneratedAt}}</p>

  <div class="grid">
    <div class="card">
      <h2>Policy</h2>
      <table>
        <thead><tr><th>Tool</th><th>Risk</th><th>Default action</th><th>Approvable</th></tr></thead>
        <tbody>
        {{- range .Policy.Rules}}
          <tr>
            <td><code>{{.Tool}}</code>{{if .Locked}} <span class="locked">locked</span>{{end}}</td>
            <td><span class="badge {{badgeClass .Risk}}">{{.Risk}}</span></td>
            <td>{{.Action}}</td>
            <td>{{.Approvable}}</td>
          </tr>
        {{- end}}
        </tbody>
      </table>
    </div>
    <div class="card">
      <h2>Pending Actions ({{len .Pending}})</h2>
      {{- range .Pending}}
      <div class="pending-item">
        <strong>{{.Tool}}</strong> <span class="badge {{badgeClass .Risk}}">{{.Risk}}</span>
        <div class="meta">{{.Effect}}</div>
        <div class="meta">ID: <code>{{.ID}}</code> &middot; {{ts .CreatedAt}}</div>
        <div class="meta"><code>gatekeeper approval approve {{.ID}}</code> or <code>gatekeeper approval deny {{.ID}}</code></div>
      </div>
      {{- else}}
      <p class="empty">No pending actions.</p>
      {{- end}}
    </div>
  </div>

  <div class="card">
    <h2>Audit Log ({{len .Recent}} of {{.AuditTotal}})</h2>
    <table>
      <thead><tr><th>#</th><th>Time</th><th>Tool</th><th>Risk</th><th>Decision</th><th>Detail</th></tr></thead>
      <tbody>
      {{- range .Recent}}
        <tr>
          <td>{{.Seq}}</td>
          <td>{{ts .Time}}</td>
          <td><code>{{.Tool}}</code></td>
          <td>{{.Risk}}</td>
          <td>{{.Decision}}</td>
          <td>{{clip .Detail}}</td>
        </tr>
      {{- else}}
        <tr><td colspan="6" class="empty">No events yet.</td></tr>
      {{- end}}
      </tbody>
    </table>
  </div>
</body>
</html>
`
