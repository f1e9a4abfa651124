package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/relay-clock/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"utc": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

// formatUptime renders d as days, hours and minutes, dropping leading zero
// units. Seconds only show during the first hour.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Hour {
		return d.String()
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days == 0 {
		return fmt.Sprintf("%dh%02dm", d/time.Hour, d%time.Hour/time.Minute)
	}
	return fmt.Sprintf("%dd %dh%02dm", days, d/time.Hour, d%time.Hour/time.Minute)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Relay Clock</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; }
.face { font-size: 4em; text-align: center; letter-spacing: 0.1em; margin: 0.5em 0; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 3px 6px; border-bottom: 1px solid #e4e4e4; }
th { width: 40%; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Relay Clock</h1>
<div class="face">{{.Face}}</div>

<h2>Last Cycle</h2>
{{with .Last}}<table>
<tr><th>Mode</th><td>{{.Mode}}</td></tr>
<tr><th>States</th><td>{{.PathString}}</td></tr>
<tr><th>Calendar</th><td>{{.Calendar}}</td></tr>
<tr><th>Pulses</th><td>{{.Pulses.Total}}</td></tr>
<tr><th>Power</th><td{{if .Unplugged}} class="warn">unplugged{{else}}>present{{end}}</td></tr>
<tr><th>Full relatch</th><td>{{if .FullRelatch}}yes{{else}}no{{end}}</td></tr>
<tr><th>DST</th><td>{{.DST}}{{if .BeyondDSTHorizon}} <span class="warn">(past table)</span>{{end}}</td></tr>
{{if .RenderError}}<tr><th>Error</th><td class="warn">{{.RenderError}}</td></tr>{{end}}
<tr><th>At</th><td>{{utc .Start}}</td></tr>
</table>{{else}}<p>No cycle yet.</p>{{end}}

<h2>Cycle Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Cold boots</th><td>{{.Counts.ColdBoots}}</td></tr>
<tr><th>Unplugged</th><td>{{.Counts.Unplugged}}</td></tr>
<tr><th>Full relatches</th><td>{{.Counts.FullRelatches}}</td></tr>
<tr><th>Relay pulses</th><td>{{.Counts.Pulses}}</td></tr>
<tr><th>DST corrections</th><td>{{.Counts.DST}}</td></tr>
<tr><th>Render errors</th><td>{{.Counts.RenderErrors}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}-{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Next wake</th><td>{{utc .NextWake}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>State file</th><td>{{.Config.StateFile}}</td></tr>
<tr><th>DST table until</th><td>20{{printf "%02d" .Config.DSTUntil}}</td></tr>
</table>

<p><a href="/index.json">index.json</a> · <a href="/cycles.json">cycles.json</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and Face() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Face   string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Face:     snap.Face(),
	}
	indexTmpl.Execute(w, data)
}
