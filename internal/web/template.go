package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/tide-display/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"feet": func(v float64) string {
		return fmt.Sprintf("%.2f ft", v)
	},
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Tide Display</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; }
.wait { color: orange; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; background: orange; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
</style>
</head>
<body>
<h1>Tide Display <span id="live-dot" class="live-dot" title="connecting"></span></h1>

<h2>Tide Clock</h2>
<table>
<tr><th>State</th><td id="clock-state" class="{{if eq (printf "%s" .Pacer.State) "NORMAL_PACING"}}ok{{else}}wait{{end}}">{{if .Pacer.State}}{{.Pacer.State}}{{else}}STARTING{{end}}</td></tr>
<tr><th>Next tide</th><td id="next-tide">{{if .Pacer.NextTide.Available}}{{.Pacer.NextTide.Kind}} at {{utc .Pacer.NextTide.Time}}{{else}}unknown{{end}}</td></tr>
<tr><th>Steps</th><td id="clock-steps">{{.Pacer.StepsTaken}} / {{.Pacer.StepsNeeded}}</td></tr>
<tr><th>Face / motor</th><td>{{.Pacer.Face}} / {{.Pacer.Motor}}</td></tr>
</table>

<h2>Water Level</h2>
<table>
<tr><th>Ready</th><td id="level-ready" class="{{if .Display.Ready}}ok{{else}}bad{{end}}">{{if .Display.Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Power</th><td id="level-power">{{if .Display.PowerState}}{{.Display.PowerState}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Level</th><td id="level-value">{{feet .Display.Level}}</td></tr>
<tr><th>Position</th><td id="level-position">{{.Display.Position}} &rarr; {{.Display.Target}}</td></tr>
<tr><th>Range</th><td>{{feet .Display.MinLevel}} .. {{feet .Display.MaxLevel}}</td></tr>
<tr><th>Homings</th><td>{{.Display.Homings}} ({{.Display.HomingFailures}} failed)</td></tr>
<tr><th>Last fetch</th><td>{{if .LastFetch.At.IsZero}}never{{else}}{{utc .LastFetch.At}}{{if .LastFetch.OK}} {{feet .LastFetch.Level}}{{else}} unavailable{{end}}{{end}}</td></tr>
</table>

<h2>Operator</h2>
<table>
<tr><th>Mode</th><td id="mode">{{.Mode}}</td></tr>
</table>
<p>
<button onclick="post('/api/mode', {mode: 'run'})">Run</button>
<button onclick="post('/api/mode', {mode: 'test'})">Test</button>
<input id="set-level" type="number" step="0.1" value="0">
<button onclick="post('/api/level', {level: parseFloat(document.getElementById('set-level').value)})">Set level</button>
<span id="op-result"></span>
</p>

<h2>Recent Events</h2>
<table>
{{range .Recent}}<tr><th>{{utc .Timestamp}}</th><td>{{.Type}}</td></tr>
{{else}}<tr><td>none yet</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{if .MQTTBuffered}} ({{.MQTTBuffered}} buffered){{end}}{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Station</th><td>{{.Config.Station}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
function post(url, body) {
  fetch(url, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body)})
    .then(function(r) { return r.json(); })
    .then(function(j) { document.getElementById("op-result").textContent = j.ok ? "ok" : j.error; });
}

(function() {
  var dot = document.getElementById("live-dot");
  function text(id, v) { document.getElementById(id).textContent = v; }

  function connect() {
    var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.onopen = function() { dot.className = "live-dot ok"; dot.title = "live"; };
    ws.onclose = function() {
      dot.className = "live-dot err"; dot.title = "offline";
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(e) {
      try {
        var s = JSON.parse(e.data).status;
        text("clock-state", s.clock.state || "STARTING");
        text("next-tide", s.clock.next_tide ? s.clock.next_tide.kind + " at " + s.clock.next_tide.time : "unknown");
        text("clock-steps", s.clock.steps_taken + " / " + s.clock.steps_needed);
        text("level-ready", s.level.ready ? "yes" : "no");
        text("level-power", s.level.power);
        text("level-value", s.level.level.toFixed(2) + " ft");
        text("level-position", s.level.position + " → " + s.level.target);
        text("mode", s.mode);
      } catch (err) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
