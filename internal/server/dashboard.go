package server

import "net/http"

// dashboardHTML is the single-page dashboard. It drives the JSON API
// and listens on the WebSocket for live job events.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>botinsta</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 760px; color: #222; }
  h1 { font-size: 1.4rem; }
  table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
  th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #ddd; }
  .state-running { color: #0a7d33; }
  .state-paused { color: #b07d00; }
  .state-error { color: #c0392b; }
  #log { margin-top: 1rem; font-family: monospace; font-size: .85rem; max-height: 16rem; overflow-y: auto; background: #f7f7f7; padding: .6rem; }
</style>
</head>
<body>
<h1>botinsta</h1>
<table>
  <thead><tr><th>Account</th><th>Mode</th><th>Target</th><th>State</th><th>Status</th><th>Likes</th></tr></thead>
  <tbody id="jobs"></tbody>
</table>
<div id="log"></div>
<script>
async function refresh() {
  const res = await fetch('/api/bot/active');
  const data = await res.json();
  const rows = (data.jobs || []).map(j =>
    '<tr><td>' + j.account + '</td><td>' + j.mode + '</td><td>' + (j.target || '-') +
    '</td><td class="state-' + j.state + '">' + j.state + '</td><td>' + j.status +
    '</td><td>' + j.likes + '</td></tr>');
  document.getElementById('jobs').innerHTML = rows.join('');
}

function connect() {
  const proto = location.protocol === 'https:' ? 'wss' : 'ws';
  const ws = new WebSocket(proto + '://' + location.host + '/ws');
  ws.onmessage = (msg) => {
    const event = JSON.parse(msg.data);
    if (event.type === 'job_event') {
      const p = event.payload;
      const line = document.createElement('div');
      line.textContent = p.timestamp + ' [' + p.account + '] ' + p.status + ': ' + (p.message || '');
      const log = document.getElementById('log');
      log.prepend(line);
      while (log.childElementCount > 200) log.removeChild(log.lastChild);
      refresh();
    }
  };
  ws.onclose = () => setTimeout(connect, 2000);
}

refresh();
connect();
setInterval(refresh, 10000);
</script>
</body>
</html>
`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}
