package api

import "net/http"

// StaticHandler serves the dispatcher page at / and 404s everything else.
func (s *Server) StaticHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(consolePage))
}

// consolePage is the route picker plus an event log of /map/ws.
const consolePage = `<!DOCTYPE html><html lang="pt-BR"><head>
<meta charset="utf-8"/><title>Rastreamento</title>
<meta name="viewport" content="width=device-width,initial-scale=1">
<style>body{font-family:sans-serif;margin:16px} #log{font-family:monospace;white-space:pre-wrap;border:1px solid #ddd;padding:8px;height:60vh;overflow:auto}</style>
</head><body>
<form id="f"><select id="route"><option value="">Selecione uma corrida</option></select>
<button type="submit">Iniciar uma corrida</button></form>
<div id="log"></div>
<script>
const log = (m) => { const el = document.getElementById('log'); el.textContent += m + '\n'; el.scrollTop = el.scrollHeight; };
const sel = document.getElementById('route');
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/map/ws');
ws.onmessage = (e) => {
  const m = JSON.parse(e.data);
  if (m.type === 'snapshot') {
    for (const r of m.payload.routes || []) { const o = document.createElement('option'); o.value = r._id; o.textContent = r.title; sel.appendChild(o); }
  }
  log(m.type + (m.event ? ' ' + m.event : '') + ' ' + JSON.stringify(m.payload || {}));
};
document.getElementById('f').onsubmit = (e) => { e.preventDefault(); ws.send(JSON.stringify({type: 'start', routeId: sel.value})); };
</script>
</body></html>`
