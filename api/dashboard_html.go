package api

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>mysqlwire pool</title>
<style>
body { font-family: monospace; background: #111; color: #ddd; padding: 2rem; }
h1 { color: #6cf; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { padding: 0.3rem 1rem; text-align: left; border-bottom: 1px solid #333; }
a { color: #6cf; }
</style>
</head>
<body>
<h1>mysqlwire</h1>
<p>
  <a href="/pool/stats">/pool/stats</a> ·
  <a href="/status">/status</a> ·
  <a href="/config">/config</a> ·
  <a href="/metrics">/metrics</a> ·
  <a href="/healthz">/healthz</a>
</p>
<script>
fetch('/pool/stats').then(r => r.json()).then(s => {
  const rows = Object.entries(s).map(([k, v]) => '<tr><td>' + k + '</td><td>' + v + '</td></tr>').join('');
  document.getElementById('stats').innerHTML = rows;
});
</script>
<table><tbody id="stats"></tbody></table>
</body>
</html>
`
