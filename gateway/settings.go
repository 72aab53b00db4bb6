package gateway

import (
	"encoding/json"
	"net/http"

	"chatshell/conf"
)

func (g *Gateway) handleSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(renderSettingsHTML(g.config.Get())))
}

// renderSettingsHTML generates the settings page. The current document is
// embedded as a JavaScript variable; every change goes back over /ipc.
func renderSettingsHTML(cfg conf.Config) string {
	cfgJSON, _ := json.Marshal(cfg)

	return `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Settings</title><style>
* { margin: 0; padding: 0; box-sizing: border-box; }
body {
    font-family: -apple-system, BlinkMacSystemFont, sans-serif;
    background: #1e1e1e;
    color: #e0e0e0;
    padding: 24px 32px;
}
h2 { font-size: 18px; font-weight: 600; margin-bottom: 20px; }
h3 { font-size: 14px; font-weight: 600; margin: 24px 0 12px; color: #ccc; }
.row {
    display: flex;
    align-items: center;
    padding: 8px 0;
    border-bottom: 1px solid #2a2a2a;
    font-size: 13px;
}
.row .name { flex: 1; }
select, .btn {
    padding: 4px 10px;
    background: #2d2d2d;
    border: 1px solid #444;
    border-radius: 4px;
    color: #e0e0e0;
    font-size: 12px;
}
.btn { cursor: pointer; }
.btn:hover { border-color: #0078d4; }
.btn-danger { color: #e55; border-color: #e55; }
.status { color: #888; font-size: 11px; margin-left: 12px; }
.notice { margin-top: 16px; color: #e55; font-size: 12px; min-height: 16px; }
</style></head>
<body>
<h2>Settings</h2>

<h3>General</h3>
<div class="row"><span class="name">Theme</span>
  <select id="theme" onchange="call('set_theme', {theme: this.value})">
    <option value="light">Light</option>
    <option value="dark">Dark</option>
    <option value="system">System</option>
  </select>
</div>
<div class="row"><span class="name">System tray</span>
  <input type="checkbox" id="tray" onchange="call('toggle_tray', {enabled: this.checked})">
</div>

<h3>Lists</h3>
<div id="lists"></div>

<h3>Maintenance</h3>
<div class="row"><span class="name">Check for updates</span>
  <button class="btn" onclick="checkUpdate()">Check</button><span class="status" id="update"></span>
</div>
<div class="row"><span class="name">Restore defaults</span>
  <button class="btn btn-danger" onclick="call('reset_config').then(render)">Reset</button>
</div>
<div class="notice" id="notice"></div>

<script>
let config = ` + string(cfgJSON) + `;
const pending = new Map();
let seq = 0;
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ipc');
ws.onmessage = (ev) => {
    const rep = JSON.parse(ev.data);
    const p = pending.get(rep.id);
    if (!p) return;
    pending.delete(rep.id);
    rep.ok ? p.resolve(rep.result) : p.reject(new Error(rep.error));
};
const ready = new Promise((resolve) => { ws.onopen = resolve; });

function call(cmd, args) {
    const id = String(++seq);
    return ready.then(() => new Promise((resolve, reject) => {
        pending.set(id, {resolve, reject});
        ws.send(JSON.stringify({id, cmd, args}));
    })).then((res) => {
        document.getElementById('notice').textContent = '';
        if (res && res.theme) config = res;
        return res;
    }).catch((err) => {
        document.getElementById('notice').textContent = err.message;
        throw err;
    });
}

function render() {
    document.getElementById('theme').value = config.theme;
    document.getElementById('tray').checked = config.tray;
    const lists = document.getElementById('lists');
    lists.innerHTML = '';
    Object.keys(config.lists).sort().forEach((name) => {
        const src = config.lists[name];
        const row = document.createElement('div');
        row.className = 'row';
        row.innerHTML = '<span class="name"></span><span class="status"></span>';
        row.querySelector('.name').textContent = name + ' (' + src.file + ')';
        const status = row.querySelector('.status');
        if (src.url) {
            const btn = document.createElement('button');
            btn.className = 'btn';
            btn.textContent = 'Sync';
            btn.onclick = () => {
                status.textContent = 'syncing...';
                call('sync_list', {name}).then((res) => {
                    status.textContent = (res.stale ? 'kept local copy: ' + res.error : 'synced') +
                        ' (' + res.resource.entries.length + ' entries)';
                });
            };
            row.insertBefore(btn, status);
        } else {
            status.textContent = 'local only';
        }
        lists.appendChild(row);
    });
}

function checkUpdate() {
    const out = document.getElementById('update');
    out.textContent = 'checking...';
    call('run_check_update').then((res) => {
        out.textContent = res.has_update ? 'version ' + res.version + ' available' : 'up to date';
    }, () => { out.textContent = ''; });
}

render();
</script>
</body>
</html>`
}
