package api

const feedDocsHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Live Feeds · BucketSpy</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    a { color: #58a6ff; text-decoration: none; }
    nav {
      background: #161b22;
      border-bottom: 1px solid #30363d;
      padding: 0 24px;
      height: 48px;
      display: flex;
      align-items: center;
      gap: 24px;
    }
    nav .brand { font-weight: 600; font-size: 15px; color: #e6edf3; }
    main { max-width: 860px; margin: 0 auto; padding: 24px 16px 64px; }
    h2 { color: #e6edf3; border-bottom: 1px solid #21262d; padding-bottom: 6px; margin-top: 32px; }
    code, pre { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 13px; }
    pre { background: #161b22; border: 1px solid #30363d; border-radius: 6px; padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
    th { background: #161b22; color: #e6edf3; }
  </style>
</head>
<body>
  <nav>
    <span class="brand">BucketSpy</span>
    <a href="/docs">← REST API</a>
  </nav>
  <main>
    <h2>Feeds</h2>
    <table>
      <tr><th>Feed</th><th>Payload</th><th>Replayed on connect</th></tr>
      <tr><td><code>badge</code></td><td><code>{"text": "3", "color": "#1ba1e2"}</code></td><td>yes, latest value</td></tr>
      <tr><td><code>capture</code></td><td>one captured request</td><td>no</td></tr>
    </table>
    <p>Both transports accept <code>?feeds=badge,capture</code>. Omit it to receive every feed.</p>

    <h2>Server-Sent Events</h2>
    <pre>curl -N 'http://127.0.0.1:8190/api/v1/events?feeds=capture'

event: capture
data: {"id":"0192...","url":"https://media.s3-us-west-2.amazonaws.com/a.png","method":"GET","timestamp":"2026-10-18T09:12:44Z","tabId":3,"requestType":"Image"}</pre>

    <h2>WebSocket</h2>
    <p>Connect to <code>/api/v1/ws</code>. Each text frame is one event:</p>
    <pre>{"feed": "badge", "data": {"text": "3", "color": "#1ba1e2"}}</pre>
    <p>Client frames are ignored. Close the socket to unsubscribe.</p>
  </main>
</body>
</html>`
