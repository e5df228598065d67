package handler

import (
	"html/template"
	"log/slog"

	"github.com/gin-gonic/gin"
)

type approvalPage struct {
	UserCode  string
	AgentName string
	RobotType string
	Token     string
}

type messagePage struct {
	Title   string
	Message string
}

type loginRequiredPage struct {
	UserCode string
}

const pageShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Faros · Device Enrollment</title>
<style>
body { font-family: system-ui, sans-serif; background: #f5f6f8; margin: 0; }
.card { max-width: 28rem; margin: 6rem auto; background: #fff; border-radius: 8px;
        box-shadow: 0 1px 4px rgba(0,0,0,.12); padding: 2rem; }
h1 { font-size: 1.25rem; margin-top: 0; }
dl { display: grid; grid-template-columns: auto 1fr; gap: .4rem 1rem; }
dt { color: #666; }
code { background: #eef; padding: .1rem .4rem; border-radius: 4px; }
button { padding: .6rem 1.4rem; border: 0; border-radius: 6px; font-size: 1rem; cursor: pointer; }
.approve { background: #1a7f37; color: #fff; margin-right: .6rem; }
.deny { background: #cf222e; color: #fff; }
#outcome { margin-top: 1rem; }
</style>
</head>
<body>
<div class="card">
{{block "content" .}}{{end}}
</div>
</body>
</html>`

const approvalContent = `{{define "content"}}
<h1>Approve device enrollment?</h1>
<dl>
<dt>Agent name</dt><dd>{{.AgentName}}</dd>
<dt>Robot type</dt><dd>{{.RobotType}}</dd>
<dt>Code</dt><dd><code>{{.UserCode}}</code></dd>
</dl>
<p>Only approve if this code matches the one shown on the device.</p>
<button class="approve" onclick="decide('approve')">Approve</button>
<button class="deny" onclick="decide('deny')">Deny</button>
<p id="outcome"></p>
<script>
async function decide(action) {
  const resp = await fetch('/api/agents/device/' + action, {
    method: 'POST',
    headers: {
      'Content-Type': 'application/json',
      'Authorization': 'Bearer {{.Token}}'
    },
    body: JSON.stringify({user_code: {{.UserCode}}})
  });
  const el = document.getElementById('outcome');
  if (resp.ok) {
    el.textContent = action === 'approve'
      ? 'Approved. The device will receive its credentials on its next poll.'
      : 'Denied.';
  } else {
    const body = await resp.json().catch(() => ({}));
    el.textContent = body.error || 'Request failed.';
  }
}
</script>
{{end}}`

const messageContent = `{{define "content"}}
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{end}}`

const loginRequiredContent = `{{define "content"}}
<h1>Sign in required</h1>
<p>You must be signed in to review enrollment request <code>{{.UserCode}}</code>.</p>
<p>Log in and reopen this page with your token, for example by appending
<code>?token=&lt;your token&gt;</code> to the URL.</p>
{{end}}`

var (
	approvalTmpl      = template.Must(template.Must(template.New("page").Parse(pageShell)).Parse(approvalContent))
	messageTmpl       = template.Must(template.Must(template.New("page").Parse(pageShell)).Parse(messageContent))
	loginRequiredTmpl = template.Must(template.Must(template.New("page").Parse(pageShell)).Parse(loginRequiredContent))
)

func renderPage(ctx *gin.Context, status int, data any) {
	tmpl := messageTmpl
	switch data.(type) {
	case approvalPage:
		tmpl = approvalTmpl
	case loginRequiredPage:
		tmpl = loginRequiredTmpl
	}

	ctx.Status(status)
	ctx.Header("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(ctx.Writer, data); err != nil {
		slog.Error("Failed to render page", "error", err)
	}
}
