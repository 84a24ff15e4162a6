package web

import (
	"html/template"
	"time"

	"github.com/amonks/issues/issue"
)

func newTemplates(now func() time.Time) *template.Template {
	funcs := template.FuncMap{
		"formatTime":         formatTime,
		"formatOptionalTime": formatOptionalTime,
		"createdLabel":       func(item issue.Issue) string { return issue.CreatedLabel(item, now()) },
		"statusLabel":        func(status issue.Status) string { return status.DisplayName() },
		"priorityLabel":      func(priority issue.Priority) string { return priority.DisplayName() },
	}
	return template.Must(template.New("page").Funcs(funcs).Parse(pageTemplate))
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return issue.PendingLabel
	}
	return formatTime(*value)
}

const pageTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Issues{{if eq .ActiveTab "signin"}} · Sign in{{end}}</title>
  <style>
    :root {
      color-scheme: light;
    }
    body {
      margin: 0;
      font-family: "Charter", "Georgia", serif;
      color: #2b2520;
      background: radial-gradient(circle at top left, #f4efe3 0%, #fcfaf6 55%, #f6f2e8 100%);
    }
    header {
      padding: 16px 24px;
      border-bottom: 1px solid #d7cdbd;
      background: rgba(255, 255, 255, 0.72);
      backdrop-filter: blur(6px);
      display: flex;
      justify-content: space-between;
      align-items: center;
    }
    header h1 {
      margin: 0;
      font-size: 20px;
      letter-spacing: 0.02em;
    }
    .identity {
      display: flex;
      gap: 12px;
      align-items: center;
      font-size: 14px;
      color: #5b5148;
    }
    main {
      display: flex;
      gap: 18px;
      padding: 18px 24px 28px;
    }
    .pane {
      background: #ffffff;
      border: 1px solid #d7cdbd;
      border-radius: 14px;
      box-shadow: 0 8px 24px rgba(60, 45, 30, 0.08);
    }
    .list-pane {
      width: 35%;
      min-width: 240px;
      padding: 16px;
      display: flex;
      flex-direction: column;
      gap: 12px;
    }
    .detail-pane {
      flex: 1;
      padding: 18px 22px 22px;
    }
    .signin-pane {
      max-width: 420px;
      margin: 0 auto;
      padding: 18px 22px 22px;
      flex: 1;
    }
    .list-actions {
      display: flex;
      justify-content: space-between;
      align-items: center;
      gap: 12px;
    }
    .filters {
      display: flex;
      gap: 8px;
    }
    .button-link {
      display: inline-block;
      padding: 6px 12px;
      border-radius: 8px;
      border: 1px solid #cbbfae;
      background: #f7f2e8;
      text-decoration: none;
      color: #2b2520;
      font-size: 14px;
    }
    .item-list {
      list-style: none;
      padding: 0;
      margin: 0;
      display: flex;
      flex-direction: column;
      gap: 8px;
      overflow-y: auto;
    }
    .list-item a {
      display: block;
      padding: 10px 12px;
      border-radius: 10px;
      border: 1px solid transparent;
      text-decoration: none;
      color: inherit;
    }
    .list-item.active a {
      border-color: #c7baa8;
      background: #f6f0e6;
    }
    .item-title {
      font-weight: 600;
      display: block;
    }
    .item-meta {
      color: #72685f;
      font-size: 12px;
    }
    .field {
      display: flex;
      flex-direction: column;
      gap: 6px;
      margin-bottom: 12px;
    }
    input[type="text"],
    input[type="email"],
    input[type="password"],
    select,
    textarea {
      width: 100%;
      padding: 8px 10px;
      border-radius: 8px;
      border: 1px solid #cbbfae;
      font-family: inherit;
      font-size: 14px;
      background: #fffdf9;
      box-sizing: border-box;
    }
    textarea {
      min-height: 120px;
      resize: vertical;
    }
    .actions {
      display: flex;
      flex-wrap: wrap;
      gap: 10px;
      margin-top: 16px;
      align-items: flex-end;
    }
    .actions .field {
      margin-bottom: 0;
    }
    button {
      padding: 8px 14px;
      border-radius: 8px;
      border: 1px solid #bfb3a2;
      background: #efe6d7;
      font-family: inherit;
      cursor: pointer;
    }
    button.danger {
      background: #f4d7d2;
      border-color: #d7a7a1;
    }
    .readonly {
      display: grid;
      grid-template-columns: 140px 1fr;
      gap: 6px 12px;
      font-size: 14px;
      margin: 16px 0 8px;
    }
    .readonly dt {
      font-weight: 600;
      color: #4f4540;
    }
    .readonly dd {
      margin: 0;
      color: #2b2520;
    }
    .error {
      padding: 10px 12px;
      border-radius: 8px;
      background: #f7d9d6;
      border: 1px solid #d9a7a2;
      margin-bottom: 12px;
      color: #5b1d17;
    }
    .notice {
      padding: 10px 12px;
      border-radius: 8px;
      background: #e4eedb;
      border: 1px solid #b7cca5;
      margin-bottom: 12px;
    }
    .warning {
      padding: 10px 12px;
      border-radius: 8px;
      background: #fbf0d0;
      border: 1px solid #e0c98a;
      margin-bottom: 12px;
      color: #5a4510;
    }
    .warning ul {
      margin: 6px 0 0;
      padding-left: 18px;
    }
    .muted {
      color: #72685f;
    }
    .description {
      white-space: pre-wrap;
      background: #fcf8f1;
      border: 1px solid #e0d6c6;
      border-radius: 8px;
      padding: 12px;
    }
    .confirm {
      display: flex;
      align-items: center;
      gap: 8px;
      font-size: 14px;
    }
    #stale[hidden] {
      display: none;
    }
    @media (max-width: 900px) {
      main {
        flex-direction: column;
      }
      .list-pane {
        width: auto;
      }
    }
  </style>
</head>
<body>
  <header>
    <h1>Issues</h1>
    {{if .Identity}}
      <div class="identity">
        <span>{{.Identity}}</span>
        <form method="post" action="/web/signout">
          <button type="submit">Sign out</button>
        </form>
      </div>
    {{end}}
  </header>
  <main>
    {{if eq .ActiveTab "signin"}}
      <section class="pane signin-pane">
        <h2>Sign in</h2>
        {{if .SignIn.Error}}<div class="error">{{.SignIn.Error}}</div>{{end}}
        <form method="post" action="/web/signin">
          <div class="field">
            <label for="signin-email">Email</label>
            <input id="signin-email" type="email" name="email" value="{{.SignIn.Email}}" required>
          </div>
          <div class="field">
            <label for="signin-password">Password</label>
            <input id="signin-password" type="password" name="password" required>
          </div>
          <div class="actions">
            <button type="submit" name="action" value="signin">Sign in</button>
            <button type="submit" name="action" value="signup">Create account</button>
          </div>
        </form>
      </section>
    {{else}}
      <section class="pane list-pane">
        <div class="list-actions">
          <strong>Issues <span class="muted">{{len .Issues}} of {{.Total}}</span></strong>
          <a class="button-link" href="/web/issues?create=1">Create</a>
        </div>
        <form class="filters" method="get" action="/web/issues">
          <select name="status" aria-label="Status filter" onchange="this.form.submit()">
            {{range .StatusFilterOptions}}
              <option value="{{.Value}}" {{if eq .Value $.Filter.Status}}selected{{end}}>{{.Label}}</option>
            {{end}}
          </select>
          <select name="priority" aria-label="Priority filter" onchange="this.form.submit()">
            {{range .PriorityFilterOptions}}
              <option value="{{.Value}}" {{if eq .Value $.Filter.Priority}}selected{{end}}>{{.Label}}</option>
            {{end}}
          </select>
          <noscript><button type="submit">Filter</button></noscript>
        </form>
        <div id="stale" class="warning" hidden>The list changed. <a href="">Reload</a></div>
        <ul class="item-list">
          {{range .Issues}}
            <li class="list-item {{if eq .ID $.SelectedID}}active{{end}}">
              <a href="/web/issues?id={{.ID}}{{if $.Filter.Status}}&status={{$.Filter.Status}}{{end}}{{if $.Filter.Priority}}&priority={{$.Filter.Priority}}{{end}}">
                <span class="item-title">{{.Title}}</span>
                <span class="item-meta">{{.ID}} · {{statusLabel .Status}} · {{priorityLabel .Priority}} · {{createdLabel .}}</span>
              </a>
            </li>
          {{else}}
            <li class="muted">No issues found.</li>
          {{end}}
        </ul>
      </section>
      <section class="pane detail-pane">
        {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
        {{if .Notice}}<div class="notice">{{.Notice}}</div>{{end}}
        {{if .Similar}}
          <div class="warning">
            Possible duplicates:
            <ul>
              {{range .Similar}}
                <li><a href="/web/issues?id={{.ID}}">{{.Title}}</a> <span class="muted">{{.ID}} · {{statusLabel .Status}}</span></li>
              {{end}}
            </ul>
          </div>
        {{end}}
        {{if .Create}}
          <h2>Create Issue</h2>
          <form method="post" action="/web/issues/create">
            <input type="hidden" name="filter_status" value="{{.Filter.Status}}">
            <input type="hidden" name="filter_priority" value="{{.Filter.Priority}}">
            <div class="field">
              <label for="issue-title">Title</label>
              <input id="issue-title" type="text" name="title" value="{{.Form.Title}}" required>
            </div>
            <div id="similar-warning" class="warning" hidden></div>
            <div class="field">
              <label for="issue-priority">Priority</label>
              <select id="issue-priority" name="priority">
                {{range .PriorityOptions}}
                  <option value="{{.Value}}" {{if eq .Value $.Form.Priority}}selected{{end}}>{{.Label}}</option>
                {{end}}
              </select>
            </div>
            <div class="field">
              <label for="issue-assignee">Assignee</label>
              <input id="issue-assignee" type="text" name="assigned_to" value="{{.Form.AssignedTo}}">
            </div>
            <div class="field">
              <label for="issue-description">Description</label>
              <textarea id="issue-description" name="description">{{.Form.Description}}</textarea>
            </div>
            <div class="actions">
              <button type="submit">Create issue</button>
            </div>
          </form>
        {{else if .SelectedIssue}}
          <h2>{{.SelectedIssue.Title}}</h2>
          <dl class="readonly">
            <dt>ID</dt><dd>{{.SelectedIssue.ID}}</dd>
            <dt>Status</dt><dd>{{statusLabel .SelectedIssue.Status}}</dd>
            <dt>Priority</dt><dd>{{priorityLabel .SelectedIssue.Priority}}</dd>
            <dt>Assignee</dt><dd>{{if .SelectedIssue.AssignedTo}}{{.SelectedIssue.AssignedTo}}{{else}}-{{end}}</dd>
            <dt>Created by</dt><dd>{{.SelectedIssue.CreatedBy}}</dd>
            <dt>Created</dt><dd>{{createdLabel .SelectedIssue}} <span class="muted">{{formatOptionalTime .SelectedIssue.CreatedAt}}</span></dd>
            <dt>Updated</dt><dd>{{formatTime .SelectedIssue.UpdatedAt}}</dd>
          </dl>
          {{if .SelectedIssue.Description}}
            <div class="description">{{.SelectedIssue.Description}}</div>
          {{end}}
          <form method="post" action="/web/issues/status?id={{.SelectedIssue.ID}}">
            <input type="hidden" name="filter_status" value="{{.Filter.Status}}">
            <input type="hidden" name="filter_priority" value="{{.Filter.Priority}}">
            <div class="actions">
              <div class="field">
                <label for="issue-status">Status</label>
                <select id="issue-status" name="status">
                  {{range .TransitionOptions}}
                    <option value="{{.Value}}" {{if eq .Value $.SelectedIssue.Status}}selected{{end}}>{{.Label}}</option>
                  {{end}}
                </select>
              </div>
              <button type="submit">Set status</button>
            </div>
          </form>
          <form method="post" action="/web/issues/assign?id={{.SelectedIssue.ID}}">
            <input type="hidden" name="filter_status" value="{{.Filter.Status}}">
            <input type="hidden" name="filter_priority" value="{{.Filter.Priority}}">
            <div class="actions">
              <div class="field">
                <label for="issue-assign">Assignee</label>
                <input id="issue-assign" type="text" name="assigned_to" value="{{.SelectedIssue.AssignedTo}}">
              </div>
              <button type="submit">Reassign</button>
            </div>
          </form>
          <form method="post" action="/web/issues/delete?id={{.SelectedIssue.ID}}">
            <input type="hidden" name="filter_status" value="{{.Filter.Status}}">
            <input type="hidden" name="filter_priority" value="{{.Filter.Priority}}">
            <div class="actions">
              <label class="confirm"><input type="checkbox" name="confirm" value="yes">Confirm delete</label>
              <button class="danger" type="submit">Delete issue</button>
            </div>
          </form>
        {{else}}
          <p class="muted">No issue selected.</p>
        {{end}}
      </section>
    {{end}}
  </main>
  {{if eq .ActiveTab "issues"}}
  <script>
    (function () {
      var seq = {{.Seq}};
      var stale = document.getElementById("stale");
      if (window.EventSource) {
        var source = new EventSource("/web/stream");
        source.addEventListener("snapshot", function (event) {
          var data = JSON.parse(event.data);
          if (data.seq === seq) {
            return;
          }
          var active = document.activeElement;
          if (active && (active.tagName === "INPUT" || active.tagName === "TEXTAREA" || active.tagName === "SELECT")) {
            stale.hidden = false;
            return;
          }
          window.location.reload();
        });
        source.addEventListener("failure", function () {
          source.close();
        });
      }

      var title = document.getElementById("issue-title");
      var warning = document.getElementById("similar-warning");
      if (!title || !warning) {
        return;
      }
      var pending = null;
      title.addEventListener("input", function () {
        clearTimeout(pending);
        pending = setTimeout(function () {
          fetch("/web/similar?title=" + encodeURIComponent(title.value))
            .then(function (response) { return response.ok ? response.json() : { issues: [] }; })
            .then(function (data) {
              warning.textContent = "";
              if (!data.issues.length) {
                warning.hidden = true;
                return;
              }
              warning.appendChild(document.createTextNode("Possible duplicates:"));
              var list = document.createElement("ul");
              data.issues.forEach(function (item) {
                var entry = document.createElement("li");
                entry.textContent = item.title + " (" + item.id + ", " + item.status + ")";
                list.appendChild(entry);
              });
              warning.appendChild(list);
              warning.hidden = false;
            });
        }, 200);
      });
    })();
  </script>
  {{end}}
</body>
</html>
`
