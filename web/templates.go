package web

import (
	"html/template"
	"net/http"
	"time"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/todo"
)

type templateWrapper struct {
	tmpl *template.Template
}

func newTemplateWrapper() *templateWrapper {
	funcs := template.FuncMap{
		"eq":             func(a, b string) bool { return a == b },
		"formatDuration": todo.FormatDuration,
		"formatDue":      func(t time.Time) string { return t.Format("Mon Jan 2") },
		"done":           func(t todo.Todo) bool { return t.IsCompleted() },
		"tracking":       func(t todo.Todo) bool { return t.IsTracking() },
	}
	return &templateWrapper{tmpl: template.Must(template.New("page").Funcs(funcs).Parse(pageTemplate))}
}

func (tw *templateWrapper) Render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = tw.tmpl.ExecuteTemplate(w, "page", data)
}

type windowOption struct {
	Value string
	Label string
}

type pageData struct {
	Window  string
	Windows []windowOption
	Board   *board.Board
	Stale   bool
	Error   string
}

func windowOptions() []windowOption {
	options := make([]windowOption, 0, len(board.ValidWindowKinds()))
	for _, kind := range board.ValidWindowKinds() {
		if kind == board.Custom {
			continue
		}
		options = append(options, windowOption{Value: string(kind), Label: string(kind)})
	}
	return options
}

// handlePage renders the board for people without an API client.
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{Windows: windowOptions()}
	req, err := h.boardRequest(r)
	if err != nil {
		data.Error = err.Error()
		h.templates.Render(w, http.StatusBadRequest, data)
		return
	}
	data.Window = string(req.Window.Kind)

	result := h.svc.Board(r.Context(), req)
	data.Board = result.Board
	data.Stale = result.Stale
	if result.Err != nil {
		data.Error = result.Err.Error()
	}
	status := http.StatusOK
	if result.Board == nil {
		status = statusFor(result.Err)
	}
	h.templates.Render(w, status, data)
}

const pageTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Daybook</title>
  <style>
    body {
      margin: 0;
      font-family: "Charter", "Georgia", serif;
      color: #2b2520;
      background: #fcfaf6;
    }
    header {
      padding: 16px 24px;
      border-bottom: 1px solid #d7cdbd;
    }
    header h1 {
      margin: 0 0 8px 0;
      font-size: 20px;
    }
    .tabs {
      display: flex;
      gap: 12px;
    }
    .tab {
      padding: 6px 12px;
      border-radius: 999px;
      text-decoration: none;
      color: #5b5148;
    }
    .tab.active {
      background: #f5efe4;
      font-weight: 600;
    }
    main {
      padding: 18px 24px;
    }
    .group {
      margin-bottom: 18px;
      padding: 12px 16px;
      border: 1px solid #d7cdbd;
      border-radius: 12px;
      background: #ffffff;
    }
    .group h2 {
      margin: 0 0 8px 0;
      font-size: 16px;
    }
    .meta {
      color: #7a6e62;
      font-size: 13px;
    }
    .done {
      text-decoration: line-through;
      color: #8e8376;
    }
    .error {
      padding: 8px 12px;
      border-radius: 8px;
      background: #fbe9e7;
      color: #8a2a1b;
    }
  </style>
</head>
<body>
  <header>
    <h1>Daybook</h1>
    <nav class="tabs">
      {{range .Windows}}
        <a class="tab {{if eq .Value $.Window}}active{{end}}" href="/?window={{.Value}}">{{.Label}}</a>
      {{end}}
    </nav>
  </header>
  <main>
    {{if .Error}}<div class="error">{{if .Stale}}Showing earlier data: {{end}}{{.Error}}</div>{{end}}
    {{with .Board}}
      <p class="meta">{{.Range.Start}} to {{.Range.End}}</p>
      {{range .Groups}}
        <section class="group">
          <h2>{{.Context}} · {{.Day}} <span class="meta">{{formatDuration .Duration}}</span></h2>
          <ul>
            {{range .Items}}
              <li class="{{if done .}}done{{end}}">
                {{.Title}}
                <span class="meta">{{formatDue .Due}}{{if tracking .}} · tracking{{end}}</span>
              </li>
            {{end}}
            {{range .Activities}}
              <li class="meta">worked on {{.Todo.Title}}</li>
            {{end}}
          </ul>
        </section>
      {{else}}
        <p class="meta">Nothing scheduled.</p>
      {{end}}
    {{end}}
  </main>
</body>
</html>
`
