package editor

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/tracker"
)

// TodoData represents the data used to render the TOML template.
type TodoData struct {
	// IsUpdate is true when editing an existing todo.
	IsUpdate bool

	// ID is the todo ID (only for updates).
	ID string

	Title   string
	Context string

	// Due is a date or an instant. Empty means the end of today.
	Due string

	Tags []string

	// Repeat is the interval in days; 0 means the todo does not recur.
	Repeat int

	Link        string
	Parent      string
	Description string
}

// DefaultCreateData returns TodoData with default values for creating a new todo.
func DefaultCreateData(context string) TodoData {
	return TodoData{Context: context}
}

// DataFromTodo creates TodoData from an existing todo for editing. The due
// date is shown as a calendar day in loc when it falls at the end of it.
func DataFromTodo(t todo.Todo, loc *time.Location) TodoData {
	data := TodoData{
		IsUpdate:    true,
		ID:          t.ID,
		Title:       t.Title,
		Context:     t.Context,
		Due:         formatDue(t.Due, loc),
		Tags:        append([]string{}, t.Tags...),
		Description: t.Description,
	}
	if t.Repeat != nil {
		data.Repeat = *t.Repeat
	}
	if t.Link != nil {
		data.Link = *t.Link
	}
	if t.ParentID != nil {
		data.Parent = *t.ParentID
	}
	return data
}

func formatDue(due time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if todo.EndOfDay(due, loc).Equal(due) {
		return todo.DayString(due, loc)
	}
	return todo.FormatISO(due)
}

var todoTemplate = template.Must(template.New("todo").Funcs(template.FuncMap{
	"list": func(values []string) string {
		quoted := make([]string, len(values))
		for i, value := range values {
			quoted[i] = strconv.Quote(value)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	},
}).Parse(`{{- if .IsUpdate }}# {{ .ID }}
{{ end -}}
title = {{ printf "%q" .Title }}
context = {{ printf "%q" .Context }}
due = {{ printf "%q" .Due }} # YYYY-MM-DD or an instant; empty means today
tags = {{ list .Tags }}
repeat = {{ .Repeat }} # days; 0 for none
link = {{ printf "%q" .Link }}
parent = {{ printf "%q" .Parent }}
---
{{ .Description }}
`))

// RenderTodoTOML renders the todo data as a TOML string for editing.
func RenderTodoTOML(data TodoData) (string, error) {
	var buf bytes.Buffer
	if err := todoTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// ParsedTodo represents the parsed result from the TOML editor output.
type ParsedTodo struct {
	Title       string   `toml:"title"`
	Context     string   `toml:"context"`
	Due         string   `toml:"due"`
	Tags        []string `toml:"tags"`
	Repeat      int      `toml:"repeat"`
	Link        string   `toml:"link"`
	Parent      string   `toml:"parent"`
	Description string
}

// ParseTodoTOML parses the TOML content from the editor.
func ParseTodoTOML(content string) (*ParsedTodo, error) {
	frontmatter, body := splitFrontmatter(content)

	var parsed ParsedTodo
	meta, err := toml.Decode(frontmatter, &parsed)
	if err != nil {
		return nil, fmt.Errorf("parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse TOML: unknown key %q", undecoded[0].String())
	}
	parsed.Description = strings.TrimRight(strings.TrimLeft(body, "\n"), "\n")
	parsed.Title = todo.NormalizeTitle(parsed.Title)
	parsed.Context = strings.TrimSpace(parsed.Context)
	parsed.Due = strings.TrimSpace(parsed.Due)
	parsed.Link = strings.TrimSpace(parsed.Link)
	parsed.Parent = strings.TrimSpace(parsed.Parent)

	if err := todo.ValidateTitle(parsed.Title); err != nil {
		return nil, err
	}
	if parsed.Repeat < 0 {
		return nil, fmt.Errorf("%w: got %d", todo.ErrInvalidRepeat, parsed.Repeat)
	}
	if parsed.Due != "" {
		if _, err := todo.ParseDue(parsed.Due, time.UTC); err != nil {
			return nil, err
		}
	}

	return &parsed, nil
}

func splitFrontmatter(content string) (string, string) {
	content = strings.TrimLeft(content, "\n")
	if content == "" {
		return "", ""
	}

	lines := strings.Split(content, "\n")
	separatorIndex := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			separatorIndex = i
			break
		}
	}
	if separatorIndex == -1 {
		return content, ""
	}

	frontmatter := strings.Join(lines[:separatorIndex], "\n")
	body := strings.Join(lines[separatorIndex+1:], "\n")
	return frontmatter, body
}

// EditTodo opens the editor with pre-populated data and returns the parsed result.
func EditTodo(data TodoData) (*ParsedTodo, error) {
	content, err := RenderTodoTOML(data)
	if err != nil {
		return nil, err
	}

	tmpfile, err := os.CreateTemp("", "daybook-todo-*.md")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpfile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpfile.WriteString(content); err != nil {
		tmpfile.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpfile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	if err := Edit(tmpPath); err != nil {
		return nil, err
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read edited file: %w", err)
	}

	return ParseTodoTOML(string(edited))
}

// NewTodo converts a ParsedTodo to a tracker.NewTodo.
func (p *ParsedTodo) NewTodo() tracker.NewTodo {
	in := tracker.NewTodo{
		Title:       p.Title,
		Description: p.Description,
		Context:     p.Context,
		Due:         p.Due,
		Tags:        p.Tags,
	}
	if p.Repeat > 0 {
		repeat := p.Repeat
		in.Repeat = &repeat
	}
	if p.Link != "" {
		link := p.Link
		in.Link = &link
	}
	if p.Parent != "" {
		parent := p.Parent
		in.ParentID = &parent
	}
	return in
}

// Patch converts a ParsedTodo to a patch that replaces every editable field.
// Bare due dates are read in loc.
func (p *ParsedTodo) Patch(loc *time.Location) (todo.Patch, error) {
	tags := append([]string{}, p.Tags...)
	patch := todo.Patch{
		Title:       &p.Title,
		Description: &p.Description,
		Tags:        &tags,
	}
	if p.Context != "" {
		patch.Context = &p.Context
	}
	if p.Due != "" {
		due, err := todo.ParseDue(p.Due, loc)
		if err != nil {
			return todo.Patch{}, err
		}
		patch.Due = &due
	}
	if p.Repeat > 0 {
		repeat := p.Repeat
		patch.Repeat = &repeat
	} else {
		patch.ClearRepeat = true
	}
	if p.Link != "" {
		patch.Link = &p.Link
	} else {
		patch.ClearLink = true
	}
	if p.Parent != "" {
		patch.ParentID = &p.Parent
	} else {
		patch.ClearParent = true
	}
	return patch, nil
}
