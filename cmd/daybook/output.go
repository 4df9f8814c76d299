package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amonks/daybook/internal/markdown"
	"github.com/amonks/daybook/internal/ui"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

const detailLineWidth = 80

// highlighter returns a function that styles the unique prefix of an id.
func (a *app) highlighter(ctx context.Context) func(string) string {
	lengths := map[string]int{}
	if docs, err := a.store.AllDocs(ctx); err == nil {
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			if !view.IsDesignID(doc.ID) {
				ids = append(ids, doc.ID)
			}
		}
		lengths = ui.PrefixLengths(ids)
	}
	return func(id string) string {
		return ui.HighlightID(a.styles, id, ui.PrefixLength(lengths, id))
	}
}

// formatDue shows a due date as a calendar day when it falls on the end of
// that day in loc, and as a local time otherwise.
func formatDue(due time.Time, loc *time.Location) string {
	if todo.EndOfDay(due, loc).Equal(due) {
		return todo.DayString(due, loc)
	}
	return due.In(loc).Format("2006-01-02 15:04")
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	return strings.Join(tags, ", ")
}

func formatOptional(value *string) string {
	if value == nil {
		return "-"
	}
	return *value
}

func (a *app) statusLabel(t todo.Todo, now time.Time) string {
	switch {
	case t.IsCompleted():
		return a.styles.Done.Render("done")
	case t.IsTracking():
		return a.styles.Running.Render("tracking")
	case t.Due.Before(now):
		return a.styles.Overdue.Render("overdue")
	default:
		return "open"
	}
}

// printTodoDetail prints detailed information about a todo.
func (a *app) printTodoDetail(w io.Writer, t todo.Todo, highlight func(string) string, now time.Time) {
	loc := a.settings.Location
	label := a.styles.Label.Render
	fmt.Fprintf(w, "%s       %s\n", label("ID:"), highlight(t.ID))
	fmt.Fprintf(w, "%s    %s\n", label("Title:"), t.Title)
	fmt.Fprintf(w, "%s  %s\n", label("Context:"), t.Context)
	fmt.Fprintf(w, "%s   %s\n", label("Status:"), a.statusLabel(t, now))
	fmt.Fprintf(w, "%s      %s\n", label("Due:"), formatDue(t.Due, loc))
	if t.Completed != nil {
		fmt.Fprintf(w, "%s %s\n", label("Completed:"), t.Completed.In(loc).Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "%s     %s\n", label("Tags:"), formatTags(t.Tags))
	if t.Repeat != nil {
		fmt.Fprintf(w, "%s   every %d days\n", label("Repeat:"), *t.Repeat)
	}
	if t.Link != nil {
		fmt.Fprintf(w, "%s     %s\n", label("Link:"), *t.Link)
	}
	if t.ParentID != nil {
		fmt.Fprintf(w, "%s   %s\n", label("Parent:"), highlight(*t.ParentID))
	}
	if len(t.Active) > 0 {
		fmt.Fprintf(w, "%s     %s\n", label("Time:"), a.styles.Duration.Render(todo.FormatDuration(todo.ActiveDuration(t.Active, now))))
		for _, session := range t.Active.Sorted() {
			end := a.styles.Running.Render("running")
			if session.End != nil {
				end = session.End.In(loc).Format("15:04")
			}
			fmt.Fprintf(w, "  %s - %s\n", session.Start.In(loc).Format("2006-01-02 15:04"), end)
		}
	}

	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", label("Description:"), renderMarkdownOrDash(t.Description, detailLineWidth))
	}
}

func renderMarkdownOrDash(value string, width int) string {
	formatted := string(markdown.SafeRender(width, 2, []byte(value)))
	if strings.TrimSpace(formatted) == "" {
		return "-"
	}
	return formatted
}

// formatTodoTable renders todos as an aligned table.
func (a *app) formatTodoTable(todos []todo.Todo, highlight func(string) string, now time.Time) string {
	builder := ui.NewTableBuilder([]string{"ID", "STATUS", "DUE", "CONTEXT", "TITLE", "TIME"}, len(todos))
	for _, t := range todos {
		elapsed := "-"
		if len(t.Active) > 0 {
			elapsed = todo.FormatDuration(todo.ActiveDuration(t.Active, now))
		}
		builder.AddRow([]string{
			highlight(t.ID),
			a.statusLabel(t, now),
			formatDue(t.Due, a.settings.Location),
			t.Context,
			ui.TruncateTableCell(t.Title),
			elapsed,
		})
	}
	return builder.String()
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
