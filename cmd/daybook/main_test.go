package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/config"
	"github.com/amonks/daybook/internal/ui"
	"github.com/amonks/daybook/tracker"
)

func TestRootCommandName(t *testing.T) {
	if rootCmd.Use != "daybook" {
		t.Fatalf("expected root command name daybook, got %q", rootCmd.Use)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"add", "board", "done", "edit", "export", "import", "migrate", "running", "serve", "show", "track", "watch"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected command %q to be registered", name)
		}
	}
}

func TestPollInterval(t *testing.T) {
	cases := []struct {
		name       string
		configured time.Duration
		watch      bool
		want       time.Duration
	}{
		{name: "one-shot", configured: 2 * time.Second, watch: false, want: -1},
		{name: "watch", configured: 2 * time.Second, watch: true, want: 2 * time.Second},
		{name: "disabled", configured: 0, watch: true, want: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pollInterval(tc.configured, tc.watch); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestShouldUseEditor(t *testing.T) {
	cases := []struct {
		name        string
		hasFlags    bool
		edit        bool
		noEdit      bool
		interactive bool
		want        bool
	}{
		{name: "edit forces", hasFlags: true, edit: true, want: true},
		{name: "no-edit skips", noEdit: true, interactive: true, want: false},
		{name: "flags skip", hasFlags: true, interactive: true, want: false},
		{name: "interactive", interactive: true, want: true},
		{name: "not interactive", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldUseEditor(tc.hasFlags, tc.edit, tc.noEdit, tc.interactive); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestResolveDescriptionFromStdin(t *testing.T) {
	got, err := resolveDescriptionFromStdin("-", strings.NewReader("line one\nline two\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "line one\nline two" {
		t.Fatalf("expected trailing newline trimmed, got %q", got)
	}

	got, err = resolveDescriptionFromStdin("inline", strings.NewReader("ignored"))
	if err != nil || got != "inline" {
		t.Fatalf("expected inline description, got %q, %v", got, err)
	}
}

func TestBoardFlagsRequest(t *testing.T) {
	cases := []struct {
		name  string
		flags boardFlags
		want  board.Request
	}{
		{
			name:  "default window",
			flags: boardFlags{},
			want:  board.Request{Window: board.Window{Kind: board.CurrentMonth}, Filters: board.Filters{Status: board.StatusAll}},
		},
		{
			name:  "dates imply custom",
			flags: boardFlags{from: "2026-01-01", to: "2026-01-31"},
			want:  board.Request{Window: board.Window{Kind: board.Custom, From: "2026-01-01", To: "2026-01-31"}, Filters: board.Filters{Status: board.StatusAll}},
		},
		{
			name:  "filters",
			flags: boardFlags{window: "all-time", contexts: []string{"work"}, tags: []string{"deep"}, status: "incomplete"},
			want: board.Request{
				Window:  board.Window{Kind: board.AllTime},
				Filters: board.Filters{Contexts: []string{"work"}, Tags: []string{"deep"}, Status: board.StatusIncomplete},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.flags.request(board.CurrentMonth)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("request mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := (boardFlags{status: "maybe"}).request(board.CurrentWeek); err == nil {
		t.Fatal("expected an invalid status to fail")
	}
}

func TestAddBoardFlagsParse(t *testing.T) {
	var flags boardFlags
	fs := pflag.NewFlagSet("board", pflag.ContinueOnError)
	addBoardFlags(fs, &flags)
	if err := fs.Parse([]string{"-w", "custom", "--from", "2026-01-01", "--to", "2026-01-07", "-c", "home", "-c", "work", "-t", "garden", "-s", "completed"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := boardFlags{
		window:   "custom",
		from:     "2026-01-01",
		to:       "2026-01-07",
		contexts: []string{"home", "work"},
		tags:     []string{"garden"},
		status:   "completed",
	}
	if diff := cmp.Diff(want, flags, cmp.AllowUnexported(boardFlags{})); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatDue(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	endOfDay := time.Date(2026, 2, 12, 23, 59, 59, int(999*time.Millisecond), loc)
	if got := formatDue(endOfDay, loc); got != "2026-02-12" {
		t.Fatalf("expected a calendar day, got %q", got)
	}
	if got := formatDue(time.Date(2026, 2, 12, 15, 30, 0, 0, time.UTC), loc); got != "2026-02-12 10:30" {
		t.Fatalf("expected a local time, got %q", got)
	}
}

func newTestApp(t *testing.T, now time.Time) *app {
	t.Helper()
	store := docstore.NewMemory(docstore.Options{})
	svc := tracker.New(store, tracker.Options{Now: func() time.Time { return now }})
	if err := svc.EnsureViews(context.Background()); err != nil {
		t.Fatalf("ensure views: %v", err)
	}
	return &app{
		settings: config.Settings{Location: time.UTC, Window: board.CurrentWeek},
		store:    store,
		svc:      svc,
		styles:   ui.NewStyles(false),
	}
}

func TestRenderBoard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	a := newTestApp(t, now)

	repeat := 7
	if _, err := a.svc.CreateTodo(ctx, tracker.NewTodo{Title: "water plants", Context: "home", Tags: []string{"garden"}, Repeat: &repeat}); err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err := a.svc.CreateTodo(ctx, tracker.NewTodo{Title: "write report", Context: "work", Due: "2026-02-11"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.svc.ToggleCompleted(ctx, report.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	result := a.svc.Board(ctx, board.Request{Window: board.Window{Kind: board.CurrentWeek}})
	if result.Err != nil {
		t.Fatalf("board: %v", result.Err)
	}

	var buf bytes.Buffer
	a.renderBoard(&buf, result.Board, func(id string) string { return id[:10] })
	output := buf.String()

	for _, want := range []string{
		"current-week 2026-02-09 to 2026-02-15\n",
		"\nhome · 2026-02-10\n",
		"[ ] 2026-02-10 water plants (every 7d, #garden)",
		"\nwork · 2026-02-11\n",
		"[x] 2026-02-10 write report",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestRenderEmptyBoard(t *testing.T) {
	a := newTestApp(t, time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	result := a.svc.Board(context.Background(), board.Request{Window: board.Window{Kind: board.CurrentDay}})
	if result.Board == nil {
		t.Fatalf("board: %v", result.Err)
	}

	var buf bytes.Buffer
	a.renderBoard(&buf, result.Board, func(id string) string { return id })
	if !strings.Contains(buf.String(), "Nothing scheduled.") {
		t.Fatalf("expected an empty board, got %q", buf.String())
	}
}
