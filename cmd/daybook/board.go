package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/internal/ui"
	"github.com/amonks/daybook/todo"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show todos and tracked time grouped by context and day",
	Long: `Show todos and tracked time grouped by context and day.

Windows: current-day, current-week, current-month, current-year, all-time,
or custom with --from and --to.`,
	Args: cobra.NoArgs,
	RunE: runBoard,
}

// boardFlags are shared by board and watch.
type boardFlags struct {
	window   string
	from     string
	to       string
	contexts []string
	tags     []string
	status   string
}

var (
	boardOpts boardFlags
	boardJSON bool
)

func addBoardFlags(fs *pflag.FlagSet, flags *boardFlags) {
	fs.StringVarP(&flags.window, "window", "w", "", "Time window (defaults to board.window)")
	fs.StringVar(&flags.from, "from", "", "First day of a custom window (YYYY-MM-DD)")
	fs.StringVar(&flags.to, "to", "", "Last day of a custom window (YYYY-MM-DD)")
	fs.StringArrayVarP(&flags.contexts, "context", "c", nil, "Only show this context (repeatable)")
	fs.StringArrayVarP(&flags.tags, "tag", "t", nil, "Only show todos with this tag (repeatable)")
	fs.StringVarP(&flags.status, "status", "s", "", "all, completed or incomplete")
}

func init() {
	rootCmd.AddCommand(boardCmd)
	addBoardFlags(boardCmd.Flags(), &boardOpts)
	boardCmd.Flags().BoolVar(&boardJSON, "json", false, "Output as JSON")
}

func (flags boardFlags) request(defaultWindow board.WindowKind) (board.Request, error) {
	kind := flags.window
	if kind == "" {
		kind = string(defaultWindow)
		if flags.from != "" || flags.to != "" {
			kind = string(board.Custom)
		}
	}
	window, err := board.ParseWindow(kind, flags.from, flags.to)
	if err != nil {
		return board.Request{}, err
	}
	status, err := board.ParseStatus(flags.status)
	if err != nil {
		return board.Request{}, err
	}
	return board.Request{
		Window: window,
		Filters: board.Filters{
			Contexts: flags.contexts,
			Status:   status,
			Tags:     flags.tags,
		},
	}, nil
}

func runBoard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	req, err := boardOpts.request(a.settings.Window)
	if err != nil {
		return err
	}

	result := a.svc.Board(ctx, req)
	if result.Board == nil {
		return result.Err
	}
	out := cmd.OutOrStdout()
	if boardJSON {
		return writeJSON(out, result.Board)
	}
	if result.Err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s showing earlier data: %v\n", a.styles.Warning.Render("warning:"), result.Err)
	}
	a.renderBoard(out, result.Board, a.highlighter(ctx))
	return nil
}

// renderBoard prints the board's groups followed by time per context.
func (a *app) renderBoard(w io.Writer, b *board.Board, highlight func(string) string) {
	fmt.Fprintf(w, "%s %s\n", a.styles.Heading.Render(b.Request.Window.String()), a.styles.Muted.Render(b.Range.Start+" to "+b.Range.End))
	if len(b.Groups) == 0 {
		fmt.Fprintln(w, "\nNothing scheduled.")
		return
	}

	width := ui.TerminalWidth(80)
	for _, group := range b.Groups {
		heading := group.Context + " · " + group.Day
		if group.Duration > 0 {
			heading += "  " + a.styles.Duration.Render(todo.FormatDuration(group.Duration))
		}
		fmt.Fprintf(w, "\n%s\n", a.styles.Label.Render(heading))
		for _, item := range group.Items {
			fmt.Fprintln(w, a.formatBoardItem(item, highlight, width))
		}
		for _, activity := range group.Activities {
			line := fmt.Sprintf("  ~ %s %s", activity.Todo.Title, a.styles.Duration.Render(todo.FormatDuration(activity.Duration(b.AsOf))))
			if activity.To == nil {
				line += " " + a.styles.Running.Render("(running)")
			}
			fmt.Fprintln(w, a.styles.Muted.Render(line))
		}
	}

	if len(b.DurationByContext) == 0 {
		return
	}
	contexts := make([]string, 0, len(b.DurationByContext))
	for context := range b.DurationByContext {
		contexts = append(contexts, context)
	}
	slices.Sort(contexts)
	rows := make([][]string, 0, len(contexts))
	for _, context := range contexts {
		rows = append(rows, []string{context, todo.FormatDuration(b.DurationByContext[context])})
	}
	fmt.Fprintf(w, "\n%s", ui.FormatTable([]string{"CONTEXT", "TIME"}, rows))
}

func (a *app) formatBoardItem(item todo.Todo, highlight func(string) string, width int) string {
	mark := "[ ]"
	title := item.Title
	if item.IsCompleted() {
		mark = "[x]"
		title = a.styles.Done.Render(title)
	}
	var extras []string
	if item.IsTracking() {
		extras = append(extras, a.styles.Running.Render("tracking"))
	}
	if item.Repeat != nil {
		extras = append(extras, fmt.Sprintf("every %dd", *item.Repeat))
	}
	if len(item.Tags) > 0 {
		extras = append(extras, "#"+strings.Join(item.Tags, " #"))
	}
	line := fmt.Sprintf("%s %s %s", mark, highlight(item.ID), title)
	if len(extras) > 0 {
		line += " " + a.styles.Muted.Render("("+strings.Join(extras, ", ")+")")
	}
	return ui.Wrap(line, width, 2)
}
