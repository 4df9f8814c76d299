package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amonks/daybook/internal/editor"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/tracker"
)

var addCmd = &cobra.Command{
	Use:   "add [title...]",
	Short: "Add a todo",
	Long: `Add a todo.

By default, opens $EDITOR to edit a TOML representation of the todo
when running interactively. Use --no-edit to skip the editor, or
--edit to force opening the editor even when not interactive.

The due date is a YYYY-MM-DD day or an RFC 3339 instant and defaults to
the end of today.`,
	RunE: runAdd,
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a todo's fields",
	Long: `Change a todo's fields.

Without field flags, opens $EDITOR when running interactively.`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var doneCmd = &cobra.Command{
	Use:   "done <id>...",
	Short: "Toggle whether todos are completed",
	Long: `Toggle whether todos are completed.

Completing a repeating todo adds its next occurrence. Completing a todo
with a running session stops the session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDone,
}

var trackCmd = &cobra.Command{
	Use:   "track <id>",
	Short: "Start or stop tracking time on a todo",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrack,
}

var showCmd = &cobra.Command{
	Use:   "show <id>...",
	Short: "Show detailed information about todos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runShow,
}

var runningCmd = &cobra.Command{
	Use:   "running",
	Short: "List todos with a running session",
	Args:  cobra.NoArgs,
	RunE:  runRunning,
}

// todoFlags are shared by add and edit.
type todoFlags struct {
	title       string
	context     string
	due         string
	tags        []string
	repeat      int
	link        string
	parent      string
	description string
	edit        bool
	noEdit      bool

	clearRepeat bool
	clearLink   bool
	clearParent bool
}

var (
	addFlags    todoFlags
	editFlags   todoFlags
	showJSON    bool
	runningJSON bool
)

func addTodoFlags(cmd *cobra.Command, flags *todoFlags) {
	cmd.Flags().StringVarP(&flags.context, "context", "c", "", "Context (defaults to todo.default-context)")
	cmd.Flags().StringVarP(&flags.due, "due", "d", "", "Due date (YYYY-MM-DD or an instant)")
	cmd.Flags().StringArrayVarP(&flags.tags, "tag", "t", nil, "Tag (repeatable)")
	cmd.Flags().IntVarP(&flags.repeat, "repeat", "r", 0, "Repeat every N days")
	cmd.Flags().StringVar(&flags.link, "link", "", "Link URL")
	cmd.Flags().StringVar(&flags.parent, "parent", "", "Parent todo ID")
	cmd.Flags().StringVar(&flags.description, "description", "", "Description (use '-' to read from stdin)")
	cmd.Flags().StringVar(&flags.description, "desc", "", "Description (use '-' to read from stdin)")
	cmd.Flags().BoolVarP(&flags.edit, "edit", "e", false, "Open $EDITOR (default if interactive)")
	cmd.Flags().BoolVar(&flags.noEdit, "no-edit", false, "Do not open $EDITOR")
	cmd.MarkFlagsMutuallyExclusive("edit", "no-edit")
}

func init() {
	rootCmd.AddCommand(addCmd, editCmd, doneCmd, trackCmd, showCmd, runningCmd)

	addTodoFlags(addCmd, &addFlags)

	addTodoFlags(editCmd, &editFlags)
	editCmd.Flags().StringVar(&editFlags.title, "title", "", "New title")
	editCmd.Flags().BoolVar(&editFlags.clearRepeat, "clear-repeat", false, "Stop repeating")
	editCmd.Flags().BoolVar(&editFlags.clearLink, "clear-link", false, "Remove the link")
	editCmd.Flags().BoolVar(&editFlags.clearParent, "clear-parent", false, "Remove the parent")

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	runningCmd.Flags().BoolVar(&runningJSON, "json", false, "Output as JSON")
}

func resolveDescriptionFromStdin(description string, reader io.Reader) (string, error) {
	if description != "-" {
		return description, nil
	}

	input, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read description from stdin: %w", err)
	}

	value := strings.TrimSuffix(string(input), "\n")
	value = strings.TrimSuffix(value, "\r")
	return value, nil
}

func descriptionChanged(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("description") || cmd.Flags().Changed("desc")
}

// shouldUseEditor decides whether to open the editor: --edit forces it,
// --no-edit skips it, and otherwise it opens only when no field flags were
// given and stdin is a terminal.
func shouldUseEditor(hasFieldFlags, editFlag, noEditFlag, interactive bool) bool {
	if editFlag {
		return true
	}
	if noEditFlag || hasFieldFlags {
		return false
	}
	return interactive
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := addFlags
	if descriptionChanged(cmd) {
		desc, err := resolveDescriptionFromStdin(flags.description, cmd.InOrStdin())
		if err != nil {
			return err
		}
		flags.description = desc
	}
	title := strings.Join(args, " ")

	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}

	in := tracker.NewTodo{
		Title:       title,
		Description: flags.description,
		Context:     flags.context,
		Due:         flags.due,
		Tags:        flags.tags,
	}
	if cmd.Flags().Changed("repeat") {
		in.Repeat = &flags.repeat
	}
	if flags.link != "" {
		in.Link = &flags.link
	}
	if flags.parent != "" {
		parent, err := a.svc.Resolve(ctx, flags.parent)
		if err != nil {
			return err
		}
		in.ParentID = &parent
	}

	if shouldUseEditor(title != "", flags.edit, flags.noEdit, editor.IsInteractive()) {
		data := editor.DefaultCreateData(a.settings.DefaultContext)
		data.Title = in.Title
		data.Description = in.Description
		data.Due = in.Due
		data.Tags = in.Tags
		data.Repeat = flags.repeat
		data.Link = flags.link
		if in.ParentID != nil {
			data.Parent = *in.ParentID
		}
		if in.Context != "" {
			data.Context = in.Context
		}
		parsed, err := editor.EditTodo(data)
		if err != nil {
			return err
		}
		in = parsed.NewTodo()
	} else if title == "" {
		return fmt.Errorf("title is required (use --edit to open editor)")
	}

	created, err := a.svc.CreateTodo(ctx, in)
	if err != nil {
		return err
	}
	highlight := a.highlighter(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Created todo %s: %s\n", highlight(created.ID), created.Title)
	return nil
}

func (flags todoFlags) patch(cmd *cobra.Command, loc *time.Location) (todo.Patch, bool, error) {
	var patch todo.Patch
	changed := cmd.Flags().Changed
	if changed("title") {
		patch.Title = &flags.title
	}
	if descriptionChanged(cmd) {
		desc, err := resolveDescriptionFromStdin(flags.description, cmd.InOrStdin())
		if err != nil {
			return todo.Patch{}, false, err
		}
		patch.Description = &desc
	}
	if changed("context") {
		patch.Context = &flags.context
	}
	if changed("due") {
		due, err := todo.ParseDue(flags.due, loc)
		if err != nil {
			return todo.Patch{}, false, err
		}
		patch.Due = &due
	}
	if changed("tag") {
		tags := append([]string{}, flags.tags...)
		patch.Tags = &tags
	}
	if changed("repeat") {
		patch.Repeat = &flags.repeat
	}
	if changed("link") {
		patch.Link = &flags.link
	}
	if changed("parent") {
		patch.ParentID = &flags.parent
	}
	patch.ClearRepeat = flags.clearRepeat
	patch.ClearLink = flags.clearLink
	patch.ClearParent = flags.clearParent
	return patch, !patch.IsEmpty(), nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	id, err := a.svc.Resolve(ctx, args[0])
	if err != nil {
		return err
	}

	flags := editFlags
	if cmd.Flags().Changed("parent") {
		parent, err := a.svc.Resolve(ctx, flags.parent)
		if err != nil {
			return err
		}
		flags.parent = parent
	}
	patch, hasFlags, err := flags.patch(cmd, a.settings.Location)
	if err != nil {
		return err
	}

	if shouldUseEditor(hasFlags, flags.edit, flags.noEdit, editor.IsInteractive()) {
		existing, err := a.svc.Get(ctx, id)
		if err != nil {
			return err
		}
		// Field flags prefill the editor.
		preview, err := patch.Apply(existing)
		if err != nil {
			return err
		}
		parsed, err := editor.EditTodo(editor.DataFromTodo(preview, a.settings.Location))
		if err != nil {
			return err
		}
		if parsed.Parent != "" {
			if parsed.Parent, err = a.svc.Resolve(ctx, parsed.Parent); err != nil {
				return err
			}
		}
		if patch, err = parsed.Patch(a.settings.Location); err != nil {
			return err
		}
	} else if !hasFlags {
		return fmt.Errorf("at least one field flag is required (use --edit to open editor)")
	}

	updated, err := a.svc.UpdateFields(ctx, id, patch)
	if err != nil {
		return err
	}
	highlight := a.highlighter(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s\n", highlight(updated.ID), updated.Title)
	return nil
}

func runDone(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, arg := range args {
		id, err := a.svc.Resolve(ctx, arg)
		if err != nil {
			return err
		}
		completion, err := a.svc.ToggleCompleted(ctx, id)
		if err != nil {
			return err
		}
		highlight := a.highlighter(ctx)
		if !completion.Completed {
			fmt.Fprintf(out, "Reopened %s: %s\n", highlight(id), completion.Todo.Title)
			continue
		}
		fmt.Fprintf(out, "Completed %s: %s\n", highlight(id), completion.Todo.Title)
		if completion.StoppedSession {
			total := todo.ActiveDuration(completion.Todo.Active, time.Now())
			fmt.Fprintf(out, "Stopped tracking (total %s)\n", a.styles.Duration.Render(todo.FormatDuration(total)))
		}
		if completion.Successor != nil {
			fmt.Fprintf(out, "Next: %s due %s\n", highlight(completion.Successor.ID), formatDue(completion.Successor.Due, a.settings.Location))
		}
		if completion.SuccessorErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s could not add the next occurrence: %v\n", a.styles.Warning.Render("warning:"), completion.SuccessorErr)
		}
	}
	return nil
}

func runTrack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	id, err := a.svc.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	tracking, err := a.svc.ToggleTimeTracking(ctx, id)
	if err != nil {
		return err
	}

	highlight := a.highlighter(ctx)
	if tracking.Started {
		fmt.Fprintf(cmd.OutOrStdout(), "Started tracking %s: %s\n", highlight(id), tracking.Todo.Title)
		return nil
	}
	total := todo.ActiveDuration(tracking.Todo.Active, time.Now())
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped tracking %s: %s (total %s)\n", highlight(id), tracking.Todo.Title, a.styles.Duration.Render(todo.FormatDuration(total)))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}

	todos := make([]todo.Todo, 0, len(args))
	for _, arg := range args {
		id, err := a.svc.Resolve(ctx, arg)
		if err != nil {
			return err
		}
		t, err := a.svc.Get(ctx, id)
		if err != nil {
			return err
		}
		todos = append(todos, t)
	}

	out := cmd.OutOrStdout()
	if showJSON {
		return writeJSON(out, todos)
	}
	highlight := a.highlighter(ctx)
	now := time.Now()
	for i, t := range todos {
		if i > 0 {
			fmt.Fprintln(out)
		}
		a.printTodoDetail(out, t, highlight, now)
	}
	return nil
}

func runRunning(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	running, err := a.svc.Running(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runningJSON {
		if running == nil {
			running = []todo.Todo{}
		}
		return writeJSON(out, running)
	}
	if len(running) == 0 {
		fmt.Fprintln(out, "Nothing is being tracked.")
		return nil
	}
	fmt.Fprint(out, a.formatTodoTable(running, a.highlighter(ctx), time.Now()))
	return nil
}
