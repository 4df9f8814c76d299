package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/internal/ui"
	"github.com/amonks/daybook/refresh"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the board and redraw it whenever todos change",
	Long: `Show the board and redraw it whenever todos change, including changes
made by other daybook processes. Takes the same filters as board.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchOpts     boardFlags
	watchInterval time.Duration
	watchCount    int
)

func init() {
	rootCmd.AddCommand(watchCmd)
	addBoardFlags(watchCmd.Flags(), &watchOpts)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "Also redraw this often, so running sessions keep counting")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Exit after this many redraws (0 runs until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, openOptions{watch: true})
	if err != nil {
		return err
	}
	req, err := watchOpts.request(a.settings.Window)
	if err != nil {
		return err
	}
	resolved, err := a.svc.ResolveRequest(req)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	results := make(chan board.Result, 1)
	refresher := refresh.New(a.store, a.loadBoard, refresh.Options{
		OnResult: func(result board.Result) {
			select {
			case results <- result:
			case <-watchCtx.Done():
			}
		},
		Logger: &a.log.Logger,
	})
	refresher.Start(watchCtx, resolved)
	defer refresher.Stop()
	defer cancel()

	var tick <-chan time.Time
	if watchInterval > 0 {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	out := cmd.OutOrStdout()
	redraw := ui.ColorEnabled()
	draws := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			// Relative windows move at midnight.
			if resolved, err = a.svc.ResolveRequest(req); err != nil {
				return err
			}
			refresher.SetRequest(resolved)
		case result := <-results:
			if redraw {
				fmt.Fprint(out, "\x1b[H\x1b[2J")
			} else if draws > 0 {
				fmt.Fprintln(out, "---")
			}
			if result.Board == nil {
				fmt.Fprintf(out, "%s %v\n", a.styles.Warning.Render("error:"), result.Err)
			} else {
				a.renderBoard(out, result.Board, a.highlighter(ctx))
			}
			draws++
			if watchCount > 0 && draws >= watchCount {
				return nil
			}
		}
	}
}

// loadBoard loads through the service so retryable failures fall back to
// the last good board.
func (a *app) loadBoard(ctx context.Context, req board.Request) (*board.Board, error) {
	result := a.svc.Board(ctx, req)
	if result.Board == nil {
		return nil, result.Err
	}
	if result.Stale {
		a.log.Logger.Warn().Err(result.Err).Str("window", req.Window.String()).Msg("showing earlier board")
	}
	return result.Board, nil
}
