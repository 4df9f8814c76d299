// Package board composes the views into what a board screen shows: the
// todos due in a window, the sessions tracked in it, grouped by context and
// day with duration totals.
package board

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

// Request is one board query.
type Request struct {
	Window  Window  `json:"window"`
	Filters Filters `json:"filters"`

	// Range pins the calendar days the window resolved to. Nil means the
	// window is resolved when the request is loaded.
	Range *DateRange `json:"range,omitempty"`
}

// Resolve returns a copy of r with Range set from the window as of now.
func (r Request) Resolve(now time.Time, loc *time.Location) (Request, error) {
	dates, err := r.Window.Resolve(now, loc)
	if err != nil {
		return Request{}, err
	}
	r.Range = &dates
	return r, nil
}

// Key identifies the request. Two requests with the same key select the
// same data; a resolved request includes its days, so a relative window
// resolved on different days gets a different key.
func (r Request) Key() string {
	key := r.Window.String() + "|" + r.Filters.key()
	if r.Range != nil {
		key += "|" + r.Range.Start + ".." + r.Range.End
	}
	return key
}

// Activity is one tracked session inside the window.
type Activity struct {
	ItemID string     `json:"itemId"`
	From   time.Time  `json:"from"`
	To     *time.Time `json:"to"`
	Todo   todo.Todo  `json:"todo"`
}

// Duration returns the session length, measuring a running session to asOf.
func (a Activity) Duration(asOf time.Time) time.Duration {
	return todo.ActiveDuration(todo.Sessions{a.From: a.To}, asOf)
}

// Group is the cell of a board for one context and day.
type Group struct {
	Context string `json:"context"`
	Day     string `json:"day"`

	// Items holds each todo once. A todo due that day is preferred over a
	// snapshot carried by one of its sessions.
	Items []todo.Todo `json:"items"`

	// Activities are the sessions started that day.
	Activities []Activity `json:"activities"`

	Duration time.Duration `json:"duration"`
}

// Board is the result of a load.
type Board struct {
	Request Request   `json:"request"`
	Range   DateRange `json:"range"`
	AsOf    time.Time `json:"asOf"`

	// Items are the todos due in the range, ordered by due then id.
	Items []todo.Todo `json:"items"`

	// Activities are the sessions started in the range, ordered by start.
	Activities []Activity `json:"activities"`

	// Groups are ordered by context then day.
	Groups []Group `json:"groups"`

	DurationByContext       map[string]time.Duration            `json:"durationByContext"`
	DurationByContextAndDay map[string]map[string]time.Duration `json:"durationByContextAndDay"`

	// Skipped lists documents that could not be decoded.
	Skipped []todo.Failure `json:"-"`

	// Stale counts documents read at an older generation.
	Stale int `json:"stale"`
}

// Group returns the group for a context and day, if any.
func (b *Board) Group(context, day string) (Group, bool) {
	for _, group := range b.Groups {
		if group.Context == context && group.Day == day {
			return group, true
		}
	}
	return Group{}, false
}

// Enqueuer accepts stale documents for background migration. Enqueue must
// not block.
type Enqueuer interface {
	Enqueue(docs []todo.RawDocument) int
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Location determines calendar days. Defaults to UTC.
	Location *time.Location

	Migrate todo.MigrateOptions

	// Queue receives stale documents. Nil drops them.
	Queue Enqueuer

	Logger *zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Loader runs board queries against a store.
type Loader struct {
	store docstore.Store
	opts  LoaderOptions
	log   zerolog.Logger
}

// NewLoader returns a Loader reading from store.
func NewLoader(store docstore.Store, opts LoaderOptions) *Loader {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Migrate.Location == nil {
		opts.Migrate.Location = opts.Location
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loader{
		store: store,
		opts:  opts,
		log:   logging.OrNop(opts.Logger).With().Str("component", "board").Logger(),
	}
}

// Location returns the location used for calendar days.
func (l *Loader) Location() *time.Location {
	return l.opts.Location
}

// Load resolves the window, queries byDueDate and byActive over it, and
// builds the board. Stale documents are handed to the queue and served
// migrated; invalid ones are skipped.
func (l *Loader) Load(ctx context.Context, req Request) (*Board, error) {
	asOf := l.opts.Now()
	loc := l.opts.Location
	if req.Filters.Status == "" {
		req.Filters.Status = StatusAll
	}

	if req.Range == nil {
		resolved, err := req.Resolve(asOf, loc)
		if err != nil {
			return nil, fmt.Errorf("load board: %w", err)
		}
		req = resolved
	}
	dates := *req.Range
	keys, err := dates.Keys(loc)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}

	var dueRows, activeRows []view.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := l.store.Query(gctx, view.ByDueDate, keys.Options())
		dueRows = rows
		return err
	})
	g.Go(func() error {
		rows, err := l.store.Query(gctx, view.ByActive, keys.Options())
		activeRows = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}

	board := &Board{
		Request:                 req,
		Range:                   dates,
		AsOf:                    asOf,
		DurationByContext:       make(map[string]time.Duration),
		DurationByContextAndDay: make(map[string]map[string]time.Duration),
	}
	stale := make(map[string]todo.RawDocument)
	load := func(raw todo.RawDocument) (todo.Todo, bool) {
		t, isStale, err := todo.Load(raw, l.opts.Migrate)
		if err != nil {
			l.log.Warn().Err(err).Str("doc_id", raw.ID).Msg("skipping invalid document")
			board.Skipped = append(board.Skipped, todo.Failure{ID: raw.ID, Err: err})
			return todo.Todo{}, false
		}
		if isStale {
			stale[raw.ID] = raw
		}
		return t, true
	}

	for _, row := range dueRows {
		t, ok := load(todo.RawDocument{ID: row.ID, Rev: row.Rev, Body: row.Value})
		if ok && req.Filters.Match(t) {
			board.Items = append(board.Items, t)
		}
	}
	for _, row := range activeRows {
		activity, err := view.DecodeActivity(row)
		if err != nil {
			l.log.Warn().Err(err).Str("doc_id", row.ID).Msg("skipping unreadable activity")
			continue
		}
		t, ok := load(todo.RawDocument{ID: activity.ItemID, Rev: row.Rev, Body: activity.Snapshot})
		if ok && req.Filters.Match(t) {
			board.Activities = append(board.Activities, Activity{
				ItemID: activity.ItemID,
				From:   activity.From,
				To:     activity.To,
				Todo:   t,
			})
		}
	}

	board.Stale = len(stale)
	if len(stale) > 0 {
		l.enqueue(stale)
	}
	l.group(board)
	l.log.Debug().
		Str("window", req.Window.String()).
		Int("items", len(board.Items)).
		Int("activities", len(board.Activities)).
		Int("stale", board.Stale).
		Msg("loaded board")
	return board, nil
}

func (l *Loader) enqueue(stale map[string]todo.RawDocument) {
	if l.opts.Queue == nil {
		return
	}
	docs := make([]todo.RawDocument, 0, len(stale))
	for _, raw := range stale {
		docs = append(docs, raw)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	l.opts.Queue.Enqueue(docs)
}

type groupKey struct {
	context string
	day     string
}

// group buckets items and activities by (context, day) and sums durations.
func (l *Loader) group(board *Board) {
	loc := l.opts.Location
	groups := make(map[groupKey]*Group)
	seen := make(map[groupKey]map[string]bool)
	get := func(key groupKey) *Group {
		group, ok := groups[key]
		if !ok {
			group = &Group{Context: key.context, Day: key.day}
			groups[key] = group
			seen[key] = make(map[string]bool)
		}
		return group
	}

	for _, t := range board.Items {
		key := groupKey{context: t.Context, day: todo.DayString(t.Due, loc)}
		group := get(key)
		if !seen[key][t.ID] {
			seen[key][t.ID] = true
			group.Items = append(group.Items, t)
		}
	}
	for _, activity := range board.Activities {
		day := todo.DayString(activity.From, loc)
		key := groupKey{context: activity.Todo.Context, day: day}
		group := get(key)
		group.Activities = append(group.Activities, activity)
		if !seen[key][activity.ItemID] {
			seen[key][activity.ItemID] = true
			group.Items = append(group.Items, activity.Todo)
		}

		duration := activity.Duration(board.AsOf)
		group.Duration += duration
		board.DurationByContext[key.context] += duration
		byDay, ok := board.DurationByContextAndDay[key.context]
		if !ok {
			byDay = make(map[string]time.Duration)
			board.DurationByContextAndDay[key.context] = byDay
		}
		byDay[day] += duration
	}

	board.Groups = make([]Group, 0, len(groups))
	for _, group := range groups {
		board.Groups = append(board.Groups, *group)
	}
	sort.Slice(board.Groups, func(i, j int) bool {
		a, b := board.Groups[i], board.Groups[j]
		if a.Context != b.Context {
			return a.Context < b.Context
		}
		return a.Day < b.Day
	})
}
