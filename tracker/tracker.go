// Package tracker is the write API and read facade of daybook.
//
// Every write reads the current document, migrates it to the latest
// generation, applies a pure transformation from package todo and writes
// the result with the revision it was read at. A conflicting write is
// retried once against a fresh read.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

// Options configures a Service.
type Options struct {
	// DefaultContext is used for new todos without one and for migrating
	// documents that predate contexts.
	DefaultContext string

	// Location determines calendar days. Defaults to UTC.
	Location *time.Location

	// Anchor selects what recurrence intervals count from.
	Anchor todo.Anchor

	// Queue receives stale documents found by board loads.
	Queue board.Enqueuer

	Logger *zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service implements the daybook operations on a store.
type Service struct {
	store  docstore.Store
	opts   Options
	log    zerolog.Logger
	loader *board.Loader

	mu       sync.Mutex
	lastGood map[string]*board.Board
}

// New returns a Service backed by store.
func New(store docstore.Store, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultContext == "" {
		opts.DefaultContext = todo.DefaultContext
	}
	if opts.Anchor == "" {
		opts.Anchor = todo.AnchorDue
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		store:    store,
		opts:     opts,
		log:      logging.OrNop(opts.Logger).With().Str("component", "tracker").Logger(),
		lastGood: make(map[string]*board.Board),
	}
	s.loader = board.NewLoader(store, board.LoaderOptions{
		Location: opts.Location,
		Migrate:  s.migrateOptions(),
		Queue:    opts.Queue,
		Logger:   opts.Logger,
		Now:      opts.Now,
	})
	return s
}

// Store returns the underlying store.
func (s *Service) Store() docstore.Store {
	return s.store
}

// Loader returns the board loader the service uses.
func (s *Service) Loader() *board.Loader {
	return s.loader
}

// Location returns the location used for calendar days.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

func (s *Service) migrateOptions() todo.MigrateOptions {
	return todo.MigrateOptions{DefaultContext: s.opts.DefaultContext, Location: s.opts.Location}
}

func (s *Service) recurOptions(now time.Time) todo.RecurOptions {
	return todo.RecurOptions{Now: now, Anchor: s.opts.Anchor, Location: s.opts.Location}
}

// EnsureViews makes sure the store carries the current view definitions.
func (s *Service) EnsureViews(ctx context.Context) error {
	if err := s.store.EnsureViews(ctx, view.Definitions()); err != nil {
		s.log.Error().Err(err).Msg("ensuring view definitions")
		return err
	}
	return nil
}

// invalid reports a rejected transformation in the store error taxonomy.
func invalid(op, id string, err error) error {
	return docstore.NewError(docstore.KindInvalidDocument, op, id, err)
}

// NewTodo is the input to CreateTodo.
type NewTodo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Context     string `json:"context"`

	// Due is a date or an instant. Empty means the end of today.
	Due string `json:"due"`

	Tags     []string `json:"tags"`
	Repeat   *int     `json:"repeat"`
	Link     *string  `json:"link"`
	ParentID *string  `json:"parentId"`
}

// CreateTodo creates a todo at the latest generation.
func (s *Service) CreateTodo(ctx context.Context, in NewTodo) (todo.Todo, error) {
	const op = "create todo"
	now := s.opts.Now()

	var due time.Time
	if in.Due != "" {
		parsed, err := todo.ParseDue(in.Due, s.opts.Location)
		if err != nil {
			return todo.Todo{}, invalid(op, "", err)
		}
		due = parsed
	}
	if in.ParentID != nil && *in.ParentID != "" {
		parent, err := s.Resolve(ctx, *in.ParentID)
		if err != nil {
			return todo.Todo{}, err
		}
		in.ParentID = &parent
	}

	for attempt := 1; ; attempt++ {
		t, err := todo.New(todo.NewOptions{
			Title:          in.Title,
			Description:    in.Description,
			Context:        in.Context,
			DefaultContext: s.opts.DefaultContext,
			Due:            due,
			Tags:           in.Tags,
			Repeat:         in.Repeat,
			Link:           in.Link,
			ParentID:       in.ParentID,
			Now:            now,
			Location:       s.opts.Location,
		})
		if err != nil {
			return todo.Todo{}, invalid(op, "", err)
		}
		doc, err := docstore.FromTodo(t)
		if err != nil {
			return todo.Todo{}, invalid(op, t.ID, err)
		}
		rev, err := s.store.Put(ctx, doc)
		if err != nil {
			// Another todo was created in the same millisecond.
			if attempt == 1 && errors.Is(err, docstore.ErrConflict) {
				now = now.Add(time.Millisecond)
				continue
			}
			return todo.Todo{}, err
		}
		t.Rev = rev
		s.log.Debug().Str("doc_id", t.ID).Msg("created todo")
		return t, nil
	}
}

// Get returns the todo with id, migrated to the latest generation.
func (s *Service) Get(ctx context.Context, id string) (todo.Todo, error) {
	return s.get(ctx, "get todo", id)
}

func (s *Service) get(ctx context.Context, op, id string) (todo.Todo, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return todo.Todo{}, err
	}
	t, _, err := todo.Load(doc.Raw(), s.migrateOptions())
	if err != nil {
		return todo.Todo{}, invalid(op, id, err)
	}
	return t, nil
}

// List returns every todo ordered by id. Documents that do not decode are
// reported separately.
func (s *Service) List(ctx context.Context) ([]todo.Todo, []todo.Failure, error) {
	docs, err := s.store.AllDocs(ctx)
	if err != nil {
		return nil, nil, err
	}
	raws := make([]todo.RawDocument, 0, len(docs))
	for _, doc := range docs {
		if view.IsDesignID(doc.ID) {
			continue
		}
		raws = append(raws, doc.Raw())
	}
	migrated, failures := todo.MigrateAll(raws, s.migrateOptions())
	for _, failure := range failures {
		s.log.Warn().Err(failure.Err).Str("doc_id", failure.ID).Msg("skipping invalid document")
	}
	todos := make([]todo.Todo, 0, len(migrated))
	for _, m := range migrated {
		todos = append(todos, m.Todo)
	}
	return todos, failures, nil
}

// Resolve expands a unique id prefix to a full id.
func (s *Service) Resolve(ctx context.Context, prefix string) (string, error) {
	if _, err := s.store.Get(ctx, prefix); err == nil {
		return prefix, nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return "", err
	}

	docs, err := s.store.AllDocs(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if !view.IsDesignID(doc.ID) {
			ids = append(ids, doc.ID)
		}
	}
	id, err := todo.NewIDIndexFromIDs(ids).Resolve(prefix)
	if errors.Is(err, todo.ErrTodoNotFound) {
		return "", docstore.NewError(docstore.KindNotFound, "resolve", prefix, err)
	}
	return id, err
}

// mutate applies fn to the current todo and writes the result, retrying
// once when the write conflicts.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(todo.Todo) (todo.Todo, error)) (todo.Todo, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.get(ctx, op, id)
		if err != nil {
			return todo.Todo{}, err
		}
		next, err := fn(current)
		if err != nil {
			return todo.Todo{}, invalid(op, id, err)
		}
		doc, err := docstore.FromTodo(next)
		if err != nil {
			return todo.Todo{}, invalid(op, id, err)
		}
		rev, err := s.store.Put(ctx, doc)
		if err == nil {
			next.Rev = rev
			return next, nil
		}
		if attempt == 1 && errors.Is(err, docstore.ErrConflict) {
			s.log.Debug().Err(err).Str("doc_id", id).Msg("retrying after conflict")
			continue
		}
		return todo.Todo{}, err
	}
}

// Completion is the outcome of ToggleCompleted.
type Completion struct {
	Todo           todo.Todo  `json:"todo"`
	Completed      bool       `json:"completed"`
	StoppedSession bool       `json:"stoppedSession"`
	Successor      *todo.Todo `json:"successor,omitempty"`

	// SuccessorErr is set when the successor could not be written. The
	// completion itself stands.
	SuccessorErr error `json:"-"`
}

// ToggleCompleted completes an open todo or reopens a completed one.
// Completing a recurring todo writes its successor after the todo itself.
func (s *Service) ToggleCompleted(ctx context.Context, id string) (Completion, error) {
	var transition todo.Transition
	updated, err := s.mutate(ctx, "toggle completed", id, func(current todo.Todo) (todo.Todo, error) {
		var err error
		transition, err = todo.ToggleCompleted(current, s.recurOptions(s.opts.Now()))
		return transition.Todo, err
	})
	if err != nil {
		return Completion{}, err
	}

	result := Completion{
		Todo:           updated,
		Completed:      transition.Completed,
		StoppedSession: transition.StoppedSession,
	}
	if transition.Successor == nil {
		return result, nil
	}

	successor := *transition.Successor
	doc, err := docstore.FromTodo(successor)
	if err == nil {
		successor.Rev, err = s.store.Put(ctx, doc)
	}
	if err != nil {
		s.log.Error().Err(err).Str("doc_id", id).Str("successor_id", successor.ID).Msg("writing next occurrence")
		result.SuccessorErr = err
		return result, nil
	}
	result.Successor = &successor
	return result, nil
}

// Tracking is the outcome of ToggleTimeTracking.
type Tracking struct {
	Todo    todo.Todo `json:"todo"`
	Started bool      `json:"started"`
}

// ToggleTimeTracking stops the todo's running session or starts a new one.
func (s *Service) ToggleTimeTracking(ctx context.Context, id string) (Tracking, error) {
	var started bool
	updated, err := s.mutate(ctx, "toggle time tracking", id, func(current todo.Todo) (todo.Todo, error) {
		next, didStart, err := todo.ToggleTracking(current, s.opts.Now())
		started = didStart
		return next, err
	})
	if err != nil {
		return Tracking{}, err
	}
	return Tracking{Todo: updated, Started: started}, nil
}

// UpdateFields applies a patch. An empty patch returns the todo unchanged.
func (s *Service) UpdateFields(ctx context.Context, id string, patch todo.Patch) (todo.Todo, error) {
	if patch.IsEmpty() {
		return s.Get(ctx, id)
	}
	if patch.ParentID != nil && *patch.ParentID != "" {
		parent, err := s.Resolve(ctx, *patch.ParentID)
		if err != nil {
			return todo.Todo{}, err
		}
		patch.ParentID = &parent
	}
	return s.mutate(ctx, "update fields", id, patch.Apply)
}

// Running returns the todos with a running session, ordered by id.
func (s *Service) Running(ctx context.Context) ([]todo.Todo, error) {
	rows, err := s.store.Query(ctx, view.ByTimeTrackingActive, view.QueryOptions{
		Key:         view.KeyPtr(view.NullKey()),
		IncludeDocs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("running: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	var running []todo.Todo
	for _, row := range rows {
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		t, _, err := todo.Load(todo.RawDocument{ID: row.ID, Rev: row.Rev, Body: row.Doc}, s.migrateOptions())
		if err != nil {
			s.log.Warn().Err(err).Str("doc_id", row.ID).Msg("skipping invalid document")
			continue
		}
		running = append(running, t)
	}
	sort.Slice(running, func(i, j int) bool { return running[i].ID < running[j].ID })
	return running, nil
}

// BoardResult is what the read facade returns for a board request.
type BoardResult struct {
	Board *board.Board

	// Stale is set when Board is the last good result for the request,
	// served because the current load failed with a retryable error.
	Stale bool

	Err error
}

// ResolveRequest pins req to the days its window covers now. A request
// that is already resolved is returned unchanged.
func (s *Service) ResolveRequest(req board.Request) (board.Request, error) {
	if req.Range != nil {
		return req, nil
	}
	return req.Resolve(s.opts.Now(), s.opts.Location)
}

// Board loads a board. A retryable failure falls back to the last board
// loaded for the same request on the same days.
func (s *Service) Board(ctx context.Context, req board.Request) BoardResult {
	req, err := s.ResolveRequest(req)
	if err != nil {
		return BoardResult{Err: fmt.Errorf("load board: %w", err)}
	}
	b, err := s.loader.Load(ctx, req)
	key := req.Key()
	if err == nil {
		s.mu.Lock()
		s.lastGood[key] = b
		s.mu.Unlock()
		return BoardResult{Board: b}
	}

	s.log.Warn().Err(err).Str("window", req.Window.String()).Msg("loading board")
	if docstore.IsRetryable(err) {
		s.mu.Lock()
		last, ok := s.lastGood[key]
		s.mu.Unlock()
		if ok {
			return BoardResult{Board: last, Stale: true, Err: err}
		}
	}
	return BoardResult{Err: err}
}
