package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

var boardDocs = []docstore.Document{
	{
		ID:   "2026-02-01T10:00:00.000Z",
		Body: []byte(`{"version":"alpha3","title":"write report","context":"work","due":"2026-02-10T23:59:59.999Z","tags":["x"],"active":{"2026-02-10T09:00:00.000Z":"2026-02-10T10:00:00.000Z"}}`),
	},
	{
		ID:   "2026-02-01T11:00:00.000Z",
		Body: []byte(`{"version":"alpha3","title":"laundry","context":"home","due":"2026-02-11T23:59:59.999Z","completed":"2026-02-11T08:00:00.000Z","tags":[],"active":{}}`),
	},
	{
		ID:   "2026-02-09T08:00:00.000Z",
		Body: []byte(`{"title":"stretch","description":"","completed":null,"tags":["y"],"active":{"2026-02-09T08:00:00.000Z":"2026-02-09T08:30:00.000Z"},"repeat":null}`),
	},
	{
		ID:   "2026-02-01T12:00:00.000Z",
		Body: []byte(`{"version":"alpha3","title":"ship release","context":"work","due":"2026-03-01T23:59:59.999Z","tags":["x"],"active":{"2026-02-11T12:00:00.000Z":null}}`),
	},
	{
		ID:   "2026-02-01T13:00:00.000Z",
		Body: []byte(`{"version":"alpha3","title":"old news","context":"work","due":"2026-01-01T23:59:59.999Z","tags":[],"active":{}}`),
	},
}

type recordingQueue struct {
	docs []todo.RawDocument
}

func (q *recordingQueue) Enqueue(docs []todo.RawDocument) int {
	q.docs = append(q.docs, docs...)
	return len(docs)
}

func newBoardStore(t *testing.T) *docstore.Memory {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemory(docstore.Options{})
	if err := store.EnsureViews(ctx, view.Definitions()); err != nil {
		t.Fatalf("ensure views: %v", err)
	}
	for _, doc := range boardDocs {
		if _, err := store.Put(ctx, doc); err != nil {
			t.Fatalf("put %s: %v", doc.ID, err)
		}
	}
	return store
}

func newTestLoader(store docstore.Store, queue Enqueuer) *Loader {
	now := time.Date(2026, 2, 11, 13, 0, 0, 0, time.UTC)
	return NewLoader(store, LoaderOptions{
		Queue: queue,
		Now:   func() time.Time { return now },
	})
}

func titles(todos []todo.Todo) []string {
	out := make([]string, 0, len(todos))
	for _, t := range todos {
		out = append(out, t.Title)
	}
	return out
}

func TestLoadBoard(t *testing.T) {
	queue := &recordingQueue{}
	loader := newTestLoader(newBoardStore(t), queue)

	board, err := loader.Load(context.Background(), Request{Window: Window{Kind: CurrentWeek}})
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}

	if board.Range != (DateRange{Start: "2026-02-09", End: "2026-02-15"}) {
		t.Fatalf("unexpected range %+v", board.Range)
	}
	if diff := cmp.Diff([]string{"stretch", "write report", "laundry"}, titles(board.Items)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if len(board.Activities) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(board.Activities))
	}

	type cell struct {
		Context  string
		Day      string
		Items    []string
		Duration time.Duration
	}
	var cells []cell
	for _, group := range board.Groups {
		cells = append(cells, cell{Context: group.Context, Day: group.Day, Items: titles(group.Items), Duration: group.Duration})
	}
	want := []cell{
		{Context: "home", Day: "2026-02-11", Items: []string{"laundry"}},
		{Context: "private", Day: "2026-02-09", Items: []string{"stretch"}, Duration: 30 * time.Minute},
		{Context: "work", Day: "2026-02-10", Items: []string{"write report"}, Duration: time.Hour},
		{Context: "work", Day: "2026-02-11", Items: []string{"ship release"}, Duration: time.Hour},
	}
	if diff := cmp.Diff(want, cells); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}

	wantByContext := map[string]time.Duration{"private": 30 * time.Minute, "work": 2 * time.Hour}
	if diff := cmp.Diff(wantByContext, board.DurationByContext); diff != "" {
		t.Fatalf("duration by context mismatch (-want +got):\n%s", diff)
	}
	if got := board.DurationByContextAndDay["work"]["2026-02-11"]; got != time.Hour {
		t.Fatalf("expected the running session to count up to now, got %s", got)
	}

	if board.Stale != 1 || len(queue.docs) != 1 || queue.docs[0].ID != "2026-02-09T08:00:00.000Z" {
		t.Fatalf("expected the alpha1 document to be queued once, got %d / %+v", board.Stale, queue.docs)
	}
	stretch, _ := board.Group("private", "2026-02-09")
	if stretch.Items[0].Due.Format(time.RFC3339Nano) != "2026-02-09T23:59:59.999Z" {
		t.Fatalf("expected the stale document to be served migrated, got %s", stretch.Items[0].Due)
	}
}

func TestLoadBoardPrefersDueItem(t *testing.T) {
	loader := newTestLoader(newBoardStore(t), nil)
	board, err := loader.Load(context.Background(), Request{Window: Window{Kind: Custom, From: "2026-02-10", To: "2026-02-10"}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	group, ok := board.Group("work", "2026-02-10")
	if !ok {
		t.Fatalf("expected a work group on 2026-02-10")
	}
	if len(group.Items) != 1 || len(group.Activities) != 1 {
		t.Fatalf("expected one item and one activity, got %d and %d", len(group.Items), len(group.Activities))
	}
}

func TestLoadBoardFilters(t *testing.T) {
	loader := newTestLoader(newBoardStore(t), nil)
	cases := []struct {
		name    string
		filters Filters
		items   []string
		active  int
	}{
		{name: "incomplete", filters: Filters{Status: StatusIncomplete}, items: []string{"stretch", "write report"}, active: 3},
		{name: "completed", filters: Filters{Status: StatusCompleted}, items: []string{"laundry"}, active: 0},
		{name: "context", filters: Filters{Contexts: []string{"work"}}, items: []string{"write report"}, active: 2},
		{name: "tags intersect", filters: Filters{Tags: []string{"y", "z"}}, items: []string{"stretch"}, active: 1},
		{name: "combined", filters: Filters{Contexts: []string{"work", "home"}, Tags: []string{"x"}}, items: []string{"write report"}, active: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			board, err := loader.Load(context.Background(), Request{Window: Window{Kind: CurrentWeek}, Filters: tc.filters})
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(tc.items, titles(board.Items)); diff != "" {
				t.Fatalf("items mismatch (-want +got):\n%s", diff)
			}
			if len(board.Activities) != tc.active {
				t.Fatalf("expected %d activities, got %d", tc.active, len(board.Activities))
			}
		})
	}
}

func TestLoadBoardAllTime(t *testing.T) {
	loader := newTestLoader(newBoardStore(t), nil)
	board, err := loader.Load(context.Background(), Request{Window: Window{Kind: AllTime}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(board.Items) != len(boardDocs) {
		t.Fatalf("expected every document, got %v", titles(board.Items))
	}
}

// corruptRowStore adds an unreadable row to every byDueDate query.
type corruptRowStore struct {
	*docstore.Memory
}

func (s corruptRowStore) Query(ctx context.Context, name view.Name, opts view.QueryOptions) ([]view.Row, error) {
	rows, err := s.Memory.Query(ctx, name, opts)
	if err != nil || name != view.ByDueDate {
		return rows, err
	}
	bad := view.Row{ID: "bad", Rev: "1-x", Key: *opts.StartKey, Value: []byte(`{"version":"omega","title":"?"}`)}
	return append([]view.Row{bad}, rows...), nil
}

func TestLoadBoardSkipsInvalidDocuments(t *testing.T) {
	loader := newTestLoader(corruptRowStore{newBoardStore(t)}, nil)
	board, err := loader.Load(context.Background(), Request{Window: Window{Kind: CurrentWeek}})
	if err != nil {
		t.Fatalf("expected invalid documents not to fail the load, got %v", err)
	}
	if len(board.Skipped) != 1 || board.Skipped[0].ID != "bad" {
		t.Fatalf("expected the bad row to be skipped, got %+v", board.Skipped)
	}
	if !errors.Is(board.Skipped[0], todo.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", board.Skipped[0])
	}
	if len(board.Items) != 3 {
		t.Fatalf("expected siblings to load, got %v", titles(board.Items))
	}
}

type failingStore struct {
	*docstore.Memory
}

func (failingStore) Query(context.Context, view.Name, view.QueryOptions) ([]view.Row, error) {
	return nil, docstore.NewError(docstore.KindNetwork, "query", "", errors.New("offline"))
}

func TestLoadBoardReturnsTypedErrors(t *testing.T) {
	loader := newTestLoader(failingStore{docstore.NewMemory(docstore.Options{})}, nil)
	_, err := loader.Load(context.Background(), Request{Window: Window{Kind: CurrentDay}})
	if docstore.KindOf(err) != docstore.KindNetwork || !docstore.IsRetryable(err) {
		t.Fatalf("expected a retryable network error, got %v", err)
	}

	_, err = loader.Load(context.Background(), Request{Window: Window{Kind: Custom}})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestRequestKey(t *testing.T) {
	a := Request{Window: Window{Kind: CurrentWeek}, Filters: Filters{Contexts: []string{"work", "home"}}}
	b := Request{Window: Window{Kind: CurrentWeek}, Filters: Filters{Contexts: []string{"home", "work"}, Status: StatusAll}}
	if a.Key() != b.Key() {
		t.Fatalf("expected equivalent requests to share a key: %s vs %s", a.Key(), b.Key())
	}
	c := Request{Window: Window{Kind: CurrentDay}, Filters: a.Filters}
	if a.Key() == c.Key() {
		t.Fatalf("expected different windows to have different keys")
	}
}

func TestRequestKeyIncludesResolvedDays(t *testing.T) {
	req := Request{Window: Window{Kind: CurrentDay}}
	beforeMidnight, err := req.Resolve(time.Date(2026, 2, 10, 23, 59, 59, 0, time.UTC), time.UTC)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	afterMidnight, err := req.Resolve(time.Date(2026, 2, 11, 0, 0, 1, 0, time.UTC), time.UTC)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if beforeMidnight.Key() == afterMidnight.Key() {
		t.Fatalf("expected different days to have different keys, both %s", beforeMidnight.Key())
	}
	if req.Key() == beforeMidnight.Key() {
		t.Fatalf("expected a resolved request to differ from an unresolved one")
	}

	if _, err := (Request{Window: Window{Kind: Custom, From: "2026-02-10"}}).Resolve(time.Now(), time.UTC); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestLoadUsesResolvedRange(t *testing.T) {
	loader := newTestLoader(newBoardStore(t), nil)
	req := Request{
		Window: Window{Kind: CurrentDay},
		Range:  &DateRange{Start: "2026-02-09", End: "2026-02-15"},
	}
	board, err := loader.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if board.Range != *req.Range {
		t.Fatalf("expected the pinned range, got %+v", board.Range)
	}
	if board.Request.Key() != req.Key() {
		t.Fatalf("expected the board to carry the pinned request, got %s", board.Request.Key())
	}

	unresolved, err := loader.Load(context.Background(), Request{Window: Window{Kind: CurrentDay}})
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	if unresolved.Request.Range == nil || *unresolved.Request.Range != (DateRange{Start: "2026-02-11", End: "2026-02-11"}) {
		t.Fatalf("expected the loader to resolve the window, got %+v", unresolved.Request.Range)
	}
}
