package sqlitestore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/docstore/sqlitestore"
	"github.com/amonks/daybook/view"
)

const (
	docA = `{"version":"alpha3","title":"a","context":"work","due":"2026-02-10T23:59:59.999Z","active":{"2026-02-10T09:00:00.000Z":null}}`
	docB = `{"version":"alpha3","title":"b","context":"home","due":"2026-02-12T23:59:59.999Z","active":{}}`
	docC = `{"version":"alpha2","title":"c","context":"work","due":"2026-02-10T12:00:00.000Z","completed":null}`
)

func open(t *testing.T, path string) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(context.Background(), path, sqlitestore.Options{PollInterval: -1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureViews(context.Background(), view.Definitions()))
	return store
}

func newStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	return open(t, filepath.Join(t.TempDir(), "daybook.db"))
}

func rowIDs(rows []view.Row) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	rev, err := store.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.NoError(t, err)
	require.Equal(t, 1, docstore.RevisionGeneration(rev))

	doc, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, rev, doc.Rev)
	require.JSONEq(t, docA, string(doc.Body))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestPutConflicts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first, err := store.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.NoError(t, err)
	second, err := store.Put(ctx, docstore.Document{ID: "a", Rev: first, Body: []byte(docB)})
	require.NoError(t, err)
	require.Equal(t, 2, docstore.RevisionGeneration(second))

	_, err = store.Put(ctx, docstore.Document{ID: "a", Rev: first, Body: []byte(docA)})
	require.ErrorIs(t, err, docstore.ErrConflict)
	require.True(t, docstore.IsRetryable(err))

	_, err = store.Put(ctx, docstore.Document{ID: "b", Rev: "1-abc", Body: []byte(docB)})
	require.ErrorIs(t, err, docstore.ErrConflict)

	_, err = store.Put(ctx, docstore.Document{ID: "c", Body: []byte(`[1]`)})
	require.ErrorIs(t, err, docstore.ErrInvalidDocument)

	doc, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, second, doc.Rev)
}

func TestViewsFollowWrites(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	revA, err := store.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.NoError(t, err)
	_, err = store.Put(ctx, docstore.Document{ID: "b", Body: []byte(docB)})
	require.NoError(t, err)
	_, err = store.Put(ctx, docstore.Document{ID: "c", Body: []byte(docC)})
	require.NoError(t, err)

	due, err := store.Query(ctx, view.ByDueDate, view.QueryOptions{
		StartKey: view.KeyPtr(view.StringKey("2026-02-10")),
		EndKey:   view.KeyPtr(view.StringKey("2026-02-11")),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, rowIDs(due))

	desc, err := store.Query(ctx, view.ByDueDate, view.QueryOptions{Descending: true, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, rowIDs(desc))

	running, err := store.Query(ctx, view.ByTimeTrackingActive, view.QueryOptions{Key: view.KeyPtr(view.NullKey())})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, rowIDs(running))

	stopped := `{"version":"alpha3","title":"a","context":"work","due":"2026-02-10T23:59:59.999Z","active":{"2026-02-10T09:00:00.000Z":"2026-02-10T10:00:00.000Z"}}`
	_, err = store.Put(ctx, docstore.Document{ID: "a", Rev: revA, Body: []byte(stopped)})
	require.NoError(t, err)

	running, err = store.Query(ctx, view.ByTimeTrackingActive, view.QueryOptions{Key: view.KeyPtr(view.NullKey())})
	require.NoError(t, err)
	require.Empty(t, running)

	ended, err := store.Query(ctx, view.ByTimeTrackingActive, view.QueryOptions{
		StartKey: view.KeyPtr(view.StringKey("2026-02-10")),
		EndKey:   view.KeyPtr(view.StringKey("2026-02-11")),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, rowIDs(ended))

	active, err := store.Query(ctx, view.ByActive, view.QueryOptions{IncludeDocs: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.JSONEq(t, stopped, string(active[0].Doc))
	activity, err := view.DecodeActivity(active[0])
	require.NoError(t, err)
	require.Equal(t, "a", activity.ItemID)
	require.NotNil(t, activity.To)
}

func TestQueryUnknownView(t *testing.T) {
	store := newStore(t)
	_, err := store.Query(context.Background(), view.Name("nope"), view.QueryOptions{})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestEnsureViewsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.EnsureViews(ctx, view.Definitions()))
	design, err := store.Get(ctx, view.DesignDocumentID)
	require.NoError(t, err)
	require.Equal(t, 1, docstore.RevisionGeneration(design.Rev))
}

func TestEnsureViewsRebuildsChangedViews(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "daybook.db")
	store := open(t, path)

	_, err := store.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.NoError(t, err)

	changed := view.Definitions()
	for i := range changed {
		if changed[i].Name == view.ByDueDate {
			changed[i].Revision++
		}
	}
	require.NoError(t, store.EnsureViews(ctx, changed))

	design, err := store.Get(ctx, view.DesignDocumentID)
	require.NoError(t, err)
	require.Equal(t, 2, docstore.RevisionGeneration(design.Rev))

	rows, err := store.Query(ctx, view.ByDueDate, view.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, rowIDs(rows))
}

func TestViewsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "daybook.db")

	first, err := sqlitestore.Open(ctx, path, sqlitestore.Options{PollInterval: -1})
	require.NoError(t, err)
	require.NoError(t, first.EnsureViews(ctx, view.Definitions()))
	_, err = first.Put(ctx, docstore.Document{ID: "b", Body: []byte(docB)})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := open(t, path)
	rows, err := second.Query(ctx, view.ByDueDate, view.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, rowIDs(rows))

	docs, err := second.AllDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "_design/todos", docs[0].ID)
	require.Equal(t, "b", docs[1].ID)
}

func TestBulkPutReportsPerDocument(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	rev, err := store.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.NoError(t, err)

	results, err := store.BulkPut(ctx, []docstore.Document{
		{ID: "a", Rev: rev, Body: []byte(docB)},
		{ID: "a", Rev: rev, Body: []byte(docA)},
		{ID: "b", Body: []byte(`nope`)},
		{ID: "c", Body: []byte(docB)},
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.NoError(t, results[0].Err)
	require.ErrorIs(t, results[1].Err, docstore.ErrConflict)
	require.ErrorIs(t, results[2].Err, docstore.ErrInvalidDocument)
	require.NoError(t, results[3].Err)
}

func TestSubscribeSeesLocalAndExternalWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "daybook.db")
	local := open(t, path)
	remote := open(t, path)

	var changes []docstore.Change
	cancel := local.Subscribe(func(change docstore.Change) {
		changes = append(changes, change)
	})
	defer cancel()

	_, err := local.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	_, err = remote.Put(ctx, docstore.Document{ID: "b", Body: []byte(docB)})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	require.NoError(t, local.PollOnce(ctx))
	require.Len(t, changes, 2)
	require.Equal(t, "b", changes[1].ID)
	require.Greater(t, changes[1].Seq, changes[0].Seq)

	require.NoError(t, local.PollOnce(ctx))
	require.Len(t, changes, 2, "local writes and already seen changes are not repeated")

	rows, err := local.Query(ctx, view.ByDueDate, view.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, rowIDs(rows))
}

func TestHonorsContext(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Put(ctx, docstore.Document{ID: "a", Body: []byte(docA)})
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
