package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

// Options configures a store.
type Options struct {
	// Migrate supplies the defaults used to derive view keys from documents
	// stored at older generations.
	Migrate todo.MigrateOptions

	// Logger receives view maintenance events. Nil disables logging.
	Logger *zerolog.Logger
}

var errClosed = errors.New("store is closed")

// Memory is an in-memory Store. View rows are maintained on every write and
// subscribers are notified synchronously after the write is applied.
type Memory struct {
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	docs   map[string]Document
	defs   map[view.Name]view.Definition
	rows   map[view.Name][]view.Row
	stale  map[view.Name]bool
	seq    int64
	subs   map[uuid.UUID]func(Change)
	closed bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:  opts,
		log:   logging.OrNop(opts.Logger).With().Str("store", "memory").Logger(),
		docs:  make(map[string]Document),
		defs:  make(map[view.Name]view.Definition),
		rows:  make(map[view.Name][]view.Row),
		stale: make(map[view.Name]bool),
		subs:  make(map[uuid.UUID]func(Change)),
	}
}

func (m *Memory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if m.closed {
		return newError(KindUnknown, op, "", errClosed)
	}
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "get"); err != nil {
		return Document{}, err
	}
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, newError(KindNotFound, "get", id, nil)
	}
	return doc, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, doc Document) (string, error) {
	m.mu.Lock()
	if err := m.check(ctx, "put"); err != nil {
		m.mu.Unlock()
		return "", err
	}
	change, err := m.putLocked("put", doc)
	subs := m.subscribersLocked()
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	notify(subs, change)
	return change.Rev, nil
}

// BulkPut implements Store.
func (m *Memory) BulkPut(ctx context.Context, docs []Document) ([]PutResult, error) {
	m.mu.Lock()
	if err := m.check(ctx, "bulk put"); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	results := make([]PutResult, 0, len(docs))
	changes := make([]Change, 0, len(docs))
	for _, doc := range docs {
		change, err := m.putLocked("bulk put", doc)
		if err != nil {
			results = append(results, PutResult{ID: doc.ID, Err: err})
			continue
		}
		results = append(results, PutResult{ID: doc.ID, Rev: change.Rev})
		changes = append(changes, change)
	}
	subs := m.subscribersLocked()
	m.mu.Unlock()

	for _, change := range changes {
		notify(subs, change)
	}
	return results, nil
}

func (m *Memory) putLocked(op string, doc Document) (Change, error) {
	if err := ValidateDocument(op, doc); err != nil {
		return Change{}, err
	}
	current, exists := m.docs[doc.ID]
	switch {
	case exists && doc.Rev != current.Rev:
		return Change{}, conflictf(op, doc.ID, "have revision %q, got %q", current.Rev, doc.Rev)
	case !exists && doc.Rev != "":
		return Change{}, conflictf(op, doc.ID, "document does not exist, got revision %q", doc.Rev)
	}

	stored := Document{
		ID:   doc.ID,
		Rev:  NextRevision(current.Rev),
		Body: append([]byte(nil), doc.Body...),
	}
	m.docs[doc.ID] = stored
	m.seq++

	if view.IsDesignID(doc.ID) {
		m.loadDesignLocked(stored)
	} else {
		m.indexLocked(stored)
	}
	return Change{Seq: m.seq, ID: stored.ID, Rev: stored.Rev}, nil
}

// indexLocked replaces the rows of one document in every fresh view.
func (m *Memory) indexLocked(doc Document) {
	for name, def := range m.defs {
		if m.stale[name] {
			continue
		}
		rows := m.rows[name][:0:0]
		for _, row := range m.rows[name] {
			if row.ID != doc.ID {
				rows = append(rows, row)
			}
		}
		rows = append(rows, view.Emit(def, doc.ID, doc.Rev, doc.Body, m.opts.Migrate)...)
		view.Sort(rows)
		m.rows[name] = rows
	}
}

// loadDesignLocked adopts the definitions of a freshly written design
// document. Views whose definition changed are rebuilt on their next query.
func (m *Memory) loadDesignLocked(doc Document) {
	if doc.ID != view.DesignDocumentID {
		return
	}
	design, err := view.DecodeDesignDocument(doc.Body)
	if err != nil {
		m.log.Warn().Err(err).Str("doc_id", doc.ID).Msg("ignoring unreadable design document")
		return
	}
	previous := view.DesignDocument{Views: m.defs}
	for _, name := range view.Diff(previous, design) {
		m.stale[name] = true
	}
	for name := range m.defs {
		if _, ok := design.Views[name]; !ok {
			delete(m.rows, name)
			delete(m.stale, name)
		}
	}
	m.defs = make(map[view.Name]view.Definition, len(design.Views))
	for name, def := range design.Views {
		m.defs[name] = def
	}
}

func (m *Memory) rebuildLocked(name view.Name) {
	def := m.defs[name]
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rows []view.Row
	for _, id := range ids {
		doc := m.docs[id]
		rows = append(rows, view.Emit(def, doc.ID, doc.Rev, doc.Body, m.opts.Migrate)...)
	}
	view.Sort(rows)
	m.rows[name] = rows
	m.stale[name] = false
	m.log.Debug().Str("view", string(name)).Int("rows", len(rows)).Msg("rebuilt view")
}

// AllDocs implements Store.
func (m *Memory) AllDocs(ctx context.Context) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "all docs"); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Query implements Store.
func (m *Memory) Query(ctx context.Context, name view.Name, opts view.QueryOptions) ([]view.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "query"); err != nil {
		return nil, err
	}
	if _, ok := m.defs[name]; !ok {
		return nil, newError(KindNotFound, "query", string(name), view.ErrUnknownView)
	}
	if m.stale[name] {
		m.rebuildLocked(name)
	}
	rows, err := view.Select(m.rows[name], opts)
	if err != nil {
		return nil, newError(KindUnknown, "query", string(name), err)
	}
	return rows, nil
}

// EnsureViews implements Store.
func (m *Memory) EnsureViews(ctx context.Context, defs []view.Definition) error {
	m.mu.Lock()
	if err := m.check(ctx, "ensure views"); err != nil {
		m.mu.Unlock()
		return err
	}

	var stored *view.DesignDocument
	current, exists := m.docs[view.DesignDocumentID]
	if exists {
		design, err := view.DecodeDesignDocument(current.Body)
		if err != nil {
			m.log.Warn().Err(err).Msg("replacing unreadable design document")
		} else {
			stored = &design
		}
	}

	next, changed, write := view.Bootstrap(stored, defs)
	if !write {
		if len(m.defs) == 0 {
			m.loadDesignLocked(current)
		}
		m.mu.Unlock()
		return nil
	}

	body, err := next.Encode()
	if err != nil {
		m.mu.Unlock()
		return newError(KindUnknown, "ensure views", view.DesignDocumentID, err)
	}
	change, err := m.putLocked("ensure views", Document{ID: view.DesignDocumentID, Rev: current.Rev, Body: body})
	subs := m.subscribersLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.log.Info().Strs("views", viewNames(changed)).Msg("updated view definitions")
	notify(subs, change)
	return nil
}

// Subscribe implements Store.
func (m *Memory) Subscribe(fn func(Change)) func() {
	id := uuid.New()
	m.mu.Lock()
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Seq returns the sequence number of the latest write.
func (m *Memory) Seq() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[uuid.UUID]func(Change))
	return nil
}

func (m *Memory) subscribersLocked() []func(Change) {
	subs := make([]func(Change), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Change), change Change) {
	for _, fn := range subs {
		fn(change)
	}
}

func viewNames(names []view.Name) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, string(name))
	}
	return out
}
