// Package sqlitestore is a docstore.Store backed by an SQLite database.
//
// Documents, view rows and a change log live in one database file. View
// rows are maintained in the same transaction as the write that produced
// them. Writes made by other processes sharing the file are announced by
// polling the change log.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/view"
)

// DefaultPollInterval is how often the change log is polled when Options
// does not say otherwise.
const DefaultPollInterval = 2 * time.Second

// Options configures a Store.
type Options struct {
	docstore.Options

	// PollInterval is how often the change log is checked for writes made
	// by other processes. Negative disables polling; zero means
	// DefaultPollInterval.
	PollInterval time.Duration
}

// Store is a docstore.Store on SQLite.
type Store struct {
	db   *sqlx.DB
	sq   squirrel.StatementBuilderType
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	defs      map[view.Name]view.Definition
	subs      map[uuid.UUID]func(docstore.Change)
	lastSeen  int64
	announced map[int64]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ docstore.Store = (*Store)(nil)

// Open opens (or creates) the database at path, creates the schema and
// starts polling the change log. The caller is responsible for calling Close.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, classify("open", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, classify("create schema", path, err)
	}

	store := New(db, opts)
	if err := store.Start(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open database whose schema already exists. Call Start to
// begin polling.
func New(db *sqlx.DB, opts Options) *Store {
	return &Store{
		db:        db,
		sq:        squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		opts:      opts,
		log:       logging.OrNop(opts.Logger).With().Str("store", "sqlite").Logger(),
		defs:      make(map[view.Name]view.Definition),
		subs:      make(map[uuid.UUID]func(docstore.Change)),
		announced: make(map[int64]struct{}),
	}
}

// Start records the current end of the change log and, unless disabled,
// starts the poller.
func (s *Store) Start(ctx context.Context) error {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM changes`); err != nil {
		return classify("start", "", err)
	}

	interval := s.opts.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	s.mu.Lock()
	s.lastSeen = seq
	s.mu.Unlock()

	if interval < 0 {
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.poll(pollCtx, interval)
	return nil
}

// Close stops the poller and closes the database.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.mu.Lock()
	s.subs = make(map[uuid.UUID]func(docstore.Change))
	s.mu.Unlock()
	return s.db.Close()
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, id string) (docstore.Document, error) {
	query, args, err := s.sq.Select("id", "rev", "body").From("documents").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return docstore.Document{}, classify("get", id, err)
	}
	var record documentRecord
	if err := s.db.GetContext(ctx, &record, query, args...); err != nil {
		return docstore.Document{}, classify("get", id, err)
	}
	return record.document(), nil
}

// AllDocs implements docstore.Store.
func (s *Store) AllDocs(ctx context.Context) ([]docstore.Document, error) {
	records, err := s.allDocuments(ctx, s.db)
	if err != nil {
		return nil, classify("all docs", "", err)
	}
	docs := make([]docstore.Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, record.document())
	}
	return docs, nil
}

func (s *Store) allDocuments(ctx context.Context, q sqlx.QueryerContext) ([]documentRecord, error) {
	query, args, err := s.sq.Select("id", "rev", "body").From("documents").OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	var records []documentRecord
	if err := sqlx.SelectContext(ctx, q, &records, query, args...); err != nil {
		return nil, err
	}
	return records, nil
}

// Put implements docstore.Store.
func (s *Store) Put(ctx context.Context, doc docstore.Document) (string, error) {
	change, err := s.put(ctx, "put", doc)
	if err != nil {
		return "", err
	}
	s.announce(change)
	return change.Rev, nil
}

// BulkPut implements docstore.Store. Every document is written in its own
// transaction so one failure does not affect the others.
func (s *Store) BulkPut(ctx context.Context, docs []docstore.Document) ([]docstore.PutResult, error) {
	results := make([]docstore.PutResult, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("bulk put: %w", err)
		}
		change, err := s.put(ctx, "bulk put", doc)
		if err != nil {
			results = append(results, docstore.PutResult{ID: doc.ID, Err: err})
			continue
		}
		s.announce(change)
		results = append(results, docstore.PutResult{ID: doc.ID, Rev: change.Rev})
	}
	return results, nil
}

func (s *Store) put(ctx context.Context, op string, doc docstore.Document) (docstore.Change, error) {
	if err := docstore.ValidateDocument(op, doc); err != nil {
		return docstore.Change{}, err
	}

	var change docstore.Change
	var design *view.DesignDocument
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		change, design, err = s.putTx(ctx, tx, op, doc)
		return err
	})
	if err != nil {
		return docstore.Change{}, classify(op, doc.ID, err)
	}
	if design != nil {
		s.setDefinitions(*design)
	}
	return change, nil
}

// putTx writes one document and keeps views in step. It returns the new
// design document when doc is one.
func (s *Store) putTx(ctx context.Context, tx *sqlx.Tx, op string, doc docstore.Document) (docstore.Change, *view.DesignDocument, error) {
	query, args, err := s.sq.Select("id", "rev", "body").From("documents").Where(squirrel.Eq{"id": doc.ID}).ToSql()
	if err != nil {
		return docstore.Change{}, nil, err
	}
	var current documentRecord
	exists := true
	if err := tx.GetContext(ctx, &current, query, args...); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return docstore.Change{}, nil, err
		}
		exists = false
	}
	switch {
	case exists && doc.Rev != current.Rev:
		return docstore.Change{}, nil, docstore.NewError(docstore.KindConflict, op, doc.ID,
			fmt.Errorf("have revision %q, got %q", current.Rev, doc.Rev))
	case !exists && doc.Rev != "":
		return docstore.Change{}, nil, docstore.NewError(docstore.KindConflict, op, doc.ID,
			fmt.Errorf("document does not exist, got revision %q", doc.Rev))
	}

	rev := docstore.NextRevision(current.Rev)
	query, args, err = s.sq.Insert("documents").
		Columns("id", "rev", "body").
		Values(doc.ID, rev, string(doc.Body)).
		Suffix("ON CONFLICT(id) DO UPDATE SET rev = excluded.rev, body = excluded.body").
		ToSql()
	if err != nil {
		return docstore.Change{}, nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return docstore.Change{}, nil, err
	}

	query, args, err = s.sq.Insert("changes").Columns("doc_id", "rev").Values(doc.ID, rev).ToSql()
	if err != nil {
		return docstore.Change{}, nil, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return docstore.Change{}, nil, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return docstore.Change{}, nil, err
	}
	change := docstore.Change{Seq: seq, ID: doc.ID, Rev: rev}

	if view.IsDesignID(doc.ID) {
		if doc.ID != view.DesignDocumentID {
			return change, nil, nil
		}
		design, err := s.applyDesignTx(ctx, tx, current, exists, doc.Body)
		return change, design, err
	}
	if err := s.indexTx(ctx, tx, doc.ID, rev, doc.Body); err != nil {
		return docstore.Change{}, nil, err
	}
	return change, nil, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Subscribe implements docstore.Store.
func (s *Store) Subscribe(fn func(docstore.Change)) func() {
	id := uuid.New()
	s.mu.Lock()
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// announce notifies subscribers of a local write. PollOnce skips it later.
func (s *Store) announce(change docstore.Change) {
	s.mu.Lock()
	if change.Seq > s.lastSeen {
		s.announced[change.Seq] = struct{}{}
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

func (s *Store) subscribersLocked() []func(docstore.Change) {
	subs := make([]func(docstore.Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (r documentRecord) document() docstore.Document {
	return docstore.Document{ID: r.ID, Rev: r.Rev, Body: []byte(r.Body)}
}
