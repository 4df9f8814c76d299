package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/view"
)

// insertBatch bounds the rows per INSERT so statements stay well below
// SQLite's bound-variable limit.
const insertBatch = 100

func (s *Store) setDefinitions(design view.DesignDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = make(map[view.Name]view.Definition, len(design.Views))
	for name, def := range design.Views {
		s.defs[name] = def
	}
}

func (s *Store) definition(name view.Name) (view.Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[name]
	return def, ok
}

func (s *Store) definitions() []view.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	defs := make([]view.Definition, 0, len(s.defs))
	for _, def := range s.defs {
		defs = append(defs, def)
	}
	return defs
}

// loadDesign reads the stored design document, if any.
func (s *Store) loadDesign(ctx context.Context, q sqlx.QueryerContext) (*documentRecord, *view.DesignDocument, error) {
	query, args, err := s.sq.Select("id", "rev", "body").From("documents").
		Where(squirrel.Eq{"id": view.DesignDocumentID}).ToSql()
	if err != nil {
		return nil, nil, err
	}
	var record documentRecord
	if err := sqlx.GetContext(ctx, q, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	design, err := view.DecodeDesignDocument([]byte(record.Body))
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring unreadable design document")
		return &record, nil, nil
	}
	return &record, &design, nil
}

// applyDesignTx marks views whose definition changed as stale and drops the
// rows of views that no longer exist.
func (s *Store) applyDesignTx(ctx context.Context, tx *sqlx.Tx, previous documentRecord, existed bool, body []byte) (*view.DesignDocument, error) {
	next, err := view.DecodeDesignDocument(body)
	if err != nil {
		s.log.Warn().Err(err).Msg("stored design document is unreadable")
		return nil, nil
	}
	var prior view.DesignDocument
	if existed {
		if decoded, err := view.DecodeDesignDocument([]byte(previous.Body)); err == nil {
			prior = decoded
		}
	}

	for _, name := range view.Diff(prior, next) {
		if err := s.markStaleTx(ctx, tx, name); err != nil {
			return nil, err
		}
	}
	for name := range prior.Views {
		if _, ok := next.Views[name]; ok {
			continue
		}
		for _, table := range []string{"view_rows", "view_state"} {
			query, args, err := s.sq.Delete(table).Where(squirrel.Eq{"view_name": string(name)}).ToSql()
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return nil, err
			}
		}
	}
	return &next, nil
}

func (s *Store) markStaleTx(ctx context.Context, tx *sqlx.Tx, name view.Name) error {
	query, args, err := s.sq.Insert("view_state").
		Columns("view_name", "stale").
		Values(string(name), true).
		Suffix("ON CONFLICT(view_name) DO UPDATE SET stale = excluded.stale").
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (s *Store) staleViews(ctx context.Context, q sqlx.QueryerContext) (map[view.Name]bool, error) {
	query, args, err := s.sq.Select("view_name", "stale").From("view_state").ToSql()
	if err != nil {
		return nil, err
	}
	var records []stateRecord
	if err := sqlx.SelectContext(ctx, q, &records, query, args...); err != nil {
		return nil, err
	}
	stale := make(map[view.Name]bool, len(records))
	for _, record := range records {
		stale[view.Name(record.View)] = record.Stale
	}
	return stale, nil
}

// indexTx replaces one document's rows in every view that is not waiting
// for a rebuild.
func (s *Store) indexTx(ctx context.Context, tx *sqlx.Tx, id, rev string, body []byte) error {
	stale, err := s.staleViews(ctx, tx)
	if err != nil {
		return err
	}
	for _, def := range s.definitions() {
		if stale[def.Name] {
			continue
		}
		query, args, err := s.sq.Delete("view_rows").
			Where(squirrel.Eq{"view_name": string(def.Name), "doc_id": id}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		if err := s.insertRowsTx(ctx, tx, def.Name, view.Emit(def, id, rev, body, s.opts.Migrate)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertRowsTx(ctx context.Context, tx *sqlx.Tx, name view.Name, rows []view.Row) error {
	for start := 0; start < len(rows); start += insertBatch {
		end := min(start+insertBatch, len(rows))
		insert := s.sq.Insert("view_rows").Columns("view_name", "key_present", "row_key", "doc_id", "rev", "row_value")
		for _, row := range rows[start:end] {
			var key any
			if !row.Key.IsNull() {
				key = row.Key.Value
			}
			insert = insert.Values(string(name), !row.Key.IsNull(), key, row.ID, row.Rev, string(row.Value))
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// EnsureViews implements docstore.Store.
func (s *Store) EnsureViews(ctx context.Context, defs []view.Definition) error {
	record, stored, err := s.loadDesign(ctx, s.db)
	if err != nil {
		return classify("ensure views", view.DesignDocumentID, err)
	}
	next, changed, write := view.Bootstrap(stored, defs)
	if !write {
		s.setDefinitions(next)
		return nil
	}

	body, err := next.Encode()
	if err != nil {
		return classify("ensure views", view.DesignDocumentID, err)
	}
	doc := docstore.Document{ID: view.DesignDocumentID, Body: body}
	if record != nil {
		doc.Rev = record.Rev
	}
	change, err := s.put(ctx, "ensure views", doc)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(changed))
	for _, name := range changed {
		names = append(names, string(name))
	}
	s.log.Info().Strs("views", names).Msg("updated view definitions")
	s.announce(change)
	return nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, name view.Name, opts view.QueryOptions) ([]view.Row, error) {
	if err := opts.Validate(); err != nil {
		return nil, docstore.NewError(docstore.KindUnknown, "query", string(name), err)
	}
	def, ok := s.definition(name)
	if !ok {
		// Another process may have written the design document.
		_, design, err := s.loadDesign(ctx, s.db)
		if err != nil {
			return nil, classify("query", string(name), err)
		}
		if design != nil {
			s.setDefinitions(*design)
		}
		if def, ok = s.definition(name); !ok {
			return nil, docstore.NewError(docstore.KindNotFound, "query", string(name), view.ErrUnknownView)
		}
	}

	stale, err := s.staleViews(ctx, s.db)
	if err != nil {
		return nil, classify("query", string(name), err)
	}
	if stale[name] {
		if err := s.rebuild(ctx, def); err != nil {
			return nil, classify("rebuild view", string(name), err)
		}
	}

	query, args, err := s.selectRows(name, opts).ToSql()
	if err != nil {
		return nil, classify("query", string(name), err)
	}
	var records []rowRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, classify("query", string(name), err)
	}

	rows := make([]view.Row, 0, len(records))
	for _, record := range records {
		row := view.Row{ID: record.DocID, Rev: record.Rev, Value: json.RawMessage(record.Value)}
		if record.KeyPresent && record.Key != nil {
			row.Key = view.StringKey(*record.Key)
		}
		if opts.IncludeDocs && record.Body != nil {
			row.Doc = json.RawMessage(*record.Body)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// selectRows builds the range query. Null keys are stored with
// key_present = 0 so ordering by it first collates null before strings.
func (s *Store) selectRows(name view.Name, opts view.QueryOptions) squirrel.SelectBuilder {
	where := squirrel.And{squirrel.Eq{"r.view_name": string(name)}}
	switch {
	case opts.Key != nil && opts.Key.IsNull():
		where = append(where, squirrel.Eq{"r.key_present": false})
	case opts.Key != nil:
		where = append(where, squirrel.Eq{"r.key_present": true, "r.row_key": opts.Key.Value})
	default:
		if opts.StartKey != nil && !opts.StartKey.IsNull() {
			where = append(where, squirrel.Eq{"r.key_present": true}, squirrel.GtOrEq{"r.row_key": opts.StartKey.Value})
		}
		if opts.EndKey != nil {
			if opts.EndKey.IsNull() {
				where = append(where, squirrel.Expr("1 = 0"))
			} else {
				where = append(where, squirrel.Or{
					squirrel.Eq{"r.key_present": false},
					squirrel.Lt{"r.row_key": opts.EndKey.Value},
				})
			}
		}
	}

	direction := " ASC"
	if opts.Descending {
		direction = " DESC"
	}
	builder := s.sq.Select(
		"r.doc_id AS doc_id",
		"r.rev AS rev",
		"r.key_present AS key_present",
		"r.row_key AS row_key",
		"r.row_value AS row_value",
		"d.body AS body",
	).
		From("view_rows r").
		LeftJoin("documents d ON d.id = r.doc_id").
		Where(where).
		OrderBy("r.key_present"+direction, "r.row_key"+direction, "r.doc_id"+direction, "r.row_value"+direction)
	if opts.Limit > 0 {
		builder = builder.Limit(uint64(opts.Limit))
	}
	return builder
}

// rebuild recomputes every row of a view from the stored documents.
func (s *Store) rebuild(ctx context.Context, def view.Definition) error {
	count := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sq.Delete("view_rows").Where(squirrel.Eq{"view_name": string(def.Name)}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		records, err := s.allDocuments(ctx, tx)
		if err != nil {
			return err
		}
		var rows []view.Row
		for _, record := range records {
			rows = append(rows, view.Emit(def, record.ID, record.Rev, []byte(record.Body), s.opts.Migrate)...)
		}
		count = len(rows)
		if err := s.insertRowsTx(ctx, tx, def.Name, rows); err != nil {
			return err
		}
		query, args, err = s.sq.Update("view_state").Set("stale", false).
			Where(squirrel.Eq{"view_name": string(def.Name)}).ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("view", string(def.Name)).Int("rows", count).Msg("rebuilt view")
	return nil
}
