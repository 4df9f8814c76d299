package sqlitestore

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/amonks/daybook/docstore"
)

func (s *Store) poll(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("polling change log")
			}
		}
	}
}

// PollOnce announces every change logged since the last poll that this
// Store did not write itself.
func (s *Store) PollOnce(ctx context.Context) error {
	s.mu.Lock()
	lastSeen := s.lastSeen
	s.mu.Unlock()

	query, args, err := s.sq.Select("seq", "doc_id", "rev").From("changes").
		Where(squirrel.Gt{"seq": lastSeen}).OrderBy("seq").ToSql()
	if err != nil {
		return classify("poll", "", err)
	}
	var records []changeRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return classify("poll", "", err)
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	var changes []docstore.Change
	for _, record := range records {
		if record.Seq <= s.lastSeen {
			continue
		}
		s.lastSeen = record.Seq
		if _, ok := s.announced[record.Seq]; ok {
			delete(s.announced, record.Seq)
			continue
		}
		changes = append(changes, docstore.Change{Seq: record.Seq, ID: record.DocID, Rev: record.Rev})
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	if len(changes) > 0 {
		s.log.Debug().Int("changes", len(changes)).Msg("observed external writes")
	}
	for _, change := range changes {
		for _, fn := range subs {
			fn(change)
		}
	}
	return nil
}
