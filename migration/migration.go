// Package migration writes documents stored at older generations back at
// the latest one.
//
// Reads never wait for it: the board hands stale documents to a Queue, and
// the Queue writes them in the background when its policy allows. Failed
// writes are not retried; the document is still stale, so the next load
// enqueues it again.
package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/logging"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

// Policy decides whether migrated documents are written back.
type Policy string

const (
	// ReadOnly serves migrated values without writing them.
	ReadOnly Policy = "migrate-on-read-only"

	// Persist writes migrated documents back in batches.
	Persist Policy = "migrate-and-persist"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 50

// ValidPolicies returns all valid policies.
func ValidPolicies() []Policy {
	return []Policy{ReadOnly, Persist}
}

// IsValid returns true if the policy is known.
func (p Policy) IsValid() bool {
	for _, valid := range ValidPolicies() {
		if p == valid {
			return true
		}
	}
	return false
}

// ParsePolicy parses a configured policy. Empty means ReadOnly.
func ParsePolicy(value string) (Policy, error) {
	policy := Policy(strings.ToLower(strings.TrimSpace(value)))
	if policy == "" {
		return ReadOnly, nil
	}
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid migration policy %q", value)
	}
	return policy, nil
}

// Options configures migration.
type Options struct {
	Policy    Policy
	BatchSize int
	Migrate   todo.MigrateOptions
	Logger    *zerolog.Logger

	// Buffer bounds the documents waiting in a Queue. Documents enqueued
	// while it is full are dropped. Defaults to four batches.
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = ReadOnly
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Buffer <= 0 {
		o.Buffer = 4 * o.BatchSize
	}
	return o
}

// Report summarizes a migration pass.
type Report struct {
	Scanned int
	Stale   int
	Written int
	Invalid []todo.Failure
	Failed  []docstore.PutResult
}

// Run migrates every stale document in store, in batches, regardless of the
// configured policy.
func Run(ctx context.Context, store docstore.Store, opts Options) (Report, error) {
	opts = opts.withDefaults()
	log := logging.OrNop(opts.Logger).With().Str("component", "migration").Logger()

	docs, err := store.AllDocs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("migrate: %w", err)
	}
	var report Report
	var raws []todo.RawDocument
	for _, doc := range docs {
		if view.IsDesignID(doc.ID) {
			continue
		}
		report.Scanned++
		raws = append(raws, doc.Raw())
	}

	for start := 0; start < len(raws); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(raws))
		batch, err := writeBatch(ctx, store, raws[start:end], opts.Migrate, log)
		report.Stale += batch.Stale
		report.Written += batch.Written
		report.Invalid = append(report.Invalid, batch.Invalid...)
		report.Failed = append(report.Failed, batch.Failed...)
		if err != nil {
			return report, fmt.Errorf("migrate: %w", err)
		}
	}
	log.Info().
		Int("scanned", report.Scanned).
		Int("stale", report.Stale).
		Int("written", report.Written).
		Int("invalid", len(report.Invalid)).
		Int("failed", len(report.Failed)).
		Msg("migration finished")
	return report, nil
}

// writeBatch migrates the stale documents among raws and writes them with
// one BulkPut. Documents already at the latest generation are skipped.
func writeBatch(ctx context.Context, store docstore.Store, raws []todo.RawDocument, opts todo.MigrateOptions, log zerolog.Logger) (Report, error) {
	var report Report
	var docs []docstore.Document
	migrated, failures := todo.MigrateAll(raws, opts)
	for _, failure := range failures {
		log.Warn().Err(failure.Err).Str("doc_id", failure.ID).Msg("skipping invalid document")
	}
	report.Invalid = failures
	for _, m := range migrated {
		if !m.Stale {
			continue
		}
		report.Stale++
		doc, err := docstore.FromTodo(m.Todo)
		if err != nil {
			log.Warn().Err(err).Str("doc_id", m.Todo.ID).Msg("migrated document does not encode")
			report.Invalid = append(report.Invalid, todo.Failure{ID: m.Todo.ID, Err: err})
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return report, nil
	}

	results, err := store.BulkPut(ctx, docs)
	if err != nil {
		return report, err
	}
	for _, result := range results {
		if result.Err == nil {
			report.Written++
			continue
		}
		report.Failed = append(report.Failed, result)
		event := log.Warn()
		if errors.Is(result.Err, docstore.ErrConflict) {
			event = log.Debug()
		}
		event.Err(result.Err).Str("doc_id", result.ID).Msg("migration write failed")
	}
	return report, nil
}

// Queue migrates documents in the background.
type Queue struct {
	store docstore.Store
	opts  Options
	log   zerolog.Logger

	mu      sync.Mutex
	ch      chan todo.RawDocument
	pending map[string]struct{}
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	written int
}

// NewQueue returns a Queue writing to store. Call Start to begin writing.
func NewQueue(store docstore.Store, opts Options) *Queue {
	opts = opts.withDefaults()
	return &Queue{
		store:   store,
		opts:    opts,
		log:     logging.OrNop(opts.Logger).With().Str("component", "migration").Str("policy", string(opts.Policy)).Logger(),
		ch:      make(chan todo.RawDocument, opts.Buffer),
		pending: make(map[string]struct{}),
	}
}

// Policy returns the queue's policy.
func (q *Queue) Policy() Policy {
	return q.opts.Policy
}

// Start launches the worker. Under ReadOnly it does nothing.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed || q.opts.Policy != Persist {
		return
	}
	q.started = true
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.work(ctx)
}

// Enqueue offers documents for migration and returns how many were
// accepted. It never blocks: documents already pending, documents offered
// under ReadOnly, and documents that do not fit the buffer are dropped.
func (q *Queue) Enqueue(docs []todo.RawDocument) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.opts.Policy != Persist {
		if len(docs) > 0 {
			q.log.Debug().Int("docs", len(docs)).Msg("serving stale documents without writing them")
		}
		return 0
	}
	accepted := 0
	for _, doc := range docs {
		if _, ok := q.pending[doc.ID]; ok {
			continue
		}
		select {
		case q.ch <- doc:
			q.pending[doc.ID] = struct{}{}
			accepted++
		default:
			q.log.Debug().Str("doc_id", doc.ID).Msg("migration queue full")
		}
	}
	return accepted
}

// Written returns how many documents the queue has written.
func (q *Queue) Written() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}

// Close stops accepting documents, writes what is already queued and waits
// for the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		var first todo.RawDocument
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-q.ch:
			if !ok {
				return
			}
			first = doc
		}

		batch := []todo.RawDocument{first}
	fill:
		for len(batch) < q.opts.BatchSize {
			select {
			case doc, ok := <-q.ch:
				if !ok {
					break fill
				}
				batch = append(batch, doc)
			default:
				break fill
			}
		}
		q.flush(ctx, batch)
	}
}

func (q *Queue) flush(ctx context.Context, batch []todo.RawDocument) {
	report, err := writeBatch(ctx, q.store, batch, q.opts.Migrate, q.log)
	if err != nil {
		q.log.Warn().Err(err).Int("docs", len(batch)).Msg("migration batch failed")
	}

	q.mu.Lock()
	for _, doc := range batch {
		delete(q.pending, doc.ID)
	}
	q.written += report.Written
	q.mu.Unlock()

	q.log.Debug().Int("docs", len(batch)).Int("written", report.Written).Msg("migrated batch")
}
