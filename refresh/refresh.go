// Package refresh keeps a board current by reloading it when the store
// reports a write.
package refresh

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amonks/daybook/board"
	"github.com/amonks/daybook/docstore"
	"github.com/amonks/daybook/internal/logging"
)

// Subscriber is the part of docstore.Store the Refresher needs.
type Subscriber interface {
	Subscribe(fn func(docstore.Change)) (cancel func())
}

// Options configures a Refresher.
type Options struct {
	// OnResult receives every current board load.
	OnResult func(board.Result)

	Logger *zerolog.Logger
}

// Refresher counts changes from the store feed and reloads the board
// whenever a change is not covered by a load that has yet to capture the
// count. A change that lands during a load is therefore picked up by the
// following one, and a burst of changes asks for that load only once.
type Refresher struct {
	sub     Subscriber
	load    board.LoadFunc
	opts    Options
	log     zerolog.Logger
	fetcher *board.Fetcher

	mu        sync.Mutex
	ctx       context.Context
	request   board.Request
	changes   uint64
	fetchedAt uint64
	loaded    bool
	cancel    func()

	// pending is set while a load has been requested but has not yet
	// captured the change count. Changes seen then are covered by it.
	pending bool
}

// New returns a Refresher that loads boards with load.
func New(sub Subscriber, load board.LoadFunc, opts Options) *Refresher {
	r := &Refresher{
		sub:  sub,
		load: load,
		opts: opts,
		log:  logging.OrNop(opts.Logger).With().Str("component", "refresh").Logger(),
	}
	r.fetcher = board.NewFetcher(r.tracked, r.deliver)
	return r
}

// Start subscribes to the change feed and loads req.
func (r *Refresher) Start(ctx context.Context, req board.Request) {
	r.mu.Lock()
	r.ctx = ctx
	r.request = req
	r.pending = true
	if r.cancel == nil {
		r.cancel = r.sub.Subscribe(r.onChange)
	}
	r.mu.Unlock()
	r.fetcher.Request(ctx, req)
}

// SetRequest switches to a new request and loads it. Results still in
// flight for the old request are dropped.
func (r *Refresher) SetRequest(req board.Request) {
	r.mu.Lock()
	r.request = req
	ctx := r.ctx
	if ctx != nil {
		r.pending = true
	}
	r.mu.Unlock()
	if ctx != nil {
		r.fetcher.Request(ctx, req)
	}
}

// Stop unsubscribes and waits for a running load to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.fetcher.Wait()
}

// Wait blocks until no load is running.
func (r *Refresher) Wait() {
	r.fetcher.Wait()
}

// Changes returns how many changes have been observed.
func (r *Refresher) Changes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes
}

// Current reports whether the last successful load started after every
// observed change.
func (r *Refresher) Current() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded && r.fetchedAt == r.changes
}

func (r *Refresher) onChange(change docstore.Change) {
	r.mu.Lock()
	r.changes++
	ctx, req := r.ctx, r.request
	covered := r.pending || ctx == nil
	if !covered {
		r.pending = true
	}
	r.mu.Unlock()

	r.log.Debug().Int64("seq", change.Seq).Str("doc_id", change.ID).Bool("covered", covered).Msg("observed change")
	if !covered {
		r.fetcher.Request(ctx, req)
	}
}

// tracked wraps the load so a success records the change count from
// before it started.
func (r *Refresher) tracked(ctx context.Context, req board.Request) (*board.Board, error) {
	r.mu.Lock()
	start := r.changes
	r.pending = false
	r.mu.Unlock()

	b, err := r.load(ctx, req)
	if err != nil {
		return b, err
	}

	r.mu.Lock()
	if !r.loaded || start > r.fetchedAt {
		r.fetchedAt = start
	}
	r.loaded = true
	r.mu.Unlock()
	return b, nil
}

func (r *Refresher) deliver(result board.Result) {
	if result.Err != nil {
		r.log.Warn().Err(result.Err).Str("window", result.Request.Window.String()).Msg("board refresh failed")
	}
	if r.opts.OnResult != nil {
		r.opts.OnResult(result)
	}
}
