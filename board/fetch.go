package board

import (
	"context"
	"sync"
)

// FetchState is the state of a Fetcher.
type FetchState int

const (
	// Idle means no load is running.
	Idle FetchState = iota

	// InFlight means a load is running and its result is current.
	InFlight

	// InFlightStale means a load is running and another must follow it.
	InFlightStale
)

func (s FetchState) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	case InFlightStale:
		return "in-flight-stale"
	default:
		return "unknown"
	}
}

// LoadFunc loads one board.
type LoadFunc func(ctx context.Context, req Request) (*Board, error)

// Result is delivered for every load whose request is still current.
type Result struct {
	Request Request
	Board   *Board
	Err     error
}

// Fetcher runs at most one load at a time. A request made while a load is
// running is coalesced into a single follow-up load, and a result whose
// request has since been replaced by one with a different key is dropped.
type Fetcher struct {
	load     LoadFunc
	onResult func(Result)

	mu      sync.Mutex
	state   FetchState
	ctx     context.Context
	request Request
	wg      sync.WaitGroup
}

// NewFetcher returns an idle Fetcher.
func NewFetcher(load LoadFunc, onResult func(Result)) *Fetcher {
	return &Fetcher{load: load, onResult: onResult}
}

// State returns the current state.
func (f *Fetcher) State() FetchState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Request asks for req to be loaded with ctx. A follow-up load uses the
// context of the latest request.
func (f *Fetcher) Request(ctx context.Context, req Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx = ctx
	f.request = req
	switch f.state {
	case Idle:
		f.state = InFlight
		f.wg.Add(1)
		go f.run()
	case InFlight:
		f.state = InFlightStale
	case InFlightStale:
	}
}

// Wait blocks until the Fetcher is idle.
func (f *Fetcher) Wait() {
	f.wg.Wait()
}

func (f *Fetcher) run() {
	defer f.wg.Done()
	for {
		f.mu.Lock()
		ctx, req := f.ctx, f.request
		f.mu.Unlock()

		board, err := f.load(ctx, req)

		f.mu.Lock()
		current := f.request.Key() == req.Key()
		f.mu.Unlock()
		if current && f.onResult != nil {
			f.onResult(Result{Request: req, Board: board, Err: err})
		}

		f.mu.Lock()
		if f.state != InFlightStale || f.ctx.Err() != nil {
			f.state = Idle
			f.mu.Unlock()
			return
		}
		f.state = InFlight
		f.mu.Unlock()
	}
}
