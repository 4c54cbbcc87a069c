// Package fetcher loads the dashboard view model and score history as one
// joined unit and owns the resulting state.
//
// Every call to Load starts a new cycle and takes a generation number. Only
// the cycle holding the latest generation may commit, so a slow response can
// never overwrite a newer one, and a cycle commits both halves or nothing.
package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/pkg/logger"
	"github.com/okian/crediscout/pkg/metrics"
)

// FetchFailedMessage is shown when a load fails for a reason other than
// authentication.
const FetchFailedMessage = "Failed to fetch dashboard data."

const millisecondsPerSecond = 1000.0

// Status is the position of the fetcher in its cycle.
type Status int

// Fetch cycle statuses.
const (
	Idle Status = iota
	Loading
	Ready
	Empty
	Failed
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a read-only view of the fetcher. ViewModel and History hold the
// last committed data; they survive a failed cycle and are replaced
// wholesale by a successful one.
type State struct {
	Status     Status
	ViewModel  *model.ViewModel
	History    model.ScoreHistory
	Err        error  // classified, set only when Status is Failed
	Message    string // user-facing, set only when Status is Failed
	Generation uint64
	UpdatedAt  time.Time
}

// Loading reports whether a cycle is in flight.
func (s State) Loading() bool { return s.Status == Loading }

// Source retrieves the two halves of a view from the scoring service.
type Source interface {
	Snapshot(ctx context.Context, token string) (model.SnapshotResult, error)
	History(ctx context.Context, token string) (model.ScoreHistory, error)
}

// TokenSource issues bearer credentials. *session.Gate satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Fetcher owns the view model and score history.
type Fetcher struct {
	source Source
	tokens TokenSource
	logger logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	gen      uint64
	state    State
	watchers map[int]func(State)
	nextID   int

	notifyMu sync.Mutex
}

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithLogger sets a custom logger for the fetcher.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// New creates an idle fetcher.
func New(source Source, tokens TokenSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:   source,
		tokens:   tokens,
		logger:   logger.Discard(),
		now:      time.Now,
		watchers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state. Callers must not mutate the view model.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Watch registers fn for state changes and calls it once with the current
// state. Delivery is serialized and always carries the latest state; fn must
// not call Load or Reset synchronously.
func (f *Fetcher) Watch(fn func(State)) (cancel func()) {
	f.notifyMu.Lock()
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.watchers[id] = fn
	current := f.state
	f.mu.Unlock()
	fn(current)
	f.notifyMu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

// Load runs one fetch cycle. It returns the state after the cycle and
// whether this cycle committed; a superseded cycle returns the state left
// by whichever call is newer.
func (f *Fetcher) Load(ctx context.Context) (State, bool) {
	gen := f.begin()
	start := f.now()

	snap, history, err := f.retrieve(ctx)

	st, committed := f.commit(gen, snap, history, err)
	if !committed {
		metrics.RecordFetchCycle("superseded")
		f.logger.Debug(ctx, "discarded superseded fetch", logger.Uint64("generation", gen))
		return st, false
	}

	metrics.RecordFetchCycle(st.Status.String())
	metrics.RecordFetchLatency(float64(f.now().Sub(start).Microseconds()) / millisecondsPerSecond)
	switch st.Status {
	case Ready:
		metrics.UpdateCurrentScore(st.ViewModel.Score)
		metrics.UpdateHistoryLength(len(st.History))
	case Failed:
		metrics.RecordError("fetcher", failure.KindOf(st.Err).String())
		f.logger.Warn(ctx, "dashboard fetch failed", logger.Error(err), logger.Uint64("generation", gen))
	}
	return st, true
}

// Reset drops committed data and supersedes any cycle in flight. It is used
// when the signed-in identity changes.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	f.gen++
	f.state = State{Status: Idle, Generation: f.gen, UpdatedAt: f.now()}
	f.mu.Unlock()
	f.notify()
}

func (f *Fetcher) begin() uint64 {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.state.Status = Loading
	f.state.Err = nil
	f.state.Message = ""
	f.state.Generation = gen
	f.mu.Unlock()
	f.notify()
	return gen
}

// retrieve obtains a token and then both halves concurrently. Either failure
// fails the whole unit.
func (f *Fetcher) retrieve(ctx context.Context) (model.SnapshotResult, model.ScoreHistory, error) {
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return model.SnapshotResult{}, nil, err
	}

	var (
		snap    model.SnapshotResult
		history model.ScoreHistory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = f.source.Snapshot(gctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = f.source.History(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.SnapshotResult{}, nil, err
	}
	if !snap.Empty && snap.ViewModel == nil {
		return model.SnapshotResult{}, nil, errors.New("snapshot result carries no view model")
	}
	return snap, history, nil
}

func (f *Fetcher) commit(gen uint64, snap model.SnapshotResult, history model.ScoreHistory, err error) (State, bool) {
	f.mu.Lock()
	if gen != f.gen {
		st := f.state
		f.mu.Unlock()
		return st, false
	}

	next := f.state
	next.Generation = gen
	next.UpdatedAt = f.now()
	switch {
	case err != nil:
		next.Status = Failed
		next.Err = classify(err)
		next.Message = failure.MessageOf(next.Err, FetchFailedMessage)
	case snap.Empty:
		next.Status = Empty
		next.ViewModel = nil
		next.History = history.Clone()
		next.Err = nil
		next.Message = ""
	default:
		next.Status = Ready
		next.ViewModel = snap.ViewModel.Clone()
		next.History = history.Clone()
		next.Err = nil
		next.Message = ""
	}
	f.state = next
	f.mu.Unlock()

	f.notify()
	return next, true
}

// classify keeps authentication and session failures distinct from generic
// fetch failures.
func classify(err error) error {
	switch failure.KindOf(err) {
	case failure.KindUnauthenticated, failure.KindIndeterminate:
		return err
	default:
		return failure.Fetch(FetchFailedMessage, err)
	}
}

func (f *Fetcher) notify() {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()

	f.mu.Lock()
	st := f.state
	fns := make([]func(State), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
