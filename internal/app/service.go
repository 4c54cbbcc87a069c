// Package service wires the session gate, the view-model fetcher and the
// action orchestrator into one client, and reacts to session transitions.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/crediscout/internal/domain/action"
	"github.com/okian/crediscout/internal/domain/fetcher"
	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/internal/domain/session"
	"github.com/okian/crediscout/pkg/logger"
	"github.com/okian/crediscout/pkg/metrics"
)

// Backend is the scoring service as seen by the client.
type Backend interface {
	fetcher.Source
	action.ReportSource
	action.Submitter
}

// Provider authenticates users against the identity service.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (session.Identity, error)
	Register(ctx context.Context, email, password, displayName string) (session.Identity, error)
}

// Service owns the client-side state for one user session.
type Service struct {
	mu sync.Mutex

	// Core components
	gate      *session.Gate
	publisher *session.Publisher
	fetcher   *fetcher.Fetcher
	actions   *action.Orchestrator
	backend   Backend
	provider  Provider

	// Configuration
	navigator   action.Navigator
	alerter     action.Alerter
	onTask      func(model.UploadTask)
	downloadDir string
	verifyDelay time.Duration

	// State
	started     bool
	unwatch     func()
	loadCtx     context.Context
	cancelLoads context.CancelFunc
	pending     int
	idle        chan struct{}
	lastStatus  session.Status
	lastUID     string

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNavigator sets where route changes are delivered.
func WithNavigator(n action.Navigator) Option {
	return func(s *Service) {
		if n != nil {
			s.navigator = n
		}
	}
}

// WithAlerter sets where transient alerts are delivered.
func WithAlerter(a action.Alerter) Option {
	return func(s *Service) {
		if a != nil {
			s.alerter = a
		}
	}
}

// WithTaskObserver receives every upload task transition.
func WithTaskObserver(fn func(model.UploadTask)) Option {
	return func(s *Service) {
		if fn != nil {
			s.onTask = fn
		}
	}
}

// WithDownloadDir sets the certificate download directory.
func WithDownloadDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.downloadDir = dir
		}
	}
}

// WithVerifyDelay sets the pause between a finished upload and completion.
func WithVerifyDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.verifyDelay = d
		}
	}
}

// New constructs a service around backend and provider. The session starts
// unresolved.
func New(backend Backend, provider Provider, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		provider:    provider,
		navigator:   nopNavigator{},
		downloadDir: ".",
		verifyDelay: action.DefaultVerifyDelay,
		lastStatus:  session.Unresolved,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.gate, s.publisher = session.New()
	s.fetcher = fetcher.New(backend, s.gate, fetcher.WithLogger(s.logger.Named("fetcher")))

	actionOpts := []action.Option{
		action.WithLogger(s.logger.Named("action")),
		action.WithNavigator(s.navigator),
		action.WithDownloadDir(s.downloadDir),
		action.WithVerifyDelay(s.verifyDelay),
	}
	if s.alerter != nil {
		actionOpts = append(actionOpts, action.WithAlerter(s.alerter))
	}
	if s.onTask != nil {
		actionOpts = append(actionOpts, action.WithTaskObserver(s.onTask))
	}
	s.actions = action.New(s.fetcher, s.gate, backend, backend, actionOpts...)
	return s
}

// Gate returns the read side of the session.
func (s *Service) Gate() *session.Gate { return s.gate }

// Fetcher returns the view-model fetcher.
func (s *Service) Fetcher() *fetcher.Fetcher { return s.fetcher }

// Actions returns the action orchestrator.
func (s *Service) Actions() *action.Orchestrator { return s.actions }

// Start begins reacting to session transitions. Automatic loads run on
// contexts derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.loadCtx, s.cancelLoads = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info(ctx, "starting client service")
	unwatch := s.gate.Watch(s.onSession)

	s.mu.Lock()
	s.unwatch = unwatch
	s.mu.Unlock()
	return nil
}

// Stop detaches from the gate, cancels automatic loads and waits for them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	unwatch, cancel := s.unwatch, s.cancelLoads
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	cancel()
	<-s.loadsIdle()
	s.logger.Info(context.Background(), "client service stopped")
}

// Await blocks until the automatic loads started so far have finished or
// ctx ends, and returns the fetcher state.
func (s *Service) Await(ctx context.Context) fetcher.State {
	select {
	case <-s.loadsIdle():
	case <-ctx.Done():
	}
	return s.fetcher.State()
}

// beginLoad counts one automatic load. s.mu must be held.
func (s *Service) beginLoad() {
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
}

func (s *Service) endLoad() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
		s.idle = nil
	}
}

// loadsIdle returns a channel closed once no automatic load is running.
func (s *Service) loadsIdle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle == nil {
		return closedChan
	}
	return s.idle
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// SignIn authenticates and publishes the identity. A failed attempt resolves
// the session as signed out.
func (s *Service) SignIn(ctx context.Context, email, password string) (model.Profile, error) {
	id, err := s.provider.SignIn(ctx, email, password)
	return s.resolve(ctx, "sign-in", id, err)
}

// Register creates an account and publishes it as the signed-in identity.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (model.Profile, error) {
	id, err := s.provider.Register(ctx, email, password, displayName)
	return s.resolve(ctx, "register", id, err)
}

func (s *Service) resolve(ctx context.Context, op string, id session.Identity, err error) (model.Profile, error) {
	if err != nil {
		s.logger.Warn(ctx, "authentication failed", logger.String("op", op), logger.Error(err))
		metrics.RecordError("session", op)
		s.publisher.SignedOut()
		return model.Profile{}, err
	}
	s.publisher.SignedIn(id)
	return id.Profile(), nil
}

// SignOut ends the current session.
func (s *Service) SignOut() {
	if id := s.gate.State().Identity; id != nil {
		if so, ok := id.(interface{ SignOut() }); ok {
			so.SignOut()
		}
	}
	s.publisher.SignedOut()
}

// Profile returns the signed-in user's profile.
func (s *Service) Profile() (model.Profile, bool) {
	st := s.gate.State()
	if st.Status != session.SignedIn {
		return model.Profile{}, false
	}
	return st.Identity.Profile(), true
}

// onSession reacts to one gate transition. Unresolved is ignored, signing
// out redirects once per transition, and each newly signed-in identity gets
// exactly one automatic load.
func (s *Service) onSession(st session.State) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	ctx := s.loadCtx

	switch st.Status {
	case session.SignedOut:
		if s.lastStatus == session.SignedOut {
			s.mu.Unlock()
			return
		}
		s.lastStatus, s.lastUID = session.SignedOut, ""
		s.mu.Unlock()

		s.fetcher.Reset()
		metrics.RecordSessionTransition(st.Status.String())
		s.logger.Info(ctx, "signed out")
		s.navigator.Navigate(ctx, model.RouteSignIn)

	case session.SignedIn:
		uid := st.Identity.UID()
		if s.lastStatus == session.SignedIn && s.lastUID == uid {
			s.mu.Unlock()
			return
		}
		switched := s.lastStatus == session.SignedIn
		s.lastStatus, s.lastUID = session.SignedIn, uid
		s.beginLoad()
		s.mu.Unlock()

		if switched {
			s.fetcher.Reset()
		}
		metrics.RecordSessionTransition(st.Status.String())
		s.logger.Info(ctx, "signed in", logger.String("uid", model.Profile{UID: uid}.InstitutionalID()))
		go func() {
			defer s.endLoad()
			s.fetcher.Load(ctx)
		}()

	default:
		s.mu.Unlock()
	}
}

type nopNavigator struct{}

func (nopNavigator) Navigate(context.Context, model.Route) {}

// State returns the current dashboard state.
func (s *Service) State() fetcher.State { return s.fetcher.State() }

// Refresh reloads the dashboard.
func (s *Service) Refresh(ctx context.Context) fetcher.State { return s.actions.Refresh(ctx) }

// DownloadReport saves the certificate of the current snapshot.
func (s *Service) DownloadReport(ctx context.Context) (string, error) {
	return s.actions.DownloadReport(ctx)
}

// Submit admits and uploads a statement.
func (s *Service) Submit(ctx context.Context, f action.File) (model.UploadTask, error) {
	return s.actions.Submit(ctx, f)
}

// Task returns the current upload task.
func (s *Service) Task() model.UploadTask { return s.actions.Task() }
