// Package session tracks authentication readiness and the current identity.
//
// The gate has exactly one writer. New returns the read side (*Gate), which
// is injected into every consumer, and the write side (*Publisher), which is
// kept by whoever observes the identity provider.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/crediscout/internal/domain/failure"
	"github.com/okian/crediscout/internal/domain/model"
)

// Sentinel errors for gate access.
var (
	ErrUnresolved = errors.New("session unresolved")
	ErrSignedOut  = errors.New("no signed-in identity")
)

// Identity is an authenticated user handle. The core only reads it.
type Identity interface {
	// UID is the stable user id.
	UID() string
	// Profile returns display metadata for the identity.
	Profile() model.Profile
	// Token returns a short-lived bearer credential. It may refresh the
	// credential and may fail when the session has expired.
	Token(ctx context.Context) (string, error)
}

// Status is the discriminator of a session State.
type Status int

// Session statuses.
const (
	Unresolved Status = iota
	SignedOut
	SignedIn
)

func (s Status) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case SignedIn:
		return "signed_in"
	default:
		return "unresolved"
	}
}

// State is an immutable view of the gate. Identity is non-nil only when
// Status is SignedIn.
type State struct {
	Status   Status
	Identity Identity
}

// Resolved reports whether the gate has left the indeterminate state.
func (s State) Resolved() bool { return s.Status != Unresolved }

// Gate is the read side of the session.
type Gate struct {
	mu       sync.RWMutex
	state    State
	watchers map[int]func(State)
	nextID   int

	notifyMu sync.Mutex
}

// Publisher is the single writer of a Gate.
type Publisher struct {
	gate *Gate
}

// New creates an unresolved gate and its publisher.
func New() (*Gate, *Publisher) {
	g := &Gate{watchers: make(map[int]func(State))}
	return g, &Publisher{gate: g}
}

// State returns the current session state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Watch registers fn for every transition. fn is called once right away with
// the current state. Delivery is serialized in publish order; fn must not
// publish or call Watch synchronously. The returned function stops delivery.
func (g *Gate) Watch(fn func(State)) (cancel func()) {
	g.notifyMu.Lock()
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.watchers[id] = fn
	current := g.state
	g.mu.Unlock()
	fn(current)
	g.notifyMu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.watchers, id)
		g.mu.Unlock()
	}
}

// Token obtains a fresh bearer credential for the signed-in identity.
// The returned error is classified: indeterminate while unresolved,
// unauthenticated when signed out or when the identity cannot issue one.
func (g *Gate) Token(ctx context.Context) (string, error) {
	st := g.State()
	switch st.Status {
	case Unresolved:
		return "", failure.Indeterminate(ErrUnresolved)
	case SignedOut:
		return "", failure.Unauthenticated(ErrSignedOut)
	}
	tok, err := st.Identity.Token(ctx)
	if err != nil {
		return "", failure.Unauthenticated(err)
	}
	if tok == "" {
		return "", failure.Unauthenticated(errors.New("identity returned an empty token"))
	}
	return tok, nil
}

// SignedIn publishes id as the current identity. A nil id signs out.
func (p *Publisher) SignedIn(id Identity) {
	if id == nil {
		p.SignedOut()
		return
	}
	p.publish(State{Status: SignedIn, Identity: id})
}

// SignedOut publishes the absence of an identity.
func (p *Publisher) SignedOut() {
	p.publish(State{Status: SignedOut})
}

func (p *Publisher) publish(st State) {
	g := p.gate
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	g.state = st
	fns := make([]func(State), 0, len(g.watchers))
	for _, fn := range g.watchers {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
