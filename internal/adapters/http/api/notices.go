package api

import (
	"context"
	"sync"

	"github.com/okian/crediscout/internal/domain/model"
)

// Notices collects alerts and route changes raised by the client service so
// the next page render can show them. It satisfies action.Alerter and
// action.Navigator.
type Notices struct {
	mu    sync.Mutex
	alert string
	route model.Route
}

// NewNotices creates an empty notice box positioned on the dashboard.
func NewNotices() *Notices {
	return &Notices{route: model.RouteDashboard}
}

// Alert keeps the latest alert until it is shown.
func (n *Notices) Alert(_ context.Context, message string) {
	n.mu.Lock()
	n.alert = message
	n.mu.Unlock()
}

// Navigate records the route the client was sent to.
func (n *Notices) Navigate(_ context.Context, route model.Route) {
	n.mu.Lock()
	n.route = route
	n.mu.Unlock()
}

// PopAlert returns the pending alert and clears it.
func (n *Notices) PopAlert() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	msg := n.alert
	n.alert = ""
	return msg
}

// Route returns the last route the client was sent to.
func (n *Notices) Route() model.Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}
