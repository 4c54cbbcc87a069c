package service

import (
	"context"

	"github.com/okian/crediscout/internal/adapters/identity"
	"github.com/okian/crediscout/internal/domain/session"
)

// IdentityProvider adapts the identity toolkit client to Provider.
func IdentityProvider(c *identity.Client) Provider {
	return identityProvider{client: c}
}

type identityProvider struct {
	client *identity.Client
}

func (p identityProvider) SignIn(ctx context.Context, email, password string) (session.Identity, error) {
	u, err := p.client.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (p identityProvider) Register(ctx context.Context, email, password, displayName string) (session.Identity, error) {
	u, err := p.client.Register(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	return u, nil
}
