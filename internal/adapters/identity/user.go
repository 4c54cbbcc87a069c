package identity

import (
	"context"
	"sync"
	"time"

	"github.com/okian/crediscout/internal/domain/model"
	"github.com/okian/crediscout/pkg/logger"
)

// User is a signed-in identity. It satisfies session.Identity.
type User struct {
	client *Client

	mu           sync.Mutex
	uid          string
	email        string
	displayName  string
	createdAt    time.Time
	idToken      string
	refreshToken string
	expiresAt    time.Time
	signedOut    bool
}

// UID is the stable user id.
func (u *User) UID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uid
}

// Profile returns display metadata for the identity.
func (u *User) Profile() model.Profile {
	u.mu.Lock()
	defer u.mu.Unlock()
	return model.Profile{
		UID:         u.uid,
		Email:       u.email,
		DisplayName: u.displayName,
		CreatedAt:   u.createdAt,
	}
}

// Token returns a valid id token, refreshing it first when it is about to
// expire. Concurrent callers share one refresh.
func (u *User) Token(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.signedOut {
		return "", ErrSignedOut
	}
	if u.idToken != "" && u.client.now().Add(u.client.refreshSkew).Before(u.expiresAt) {
		return u.idToken, nil
	}

	resp, err := u.client.refresh(ctx, u.refreshToken)
	if err != nil {
		u.client.logger.Warn(ctx, "token refresh failed", logger.String("uid", u.uid), logger.Error(err))
		return "", err
	}
	u.idToken = resp.IDToken
	if resp.RefreshToken != "" {
		u.refreshToken = resp.RefreshToken
	}
	u.expiresAt = u.client.expiry(resp.ExpiresIn)
	u.client.logger.Debug(ctx, "token refreshed", logger.String("uid", u.uid))
	return u.idToken, nil
}

// SignOut discards the credentials. Later Token calls fail.
func (u *User) SignOut() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.signedOut = true
	u.idToken = ""
	u.refreshToken = ""
}
