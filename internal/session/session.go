// Package session manages persisted login sessions for users and guests.
// Tokens are opaque random strings; lifetime policy lives here, storage in
// the db package.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/UsotsukiKaze/PicManager/internal/auth"
	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/errs"
)

const tokenBytes = 32

// Registry creates, resolves, and destroys sessions.
type Registry struct {
	db       *db.DB
	userTTL  time.Duration
	guestTTL time.Duration
	now      func() time.Time
}

func New(d *db.DB, userTTL, guestTTL time.Duration) *Registry {
	return &Registry{db: d, userTTL: userTTL, guestTTL: guestTTL, now: time.Now}
}

// CreateUser opens a session for an authenticated account.
func (r *Registry) CreateUser(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("%w: invalid user id", errs.ErrInvalidInput)
	}
	return r.create(ctx, &userID, nil, r.userTTL)
}

// CreateGuest opens a short-lived session bound to a caller IP.
func (r *Registry) CreateGuest(ctx context.Context, ip string) (string, error) {
	if ip == "" {
		return "", fmt.Errorf("%w: guest ip is required", errs.ErrInvalidInput)
	}
	return r.create(ctx, nil, &ip, r.guestTTL)
}

func (r *Registry) create(ctx context.Context, userID *int64, guestIP *string, ttl time.Duration) (string, error) {
	// Creation is a natural moment to shed dead rows; failures here must
	// not block the login.
	now := r.now().Unix()
	_, _ = r.db.DeleteExpiredSessions(ctx, now)

	token, err := auth.NewToken(tokenBytes)
	if err != nil {
		return "", err
	}
	if err := r.db.CreateSession(ctx, token, userID, guestIP, now, now+int64(ttl.Seconds())); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the live session for a token. Unknown tokens and expired
// ones both come back as ErrNotFound; an expired row is deleted on the way
// out so it can never resolve again. A valid resolve refreshes the
// session's last activity.
func (r *Registry) Resolve(ctx context.Context, token string) (*db.Session, error) {
	if token == "" {
		return nil, errs.ErrNotFound
	}
	s, ok, err := r.db.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotFound
	}

	now := r.now().Unix()
	if s.ExpiresAt <= now {
		if err := r.db.DeleteSession(ctx, token); err != nil {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}

	if err := r.db.TouchSession(ctx, token, now); err != nil {
		return nil, err
	}
	s.LastActivity = now
	return s, nil
}

// Destroy removes a session. Destroying an unknown token is not an error.
func (r *Registry) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return r.db.DeleteSession(ctx, token)
}

// SweepExpired deletes every expired session and reports how many.
func (r *Registry) SweepExpired(ctx context.Context) (int64, error) {
	return r.db.DeleteExpiredSessions(ctx, r.now().Unix())
}
