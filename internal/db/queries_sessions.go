package db

import (
	"context"
	"database/sql"
	"errors"
)

// CreateSession inserts a session row. Exactly one of userID and guestIP
// must be set; the schema enforces the same with a CHECK constraint.
func (s queries) CreateSession(ctx context.Context, token string, userID *int64, guestIP *string, now, expiresAt int64) error {
	if token == "" {
		return errors.New("token is required")
	}
	if (userID == nil) == (guestIP == nil) {
		return errors.New("session needs exactly one of user id and guest ip")
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO sessions(token, user_id, guest_ip, created_at, last_activity, expires_at)
VALUES(?, ?, ?, ?, ?, ?)
`, token, userID, guestIP, now, now, expiresAt)
	return err
}

// GetSession looks up a session by token.
func (s queries) GetSession(ctx context.Context, token string) (*Session, bool, error) {
	var sess Session
	err := s.q.QueryRowContext(ctx, `
SELECT token, user_id, guest_ip, created_at, last_activity, expires_at
FROM sessions WHERE token=?
`, token).Scan(&sess.Token, &sess.UserID, &sess.GuestIP, &sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt)
	if err == nil {
		return &sess, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// TouchSession bumps a session's last activity timestamp.
func (s queries) TouchSession(ctx context.Context, token string, now int64) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sessions SET last_activity=? WHERE token=?`, now, token)
	return err
}

// DeleteSession removes a session by token.
func (s queries) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token is required")
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

// DeleteExpiredSessions deletes sessions whose expiry is at or before now.
func (s queries) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
