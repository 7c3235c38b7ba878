package db

import (
	"context"
	"database/sql"
	"errors"
)

// CreateUser inserts a new account and returns its database ID.
func (s queries) CreateUser(ctx context.Context, account, nickname, role, passHash string) (int64, error) {
	if account == "" || role == "" {
		return 0, errors.New("account and role are required")
	}
	now := nowUnix()
	res, err := s.q.ExecContext(ctx, `
INSERT INTO users(account, nickname, role, password_hash, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
`, account, nickname, role, passHash, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByAccount looks up a user by account number.
func (s queries) GetUserByAccount(ctx context.Context, account string) (*User, bool, error) {
	return s.getUser(ctx, `
SELECT id, account, nickname, role, password_hash, created_at, updated_at
FROM users WHERE account=?
`, account)
}

// GetUserByID looks up a user by database ID.
func (s queries) GetUserByID(ctx context.Context, id int64) (*User, bool, error) {
	return s.getUser(ctx, `
SELECT id, account, nickname, role, password_hash, created_at, updated_at
FROM users WHERE id=?
`, id)
}

func (s queries) getUser(ctx context.Context, query string, arg any) (*User, bool, error) {
	var u User
	err := s.q.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Account, &u.Nickname, &u.Role, &u.PassHash, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		return &u, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// HasRoot reports whether a root account exists yet.
func (s queries) HasRoot(ctx context.Context) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role=?`, RoleRoot).Scan(&n)
	return n > 0, err
}

// SetUserPasswordHash updates an account's password hash.
func (s queries) SetUserPasswordHash(ctx context.Context, id int64, passHash string) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	_, err := s.q.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, passHash, nowUnix(), id)
	return err
}

// SetUserRole changes an account's role.
func (s queries) SetUserRole(ctx context.Context, id int64, role string) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	_, err := s.q.ExecContext(ctx, `UPDATE users SET role=?, updated_at=? WHERE id=?`, role, nowUnix(), id)
	return err
}

// SetUserNickname updates an account's display name.
func (s queries) SetUserNickname(ctx context.Context, id int64, nickname string) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	_, err := s.q.ExecContext(ctx, `UPDATE users SET nickname=?, updated_at=? WHERE id=?`, nickname, nowUnix(), id)
	return err
}

// ListUsersByRole returns all accounts with the given role, oldest first.
func (s queries) ListUsersByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, account, nickname, role, password_hash, created_at, updated_at
FROM users WHERE role=? ORDER BY id ASC
`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Account, &u.Nickname, &u.Role, &u.PassHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
