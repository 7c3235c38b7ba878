package db

import (
	"context"
	"database/sql"
	"errors"
)

// ConsumeGuestQuota atomically increments the (ip, day) counter unless it
// already reached ceiling. The upsert's UPDATE arm is guarded by the
// ceiling, so rows-affected doubles as the allow/deny signal; the single
// write connection serializes concurrent callers.
func (s queries) ConsumeGuestQuota(ctx context.Context, ip, day string, ceiling int) (bool, error) {
	if ip == "" || day == "" {
		return false, errors.New("ip and day are required")
	}
	if ceiling < 1 {
		return false, errors.New("invalid quota ceiling")
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO guest_quota(ip, day, count) VALUES(?, ?, 1)
ON CONFLICT(ip, day) DO UPDATE SET count = count + 1 WHERE count < ?
`, ip, day, ceiling)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetGuestQuota returns the consumed count for (ip, day), zero if absent.
func (s queries) GetGuestQuota(ctx context.Context, ip, day string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT count FROM guest_quota WHERE ip=? AND day=?`, ip, day).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}
