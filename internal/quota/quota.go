// Package quota enforces the per-IP daily ceiling on guest contributions.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/errs"
)

// Tracker counts guest contributions per (ip, local day).
type Tracker struct {
	db      *db.DB
	ceiling int
	now     func() time.Time
}

func New(d *db.DB, ceiling int) *Tracker {
	return &Tracker{db: d, ceiling: ceiling, now: time.Now}
}

// Day renders the local-time day bucket for t.
func Day(t time.Time) string { return t.Format("2006-01-02") }

// Ceiling returns the configured daily limit.
func (t *Tracker) Ceiling() int { return t.ceiling }

// Consume takes one unit of today's allowance for ip. It returns
// ErrQuotaExceeded once the ceiling is reached; the check and increment
// are a single atomic statement, so concurrent guests cannot overshoot.
func (t *Tracker) Consume(ctx context.Context, ip string) error {
	if ip == "" {
		return fmt.Errorf("%w: guest ip is required", errs.ErrInvalidInput)
	}
	ok, err := t.db.ConsumeGuestQuota(ctx, ip, Day(t.now()), t.ceiling)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrQuotaExceeded
	}
	return nil
}

// Remaining reports how much of today's allowance ip still has.
func (t *Tracker) Remaining(ctx context.Context, ip string) (int, error) {
	if ip == "" {
		return 0, fmt.Errorf("%w: guest ip is required", errs.ErrInvalidInput)
	}
	used, err := t.db.GetGuestQuota(ctx, ip, Day(t.now()))
	if err != nil {
		return 0, err
	}
	left := t.ceiling - used
	if left < 0 {
		left = 0
	}
	return left, nil
}
