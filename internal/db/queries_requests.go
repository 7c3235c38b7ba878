package db

import (
	"context"
	"database/sql"
	"errors"
)

const requestCols = `id, request_type, status, user_id, guest_ip, image_id, payload,
temp_path, original_name, rejection_reason, created_at, reviewed_at, reviewed_by`

// CreateRequest inserts a request row and returns its ID. Used both for
// pending submissions and for the pre-approved bookkeeping rows written by
// the privilege short-circuit.
func (s queries) CreateRequest(ctx context.Context, r *PendingRequest) (int64, error) {
	if r == nil || r.RequestType == "" {
		return 0, errors.New("request type is required")
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = nowUnix()
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO pending_requests(request_type, status, user_id, guest_ip, image_id, payload,
  temp_path, original_name, rejection_reason, created_at, reviewed_at, reviewed_by)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.RequestType, r.Status, r.UserID, r.GuestIP, r.ImageID, r.Payload,
		r.TempPath, r.OriginalName, r.RejectionReason, r.CreatedAt, r.ReviewedAt, r.ReviewedBy)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetRequest looks up a request by ID.
func (s queries) GetRequest(ctx context.Context, id int64) (*PendingRequest, bool, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+requestCols+` FROM pending_requests WHERE id=?`, id)
	r, err := scanRequest(row.Scan)
	if err == nil {
		return r, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, err
}

// ListPendingRequests returns the review queue, newest first.
func (s queries) ListPendingRequests(ctx context.Context) ([]PendingRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestCols+` FROM pending_requests WHERE status=? ORDER BY created_at DESC, id DESC`,
		StatusPending)
}

// ListRequestsByUser returns every request a user ever submitted, newest
// first, regardless of status.
func (s queries) ListRequestsByUser(ctx context.Context, userID int64) ([]PendingRequest, error) {
	return s.listRequests(ctx,
		`SELECT `+requestCols+` FROM pending_requests WHERE user_id=? ORDER BY created_at DESC, id DESC`,
		userID)
}

func (s queries) listRequests(ctx context.Context, query string, args ...any) ([]PendingRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRequest(scan func(dest ...any) error) (*PendingRequest, error) {
	var r PendingRequest
	err := scan(&r.ID, &r.RequestType, &r.Status, &r.UserID, &r.GuestIP, &r.ImageID, &r.Payload,
		&r.TempPath, &r.OriginalName, &r.RejectionReason, &r.CreatedAt, &r.ReviewedAt, &r.ReviewedBy)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkRequestReviewed flips a pending request to its final status. The
// WHERE clause only matches rows still pending, so the returned flag is
// false when another reviewer already resolved the request.
func (s queries) MarkRequestReviewed(ctx context.Context, id int64, status string, reviewerID int64, reason string, now int64) (bool, error) {
	if status != StatusApproved && status != StatusRejected {
		return false, errors.New("invalid review status")
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE pending_requests SET status=?, rejection_reason=?, reviewed_at=?, reviewed_by=?
WHERE id=? AND status=?
`, status, reason, now, reviewerID, id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePendingRequest removes a request only while it is still pending.
// Used by withdraw; the flag is false when the row is gone or decided.
func (s queries) DeletePendingRequest(ctx context.Context, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM pending_requests WHERE id=? AND status=?`, id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
