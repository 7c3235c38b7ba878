package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses a request body; malformed bodies are invalid input.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json", errs.ErrInvalidInput)
	}
	return nil
}

type userView struct {
	ID        int64  `json:"id"`
	Account   string `json:"account"`
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

func viewUser(u *db.User) userView {
	return userView{ID: u.ID, Account: u.Account, Nickname: u.Nickname, Role: u.Role, CreatedAt: u.CreatedAt}
}

// requestView is the external shape of a pending request. The
// quarantine path stays server-side.
type requestView struct {
	ID              int64           `json:"id"`
	RequestType     string          `json:"request_type"`
	Status          string          `json:"status"`
	UserID          *int64          `json:"user_id,omitempty"`
	GuestIP         *string         `json:"guest_ip,omitempty"`
	ImageID         *string         `json:"image_id,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	OriginalName    string          `json:"original_name,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       int64           `json:"created_at"`
	ReviewedAt      *int64          `json:"reviewed_at,omitempty"`
	ReviewedBy      *int64          `json:"reviewed_by,omitempty"`
}

func viewRequest(r *db.PendingRequest) requestView {
	payload := json.RawMessage(r.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return requestView{
		ID:              r.ID,
		RequestType:     r.RequestType,
		Status:          r.Status,
		UserID:          r.UserID,
		GuestIP:         r.GuestIP,
		ImageID:         r.ImageID,
		Payload:         payload,
		OriginalName:    r.OriginalName,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt,
		ReviewedAt:      r.ReviewedAt,
		ReviewedBy:      r.ReviewedBy,
	}
}

func viewRequests(rs []db.PendingRequest) []requestView {
	out := make([]requestView, 0, len(rs))
	for i := range rs {
		out = append(out, viewRequest(&rs[i]))
	}
	return out
}

// submitResponse acknowledges a submission: applied immediately or
// queued for review.
func submitResponse(w http.ResponseWriter, requestID int64, applied bool, imageID string) {
	if applied {
		body := map[string]any{"status": "applied", "request_id": requestID}
		if imageID != "" {
			body["image_id"] = imageID
		}
		writeJSON(w, http.StatusOK, body)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "pending", "request_id": requestID})
}
