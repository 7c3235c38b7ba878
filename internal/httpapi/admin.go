package httpapi

import (
	"net/http"

	"github.com/UsotsukiKaze/PicManager/internal/db"
)

// handlePendingList returns the review queue, newest first.
func (s *Server) handlePendingList(w http.ResponseWriter, r *http.Request, _ *db.User) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	reqs, err := s.Engine.ListPending(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": viewRequests(reqs)})
}

// handleDecide approves or rejects one pending request.
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request, reviewer *db.User) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	reqID, ok := trailingID(r.URL.Path, "/admin/pending/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return
	}

	var req struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	decided, err := s.Engine.Decide(r.Context(), reviewer, reqID, req.Action, req.Reason)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.commit(r)
	writeJSON(w, http.StatusOK, map[string]any{"request": viewRequest(decided)})
}
