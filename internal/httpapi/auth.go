package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/UsotsukiKaze/PicManager/internal/auth"
	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/validate"
)

// handleLogin signs a user in by account number. Plain users need no
// password and are created on first login; admin and root accounts must
// present their password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Account  string `json:"account"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	req.Account = strings.TrimSpace(req.Account)
	if err := validate.Account(req.Account); err != nil {
		s.writeErr(w, r, err)
		return
	}

	ctx := r.Context()
	u, ok, err := s.DB.GetUserByAccount(ctx, req.Account)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if ok && (u.Role == db.RoleAdmin || u.Role == db.RoleRoot) {
		if req.Password == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "password required"})
			return
		}
		okPw, err := auth.VerifyPassword(req.Password, u.PassHash)
		if err != nil || !okPw {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
	}

	if !ok {
		// First login creates the account.
		nickname := "user" + req.Account[len(req.Account)-4:]
		id, err := s.DB.CreateUser(ctx, req.Account, nickname, db.RoleUser, "")
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		u, _, err = s.DB.GetUserByID(ctx, id)
		if err != nil || u == nil {
			s.serverError(w, r, err)
			return
		}
		s.commit(r)
	}

	tok, err := s.Sessions.CreateUser(ctx, u.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	setSessionCookie(w, tok, s.UserTTL)
	writeJSON(w, http.StatusOK, map[string]any{"user": viewUser(u)})
}

// handleGuest opens an anonymous session tied to the caller's IP and
// reports how much of today's quota that IP still has.
func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ip := clientIP(r)
	tok, err := s.Sessions.CreateGuest(r.Context(), ip)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	left, err := s.Quota.Remaining(r.Context(), ip)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	setSessionCookie(w, tok, s.GuestTTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"guest":           true,
		"remaining_quota": left,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if tok, ok := readSessionCookie(r); ok {
		_ = s.Sessions.Destroy(r.Context(), tok)
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, id identity) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id.user != nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": viewUser(id.user)})
		return
	}
	ip := *id.session.GuestIP
	left, err := s.Quota.Remaining(r.Context(), ip)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guest":           true,
		"remaining_quota": left,
	})
}

// handlePassword lets an admin or root change their own password.
func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request, id identity) {
	if r.Method != http.MethodPut {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !id.isAdmin() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if len(req.NewPassword) < 8 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "new password too short"})
		return
	}
	okPw, err := auth.VerifyPassword(req.OldPassword, id.user.PassHash)
	if err != nil || !okPw {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h, err := auth.HashPassword(req.NewPassword, auth.DefaultArgon2Params())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if err := s.DB.SetUserPasswordHash(r.Context(), id.user.ID, h); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.commit(r)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// handleMyRequests returns the caller's submission history. Guests have
// no durable identity beyond their IP, so they get an empty history.
func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request, id identity) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id.user == nil {
		writeJSON(w, http.StatusOK, map[string]any{"requests": []requestView{}})
		return
	}
	reqs, err := s.Engine.ListByUser(r.Context(), id.user.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": viewRequests(reqs)})
}

// handleWithdraw removes the caller's own pending request.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, id identity) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	reqID, ok := trailingID(r.URL.Path, "/auth/pending/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return
	}
	if err := s.Engine.Withdraw(r.Context(), id.caller(), reqID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.commit(r)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// handleAdmins lists or appoints admin accounts. Root only.
func (s *Server) handleAdmins(w http.ResponseWriter, r *http.Request, _ *db.User) {
	switch r.Method {
	case http.MethodGet:
		admins, err := s.DB.ListUsersByRole(r.Context(), db.RoleAdmin)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		out := make([]userView, 0, len(admins))
		for i := range admins {
			out = append(out, viewUser(&admins[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{"admins": out})

	case http.MethodPost:
		var req struct {
			Account  string `json:"account"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
		req.Account = strings.TrimSpace(req.Account)
		if err := validate.Account(req.Account); err != nil {
			s.writeErr(w, r, err)
			return
		}
		if len(req.Password) < 8 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password too short"})
			return
		}
		h, err := auth.HashPassword(req.Password, auth.DefaultArgon2Params())
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		ctx := r.Context()
		u, ok, err := s.DB.GetUserByAccount(ctx, req.Account)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		var id int64
		if ok {
			if u.Role == db.RoleRoot {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "account is root"})
				return
			}
			id = u.ID
			if err := s.DB.SetUserRole(ctx, id, db.RoleAdmin); err != nil {
				s.serverError(w, r, err)
				return
			}
			if err := s.DB.SetUserPasswordHash(ctx, id, h); err != nil {
				s.serverError(w, r, err)
				return
			}
		} else {
			id, err = s.DB.CreateUser(ctx, req.Account, "admin"+req.Account[len(req.Account)-4:], db.RoleAdmin, h)
			if err != nil {
				s.serverError(w, r, err)
				return
			}
		}
		s.commit(r)
		writeJSON(w, http.StatusOK, map[string]any{"id": id})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleAdminByID demotes an admin back to a plain user. Root only.
func (s *Server) handleAdminByID(w http.ResponseWriter, r *http.Request, _ *db.User) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	id, ok := trailingID(r.URL.Path, "/auth/admins/")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid admin id"})
		return
	}

	u, found, err := s.DB.GetUserByID(r.Context(), id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if !found || u.Role != db.RoleAdmin {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "admin not found"})
		return
	}
	if err := s.DB.SetUserRole(r.Context(), id, db.RoleUser); err != nil {
		s.serverError(w, r, err)
		return
	}
	if err := s.DB.SetUserPasswordHash(r.Context(), id, ""); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.commit(r)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// trailingID parses the numeric ID after a route prefix.
func trailingID(path, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
