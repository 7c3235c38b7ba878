// Package httpapi exposes the moderation core over a JSON HTTP API.
// Sentinel errors from the inner packages are translated to status codes
// here and nowhere else.
package httpapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/UsotsukiKaze/PicManager/internal/db"
	"github.com/UsotsukiKaze/PicManager/internal/errs"
	"github.com/UsotsukiKaze/PicManager/internal/moderation"
	"github.com/UsotsukiKaze/PicManager/internal/quota"
	"github.com/UsotsukiKaze/PicManager/internal/session"
	"github.com/UsotsukiKaze/PicManager/internal/snapshot"
	"github.com/UsotsukiKaze/PicManager/internal/store"
)

const sessionCookie = "pd_session"

type Server struct {
	DB       *db.DB
	Sessions *session.Registry
	Quota    *quota.Tracker
	Engine   *moderation.Engine
	Files    *store.Store
	Snap     *snapshot.Manager
	Logger   *slog.Logger

	BindAddr    string
	Port        int
	MaxUploadMB int
	UserTTL     time.Duration
	GuestTTL    time.Duration

	loginLimiter *fixedWindowLimiter
}

// Handler builds the routing table with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.loginLimiter == nil {
		s.loginLimiter = newFixedWindowLimiter(10, time.Minute)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", s.withLoginLimit(s.handleLogin))
	mux.HandleFunc("/auth/guest", s.handleGuest)
	mux.HandleFunc("/auth/logout", s.handleLogout)
	mux.HandleFunc("/auth/me", s.withIdentity(s.handleMe))
	mux.HandleFunc("/auth/password", s.withIdentity(s.handlePassword))
	mux.HandleFunc("/auth/my-requests", s.withIdentity(s.handleMyRequests))
	mux.HandleFunc("/auth/pending/", s.withIdentity(s.handleWithdraw))
	mux.HandleFunc("/auth/admins", s.withRoot(s.handleAdmins))
	mux.HandleFunc("/auth/admins/", s.withRoot(s.handleAdminByID))

	mux.HandleFunc("/api/groups", s.handleGroups)
	mux.HandleFunc("/api/groups/", s.handleGroupByID)
	mux.HandleFunc("/api/characters", s.handleCharacters)
	mux.HandleFunc("/api/characters/", s.handleCharacterByID)
	mux.HandleFunc("/api/images", s.handleImages)
	mux.HandleFunc("/api/images/", s.handleImageByID)
	mux.HandleFunc("/api/upload", s.withIdentity(s.handleUpload))

	mux.HandleFunc("/admin/pending", s.withAdmin(s.handlePendingList))
	mux.HandleFunc("/admin/pending/", s.withAdmin(s.handleDecide))

	h := withSecurityHeaders(mux)
	h = s.withRequestLog(h)
	return s.withRecover(h)
}

func (s *Server) ListenAndServe() error {
	if s.DB == nil {
		return errors.New("db is required")
	}
	addr := s.BindAddr + ":" + strconv.Itoa(s.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// identity is the resolved caller of an authenticated endpoint.
type identity struct {
	session *db.Session
	user    *db.User
}

func (id identity) caller() moderation.Caller {
	c := moderation.Caller{User: id.user}
	if id.user == nil && id.session.GuestIP != nil {
		c.GuestIP = *id.session.GuestIP
	}
	return c
}

func (id identity) isAdmin() bool {
	return id.user != nil && (id.user.Role == db.RoleAdmin || id.user.Role == db.RoleRoot)
}

// resolveIdentity reads the session cookie and loads the account behind
// it. Expired and unknown tokens both clear the cookie and 401; the
// boolean reports whether the handler should continue.
func (s *Server) resolveIdentity(w http.ResponseWriter, r *http.Request) (identity, bool) {
	tok, ok := readSessionCookie(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return identity{}, false
	}
	sess, err := s.Sessions.Resolve(r.Context(), tok)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			clearSessionCookie(w)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return identity{}, false
		}
		s.serverError(w, r, err)
		return identity{}, false
	}

	id := identity{session: sess}
	if sess.UserID != nil {
		u, ok, err := s.DB.GetUserByID(r.Context(), *sess.UserID)
		if err != nil {
			s.serverError(w, r, err)
			return identity{}, false
		}
		if !ok {
			clearSessionCookie(w)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return identity{}, false
		}
		id.user = u
	}
	return id, true
}

func (s *Server) withIdentity(next func(http.ResponseWriter, *http.Request, identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.resolveIdentity(w, r)
		if !ok {
			return
		}
		next(w, r, id)
	}
}

// withAdmin additionally requires an admin or root account.
func (s *Server) withAdmin(next func(http.ResponseWriter, *http.Request, *db.User)) http.HandlerFunc {
	return s.withIdentity(func(w http.ResponseWriter, r *http.Request, id identity) {
		if !id.isAdmin() {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
			return
		}
		next(w, r, id.user)
	})
}

// withRoot requires the root account.
func (s *Server) withRoot(next func(http.ResponseWriter, *http.Request, *db.User)) http.HandlerFunc {
	return s.withIdentity(func(w http.ResponseWriter, r *http.Request, id identity) {
		if id.user == nil || id.user.Role != db.RoleRoot {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "root only"})
			return
		}
		next(w, r, id.user)
	})
}

// commit notifies the durability manager of a successful mutation.
func (s *Server) commit(r *http.Request) {
	if s.Snap != nil {
		s.Snap.RegisterCommit(r.Context())
	}
}

// writeErr maps sentinel errors to their HTTP status. Anything
// unclassified is a 500 with the detail kept server-side.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, errs.ErrInvalidState):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		s.serverError(w, r, err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.Logger.Error("internal error", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

func readSessionCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-content-type-options", "nosniff")
		w.Header().Set("x-frame-options", "DENY")
		w.Header().Set("referrer-policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
