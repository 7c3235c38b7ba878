package httpapi

import (
	"net/http"
	"runtime/debug"
)

// withRecover converts a handler panic into a 500 so one bad request
// cannot take the whole daemon down.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.Logger.Error("handler panic", "path", r.URL.Path, "value", v, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
