package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func accessToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminAccessToken == "" {
			s.writeJSONError(w, r, http.StatusUnauthorized, fmt.Errorf("no access token configured"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(accessToken(r)), []byte(s.config.AdminAccessToken)) != 1 {
			s.requestLogger(r).Warnf("invalid access token from %s", r.RemoteAddr)
			s.writeJSONError(w, r, http.StatusUnauthorized, fmt.Errorf("invalid access token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.requestLogger(r).Infof("%s %s (%s) %d %s", r.Method, r.URL.EscapedPath(), r.RemoteAddr, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.writeJSONError(w, r, http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
