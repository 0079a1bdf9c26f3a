package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// AdminSubjectKey carries the "sub" claim of an authenticated admin token.
const AdminSubjectKey contextKey = "admin_subject"

// instrument logs each request and records its route-level metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			s.metrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}

		level := s.logger.Debug
		if status >= http.StatusInternalServerError {
			level = s.logger.Warn
		} else if route != "/healthz" && route != "/metrics" {
			level = s.logger.Info
		}
		level("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"remote", r.RemoteAddr,
			"req_id", middleware.GetReqID(r.Context()),
		)
	})
}

// adminAuth requires an HS256 bearer token signed with the admin secret.
// With no secret configured every request passes.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	secret := s.opts.AdminJWTSecret
	if secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Error: "unauthorized"})
			return
		}

		scheme, tokenString, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Error: "invalid token format"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			s.logger.Warn("rejected admin token", "error", err, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Status: "error", Error: "invalid or expired token"})
			return
		}

		subject, _ := claims.GetSubject()
		ctx := context.WithValue(r.Context(), AdminSubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
