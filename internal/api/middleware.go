package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const ownerKey ctxKey = iota

// WithOwner returns ctx carrying the authenticated owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFrom returns the authenticated owner, or "".
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

var (
	errMissingAuth = errors.New("missing authorization")
	errInvalidAuth = errors.New("invalid authorization header")
	errBadToken    = errors.New("invalid token")
	errNoSubject   = errors.New("token has no subject")
)

// IssueToken signs an HS256 bearer token whose subject is owner.
func IssueToken(secret []byte, owner string, ttl time.Duration) (string, error) {
	if owner == "" {
		return "", errNoSubject
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  owner,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a bearer token and returns its subject.
func ParseToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", errBadToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errNoSubject
	}
	return sub, nil
}

// AuthMiddleware validates the bearer JWT and stores its subject as the owner.
func AuthMiddleware(secret []byte, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := authenticate(r, secret)
			if err != nil {
				log.Debug("auth rejected", "path", r.URL.Path, "error", err)
				jsonError(w, codeUnauthorized, err.Error(), http.StatusUnauthorized)
				return
			}
			noteOwner(r.Context(), owner)
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func authenticate(r *http.Request, secret []byte) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errMissingAuth
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", errInvalidAuth
	}
	return ParseToken(secret, token)
}

// RateLimit applies the per-owner token bucket. It must run after
// AuthMiddleware.
func RateLimit(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Allow("owner:" + OwnerFrom(r.Context()))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				jsonError(w, codeRateLimited, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs incoming requests.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: 200}
			// The owner is only known after auth runs further down the chain.
			holder := &ownerHolder{}
			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ownerHolderKey{}, holder)))
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"owner", holder.owner,
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type ownerHolderKey struct{}

type ownerHolder struct{ owner string }

func noteOwner(ctx context.Context, owner string) {
	if h, ok := ctx.Value(ownerHolderKey{}).(*ownerHolder); ok {
		h.owner = owner
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
