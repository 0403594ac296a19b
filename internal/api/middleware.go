package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/models"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	tokenErrKey
)

const requestIDHeader = "X-Request-ID"

// RequestID tags the request with the caller's X-Request-ID or a new uuid.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

type StatusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *StatusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *StatusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Logger writes one line per request once the handler returns.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &StatusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			event := logger.Info()
			if recorder.Status() >= http.StatusInternalServerError {
				event = logger.Error()
			}

			var accountID int64
			if p := auth.PrincipalFrom(r.Context()); p != nil {
				accountID = p.AccountID
			}

			event.
				Str("request_id", RequestIDFrom(r.Context())).
				Int64("account_id", accountID).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("remote_addr", r.RemoteAddr).
				Int("status", recorder.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

// Recoverer turns a handler panic into a 500 and logs the stack.
func Recoverer(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error().
						Str("request_id", RequestIDFrom(r.Context())).
						Str("panic", fmt.Sprintf("%v", rec)).
						Bytes("stack", debug.Stack()).
						Msg("handler panic")
					respondError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate attaches the principal from a Bearer token. Requests without
// a token stay anonymous; a bad token is remembered for RequireAuth.
func Authenticate(tokens *auth.TokenMaker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			fields := strings.Fields(header)
			if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
				ctx = context.WithValue(ctx, tokenErrKey, auth.ErrInvalidToken)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			principal, err := tokens.Verify(fields[1])
			if err != nil {
				ctx = context.WithValue(ctx, tokenErrKey, err)
			} else {
				ctx = auth.WithPrincipal(ctx, principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.PrincipalFrom(r.Context()) == nil {
			message := "Authentication required"
			if r.Context().Value(tokenErrKey) != nil {
				message = "Invalid or expired token"
			}
			respondError(w, http.StatusUnauthorized, message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole must run after RequireAuth.
func RequireRole(role models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if p == nil || p.Role != role {
				respondError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
