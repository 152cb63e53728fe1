package hook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/session"
	"github.com/roach88/optisess/internal/snapshot"
	"github.com/roach88/optisess/internal/store"
)

// ErrNoSession is returned by Session when the request carries no valid
// session cookie.
var ErrNoSession = errors.New("request has no session")

type contextKey struct{}

// WithController returns a copy of ctx carrying c.
func WithController(ctx context.Context, c *session.Controller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the unit of work of the request, or nil.
func FromContext(ctx context.Context) *session.Controller {
	c, _ := ctx.Value(contextKey{}).(*session.Controller)
	return c
}

// Session returns the working copy of the request's session, reading it on
// first use.
func Session(r *http.Request) (snapshot.Map, error) {
	c := FromContext(r.Context())
	if c == nil {
		return nil, ErrNoSession
	}
	if c.State() == session.Idle {
		return c.Start(r.Context())
	}
	if local := c.Local(); local != nil {
		return local, nil
	}
	return c.Start(r.Context())
}

// Middleware begins a unit of work for every request whose cookieName
// cookie holds a valid session id, and flushes it after the handler
// returns. Requests without one pass through untouched.
//
// A failed flush becomes a 409 (conflict) or 500 response if the handler
// has not written anything yet. Otherwise it can only be logged.
func Middleware(m *session.Manager, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || store.ValidateID(cookie.Value) != nil {
				next.ServeHTTP(w, r)
				return
			}

			c := m.Begin(cookie.Value)
			rw := &responseRecorder{ResponseWriter: w}
			defer func() {
				rec := recover()
				flushErr := c.Flush(context.WithoutCancel(r.Context()))
				if rec != nil {
					panic(rec)
				}
				if flushErr != nil {
					reportFlushError(rw, r, c, flushErr, logger)
				}
			}()
			next.ServeHTTP(rw, r.WithContext(WithController(r.Context(), c)))
		})
	}
}

func reportFlushError(rw *responseRecorder, r *http.Request, c *session.Controller, err error, logger *slog.Logger) {
	status := http.StatusInternalServerError
	if conflict.IsConflict(err) {
		status = http.StatusConflict
	}
	logger.WarnContext(r.Context(), "session flush failed",
		"session_id", c.ID(),
		"unit_id", c.UnitID(),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"response_written", rw.written,
		"error", err)
	if !rw.written {
		http.Error(rw, http.StatusText(status), status)
	}
}

// responseRecorder notes whether the handler has started the response.
type responseRecorder struct {
	http.ResponseWriter
	written bool
}

func (w *responseRecorder) WriteHeader(code int) {
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
