package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/optisess/internal/config"
	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/hook"
	"github.com/roach88/optisess/internal/session"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Watch  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP",
		Long: `Start an HTTP server whose requests are units of work on the session
named by the session cookie. A request without the cookie gets a new
session id.

  GET    /session            print the session
  POST   /session?key=value  set keys (values parsed as YAML) and flush
  DELETE /session            clear the session

A POST that loses a conflict gets 409 and changes nothing.

With --watch the conflict rules are reloaded whenever the --config
file changes. Units of work already running keep the rules they began
with.

Example:
  optisess serve --config optisess.yaml --watch
  optisess serve --listen 127.0.0.1:9000 --driver file --db ./sessions`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload conflict rules when the config file changes")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	if opts.Watch && opts.ConfigPath == "" {
		return NewExitError(ExitCommandError, "--watch requires --config")
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cmd.ErrOrStderr(), cfg)

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rules session.RuleSource
	if opts.Watch {
		table, err := cfg.Table()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid rules", err)
		}
		watcher, err := config.NewRuleWatcher(opts.ConfigPath, table, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch config", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		rules = watcher
		logger.Info("watching rules", "path", watcher.Path())
	}

	e, err := opts.newEnv(cmd, cfg, logger, rules)
	if err != nil {
		return err
	}
	defer e.Close()

	listen := cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler:           NewServeHandler(e.manager, cfg.CookieName, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	logger.Info("server started", "addr", ln.Addr().String(),
		"driver", cfg.Store.Driver, "codec", cfg.Codec, "rules", e.manager.Rules().Len())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// NewServeHandler returns the session HTTP API behind hook.Middleware.
func NewServeHandler(m *session.Manager, cookieName string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", handleGetSession)
	mux.HandleFunc("POST /session", handleSetSession)
	mux.HandleFunc("DELETE /session", handleClearSession)
	return issueCookie(cookieName, logger, hook.Middleware(m, cookieName, logger)(mux))
}

// issueCookie gives requests without a session cookie a fresh session id.
func issueCookie(name string, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(name); errors.Is(err, http.ErrNoCookie) {
			id := uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			r.AddCookie(&http.Cookie{Name: name, Value: id})
			logger.DebugContext(r.Context(), "session id issued", "session_id", id)
		}
		next.ServeHTTP(w, r)
	})
}

func handleGetSession(w http.ResponseWriter, r *http.Request) {
	local, err := hook.Session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c := hook.FromContext(r.Context())
	writeJSON(w, http.StatusOK, SessionView{ID: c.ID(), Snapshot: local})
}

// handleSetSession flushes before it responds, so a conflict can still be
// reported as 409.
func handleSetSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, WrapExitError(ExitCommandError, "invalid form", err))
		return
	}
	local, err := hook.Session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	keys := make([]string, 0, len(r.Form))
	for k := range r.Form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := parseValue(r.Form.Get(k))
		if err != nil {
			writeError(w, WrapExitError(ExitCommandError, fmt.Sprintf("invalid value for %q", k), err))
			return
		}
		local[k] = v
	}

	c := hook.FromContext(r.Context())
	if err := c.Flush(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionView{ID: c.ID(), Snapshot: c.Local()})
}

func handleClearSession(w http.ResponseWriter, r *http.Request) {
	if _, err := hook.Session(r); err != nil {
		writeError(w, err)
		return
	}
	c := hook.FromContext(r.Context())
	err := c.Clear()
	if err == nil {
		err = c.Flush(context.WithoutCancel(r.Context()))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Key   string `json:"key,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hook.ErrNoSession), GetExitCode(err) == ExitCommandError:
		status = http.StatusBadRequest
	case conflict.IsConflict(err):
		status = http.StatusConflict
	}
	body := errorBody{Error: err.Error(), Code: ErrorCode(err)}
	body.Key, _ = conflict.ConflictKey(err)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
