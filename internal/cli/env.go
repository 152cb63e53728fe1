package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/optisess/internal/codec"
	"github.com/roach88/optisess/internal/config"
	"github.com/roach88/optisess/internal/session"
	"github.com/roach88/optisess/internal/store"
)

// env is what a session command runs against.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.Store
	manager *session.Manager
	out     *OutputFormatter
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if o.Driver != "" {
		cfg.Store.Driver = o.Driver
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	if o.Codec != "" {
		cfg.Codec = o.Codec
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the text logger on w: the configured level, or Debug
// with --verbose.
func (o *RootOptions) newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openEnv loads the configuration, opens the store and builds a manager
// whose rules come from rules, or from the config when rules is nil.
func (o *RootOptions) openEnv(cmd *cobra.Command, rules session.RuleSource) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return o.newEnv(cmd, cfg, o.newLogger(cmd.ErrOrStderr(), cfg), rules)
}

func (o *RootOptions) newEnv(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, rules session.RuleSource) (*env, error) {
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if rules == nil {
		table, err := cfg.Table()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		rules = session.StaticRules(table)
	}

	logger.Debug("opening store", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	st, err := store.OpenDriver(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		store:  st,
		manager: session.NewManager(st, session.Options{
			Codec:  c,
			Rules:  rules,
			Sink:   session.NewSlogSink(logger),
			Logger: logger,
		}),
		out: o.formatter(cmd),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}
