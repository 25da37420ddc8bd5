// Package common holds the flag and setup code shared by the tmhighlight
// subcommands.
package common

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/tmhighlight/pkg/config"
	"github.com/walteh/tmhighlight/pkg/debug"
	"github.com/walteh/tmhighlight/pkg/grammar"
	"github.com/walteh/tmhighlight/pkg/highlight"
	"github.com/walteh/tmhighlight/pkg/scanner"
	"github.com/walteh/tmhighlight/pkg/textmate"
	"gitlab.com/tozd/go/errors"
)

// Options are the flags every subcommand accepts.
type Options struct {
	ConfigPath   string
	GrammarDirs  []string
	Debug        bool
	MatchTimeout time.Duration
}

func (o *Options) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.ConfigPath, "config", "", "config file (.yaml, .yml or .hcl)")
	cmd.Flags().StringArrayVar(&o.GrammarDirs, "grammar-dir", nil, "extra directory of *.tmLanguage.json grammars (repeatable)")
	cmd.Flags().BoolVar(&o.Debug, "debug", false, "enable debug logging")
	cmd.Flags().DurationVar(&o.MatchTimeout, "match-timeout", scanner.DefaultMatchTimeout, "limit for a single pattern match")
}

// WithLogger attaches a stderr console logger to ctx.
func (o *Options) WithLogger(ctx context.Context, stderr io.Writer) context.Context {
	level := zerolog.InfoLevel
	if o.Debug {
		level = zerolog.DebugLevel
	}

	colored := false
	if f, ok := stderr.(*os.File); ok {
		colored = isatty.IsTerminal(f.Fd())
	}

	logger := debug.NewLogger(stderr, debug.LoggerOptions{
		Level:  level,
		Color:  colored,
		RunID:  xid.New().String(),
		Caller: o.Debug,
	})
	return logger.WithContext(ctx)
}

// Env is everything a subcommand needs to highlight: the loaded config, the
// grammar store, a registry over it and the style table to use.
type Env struct {
	Config   *config.Config
	Store    *grammar.Store
	Registry *textmate.Registry
	Table    highlight.StyleTable
}

// Load builds the Env in dependency order: config, grammars, scanner
// backend, then the registry that joins them.
func (o *Options) Load(ctx context.Context, fs afero.Fs) (*Env, error) {
	logger := zerolog.Ctx(ctx)

	cfg := &config.Config{}
	if o.ConfigPath != "" {
		loaded, err := config.LoadConfig(fs, o.ConfigPath)
		if err != nil {
			return nil, errors.Errorf("loading config %s: %w", o.ConfigPath, err)
		}
		cfg = loaded
		logger.Debug().Str("path", o.ConfigPath).Int("styles", len(cfg.Styles)).Msg("loaded config")
	}

	table, err := cfg.StyleTable()
	if err != nil {
		return nil, err
	}

	opts := []grammar.Option{grammar.WithExtensions(cfg.Extensions)}
	for _, dir := range append(append([]string{}, cfg.GrammarDirs...), o.GrammarDirs...) {
		opts = append(opts, grammar.WithDirectory(fs, dir))
	}
	store, err := grammar.NewStore(ctx, opts...)
	if err != nil {
		return nil, errors.Errorf("loading grammars: %w", err)
	}

	backend := scanner.NewRegexp2Backend(scanner.WithMatchTimeout(o.MatchTimeout))
	reg, err := textmate.NewRegistry(backend, store)
	if err != nil {
		return nil, err
	}

	return &Env{Config: cfg, Store: store, Registry: reg, Table: table}, nil
}

// ResolveScope returns target itself when it names a loaded grammar,
// otherwise the scope for target as a file path.
func (e *Env) ResolveScope(target string) (string, error) {
	if e.Store.Lookup(target) != nil {
		return target, nil
	}
	return e.Store.ScopeForPath(target)
}
