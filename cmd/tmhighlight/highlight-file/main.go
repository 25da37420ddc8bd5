package highlight_file

import (
	"context"
	"io"

	"github.com/k0kubun/pp/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/tmhighlight/cmd/tmhighlight/common"
	"github.com/walteh/tmhighlight/pkg/highlight"
	"github.com/walteh/tmhighlight/pkg/textmate"
	"github.com/walteh/tmhighlight/pkg/tmlanguage"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	opts        common.Options
	scope       string
	out         string
	dumpGrammar bool
	watch       bool

	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewHighlightCommand(fs afero.Fs) *cobra.Command {
	me := &Handler{fs: fs}

	cmd := &cobra.Command{
		Use:   "highlight <file>",
		Short: "render a source file as highlighted HTML",
		Long: "Render a source file as a <style> block followed by a <pre><code> fragment.\n" +
			"The grammar is picked from the file extension unless --scope is given. Use - to read stdin.",
		Args: cobra.ExactArgs(1),
	}

	me.opts.Register(cmd)
	cmd.Flags().StringVar(&me.scope, "scope", "", "grammar scope to use, e.g. source.ts (default: from the file extension)")
	cmd.Flags().StringVarP(&me.out, "out", "o", "", "write the HTML here instead of stdout")
	cmd.Flags().BoolVar(&me.dumpGrammar, "dump-grammar", false, "print the loaded grammar's repository to stderr")
	cmd.Flags().BoolVarP(&me.watch, "watch", "w", false, "re-render --out whenever the file changes")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.stdin = cmd.InOrStdin()
		me.stdout = cmd.OutOrStdout()
		me.stderr = cmd.ErrOrStderr()
		return me.Run(cmd.Context(), args[0])
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, path string) error {
	ctx = me.opts.WithLogger(ctx, me.stderr)
	logger := zerolog.Ctx(ctx)

	env, err := me.opts.Load(ctx, me.fs)
	if err != nil {
		return err
	}

	if me.watch && (me.out == "" || path == "-") {
		return errors.New("--watch needs a file argument and --out")
	}

	scope := me.scope
	if scope == "" {
		if path == "-" {
			return errors.New("--scope is required when reading stdin")
		}
		scope, err = env.Store.ScopeForPath(path)
		if err != nil {
			return err
		}
	}

	if me.dumpGrammar {
		if err := me.dump(ctx, env.Registry, scope); err != nil {
			return err
		}
	}

	h := highlight.New(env.Table)
	render := func() error {
		text, err := me.readInput(path)
		if err != nil {
			return err
		}
		logger.Debug().Str("file", path).Str("scope", scope).Int("bytes", len(text)).Msg("highlighting")

		html, err := h.Highlight(ctx, env.Registry, scope, text)
		if err != nil {
			return errors.Errorf("highlighting %s: %w", path, err)
		}
		return me.write(ctx, html)
	}

	if me.watch {
		return watchFile(ctx, path, render)
	}
	return render()
}

func (me *Handler) write(ctx context.Context, html string) error {
	if me.out == "" {
		_, err := io.WriteString(me.stdout, html+"\n")
		return err
	}
	if err := afero.WriteFile(me.fs, me.out, []byte(html+"\n"), 0o644); err != nil {
		return errors.Errorf("writing %s: %w", me.out, err)
	}
	zerolog.Ctx(ctx).Info().Str("out", me.out).Msg("wrote highlighted html")
	return nil
}

func (me *Handler) readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(me.stdin)
		if err != nil {
			return "", errors.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := afero.ReadFile(me.fs, path)
	if err != nil {
		return "", errors.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// repositoryEntry is one line of the --dump-grammar output.
type repositoryEntry struct {
	Key    string
	Kind   string
	Scopes []string
}

func (me *Handler) dump(ctx context.Context, reg *textmate.Registry, scope string) error {
	g, err := reg.LoadGrammar(ctx, scope)
	if err != nil {
		return err
	}
	if g == nil {
		return errors.Errorf("%w: no grammar for scope %s", highlight.ErrGrammarLoad, scope)
	}

	var entries []repositoryEntry
	for key, r := range g.Repository().All() {
		e := repositoryEntry{Key: key, Kind: ruleKind(r)}
		if !tmlanguage.IsReserved(key) {
			highlight.WalkRule(r, func(s string, _ *string) {
				e.Scopes = append(e.Scopes, s)
			})
		}
		entries = append(entries, e)
	}

	printer := pp.New()
	printer.SetOutput(me.stderr)
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)
	_, err = printer.Println(entries)
	return err
}

func ruleKind(r *tmlanguage.Rule) string {
	switch {
	case r == nil:
		return "empty"
	case r.Include != "":
		return "include " + r.Include
	case r.Match != "":
		return "match"
	case r.Begin != "" && r.While != "":
		return "begin/while"
	case r.Begin != "":
		return "begin/end"
	default:
		return "patterns"
	}
}
