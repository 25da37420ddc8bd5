package list_scopes

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/tmhighlight/cmd/tmhighlight/common"
	"github.com/walteh/tmhighlight/pkg/highlight"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	opts    common.Options
	styled  bool
	noColor bool

	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

func NewScopesCommand(fs afero.Fs) *cobra.Command {
	me := &Handler{fs: fs}

	cmd := &cobra.Command{
		Use:   "scopes <file|scope>",
		Short: "list the scope names a grammar declares and the class each one gets",
		Args:  cobra.ExactArgs(1),
	}

	me.opts.Register(cmd)
	cmd.Flags().BoolVar(&me.styled, "styled", false, "only list scopes that have a style rule")
	cmd.Flags().BoolVar(&me.noColor, "no-color", false, "disable colored output")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.stdout = cmd.OutOrStdout()
		me.stderr = cmd.ErrOrStderr()
		return me.Run(cmd.Context(), args[0])
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, target string) error {
	ctx = me.opts.WithLogger(ctx, me.stderr)

	env, err := me.opts.Load(ctx, me.fs)
	if err != nil {
		return err
	}

	scope, err := env.ResolveScope(target)
	if err != nil {
		return err
	}

	g, err := env.Registry.LoadGrammar(ctx, scope)
	if err != nil {
		return errors.Errorf("%w: %s: %w", highlight.ErrGrammarLoad, scope, err)
	}
	if g == nil {
		return errors.Errorf("%w: no grammar for scope %s", highlight.ErrGrammarLoad, scope)
	}

	classifier := highlight.NewClassifier(env.Table)

	unstyled := color.New(color.Faint)
	if me.noColor {
		unstyled.DisableColor()
	}

	tw := tabwriter.NewWriter(me.stdout, 0, 4, 2, ' ', 0)
	seen := map[string]bool{}
	for _, s := range highlight.CollectGrammarScopes(g.Repository(), g.Raw().Patterns) {
		if seen[s] {
			continue
		}
		seen[s] = true

		decl, ok := classifier.Classify(s)
		if !ok {
			if me.styled {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s, highlight.ToIdentifier(s), unstyled.Sprint("-"))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s, highlight.ToIdentifier(s), decl)
	}
	return tw.Flush()
}
