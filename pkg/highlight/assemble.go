package highlight

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/tmhighlight/pkg/textmate"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"
)

var ErrGrammarLoad = errors.Base("grammar load failed")

// Assemble renders the style block followed by the collected spans.
func Assemble(styleBlock string, sink *NodeSink) (string, error) {
	var b strings.Builder
	b.WriteString("<style>\n")
	b.WriteString(styleBlock)
	b.WriteString("\n</style>\n\n")
	if err := html.Render(&b, sink.Root()); err != nil {
		return "", errors.Errorf("rendering spans: %w", err)
	}
	return b.String(), nil
}

// GrammarLoader is the part of textmate.Registry the highlighter needs.
type GrammarLoader interface {
	LoadGrammar(ctx context.Context, scope string) (*textmate.Grammar, error)
}

var _ GrammarLoader = (*textmate.Registry)(nil)

// Highlighter produces a complete highlighted fragment for one text and one
// grammar at a time.
type Highlighter struct {
	classifier *Classifier
}

func New(table StyleTable) *Highlighter {
	return &Highlighter{classifier: NewClassifier(table)}
}

func (h *Highlighter) Classifier() *Classifier {
	return h.classifier
}

// StyleBlock emits the CSS rules for every scope the grammar can produce.
func (h *Highlighter) StyleBlock(g *textmate.Grammar) string {
	return h.classifier.EmitStyleBlock(CollectGrammarScopes(g.Repository(), g.Raw().Patterns))
}

// Highlight loads scope from reg and renders text with it. Nothing is
// returned unless every step succeeds.
func (h *Highlighter) Highlight(ctx context.Context, reg GrammarLoader, scope, text string) (string, error) {
	logger := zerolog.Ctx(ctx).With().Str("scope", scope).Logger()

	g, err := reg.LoadGrammar(ctx, scope)
	if err != nil {
		return "", errors.Errorf("%w: %s: %w", ErrGrammarLoad, scope, err)
	}
	if g == nil {
		return "", errors.Errorf("%w: no grammar for scope %s", ErrGrammarLoad, scope)
	}

	block := h.StyleBlock(g)
	logger.Debug().Int("bytes", len(block)).Msg("built style block")

	sink := NewNodeSink()
	if err := Run(logger.WithContext(ctx), text, textmate.InitialStack, FromGrammar(g), sink); err != nil {
		return "", err
	}
	logger.Debug().Int("spans", sink.Len()).Msg("tokenized text")

	return Assemble(block, sink)
}
