package highlight

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/tmhighlight/pkg/textmate"
	"gitlab.com/tozd/go/errors"
)

var ErrTokenCoverage = errors.Base("token outside line")

// Token is a half-open byte range of one line with its scopes in the order
// the tokenizer reported them.
type Token struct {
	StartIndex int
	EndIndex   int
	Scopes     []string
}

// TokenizeFunc tokenizes one line given the state the previous line ended
// in, returning the state for the next line. S is opaque to the driver.
type TokenizeFunc[S any] func(line string, stack S) ([]Token, S, error)

// Run feeds text through tokenize one line at a time and appends a span per
// token to sink. Lines are split on '\n' and each one, including a final
// line without a terminator, is passed with a trailing '\n'.
func Run[S any](ctx context.Context, text string, initial S, tokenize TokenizeFunc[S], sink Sink) error {
	logger := zerolog.Ctx(ctx)

	stack := initial
	for i, line := range strings.Split(text, "\n") {
		line += "\n"

		tokens, next, err := tokenize(line, stack)
		if err != nil {
			return errors.Errorf("tokenizing line %d: %w", i+1, err)
		}

		prev := 0
		for _, tok := range tokens {
			if tok.StartIndex < prev || tok.EndIndex < tok.StartIndex || tok.EndIndex > len(line) {
				return errors.Errorf("line %d: token [%d,%d) after offset %d in %d bytes: %w",
					i+1, tok.StartIndex, tok.EndIndex, prev, len(line), ErrTokenCoverage)
			}
			sink.AppendSpan(line[tok.StartIndex:tok.EndIndex], ToIdentifiers(tok.Scopes)...)
			prev = tok.EndIndex
		}

		logger.Trace().Int("line", i+1).Int("tokens", len(tokens)).Msg("tokenized line")
		stack = next
	}
	return nil
}

// FromGrammar adapts a loaded grammar to the driver.
func FromGrammar(g *textmate.Grammar) TokenizeFunc[*textmate.StateStack] {
	return func(line string, stack *textmate.StateStack) ([]Token, *textmate.StateStack, error) {
		res, err := g.TokenizeLine(line, stack)
		if err != nil {
			return nil, nil, err
		}
		tokens := make([]Token, len(res.Tokens))
		for i, t := range res.Tokens {
			tokens[i] = Token{StartIndex: t.StartIndex, EndIndex: t.EndIndex, Scopes: t.Scopes}
		}
		return tokens, res.RuleStack, nil
	}
}
