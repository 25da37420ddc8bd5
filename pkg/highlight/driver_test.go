package highlight_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tmhighlight/pkg/highlight"
	"gitlab.com/tozd/go/errors"
)

type span struct {
	Text    string
	Classes []string
}

type recordSink struct {
	spans []span
}

func (s *recordSink) AppendSpan(text string, classes ...string) {
	s.spans = append(s.spans, span{Text: text, Classes: classes})
}

func (s *recordSink) text() string {
	out := ""
	for _, sp := range s.spans {
		out += sp.Text
	}
	return out
}

type call struct {
	line  string
	stack string
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("test_single_token_stub", func(t *testing.T) {
		sink := &recordSink{}
		tokenize := func(line string, stack int) ([]highlight.Token, int, error) {
			return []highlight.Token{{StartIndex: 0, EndIndex: 2, Scopes: []string{"comment"}}}, stack, nil
		}

		require.NoError(t, highlight.Run(ctx, "ab", 0, tokenize, sink))
		assert.Equal(t, []span{{Text: "ab", Classes: []string{"comment"}}}, sink.spans)
	})

	t.Run("test_unchanged_stack_is_threaded", func(t *testing.T) {
		var calls []call
		tokenize := func(line string, stack string) ([]highlight.Token, string, error) {
			calls = append(calls, call{line, stack})
			return nil, stack, nil
		}

		require.NoError(t, highlight.Run(ctx, "a\nb", "initial", tokenize, &recordSink{}))
		assert.Equal(t, []call{{"a\n", "initial"}, {"b\n", "initial"}}, calls)
	})

	t.Run("test_returned_stack_feeds_next_line", func(t *testing.T) {
		var calls []call
		tokenize := func(line string, stack string) ([]highlight.Token, string, error) {
			calls = append(calls, call{line, stack})
			return nil, stack + "+", nil
		}

		require.NoError(t, highlight.Run(ctx, "a\nb\nc", "s", tokenize, &recordSink{}))
		assert.Equal(t, []call{{"a\n", "s"}, {"b\n", "s+"}, {"c\n", "s++"}}, calls)
	})

	t.Run("test_line_splitting", func(t *testing.T) {
		tests := []struct {
			name string
			text string
			want []string
		}{
			{name: "test_empty_text", text: "", want: []string{"\n"}},
			{name: "test_trailing_newline", text: "a\n", want: []string{"a\n", "\n"}},
			{name: "test_blank_middle_line", text: "a\n\nb", want: []string{"a\n", "\n", "b\n"}},
			{name: "test_carriage_return_kept", text: "a\r\nb", want: []string{"a\r\n", "b\n"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var lines []string
				tokenize := func(line string, stack struct{}) ([]highlight.Token, struct{}, error) {
					lines = append(lines, line)
					return nil, stack, nil
				}
				require.NoError(t, highlight.Run(ctx, tt.text, struct{}{}, tokenize, &recordSink{}))
				assert.Equal(t, tt.want, lines)
			})
		}
	})

	t.Run("test_scopes_become_identifiers_in_order", func(t *testing.T) {
		sink := &recordSink{}
		tokenize := func(line string, stack int) ([]highlight.Token, int, error) {
			return []highlight.Token{
				{StartIndex: 0, EndIndex: 1, Scopes: []string{"source.ts", "meta.block.ts"}},
				{StartIndex: 1, EndIndex: len(line), Scopes: []string{"source.ts"}},
			}, stack, nil
		}

		require.NoError(t, highlight.Run(ctx, "{}", 0, tokenize, sink))
		assert.Equal(t, []span{
			{Text: "{", Classes: []string{"source--ts", "meta--block--ts"}},
			{Text: "}\n", Classes: []string{"source--ts"}},
		}, sink.spans)
	})

	t.Run("test_bad_tokens_abort", func(t *testing.T) {
		tests := []struct {
			name   string
			tokens []highlight.Token
		}{
			{name: "test_past_line_end", tokens: []highlight.Token{{StartIndex: 0, EndIndex: 4}}},
			{name: "test_negative_start", tokens: []highlight.Token{{StartIndex: -1, EndIndex: 1}}},
			{name: "test_reversed", tokens: []highlight.Token{{StartIndex: 2, EndIndex: 1}}},
			{name: "test_overlap", tokens: []highlight.Token{{StartIndex: 0, EndIndex: 2}, {StartIndex: 1, EndIndex: 3}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tokenize := func(line string, stack int) ([]highlight.Token, int, error) {
					return tt.tokens, stack, nil
				}
				err := highlight.Run(ctx, "ab", 0, tokenize, &recordSink{})
				require.Error(t, err)
				assert.True(t, errors.Is(err, highlight.ErrTokenCoverage))
			})
		}
	})

	t.Run("test_tokenizer_error_aborts", func(t *testing.T) {
		boom := errors.New("boom")
		n := 0
		tokenize := func(line string, stack int) ([]highlight.Token, int, error) {
			n++
			if n == 2 {
				return nil, stack, boom
			}
			return nil, stack, nil
		}

		err := highlight.Run(ctx, "a\nb\nc", 0, tokenize, &recordSink{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Contains(t, err.Error(), "line 2")
		assert.Equal(t, 2, n, "no line after the failing one is tokenized")
	})
}
