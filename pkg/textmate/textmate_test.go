package textmate_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tmhighlight/pkg/scanner"
	"github.com/walteh/tmhighlight/pkg/textmate"
	"github.com/walteh/tmhighlight/pkg/tmlanguage"
	"pgregory.net/rapid"
)

type mapSource map[string]*tmlanguage.Grammar

func (m mapSource) Lookup(scope string) *tmlanguage.Grammar {
	return m[scope]
}

func testContext() context.Context {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	return logger.WithContext(context.Background())
}

func loadGrammar(t testing.TB, docs ...string) *textmate.Grammar {
	t.Helper()
	src := mapSource{}
	var first string
	for _, doc := range docs {
		g, err := tmlanguage.UnmarshalGrammar([]byte(doc))
		require.NoError(t, err)
		src[g.ScopeName] = g
		if first == "" {
			first = g.ScopeName
		}
	}
	reg, err := textmate.NewRegistry(scanner.NewRegexp2Backend(), src)
	require.NoError(t, err)
	g, err := reg.LoadGrammar(testContext(), first)
	require.NoError(t, err)
	require.NotNil(t, g)
	return g
}

type tok struct {
	text   string
	scopes string
}

// tokenizeLines runs lines through g from the initial state and renders each
// token as its text plus space-joined scopes.
func tokenizeLines(t testing.TB, g *textmate.Grammar, lines ...string) ([][]tok, *textmate.StateStack) {
	t.Helper()
	var out [][]tok
	stack := textmate.InitialStack
	for _, line := range lines {
		res, err := g.TokenizeLine(line, stack)
		require.NoError(t, err)
		var row []tok
		for _, tk := range res.Tokens {
			row = append(row, tok{text: line[tk.StartIndex:tk.EndIndex], scopes: strings.Join(tk.Scopes, " ")})
		}
		out = append(out, row)
		stack = res.RuleStack
	}
	return out, stack
}

func TestTokenizeLine(t *testing.T) {
	tests := []struct {
		name      string
		grammars  []string
		lines     []string
		want      [][]tok
		wantDepth int
	}{
		{
			name:     "test_match_rule",
			grammars: []string{`{"scopeName":"source.test","patterns":[{"match":"\\bfoo\\b","name":"keyword.foo.test"}]}`},
			lines:    []string{"a foo\n"},
			want: [][]tok{{
				{"a ", "source.test"},
				{"foo", "source.test keyword.foo.test"},
				{"\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_begin_end_spans_lines",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"comment.block.test","begin":"/\\*","end":"\\*/",
				"beginCaptures":{"0":{"name":"punctuation.begin.test"}},
				"endCaptures":{"0":{"name":"punctuation.end.test"}}
			}]}`},
			lines: []string{"x /* a\n", "b */ y\n"},
			want: [][]tok{
				{
					{"x ", "source.test"},
					{"/*", "source.test comment.block.test punctuation.begin.test"},
					{" a\n", "source.test comment.block.test"},
				},
				{
					{"b ", "source.test comment.block.test"},
					{"*/", "source.test comment.block.test punctuation.end.test"},
					{" y\n", "source.test"},
				},
			},
			wantDepth: 1,
		},
		{
			name: "test_content_name",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"string.quoted.test","contentName":"meta.content.test","begin":"\"","end":"\""
			}]}`},
			lines: []string{"\"ab\"\n"},
			want: [][]tok{{
				{"\"", "source.test string.quoted.test"},
				{"ab", "source.test string.quoted.test meta.content.test"},
				{"\"", "source.test string.quoted.test"},
				{"\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_end_back_reference",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"string.quoted.test","begin":"([\"'])","end":"\\1"
			}]}`},
			lines: []string{"'a\"b' c\n"},
			want: [][]tok{{
				{"'", "source.test string.quoted.test"},
				{"a\"b", "source.test string.quoted.test"},
				{"'", "source.test string.quoted.test"},
				{" c\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_begin_while",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"markup.quote.test","begin":"^>","while":"^>"
			}]}`},
			lines: []string{"> a\n", "> b\n", "c\n"},
			want: [][]tok{
				{{">", "source.test markup.quote.test"}, {" a\n", "source.test markup.quote.test"}},
				{{">", "source.test markup.quote.test"}, {" b\n", "source.test markup.quote.test"}},
				{{"c\n", "source.test"}},
			},
			wantDepth: 1,
		},
		{
			name: "test_self_include_nests",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"meta.block.test","begin":"\\{","end":"\\}","patterns":[{"include":"$self"}]
			}]}`},
			lines: []string{"{{\n"},
			want: [][]tok{{
				{"{", "source.test meta.block.test"},
				{"{", "source.test meta.block.test meta.block.test"},
				{"\n", "source.test meta.block.test meta.block.test"},
			}},
			wantDepth: 3,
		},
		{
			name: "test_repository_include_and_name_expansion",
			grammars: []string{`{"scopeName":"source.test","patterns":[{"include":"#types"}],
				"repository":{"types":{"match":"\\b(int|bool)\\b","name":"storage.type.$1.test"}}}`},
			lines: []string{"int x\n"},
			want: [][]tok{{
				{"int", "source.test storage.type.int.test"},
				{" x\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_nested_repository_is_lexically_scoped",
			grammars: []string{`{"scopeName":"source.test","patterns":[{"include":"#outer"}],
				"repository":{
					"outer":{"patterns":[{"include":"#inner"}],"repository":{"inner":{"match":"q","name":"inner.local.test"}}},
					"inner":{"match":"q","name":"inner.global.test"}
				}}`},
			lines: []string{"q\n"},
			want: [][]tok{{
				{"q", "source.test inner.local.test"},
				{"\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_capture_patterns_are_retokenized",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"match":"(\\w+)=(\\w+)",
				"captures":{
					"1":{"name":"variable.test","patterns":[{"match":"x","name":"x.test"}]},
					"2":{"name":"value.test"}
				}
			}]}`},
			lines: []string{"axb=c\n"},
			want: [][]tok{{
				{"a", "source.test variable.test"},
				{"x", "source.test variable.test x.test"},
				{"b", "source.test variable.test"},
				{"=", "source.test"},
				{"c", "source.test value.test"},
				{"\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_cross_grammar_include",
			grammars: []string{
				`{"scopeName":"source.outer","patterns":[{"include":"source.inner#kw"}]}`,
				`{"scopeName":"source.inner","repository":{"kw":{"match":"x","name":"kw.inner"}}}`,
			},
			lines: []string{"axb\n"},
			want: [][]tok{{
				{"a", "source.outer"},
				{"x", "source.outer kw.inner"},
				{"b\n", "source.outer"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_missing_include_is_ignored",
			grammars: []string{`{"scopeName":"source.test","patterns":[{"include":"#nope"},{"include":"source.nope"}]}`},
			lines:     []string{"ab\n"},
			want:      [][]tok{{{"ab\n", "source.test"}}},
			wantDepth: 1,
		},
		{
			name: "test_zero_width_begin_end_makes_progress",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"meta.zero.test","begin":"(?=#)","end":"(?=#)|$"
			}]}`},
			lines: []string{"#\n"},
			want: [][]tok{{
				{"#", "source.test"},
				{"\n", "source.test"},
			}},
			wantDepth: 1,
		},
		{
			name: "test_apply_end_pattern_last",
			grammars: []string{`{"scopeName":"source.test","patterns":[{
				"name":"meta.block.test","begin":"<","end":">","applyEndPatternLast":1,
				"patterns":[{"match":">>","name":"inner.test"}]
			}]}`},
			lines: []string{"<>>>\n"},
			want: [][]tok{{
				{"<", "source.test meta.block.test"},
				{">>", "source.test meta.block.test inner.test"},
				{">", "source.test meta.block.test"},
				{"\n", "source.test"},
			}},
			wantDepth: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := loadGrammar(t, tt.grammars...)
			got, stack := tokenizeLines(t, g, tt.lines...)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDepth, stack.Depth(), "stack depth after last line")
		})
	}
}

func TestLoadGrammar(t *testing.T) {
	ctx := testContext()

	t.Run("test_unknown_scope_is_nil", func(t *testing.T) {
		reg, err := textmate.NewRegistry(scanner.NewRegexp2Backend(), mapSource{})
		require.NoError(t, err)

		g, err := reg.LoadGrammar(ctx, "source.nope")
		require.NoError(t, err)
		assert.Nil(t, g)
	})

	t.Run("test_bad_pattern_fails_load", func(t *testing.T) {
		raw, err := tmlanguage.UnmarshalGrammar([]byte(`{"scopeName":"source.bad","repository":{"x":{"match":"("}}}`))
		require.NoError(t, err)
		reg, err := textmate.NewRegistry(scanner.NewRegexp2Backend(), mapSource{"source.bad": raw})
		require.NoError(t, err)

		_, err = reg.LoadGrammar(ctx, "source.bad")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repository/x")
	})

	t.Run("test_grammars_are_cached", func(t *testing.T) {
		raw, err := tmlanguage.UnmarshalGrammar([]byte(`{"scopeName":"source.test"}`))
		require.NoError(t, err)
		reg, err := textmate.NewRegistry(scanner.NewRegexp2Backend(), mapSource{"source.test": raw})
		require.NoError(t, err)

		a, err := reg.LoadGrammar(ctx, "source.test")
		require.NoError(t, err)
		b, err := reg.LoadGrammar(ctx, "source.test")
		require.NoError(t, err)
		assert.Same(t, a, b)
	})

	t.Run("test_registry_needs_backend", func(t *testing.T) {
		_, err := textmate.NewRegistry(nil, mapSource{})
		require.Error(t, err)
	})
}

func TestRepositoryAddsReservedEntries(t *testing.T) {
	g := loadGrammar(t, `{"scopeName":"source.test","patterns":[{"match":"a","name":"a.test"}],
		"repository":{"one":{"name":"one.test"},"two":{"name":"two.test"}}}`)

	repo := g.Repository()
	assert.Equal(t, []string{"one", "two", "$self", "$base"}, repo.Keys())

	self, ok := repo.Get("$self")
	require.True(t, ok)
	assert.Equal(t, "source.test", self.Name)
	assert.Len(t, self.Patterns, 1)

	// the raw grammar is untouched
	assert.Equal(t, 2, g.Raw().Repository.Len())
}

func TestStateStackEqual(t *testing.T) {
	g := loadGrammar(t, `{"scopeName":"source.test","patterns":[{"name":"c.test","begin":"/\\*","end":"\\*/"}]}`)

	_, open1 := tokenizeLines(t, g, "/* a\n")
	_, open2 := tokenizeLines(t, g, "x /* b\n")
	_, closed := tokenizeLines(t, g, "/* a */\n")

	assert.True(t, open1.Equal(open2), "both lines end inside the comment")
	assert.False(t, open1.Equal(closed))
	assert.Equal(t, 0, textmate.InitialStack.Depth())
}

const propertyGrammar = `{"scopeName":"source.prop","patterns":[
	{"name":"comment.block.prop","begin":"/\\*","end":"\\*/"},
	{"name":"string.quoted.prop","begin":"([\"'])","end":"\\1|$","patterns":[{"match":"\\\\.","name":"constant.escape.prop"}]},
	{"name":"meta.block.prop","begin":"\\{","end":"\\}","patterns":[{"include":"$self"}]},
	{"name":"meta.zero.prop","begin":"(?=#)","end":"(?=#)|$"},
	{"match":"(a)(b)?","captures":{"1":{"name":"a.prop"},"2":{"name":"b.prop"}}},
	{"match":"(?=z)","name":"look.prop"}
]}`

var propertyAlphabet = []rune("ab z#/*{}'\"\\é")

func TestTokensTileEveryLine(t *testing.T) {
	g := loadGrammar(t, propertyGrammar)

	rapid.Check(t, func(rt *rapid.T) {
		lines := rapid.SliceOfN(rapid.StringOf(rapid.SampledFrom(propertyAlphabet)), 1, 5).Draw(rt, "lines")

		stack := textmate.InitialStack
		for _, raw := range lines {
			line := raw + "\n"
			res, err := g.TokenizeLine(line, stack)
			if err != nil {
				rt.Fatalf("tokenize %q: %v", line, err)
			}

			pos := 0
			for _, tk := range res.Tokens {
				if tk.StartIndex != pos {
					rt.Fatalf("line %q: token starts at %d, want %d", line, tk.StartIndex, pos)
				}
				if tk.EndIndex <= tk.StartIndex {
					rt.Fatalf("line %q: empty token at %d", line, tk.StartIndex)
				}
				if len(tk.Scopes) == 0 || tk.Scopes[0] != "source.prop" {
					rt.Fatalf("line %q: token scopes %v should start with the root scope", line, tk.Scopes)
				}
				pos = tk.EndIndex
			}
			if pos != len(line) {
				rt.Fatalf("line %q: tokens end at %d, want %d", line, pos, len(line))
			}
			stack = res.RuleStack
		}
	})
}

func TestResumingFromSavedStackMatchesContinuousRun(t *testing.T) {
	g := loadGrammar(t, propertyGrammar)

	rapid.Check(t, func(rt *rapid.T) {
		lines := rapid.SliceOfN(rapid.StringOf(rapid.SampledFrom(propertyAlphabet)), 2, 6).Draw(rt, "lines")
		split := rapid.IntRange(1, len(lines)-1).Draw(rt, "split")

		// continuous run over every line
		var continuous []*textmate.LineResult
		stack := textmate.InitialStack
		for _, l := range lines {
			res, err := g.TokenizeLine(l+"\n", stack)
			if err != nil {
				rt.Fatal(err)
			}
			continuous = append(continuous, res)
			stack = res.RuleStack
		}

		// replay the prefix, keep only its final state, then tokenize the
		// next line on its own
		saved := textmate.InitialStack
		for _, l := range lines[:split] {
			res, err := g.TokenizeLine(l+"\n", saved)
			if err != nil {
				rt.Fatal(err)
			}
			saved = res.RuleStack
		}
		resumed, err := g.TokenizeLine(lines[split]+"\n", saved)
		if err != nil {
			rt.Fatal(err)
		}

		want := continuous[split]
		if len(want.Tokens) != len(resumed.Tokens) {
			rt.Fatalf("token count %d != %d", len(resumed.Tokens), len(want.Tokens))
		}
		for i := range want.Tokens {
			a, b := want.Tokens[i], resumed.Tokens[i]
			if a.StartIndex != b.StartIndex || a.EndIndex != b.EndIndex || strings.Join(a.Scopes, " ") != strings.Join(b.Scopes, " ") {
				rt.Fatalf("token %d differs: %+v vs %+v", i, a, b)
			}
		}
		if !want.RuleStack.Equal(resumed.RuleStack) {
			rt.Fatalf("end states differ")
		}
	})
}
