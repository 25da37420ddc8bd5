package textmate

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/tmhighlight/pkg/scanner"
	"github.com/walteh/tmhighlight/pkg/tmlanguage"
	"gitlab.com/tozd/go/errors"
)

var escapeLiteral = scanner.EscapeLiteral

// Token is one slice of a line together with every scope active over it,
// outermost first.
type Token struct {
	StartIndex int
	EndIndex   int
	Scopes     []string
}

// LineResult is the output of tokenizing one line.
type LineResult struct {
	Tokens    []Token
	RuleStack *StateStack
}

// Grammar is a loaded grammar, ready to tokenize. A Grammar serializes its
// own TokenizeLine calls; rule compilation happens lazily under that lock.
type Grammar struct {
	reg     *Registry
	backend scanner.Backend
	raw     *tmlanguage.Grammar

	mu       sync.Mutex
	nextID   int
	rules    map[*tmlanguage.Rule]*rule
	roots    map[*tmlanguage.Grammar]*rule
	root     *rule
	scanners map[string]*frameScanner
}

func newGrammar(reg *Registry, raw *tmlanguage.Grammar) *Grammar {
	g := &Grammar{
		reg:      reg,
		backend:  reg.backend,
		raw:      raw,
		rules:    make(map[*tmlanguage.Rule]*rule),
		roots:    make(map[*tmlanguage.Grammar]*rule),
		scanners: make(map[string]*frameScanner),
	}
	g.root = g.rootFor(raw)
	return g
}

// ScopeName is the grammar's root scope, e.g. "source.ts".
func (g *Grammar) ScopeName() string {
	return g.raw.ScopeName
}

// Raw returns the decoded grammar. Callers must treat it as read-only.
func (g *Grammar) Raw() *tmlanguage.Grammar {
	return g.raw
}

// Repository returns the grammar's repository as the engine sees it: the
// author's entries followed by the engine's own $self and $base entries.
func (g *Grammar) Repository() *tmlanguage.Repository {
	repo := tmlanguage.NewRepository()
	for k, r := range g.raw.Repository.All() {
		repo.Set(k, r)
	}
	self := &tmlanguage.Rule{Name: g.raw.ScopeName, Patterns: g.raw.Patterns}
	repo.Set("$self", self)
	repo.Set("$base", self)
	return repo
}

// validate compiles every static pattern in the grammar so broken patterns
// surface at load time rather than mid-file.
func (g *Grammar) validate(ctx context.Context) error {
	var check func(r *tmlanguage.Rule, path string) error
	checkCaptures := func(c *tmlanguage.Captures, path string) error {
		for k, cr := range c.All() {
			if cr == nil {
				continue
			}
			if err := check(cr, path+"/"+k); err != nil {
				return err
			}
		}
		return nil
	}
	check = func(r *tmlanguage.Rule, path string) error {
		for _, p := range []string{r.Match, r.Begin} {
			if err := g.checkPattern(p, path); err != nil {
				return err
			}
		}
		for _, p := range []string{r.End, r.While} {
			if hasBackReferences(p) {
				continue
			}
			if err := g.checkPattern(p, path); err != nil {
				return err
			}
		}
		for i, p := range r.Patterns {
			if p == nil {
				continue
			}
			if err := check(p, path+"/patterns/"+strconv.Itoa(i)); err != nil {
				return err
			}
		}
		for _, c := range []*tmlanguage.Captures{r.Captures, r.BeginCaptures, r.EndCaptures, r.WhileCaptures} {
			if err := checkCaptures(c, path+"/captures"); err != nil {
				return err
			}
		}
		for k, nested := range r.Repository.All() {
			if nested == nil {
				continue
			}
			if err := check(nested, path+"/repository/"+k); err != nil {
				return err
			}
		}
		return nil
	}

	for i, p := range g.raw.Patterns {
		if p == nil {
			continue
		}
		if err := check(p, "patterns/"+strconv.Itoa(i)); err != nil {
			return err
		}
	}
	for k, r := range g.raw.Repository.All() {
		if r == nil {
			continue
		}
		if err := check(r, "repository/"+k); err != nil {
			return err
		}
	}

	zerolog.Ctx(ctx).Trace().Str("scope", g.raw.ScopeName).Msg("validated grammar patterns")
	return nil
}

func (g *Grammar) checkPattern(pattern, path string) error {
	if pattern == "" {
		return nil
	}
	if _, err := g.backend.CreateScanner([]string{pattern}); err != nil {
		return errors.Errorf("rule %s: %w", path, err)
	}
	return nil
}

// TokenizeLine tokenizes one line, starting from the state the previous line
// ended in (InitialStack for the first line). The tokens cover the line from
// offset 0 to len(line) with no gaps or overlaps.
func (g *Grammar) TokenizeLine(line string, stack *StateStack) (*LineResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if stack == nil {
		scopes := appendScopes(nil, g.raw.ScopeName)
		stack = &StateStack{
			rule:          g.root,
			depth:         1,
			enterPos:      -1,
			nameScopes:    scopes,
			contentScopes: scopes,
		}
	}

	t := &lineTokenizer{
		g:      g,
		line:   line,
		ms:     g.backend.CreateMatchableString(line),
		pushed: make(map[*StateStack]bool),
	}

	stack, pos, err := t.checkWhileConditions(stack)
	if err != nil {
		return nil, err
	}

	stack, err = t.scan(t.ms, pos, stack)
	if err != nil {
		return nil, err
	}
	t.produce(stack.contentScopes, len(line))

	return &LineResult{Tokens: t.tokens, RuleStack: stack}, nil
}
