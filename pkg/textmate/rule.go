package textmate

import (
	"strings"

	"github.com/walteh/tmhighlight/pkg/tmlanguage"
)

type ruleKind int

const (
	kindContainer ruleKind = iota
	kindInclude
	kindMatch
	kindBeginEnd
	kindBeginWhile
)

// neverMatch stands in for a missing end pattern.
const neverMatch = `\uFFFF`

// repoScope is the chain of repositories visible to a rule, innermost first.
// Rules declared inside a nested repository see their own entries before the
// grammar's.
type repoScope struct {
	repo   *tmlanguage.Repository
	parent *repoScope
}

func (s *repoScope) lookup(name string) (*tmlanguage.Rule, *repoScope, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if r, ok := cur.repo.Get(name); ok && r != nil {
			return r, cur, true
		}
	}
	return nil, nil, false
}

// ruleContext records where a rule was declared: its grammar (for $self) and
// the repositories in scope (for #name).
type ruleContext struct {
	self  *tmlanguage.Grammar
	repos *repoScope
}

type rule struct {
	id   int
	kind ruleKind
	raw  *tmlanguage.Rule
	ctx  ruleContext

	name        string
	contentName string
	include     string

	match string
	begin string
	end   string
	while string

	endHasBackRefs      bool
	applyEndPatternLast bool

	captures      []*rule
	beginCaptures []*rule
	endCaptures   []*rule
	whileCaptures []*rule

	// children is filled lazily; includes may point back up the tree.
	children         []*rule
	childrenResolved bool
}

func (r *rule) hasPatterns() bool {
	return r.raw != nil && len(r.raw.Patterns) > 0
}

// compileRule turns a raw rule into its compiled form. Results are cached by
// raw pointer so recursive includes terminate.
func (g *Grammar) compileRule(raw *tmlanguage.Rule, ctx ruleContext) *rule {
	if r, ok := g.rules[raw]; ok {
		return r
	}

	g.nextID++
	r := &rule{
		id:          g.nextID,
		raw:         raw,
		ctx:         ctx,
		name:        raw.Name,
		contentName: raw.ContentName,
	}
	g.rules[raw] = r

	if raw.Repository.Len() > 0 {
		r.ctx.repos = &repoScope{repo: raw.Repository, parent: ctx.repos}
	}

	switch {
	case raw.Include != "":
		r.kind = kindInclude
		r.include = raw.Include
	case raw.Match != "":
		r.kind = kindMatch
		r.match = raw.Match
		r.captures = g.compileCaptures(raw.Captures, r.ctx)
	case raw.Begin != "" && raw.While != "":
		r.kind = kindBeginWhile
		r.begin = raw.Begin
		r.while = raw.While
		r.endHasBackRefs = hasBackReferences(raw.While)
		r.beginCaptures = g.compileCaptures(firstCaptures(raw.BeginCaptures, raw.Captures), r.ctx)
		r.whileCaptures = g.compileCaptures(firstCaptures(raw.WhileCaptures, raw.Captures), r.ctx)
	case raw.Begin != "":
		r.kind = kindBeginEnd
		r.begin = raw.Begin
		r.end = raw.End
		if r.end == "" {
			r.end = neverMatch
		}
		r.endHasBackRefs = hasBackReferences(r.end)
		r.applyEndPatternLast = bool(raw.ApplyEndPatternLast)
		r.beginCaptures = g.compileCaptures(firstCaptures(raw.BeginCaptures, raw.Captures), r.ctx)
		r.endCaptures = g.compileCaptures(firstCaptures(raw.EndCaptures, raw.Captures), r.ctx)
	default:
		r.kind = kindContainer
	}

	return r
}

func firstCaptures(specific, shared *tmlanguage.Captures) *tmlanguage.Captures {
	if specific.Len() > 0 {
		return specific
	}
	return shared
}

func (g *Grammar) compileCaptures(caps *tmlanguage.Captures, ctx ruleContext) []*rule {
	indexed := caps.Indexed()
	if len(indexed) == 0 {
		return nil
	}
	out := make([]*rule, len(indexed))
	for i, raw := range indexed {
		if raw == nil {
			continue
		}
		out[i] = g.compileRule(raw, ctx)
	}
	return out
}

// childrenOf compiles a rule's patterns on first use.
func (g *Grammar) childrenOf(r *rule) []*rule {
	if r.childrenResolved {
		return r.children
	}
	r.childrenResolved = true
	if r.raw == nil {
		return nil
	}
	for _, p := range r.raw.Patterns {
		if p == nil || p.Disabled {
			continue
		}
		r.children = append(r.children, g.compileRule(p, r.ctx))
	}
	return r.children
}

// rootFor returns the container rule for a whole grammar: its top-level
// patterns, seeing its own repository.
func (g *Grammar) rootFor(raw *tmlanguage.Grammar) *rule {
	if r, ok := g.roots[raw]; ok {
		return r
	}
	container := &tmlanguage.Rule{Name: raw.ScopeName, Patterns: raw.Patterns}
	r := g.compileRule(container, ruleContext{
		self:  raw,
		repos: &repoScope{repo: raw.Repository},
	})
	g.roots[raw] = r
	return r
}

// resolveInclude follows an include rule to its target, or nil when the
// target does not exist. Missing targets are skipped, not fatal.
func (g *Grammar) resolveInclude(r *rule) *rule {
	switch inc := r.include; {
	case inc == "$self":
		return g.rootFor(r.ctx.self)
	case inc == "$base":
		return g.root
	case strings.HasPrefix(inc, "#"):
		raw, scope, ok := r.ctx.repos.lookup(inc[1:])
		if !ok {
			return nil
		}
		return g.compileRule(raw, ruleContext{self: r.ctx.self, repos: scope})
	default:
		scopeName, ruleName, _ := strings.Cut(inc, "#")
		other := r.ctx.self
		if scopeName != other.ScopeName {
			other = g.reg.lookupRaw(scopeName)
		}
		if other == nil {
			return nil
		}
		if ruleName == "" {
			return g.rootFor(other)
		}
		raw, ok := other.Repository.Get(ruleName)
		if !ok || raw == nil {
			return nil
		}
		return g.compileRule(raw, ruleContext{self: other, repos: &repoScope{repo: other.Repository}})
	}
}

// collectPatterns flattens includes and containers into the list of rules
// that can actually match, in priority order.
func (g *Grammar) collectPatterns(rules []*rule) []*rule {
	var out []*rule
	seen := make(map[*rule]bool)

	var visit func(r *rule)
	visit = func(r *rule) {
		if r == nil || seen[r] {
			return
		}
		seen[r] = true
		switch r.kind {
		case kindInclude:
			visit(g.resolveInclude(r))
		case kindContainer:
			for _, c := range g.childrenOf(r) {
				visit(c)
			}
		default:
			out = append(out, r)
		}
	}

	for _, r := range rules {
		visit(r)
	}
	return out
}

// hasBackReferences reports whether an end/while pattern refers to begin
// captures (\1 .. \99).
func hasBackReferences(pattern string) bool {
	for i := 0; i+1 < len(pattern); i++ {
		if pattern[i] != '\\' {
			continue
		}
		if isDigit(pattern[i+1]) {
			return true
		}
		// skip the escaped character so \\1 is not taken as a reference
		i++
	}
	return false
}

// resolveBackReferences substitutes begin captures into an end/while pattern.
func resolveBackReferences(pattern string, caps []captureText) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' || i+1 >= len(pattern) {
			b.WriteByte(c)
			continue
		}
		if !isDigit(pattern[i+1]) {
			b.WriteByte(c)
			b.WriteByte(pattern[i+1])
			i++
			continue
		}
		j := i + 1
		n := 0
		for j < len(pattern) && isDigit(pattern[j]) {
			n = n*10 + int(pattern[j]-'0')
			j++
		}
		if n < len(caps) && caps[n].matched {
			b.WriteString(escapeLiteral(caps[n].text))
		}
		i = j - 1
	}
	return b.String()
}

type captureText struct {
	text    string
	matched bool
}

// expandName substitutes $n and ${n:/downcase|upcase} references in a scope
// name with captured text.
func expandName(name string, caps []captureText) string {
	if !strings.Contains(name, "$") || caps == nil {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] != '$' || i+1 >= len(name) {
			b.WriteByte(name[i])
			continue
		}

		if isDigit(name[i+1]) {
			j := i + 1
			n := 0
			for j < len(name) && isDigit(name[j]) {
				n = n*10 + int(name[j]-'0')
				j++
			}
			b.WriteString(captureValue(caps, n, ""))
			i = j - 1
			continue
		}

		if name[i+1] == '{' {
			end := strings.IndexByte(name[i:], '}')
			if end > 0 {
				inner := name[i+2 : i+end]
				num, transform, _ := strings.Cut(inner, ":/")
				n, ok := parseDigits(num)
				if ok {
					b.WriteString(captureValue(caps, n, transform))
					i += end
					continue
				}
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

func captureValue(caps []captureText, n int, transform string) string {
	if n >= len(caps) || !caps[n].matched {
		return ""
	}
	// leading dots would create empty scope segments
	v := strings.TrimLeft(caps[n].text, ".")
	switch transform {
	case "downcase":
		return strings.ToLower(v)
	case "upcase":
		return strings.ToUpper(v)
	}
	return v
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
