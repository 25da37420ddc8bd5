package highlight

import (
	"strings"

	"github.com/walteh/tmhighlight/pkg/tmlanguage"
)

// Classifier maps scope names to style declarations and class identifiers.
type Classifier struct {
	Table StyleTable
}

func NewClassifier(table StyleTable) *Classifier {
	return &Classifier{Table: table}
}

// Classify returns the declaration of the first style rule matching scope.
func (c *Classifier) Classify(scope string) (string, bool) {
	return c.Table.Lookup(scope)
}

// EmitStyleBlock renders one CSS rule per distinct scope that has a matching
// style, in first-seen order:
//
//	.comment--line--ts { color: gray; }
//
// Scopes without a match are left out and not remembered; looking them up
// again finds nothing again.
func (c *Classifier) EmitStyleBlock(scopes []string) string {
	seen := make(map[string]struct{}, len(scopes))
	var b strings.Builder
	for _, scope := range scopes {
		if _, ok := seen[scope]; ok {
			continue
		}
		decl, ok := c.Classify(scope)
		if !ok {
			continue
		}
		b.WriteString(".")
		b.WriteString(ToIdentifier(scope))
		b.WriteString(" { ")
		b.WriteString(decl)
		b.WriteString(" }\n")
		seen[scope] = struct{}{}
	}
	return b.String()
}

// ToIdentifier makes a scope name usable as a CSS class by replacing every
// character outside [A-Za-z0-9_] with "--".
func ToIdentifier(scope string) string {
	var b strings.Builder
	b.Grow(len(scope) + 8)
	for _, r := range scope {
		if isWordRune(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteString("--")
	}
	return b.String()
}

// ToIdentifiers applies ToIdentifier to each scope, keeping their order.
func ToIdentifiers(scopes []string) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = ToIdentifier(s)
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// CollectScopes returns every scope name Walk finds in repo, in visit order
// and with repeats.
func CollectScopes(repo *tmlanguage.Repository) []string {
	var out []string
	Walk(repo, func(scope string, _ *string) {
		out = append(out, scope)
	})
	return out
}

// CollectGrammarScopes is CollectScopes over a grammar's repository followed
// by its top-level patterns.
func CollectGrammarScopes(repo *tmlanguage.Repository, patterns []*tmlanguage.Rule) []string {
	out := CollectScopes(repo)
	WalkPatterns(patterns, func(scope string, _ *string) {
		out = append(out, scope)
	})
	return out
}
