package highlight

import (
	"github.com/dlclark/regexp2"
	"gitlab.com/tozd/go/errors"
)

// StyleRule pairs a scope-name pattern with the CSS declaration applied to
// scopes it matches. Patterns use JavaScript regex syntax.
type StyleRule struct {
	pattern     *regexp2.Regexp
	declaration string
}

func NewStyleRule(pattern, declaration string) (StyleRule, error) {
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return StyleRule{}, errors.Errorf("compiling style pattern %q: %w", pattern, err)
	}
	return StyleRule{pattern: re, declaration: declaration}, nil
}

// MustStyleRule is NewStyleRule for patterns known to be valid.
func MustStyleRule(pattern, declaration string) StyleRule {
	r, err := NewStyleRule(pattern, declaration)
	if err != nil {
		panic(err)
	}
	return r
}

func (r StyleRule) Pattern() string {
	if r.pattern == nil {
		return ""
	}
	return r.pattern.String()
}

func (r StyleRule) Declaration() string {
	return r.declaration
}

// Matches reports whether the rule applies to scope. A match error (only
// possible on timeout) counts as no match.
func (r StyleRule) Matches(scope string) bool {
	if r.pattern == nil {
		return false
	}
	ok, err := r.pattern.MatchString(scope)
	return err == nil && ok
}

// StyleTable is consulted in order; the first matching rule wins.
type StyleTable []StyleRule

// Lookup returns the declaration of the first rule matching scope.
func (t StyleTable) Lookup(scope string) (string, bool) {
	for _, r := range t {
		if r.Matches(scope) {
			return r.declaration, true
		}
	}
	return "", false
}

// DefaultStyleTable is a small dark-on-light palette keyed on the common
// TextMate scope roots.
func DefaultStyleTable() StyleTable {
	return StyleTable{
		MustStyleRule(`^comment`, "color: #6a737d; font-style: italic;"),
		MustStyleRule(`^punctuation\.definition\.comment`, "color: #6a737d;"),
		MustStyleRule(`^string\.regexp`, "color: #032f62;"),
		MustStyleRule(`^string`, "color: #032f62;"),
		MustStyleRule(`^constant\.character\.escape`, "color: #22863a; font-weight: bold;"),
		MustStyleRule(`^constant\.numeric`, "color: #005cc5;"),
		MustStyleRule(`^constant\.language`, "color: #005cc5; font-weight: bold;"),
		MustStyleRule(`^constant`, "color: #005cc5;"),
		MustStyleRule(`^keyword\.operator`, "color: #d73a49;"),
		MustStyleRule(`^keyword`, "color: #d73a49; font-weight: bold;"),
		MustStyleRule(`^storage\.type`, "color: #d73a49;"),
		MustStyleRule(`^storage\.modifier`, "color: #d73a49;"),
		MustStyleRule(`^entity\.name\.function`, "color: #6f42c1;"),
		MustStyleRule(`^entity\.name\.(type|class)`, "color: #6f42c1; font-weight: bold;"),
		MustStyleRule(`^entity\.name\.tag`, "color: #22863a;"),
		MustStyleRule(`^entity\.other\.attribute-name`, "color: #6f42c1;"),
		MustStyleRule(`^support\.function`, "color: #005cc5;"),
		MustStyleRule(`^support\.type`, "color: #005cc5;"),
		MustStyleRule(`^variable\.language`, "color: #e36209; font-style: italic;"),
		MustStyleRule(`^variable\.parameter`, "color: #e36209;"),
		MustStyleRule(`^invalid`, "color: #b31d28; text-decoration: underline wavy;"),
		MustStyleRule(`^markup\.heading`, "color: #005cc5; font-weight: bold;"),
	}
}
