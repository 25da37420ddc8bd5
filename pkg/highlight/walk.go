package highlight

import (
	"github.com/walteh/tmhighlight/pkg/tmlanguage"
)

// VisitFunc receives each scope name found by Walk. parent is the name of the
// rule a capture belongs to, or nil for a rule's own name.
type VisitFunc func(scope string, parent *string)

// Walk visits every named scope in repo. Entries with reserved ($) keys are
// skipped; everything else is walked depth-first in pre-order: the rule's
// name, its patterns, its captures, beginCaptures and endCaptures, then any
// nested repository.
func Walk(repo *tmlanguage.Repository, visit VisitFunc) {
	walkRules(repositoryRules(repo), visit)
}

// WalkRule walks a single rule tree the same way Walk walks each repository
// entry.
func WalkRule(r *tmlanguage.Rule, visit VisitFunc) {
	walkRules([]*tmlanguage.Rule{r}, visit)
}

// WalkPatterns walks a list of sibling rules, such as a grammar's top-level
// patterns.
func WalkPatterns(rules []*tmlanguage.Rule, visit VisitFunc) {
	walkRules(rules, visit)
}

func repositoryRules(repo *tmlanguage.Repository) []*tmlanguage.Rule {
	var out []*tmlanguage.Rule
	for name, r := range repo.All() {
		if tmlanguage.IsReserved(name) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// walkItem is either a rule still to be walked or, with captures set, the
// point where a rule's captures get reported (after its patterns).
type walkItem struct {
	rule     *tmlanguage.Rule
	captures bool
}

// walkRules keeps its own work stack instead of recursing; grammars nest
// arbitrarily deep.
func walkRules(roots []*tmlanguage.Rule, visit VisitFunc) {
	var stack []walkItem
	pushRules := func(rules []*tmlanguage.Rule) {
		for i := len(rules) - 1; i >= 0; i-- {
			stack = append(stack, walkItem{rule: rules[i]})
		}
	}

	pushRules(roots)
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r := item.rule
		if r == nil {
			continue
		}

		if item.captures {
			visitCaptures(r, visit)
			continue
		}

		if r.Name != "" {
			visit(r.Name, nil)
		}

		// pushed in reverse: patterns, then captures, then nested repository
		pushRules(repositoryRules(r.Repository))
		stack = append(stack, walkItem{rule: r, captures: true})
		pushRules(r.Patterns)
	}
}

func visitCaptures(r *tmlanguage.Rule, visit VisitFunc) {
	var parent *string
	if r.Name != "" {
		name := r.Name
		parent = &name
	}
	for _, caps := range []*tmlanguage.Captures{r.Captures, r.BeginCaptures, r.EndCaptures} {
		for _, c := range caps.All() {
			if c == nil || c.Name == "" {
				continue
			}
			visit(c.Name, parent)
		}
	}
}
