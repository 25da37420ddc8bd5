package textmate

import "slices"

// StateStack is the tokenizer state carried from the end of one line to the
// start of the next: the nested begin/end and begin/while contexts still
// open. It is immutable; callers only hold it and hand it back.
type StateStack struct {
	parent *StateStack
	rule   *rule
	depth  int

	// enterPos is the byte offset where this frame was pushed on the line
	// that pushed it; it only means something during that TokenizeLine call.
	enterPos int
	// endSource is the end (or while) pattern with back-references resolved.
	endSource string

	nameScopes    []string
	contentScopes []string
}

// InitialStack is the state to pass when tokenizing the first line.
var InitialStack *StateStack

// Depth is the number of open contexts, including the grammar root.
func (s *StateStack) Depth() int {
	if s == nil {
		return 0
	}
	return s.depth
}

// Equal reports whether two states would tokenize the next line identically.
func (s *StateStack) Equal(other *StateStack) bool {
	for a, b := s, other; ; a, b = a.parent, b.parent {
		if a == b {
			return true
		}
		if a == nil || b == nil {
			return false
		}
		if a.depth != b.depth || a.rule != b.rule || a.endSource != b.endSource {
			return false
		}
		if !slices.Equal(a.nameScopes, b.nameScopes) || !slices.Equal(a.contentScopes, b.contentScopes) {
			return false
		}
	}
}

func (s *StateStack) push(r *rule, enterPos int, endSource string, nameScopes []string) *StateStack {
	return &StateStack{
		parent:        s,
		rule:          r,
		depth:         s.depth + 1,
		enterPos:      enterPos,
		endSource:     endSource,
		nameScopes:    nameScopes,
		contentScopes: nameScopes,
	}
}

func (s *StateStack) withContentScopes(scopes []string) *StateStack {
	cp := *s
	cp.contentScopes = scopes
	return &cp
}

// appendScopes returns base extended with the space-separated scope names in
// name. base is never modified, so token scope slices can be shared.
func appendScopes(base []string, name string) []string {
	if name == "" {
		return base
	}
	out := slices.Clip(base)
	for _, part := range splitScopes(name) {
		out = append(out, part)
	}
	return slices.Clip(out)
}

func splitScopes(name string) []string {
	var parts []string
	start := -1
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == ' ' || name[i] == '\t' {
			if start >= 0 {
				parts = append(parts, name[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return parts
}
