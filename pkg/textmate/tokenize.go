package textmate

import (
	"strconv"

	"github.com/walteh/tmhighlight/pkg/scanner"
	"gitlab.com/tozd/go/errors"
)

// frameScanner is the compiled candidate list for one kind of stack frame.
// entries[i] is the rule behind pattern i; the end pattern has a nil entry.
type frameScanner struct {
	sc       scanner.Scanner
	entries  []*rule
	endIndex int
}

func (g *Grammar) scannerFor(stack *StateStack) (*frameScanner, error) {
	r := stack.rule
	withEnd := r.kind == kindBeginEnd && stack.endSource != ""

	key := strconv.Itoa(r.id)
	if withEnd {
		key += "\x00" + stack.endSource
	}
	if fs, ok := g.scanners[key]; ok {
		return fs, nil
	}

	fs := &frameScanner{endIndex: -1}
	var patterns []string

	addEnd := func() {
		fs.endIndex = len(patterns)
		patterns = append(patterns, stack.endSource)
		fs.entries = append(fs.entries, nil)
	}

	if withEnd && !r.applyEndPatternLast {
		addEnd()
	}
	for _, c := range g.collectPatterns(g.childrenOf(r)) {
		src := c.match
		if c.kind == kindBeginEnd || c.kind == kindBeginWhile {
			src = c.begin
		}
		patterns = append(patterns, src)
		fs.entries = append(fs.entries, c)
	}
	if withEnd && r.applyEndPatternLast {
		addEnd()
	}

	sc, err := g.backend.CreateScanner(patterns)
	if err != nil {
		return nil, errors.Errorf("building scanner for rule %d: %w", r.id, err)
	}
	fs.sc = sc
	g.scanners[key] = fs
	return fs, nil
}

// lineTokenizer holds the state of a single TokenizeLine call.
type lineTokenizer struct {
	g    *Grammar
	line string
	ms   *scanner.MatchableString

	tokens  []Token
	lastEnd int

	// pushed marks frames pushed during this call; enterPos is only
	// comparable for those.
	pushed map[*StateStack]bool
}

// produce emits a token from the end of the previous one up to end. Calls
// that would not move forward are ignored, which keeps tokens contiguous.
func (t *lineTokenizer) produce(scopes []string, end int) {
	if end > len(t.line) {
		end = len(t.line)
	}
	if end <= t.lastEnd {
		return
	}
	t.tokens = append(t.tokens, Token{StartIndex: t.lastEnd, EndIndex: end, Scopes: scopes})
	t.lastEnd = end
}

// stepOver emits one character with the current content scopes and returns
// the new position. Used when a match consumed nothing.
func (t *lineTokenizer) stepOver(ms *scanner.MatchableString, stack *StateStack, pos int) int {
	next := ms.Advance(pos)
	t.produce(stack.contentScopes, next)
	return next
}

// reentersAt reports whether pushing r at pos would repeat a push made at the
// same position on this line, which would loop forever.
func (t *lineTokenizer) reentersAt(stack *StateStack, r *rule, pos int) bool {
	for f := stack; f != nil && t.pushed[f] && f.enterPos == pos; f = f.parent {
		if f.rule == r {
			return true
		}
	}
	return false
}

// checkWhileConditions re-tests the while pattern of every open begin/while
// frame, outermost first. The first one that fails closes itself and
// everything nested inside it.
func (t *lineTokenizer) checkWhileConditions(stack *StateStack) (*StateStack, int, error) {
	var whiles []*StateStack
	for f := stack; f != nil; f = f.parent {
		if f.rule.kind == kindBeginWhile {
			whiles = append(whiles, f)
		}
	}

	pos := 0
	for i := len(whiles) - 1; i >= 0; i-- {
		f := whiles[i]
		sc, err := t.g.backend.CreateScanner([]string{f.endSource})
		if err != nil {
			return nil, 0, errors.Errorf("compiling while pattern: %w", err)
		}
		m, err := sc.FindNextMatch(t.ms, pos)
		if err != nil {
			return nil, 0, err
		}
		if m == nil {
			return f.parent, pos, nil
		}
		t.produce(f.contentScopes, m.Start())
		if err := t.handleCaptures(t.ms, f.contentScopes, f.rule.whileCaptures, m); err != nil {
			return nil, 0, err
		}
		t.produce(f.contentScopes, m.End())
		if m.End() > pos {
			pos = m.End()
		}
	}
	return stack, pos, nil
}

// scan runs the main matching loop over ms from pos, returning the stack as
// it stands at the end of the text.
func (t *lineTokenizer) scan(ms *scanner.MatchableString, pos int, stack *StateStack) (*StateStack, error) {
	for pos < ms.Len() {
		fs, err := t.g.scannerFor(stack)
		if err != nil {
			return nil, err
		}
		m, err := fs.sc.FindNextMatch(ms, pos)
		if err != nil {
			return nil, errors.Errorf("scanning at offset %d: %w", pos, err)
		}
		if m == nil {
			break
		}

		start, end := m.Start(), m.End()
		advanced := end > pos

		if m.PatternIndex == fs.endIndex {
			frame := stack
			t.produce(frame.contentScopes, start)
			if err := t.handleCaptures(ms, frame.nameScopes, frame.rule.endCaptures, m); err != nil {
				return nil, err
			}
			t.produce(frame.nameScopes, end)
			stack = frame.parent

			if !advanced && t.pushed[frame] && frame.enterPos == pos {
				pos = t.stepOver(ms, stack, pos)
				continue
			}
			pos = end
			continue
		}

		r := fs.entries[m.PatternIndex]
		caps := captureTexts(ms, m)
		t.produce(stack.contentScopes, start)
		nameScopes := appendScopes(stack.contentScopes, expandName(r.name, caps))

		switch r.kind {
		case kindBeginEnd, kindBeginWhile:
			if !advanced && t.reentersAt(stack, r, pos) {
				pos = t.stepOver(ms, stack, pos)
				continue
			}

			endSource := r.end
			if r.kind == kindBeginWhile {
				endSource = r.while
			}
			if r.endHasBackRefs {
				endSource = resolveBackReferences(endSource, caps)
			}

			if err := t.handleCaptures(ms, nameScopes, r.beginCaptures, m); err != nil {
				return nil, err
			}
			t.produce(nameScopes, end)

			frame := stack.push(r, pos, endSource, nameScopes)
			if r.contentName != "" {
				frame = frame.withContentScopes(appendScopes(nameScopes, expandName(r.contentName, caps)))
			}
			t.pushed[frame] = true
			stack = frame

		default:
			if err := t.handleCaptures(ms, nameScopes, r.captures, m); err != nil {
				return nil, err
			}
			t.produce(nameScopes, end)
			if !advanced {
				pos = t.stepOver(ms, stack, pos)
				continue
			}
		}

		pos = end
	}

	t.produce(stack.contentScopes, ms.Len())
	return stack, nil
}

// handleCaptures emits tokens for the capture groups of m. Captures can nest,
// so open captures are kept on a local stack and closed as later captures
// start past their end.
func (t *lineTokenizer) handleCaptures(ms *scanner.MatchableString, base []string, caps []*rule, m *scanner.Match) error {
	if len(caps) == 0 {
		return nil
	}
	texts := captureTexts(ms, m)

	type open struct {
		scopes []string
		end    int
	}
	var local []open

	closeUntil := func(pos int) {
		for len(local) > 0 && local[len(local)-1].end <= pos {
			top := local[len(local)-1]
			t.produce(top.scopes, top.end)
			local = local[:len(local)-1]
		}
	}

	n := min(len(caps), len(m.Captures))
	for i := 0; i < n; i++ {
		cr := caps[i]
		ci := m.Captures[i]
		if cr == nil || !ci.Matched || ci.Len() == 0 {
			continue
		}
		if ci.Start > ms.Len() {
			break
		}

		closeUntil(ci.Start)

		cur := base
		if len(local) > 0 {
			cur = local[len(local)-1].scopes
		}
		t.produce(cur, ci.Start)

		scopes := appendScopes(cur, expandName(cr.name, texts))

		if cr.hasPatterns() {
			content := appendScopes(scopes, expandName(cr.contentName, texts))
			frame := &StateStack{
				rule:          cr,
				enterPos:      ci.Start,
				nameScopes:    scopes,
				contentScopes: content,
			}
			sub := t.g.backend.CreateMatchableString(ms.Content()[:ci.End])
			if _, err := t.scan(sub, ci.Start, frame); err != nil {
				return err
			}
			continue
		}

		local = append(local, open{scopes: scopes, end: ci.End})
	}

	closeUntil(ms.Len())
	return nil
}

func captureTexts(ms *scanner.MatchableString, m *scanner.Match) []captureText {
	out := make([]captureText, len(m.Captures))
	text := ms.Content()
	for i, c := range m.Captures {
		if !c.Matched {
			continue
		}
		out[i] = captureText{text: text[c.Start:c.End], matched: true}
	}
	return out
}
