package scanner

import (
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"gitlab.com/tozd/go/errors"
)

// DefaultMatchTimeout bounds a single pattern evaluation. Grammars are
// trusted, but a pathological pattern on a long line should fail the run
// instead of hanging it.
const DefaultMatchTimeout = 2 * time.Second

var _ Backend = (*Regexp2Backend)(nil)

// Regexp2Backend implements Backend on top of regexp2, whose .NET-flavored
// syntax covers what TextMate grammars lean on: lookbehind, backreferences,
// atomic groups and the \G anchor.
type Regexp2Backend struct {
	timeout time.Duration
	options regexp2.RegexOptions

	mu    sync.Mutex
	cache map[string]*regexp2.Regexp
}

type Option func(*Regexp2Backend)

// WithMatchTimeout overrides DefaultMatchTimeout. Zero disables the timeout.
func WithMatchTimeout(d time.Duration) Option {
	return func(b *Regexp2Backend) {
		b.timeout = d
	}
}

// WithOptions sets extra regexp2 compile options for every pattern.
func WithOptions(opts regexp2.RegexOptions) Option {
	return func(b *Regexp2Backend) {
		b.options = opts
	}
}

func NewRegexp2Backend(opts ...Option) *Regexp2Backend {
	b := &Regexp2Backend{
		timeout: DefaultMatchTimeout,
		options: regexp2.None,
		cache:   make(map[string]*regexp2.Regexp),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Compile compiles a single pattern, reusing an earlier compilation of the
// same source.
func (b *Regexp2Backend) Compile(pattern string) (*regexp2.Regexp, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if re, ok := b.cache[pattern]; ok {
		return re, nil
	}

	re, err := regexp2.Compile(pattern, b.options)
	if err != nil {
		return nil, errors.Errorf("compiling pattern %q: %w", pattern, err)
	}
	if b.timeout > 0 {
		re.MatchTimeout = b.timeout
	}
	b.cache[pattern] = re
	return re, nil
}

func (b *Regexp2Backend) CreateScanner(patterns []string) (Scanner, error) {
	sc := &regexp2Scanner{patterns: make([]*regexp2.Regexp, len(patterns))}
	for i, p := range patterns {
		re, err := b.Compile(p)
		if err != nil {
			return nil, err
		}
		sc.patterns[i] = re
	}
	return sc, nil
}

func (b *Regexp2Backend) CreateMatchableString(text string) *MatchableString {
	return NewMatchableString(text)
}

type regexp2Scanner struct {
	patterns []*regexp2.Regexp
}

func (sc *regexp2Scanner) FindNextMatch(s *MatchableString, start int) (*Match, error) {
	if start > s.Len() {
		return nil, nil
	}
	from := s.RuneIndex(start)

	var best *regexp2.Match
	bestIndex := -1

	for i, re := range sc.patterns {
		m, err := re.FindRunesMatchStartingAt(s.Runes(), from)
		if err != nil {
			return nil, errors.Errorf("matching pattern %q: %w", re.String(), err)
		}
		if m == nil {
			continue
		}
		if best == nil || m.Index < best.Index {
			best, bestIndex = m, i
		}
		if best.Index == from {
			// nothing later in the list can start earlier
			break
		}
	}

	if best == nil {
		return nil, nil
	}

	groups := best.Groups()
	match := &Match{
		PatternIndex: bestIndex,
		Captures:     make([]CaptureIndex, len(groups)),
	}
	for i, g := range groups {
		if len(g.Captures) == 0 {
			continue
		}
		match.Captures[i] = CaptureIndex{
			Start:   s.ByteOffset(g.Index),
			End:     s.ByteOffset(g.Index + g.Length),
			Matched: true,
		}
	}
	return match, nil
}

// EscapeLiteral quotes text for use inside a pattern, as needed when a begin
// match is substituted into a back-referencing end pattern.
func EscapeLiteral(text string) string {
	return regexp2.Escape(text)
}
