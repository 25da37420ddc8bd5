// Package textmate is a TextMate grammar engine: it compiles tmlanguage rules
// against a scanner.Backend and tokenizes text one line at a time, threading
// an opaque StateStack from each line into the next.
package textmate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/tmhighlight/pkg/scanner"
	"github.com/walteh/tmhighlight/pkg/tmlanguage"
	"gitlab.com/tozd/go/errors"
)

// GrammarSource supplies raw grammars by scope name. Lookup returns nil when
// it has no grammar for the scope.
type GrammarSource interface {
	Lookup(scope string) *tmlanguage.Grammar
}

// Registry loads and caches grammars. The backend is fixed at construction,
// so it is always ready before any grammar is compiled.
type Registry struct {
	backend scanner.Backend
	source  GrammarSource

	mu       sync.Mutex
	grammars map[string]*Grammar
}

func NewRegistry(backend scanner.Backend, source GrammarSource) (*Registry, error) {
	if backend == nil {
		return nil, errors.New("registry needs a scanner backend")
	}
	if source == nil {
		return nil, errors.New("registry needs a grammar source")
	}
	return &Registry{
		backend:  backend,
		source:   source,
		grammars: make(map[string]*Grammar),
	}, nil
}

// LoadGrammar returns the grammar for scope, compiling and validating it on
// first use. It returns (nil, nil) when the source has no such grammar; an
// error means the grammar exists but one of its patterns does not compile.
func (r *Registry) LoadGrammar(ctx context.Context, scope string) (*Grammar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.grammars[scope]; ok {
		return g, nil
	}

	raw := r.source.Lookup(scope)
	if raw == nil {
		zerolog.Ctx(ctx).Debug().Str("scope", scope).Msg("no grammar for scope")
		return nil, nil
	}

	g := newGrammar(r, raw)
	if err := g.validate(ctx); err != nil {
		return nil, errors.Errorf("loading grammar %s: %w", scope, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("scope", scope).
		Int("repository_size", raw.Repository.Len()).
		Int("patterns", len(raw.Patterns)).
		Msg("loaded grammar")

	r.grammars[scope] = g
	return g, nil
}

// lookupRaw resolves a cross-grammar include.
func (r *Registry) lookupRaw(scope string) *tmlanguage.Grammar {
	return r.source.Lookup(scope)
}
