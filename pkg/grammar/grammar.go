package grammar

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/tmhighlight/gen/grammars"
	"github.com/walteh/tmhighlight/pkg/targz"
	"github.com/walteh/tmhighlight/pkg/textmate"
	"github.com/walteh/tmhighlight/pkg/tmlanguage"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var ErrGrammarNotFound = errors.Base("grammar not found")

// GrammarFilePattern matches grammar files inside a grammar directory.
const GrammarFilePattern = "**/*.tmLanguage.json"

// DefaultExtensions maps file extensions to the embedded grammars.
var DefaultExtensions = map[string]string{
	".ts":  "source.ts",
	".tsx": "source.ts",
	".mts": "source.ts",
	".cts": "source.ts",
	".go":  "source.go",
}

var _ textmate.GrammarSource = (*Store)(nil)

// Store holds raw grammars by scope name and knows which file extensions
// they cover.
type Store struct {
	mu         sync.RWMutex
	grammars   map[string]*tmlanguage.Grammar
	extensions map[string]string
}

type Option func(*storeOptions)

type storeOptions struct {
	dirs       []directory
	extensions map[string]string
	skipBundle bool
}

type directory struct {
	fs  afero.Fs
	dir string
}

// WithDirectory loads every *.tmLanguage.json under dir after the embedded
// grammars, so a directory grammar replaces an embedded one of the same scope.
func WithDirectory(fs afero.Fs, dir string) Option {
	return func(o *storeOptions) {
		o.dirs = append(o.dirs, directory{fs: fs, dir: dir})
	}
}

// WithExtensions adds extension to scope mappings that take precedence over
// DefaultExtensions.
func WithExtensions(ext map[string]string) Option {
	return func(o *storeOptions) {
		if o.extensions == nil {
			o.extensions = make(map[string]string)
		}
		for k, v := range ext {
			o.extensions[normalizeExt(k)] = v
		}
	}
}

// WithoutEmbedded starts from an empty store.
func WithoutEmbedded() Option {
	return func(o *storeOptions) {
		o.skipBundle = true
	}
}

// NewStore creates a grammar store holding the embedded grammars plus any
// configured directories.
func NewStore(ctx context.Context, opts ...Option) (*Store, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("creating new grammar store")

	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		grammars:   make(map[string]*tmlanguage.Grammar),
		extensions: make(map[string]string),
	}
	for k, v := range DefaultExtensions {
		s.extensions[k] = v
	}
	for k, v := range o.extensions {
		s.extensions[k] = v
	}

	if !o.skipBundle {
		if err := s.loadBundle(ctx, grammars.Data); err != nil {
			return nil, err
		}
	}

	for _, d := range o.dirs {
		if err := s.AddDirectory(ctx, d.fs, d.dir); err != nil {
			return nil, err
		}
	}

	logger.Debug().Strs("scopes", s.Scopes()).Msg("grammar store ready")
	return s, nil
}

func (s *Store) loadBundle(ctx context.Context, data []byte) error {
	bundle, err := targz.LoadWithOptions(data, targz.LoadOptions{
		Filter: func(name string) bool {
			return strings.HasSuffix(name, ".tmLanguage.json")
		},
	})
	if err != nil {
		return errors.Errorf("loading embedded grammars: %w", err)
	}

	for _, name := range bundle.Names() {
		if _, err := s.LoadCustomGrammar(ctx, bundle.Files[name]); err != nil {
			return errors.Errorf("embedded grammar %s: %w", name, err)
		}
	}
	return nil
}

// AddDirectory loads every grammar file under dir. A file that fails to load
// does not stop the others; all failures are returned together.
func (s *Store) AddDirectory(ctx context.Context, fs afero.Fs, dir string) error {
	logger := zerolog.Ctx(ctx).With().Str("dir", dir).Logger()

	if ok, err := afero.DirExists(fs, dir); err != nil || !ok {
		return errors.Errorf("grammar directory %s does not exist", dir)
	}

	root := afero.NewBasePathFs(fs, dir)
	matches, err := doublestar.Glob(afero.NewIOFS(root), GrammarFilePattern)
	if err != nil {
		return errors.Errorf("searching %s for grammars: %w", dir, err)
	}
	sort.Strings(matches)

	// decode in parallel, register in path order so a later file wins a
	// scope collision deterministically
	decoded := make([]*tmlanguage.Grammar, len(matches))
	failures := make([]error, len(matches))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range matches {
		g.Go(func() error {
			data, err := afero.ReadFile(root, m)
			if err != nil {
				failures[i] = errors.Errorf("reading %s: %w", filepath.Join(dir, m), err)
				return nil
			}
			decoded[i], err = tmlanguage.UnmarshalGrammar(data)
			if err != nil {
				failures[i] = errors.Errorf("%s: %w", filepath.Join(dir, m), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, m := range matches {
		if decoded[i] == nil {
			continue
		}
		s.add(ctx, decoded[i])
		logger.Debug().Str("file", m).Str("scope", decoded[i].ScopeName).Msg("loaded grammar file")
	}
	return multierr.Combine(failures...)
}

// LoadCustomGrammar adds a grammar from its JSON source, replacing any
// grammar with the same scope name.
func (s *Store) LoadCustomGrammar(ctx context.Context, data []byte) (*tmlanguage.Grammar, error) {
	g, err := tmlanguage.UnmarshalGrammar(data)
	if err != nil {
		return nil, errors.Errorf("unmarshaling custom grammar: %w", err)
	}

	s.add(ctx, g)
	return g, nil
}

func (s *Store) add(ctx context.Context, g *tmlanguage.Grammar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grammars[g.ScopeName]; ok {
		zerolog.Ctx(ctx).Debug().Str("scope", g.ScopeName).Msg("replacing grammar")
	}
	s.grammars[g.ScopeName] = g
}

// GetGrammar retrieves a grammar by scope name.
func (s *Store) GetGrammar(scope string) (*tmlanguage.Grammar, error) {
	if g := s.Lookup(scope); g != nil {
		return g, nil
	}
	return nil, errors.Errorf("%w: %s", ErrGrammarNotFound, scope)
}

// Lookup is GetGrammar without the error, for the grammar engine.
func (s *Store) Lookup(scope string) *tmlanguage.Grammar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grammars[scope]
}

// Scopes lists the loaded scope names in sorted order.
func (s *Store) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.grammars))
	for scope := range s.grammars {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// ScopeForPath picks the grammar for a file by its extension. Configured
// extensions win, then the defaults, then the fileTypes declared by the
// loaded grammars.
func (s *Store) ScopeForPath(path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	if ext == "" {
		return "", errors.Errorf("%w: %s has no extension", ErrGrammarNotFound, path)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope, ok := s.extensions[ext]; ok {
		return scope, nil
	}

	for _, scope := range sortedKeys(s.grammars) {
		for _, ft := range s.grammars[scope].FileTypes {
			if normalizeExt(ft) == ext {
				return scope, nil
			}
		}
	}
	return "", errors.Errorf("%w: no grammar for %s files", ErrGrammarNotFound, ext)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
