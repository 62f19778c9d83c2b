/*
Package registry holds the grammar contribution state: which scope
names have grammars, where their definitions live, which scopes inject
into which, and the process-wide language-name table.

A Registry is an explicit, owned object with its own lifetime. Multiple
independent registries can coexist (tests rely on this); nothing in
this package is a process-wide singleton. The intended lifecycle is
populate-then-read: all registration happens during setup, tokenization
reads afterwards. Registration is serialized by the registry's lock and
lookups may proceed concurrently.
*/
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// GrammarDescriptor records where a scope's grammar definition lives
// and what it declared. Immutable value; re-registering a scope
// replaces the whole descriptor (last write wins, intentionally — a
// curated grammar registered later overrides a conflicting one).
type GrammarDescriptor struct {
	ScopeName string
	// Location is the path of the raw grammar definition on the
	// compiler's filesystem.
	Location          string
	EmbeddedLanguages map[string]string
	TokenTypes        map[string]string
}

// InjectionEntry records one grammar injecting its patterns into
// another grammar's contexts.
type InjectionEntry struct {
	TargetScope       string
	InjectingScope    string
	EmbeddedLanguages map[string]string
}

// Contribution is one grammar record as supplied by an installed
// language package, plus the language it claims (optional; injection
// grammars typically have none).
type Contribution struct {
	ScopeName         string
	Path              string
	Language          string
	EmbeddedLanguages map[string]string
	TokenTypes        map[string]string
	InjectTo          []string
}

type Registry struct {
	id     string
	policy SuppressionPolicy

	mu             sync.RWMutex
	grammars       map[string]GrammarDescriptor
	injections     map[string][]InjectionEntry
	languageScopes map[string]string
	languages      *LanguageTable
}

func New(ctx context.Context, policy SuppressionPolicy) *Registry {
	r := &Registry{
		id:             uuid.NewString(),
		policy:         policy,
		grammars:       make(map[string]GrammarDescriptor),
		injections:     make(map[string][]InjectionEntry),
		languageScopes: make(map[string]string),
		languages:      NewLanguageTable(),
	}
	zerolog.Ctx(ctx).Debug().Str("registry", r.id).Msg("created grammar registry")
	return r
}

func (r *Registry) ID() string {
	return r.id
}

func (r *Registry) Languages() *LanguageTable {
	return r.languages
}

// Register stores the descriptor for its scope name, overwriting any
// prior registration for the same scope.
func (r *Registry) Register(ctx context.Context, desc GrammarDescriptor) {
	r.mu.Lock()
	if prior, ok := r.grammars[desc.ScopeName]; ok && prior.Location != desc.Location {
		zerolog.Ctx(ctx).Debug().
			Str("scope", desc.ScopeName).
			Str("old_location", prior.Location).
			Str("new_location", desc.Location).
			Msg("grammar re-registered, last write wins")
	}
	r.grammars[desc.ScopeName] = desc
	r.mu.Unlock()
}

// Lookup returns the descriptor for a scope. Absence is a normal
// outcome — many referenced scopes (injection targets in particular)
// are optional — so it is reported via ok, never an error.
func (r *Registry) Lookup(scopeName string) (GrammarDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.grammars[scopeName]
	return desc, ok
}

// AddInjection appends an injection for its target scope. Insertion
// order is preserved and significant: it is the precedence order in
// which non-filtered injections are tried.
func (r *Registry) AddInjection(entry InjectionEntry) {
	r.mu.Lock()
	r.injections[entry.TargetScope] = append(r.injections[entry.TargetScope], entry)
	r.mu.Unlock()
}

// Injections returns the non-suppressed injections for a target scope.
// ok=false means "no injections" — either none were registered, the
// target is disabled outright, or the suppression policy filtered
// every candidate. Downstream compilation treats all three
// identically.
func (r *Registry) Injections(target string) ([]InjectionEntry, bool) {
	if r.policy.TargetDisabled(target) {
		return nil, false
	}

	r.mu.RLock()
	registered := r.injections[target]
	r.mu.RUnlock()

	var out []InjectionEntry
	for _, entry := range registered {
		if r.policy.Allows(entry.InjectingScope) {
			out = append(out, entry)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// RegisterContribution ingests one grammar contribution record:
// descriptor, language binding, and injection declarations in one
// call.
func (r *Registry) RegisterContribution(ctx context.Context, c Contribution) {
	if c.ScopeName == "" {
		zerolog.Ctx(ctx).Warn().Str("path", c.Path).Msg("skipping grammar contribution without scope name")
		return
	}

	r.Register(ctx, GrammarDescriptor{
		ScopeName:         c.ScopeName,
		Location:          c.Path,
		EmbeddedLanguages: c.EmbeddedLanguages,
		TokenTypes:        c.TokenTypes,
	})

	if c.Language != "" {
		r.languages.Declare(c.Language)
		r.mu.Lock()
		r.languageScopes[c.Language] = c.ScopeName
		r.mu.Unlock()
	}

	for _, target := range c.InjectTo {
		r.AddInjection(InjectionEntry{
			TargetScope:       target,
			InjectingScope:    c.ScopeName,
			EmbeddedLanguages: c.EmbeddedLanguages,
		})
	}
}

// ScopeForLanguage resolves a language name to the scope of the
// grammar claiming it.
func (r *Registry) ScopeForLanguage(language string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scope, ok := r.languageScopes[language]
	return scope, ok
}

// ResolvableLanguages lists, sorted, the languages for which a grammar
// descriptor is currently registered. The surrounding feature uses
// this to decide per document whether tokenization is possible at all.
func (r *Registry) ResolvableLanguages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for language, scope := range r.languageScopes {
		if _, ok := r.grammars[scope]; ok {
			out = append(out, language)
		}
	}
	sort.Strings(out)
	return out
}
