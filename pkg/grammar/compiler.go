/*
Package grammar compiles raw TextMate grammar definitions into
immutable rule trees.

Compilation resolves include directives ($self, $base, #repository
entries, and cross-grammar references through the same cache), compiles
every rule pattern through the pattern engine, resolves embedded
language names to numeric ids, and merges injection contributions. The
result is cached per scope name — failures too, so a grammar that does
not parse fails once, not per tokenize call.
*/
package grammar

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	tmlanguage "github.com/walteh/tmscope/gen/jsonschema/go/tmlanguage"
	"github.com/walteh/tmscope/pkg/pattern"
	"github.com/walteh/tmscope/pkg/registry"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/singleflight"
)

// ErrNoGrammar is the expected, non-fatal outcome of requesting a
// scope nobody registered. Callers degrade to "no tokenization
// available".
var ErrNoGrammar = errors.New("no grammar registered for requested scope")

type compileResult struct {
	grammar *CompiledGrammar
	err     error
}

type Compiler struct {
	fs     afero.Fs
	reg    *registry.Registry
	engine *pattern.Engine

	group singleflight.Group

	// buildMu serializes grammar construction so cross-grammar include
	// recursion sees a consistent cache and the cycle guard below.
	buildMu  sync.Mutex
	building map[string]bool
	nextID   int

	cacheMu sync.RWMutex
	cache   map[string]compileResult
}

func NewCompiler(fs afero.Fs, reg *registry.Registry, engine *pattern.Engine) *Compiler {
	return &Compiler{
		fs:       fs,
		reg:      reg,
		engine:   engine,
		building: make(map[string]bool),
		cache:    make(map[string]compileResult),
	}
}

// Compile returns the compiled grammar for a scope name, building it
// on first request. Concurrent requests for the same scope are
// coalesced; both successes and failures are cached indefinitely.
func (c *Compiler) Compile(ctx context.Context, scopeName string) (*CompiledGrammar, error) {
	c.cacheMu.RLock()
	res, ok := c.cache[scopeName]
	c.cacheMu.RUnlock()
	if ok {
		return res.grammar, res.err
	}

	v, err, _ := c.group.Do(scopeName, func() (interface{}, error) {
		c.buildMu.Lock()
		defer c.buildMu.Unlock()
		g, err := c.compileLocked(ctx, scopeName)
		return g, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*CompiledGrammar), nil
}

// compileLocked builds (or returns the cached) grammar for scopeName.
// Caller holds buildMu; include resolution recurses into this method
// directly, with c.building breaking reference cycles.
func (c *Compiler) compileLocked(ctx context.Context, scopeName string) (*CompiledGrammar, error) {
	c.cacheMu.RLock()
	res, ok := c.cache[scopeName]
	c.cacheMu.RUnlock()
	if ok {
		return res.grammar, res.err
	}

	if c.building[scopeName] {
		return nil, errors.Errorf("%w: %s is part of an include cycle still being compiled", ErrNoGrammar, scopeName)
	}
	c.building[scopeName] = true
	defer delete(c.building, scopeName)

	g, err := c.build(ctx, scopeName)

	c.cacheMu.Lock()
	c.cache[scopeName] = compileResult{grammar: g, err: err}
	c.cacheMu.Unlock()

	return g, err
}

func (c *Compiler) build(ctx context.Context, scopeName string) (*CompiledGrammar, error) {
	logger := zerolog.Ctx(ctx)

	desc, ok := c.reg.Lookup(scopeName)
	if !ok {
		return nil, errors.Errorf("%w: %s", ErrNoGrammar, scopeName)
	}

	data, err := afero.ReadFile(c.fs, desc.Location)
	if err != nil {
		return nil, errors.Errorf("reading grammar %s from %s: %w", scopeName, desc.Location, err)
	}

	raw, err := tmlanguage.UnmarshalGrammar(data)
	if err != nil {
		return nil, errors.Errorf("parsing grammar %s: %w", scopeName, err)
	}

	g := &CompiledGrammar{
		ScopeName:         scopeName,
		Repository:        make(map[string]*Rule),
		EmbeddedLanguages: make(map[string]registry.LanguageID),
		TokenTypes:        desc.TokenTypes,
		engine:            c.engine,
	}

	b := &builder{ctx: ctx, c: c, raw: &raw, grammar: g}

	// the root shell exists before its children are built so $self
	// and $base includes can resolve to it mid-build
	g.Root = &Rule{ID: b.nextID()}
	for _, p := range raw.Patterns {
		if child := b.rule(p); child != nil {
			g.Root.Patterns = append(g.Root.Patterns, child)
		}
	}

	// build every repository entry, reachable or not, so other
	// grammars can include "scope#entry" through the cache
	for name := range raw.Repository {
		b.repositoryRule(name)
	}

	// grammar-local injection rules (the "injections" dictionary)
	// come before registry-contributed injection grammars; selectors
	// are sorted so overlay precedence is the same on every compile
	selectors := make([]string, 0, len(raw.Injections))
	for selector := range raw.Injections {
		selectors = append(selectors, selector)
	}
	sort.Strings(selectors)
	for _, selector := range selectors {
		if r := b.rule(raw.Injections[selector]); r != nil {
			g.Injections = append(g.Injections, r)
		} else {
			logger.Debug().Str("scope", scopeName).Str("selector", selector).Msg("dropped grammar-local injection")
		}
	}

	c.resolveEmbedded(ctx, g, desc.EmbeddedLanguages)

	if entries, ok := c.reg.Injections(scopeName); ok {
		for _, entry := range entries {
			injected, err := c.compileLocked(ctx, entry.InjectingScope)
			if err != nil {
				// injections are optional overlays; a missing or
				// broken injecting grammar never breaks its target
				logger.Debug().Err(err).
					Str("target", scopeName).
					Str("injecting", entry.InjectingScope).
					Msg("skipping unresolvable injection")
				continue
			}
			g.Injections = append(g.Injections, injected.Root)
			c.resolveEmbedded(ctx, g, entry.EmbeddedLanguages)
		}
	}

	g.ContainsEmbeddedLanguages = len(g.EmbeddedLanguages) > 0
	g.ruleErrs = b.errs

	logger.Debug().
		Str("scope", scopeName).
		Int("injections", len(g.Injections)).
		Int("skipped_rules", len(b.errs)).
		Bool("embedded", g.ContainsEmbeddedLanguages).
		Msg("compiled grammar")

	return g, nil
}

// resolveEmbedded folds a scope→language-name map into the grammar,
// resolving names through the shared language table. Names no
// installed package declared are dropped silently; partial ecosystems
// are the steady state, not an error.
func (c *Compiler) resolveEmbedded(ctx context.Context, g *CompiledGrammar, embedded map[string]string) {
	for scope, langName := range embedded {
		id, ok := c.reg.Languages().Lookup(langName)
		if !ok {
			zerolog.Ctx(ctx).Debug().
				Str("grammar", g.ScopeName).
				Str("scope", scope).
				Str("language", langName).
				Msg("dropping embedded language with no declared id")
			continue
		}
		g.EmbeddedLanguages[scope] = id
	}
}

// builder holds the per-grammar compilation state: the raw tree being
// walked, the repository placeholders that make self-referencing
// entries legal, and the skipped-rule errors.
type builder struct {
	ctx     context.Context
	c       *Compiler
	raw     *tmlanguage.Grammar
	grammar *CompiledGrammar
	errs    []error
}

func (b *builder) nextID() int {
	b.c.nextID++
	return b.c.nextID
}

// rule compiles one raw pattern. A nil result means the pattern was
// disabled, was an unresolvable include, or used a pattern the engine
// cannot compile; the last case is recorded in errs so diagnostics can
// report what was skipped.
func (b *builder) rule(p tmlanguage.Pattern) *Rule {
	if p.Disabled != nil && *p.Disabled != 0 {
		return nil
	}
	if p.Include != nil {
		return b.include(*p.Include)
	}

	r := &Rule{ID: b.nextID()}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.ContentName != nil {
		r.ContentName = *p.ContentName
	}
	if p.ApplyEndPatternLast != nil && *p.ApplyEndPatternLast != 0 {
		r.ApplyEndPatternLast = true
	}

	if p.Match != nil {
		m, err := b.c.engine.Compile(b.ctx, *p.Match)
		if err != nil {
			return b.skip("match", *p.Match, r.Name, err)
		}
		r.Match = m
		r.Captures = captureScopes(p.Captures)
		return r
	}

	if p.Begin != nil {
		begin, err := b.c.engine.Compile(b.ctx, *p.Begin)
		if err != nil {
			return b.skip("begin", *p.Begin, r.Name, err)
		}
		r.Begin = begin

		// captures is shorthand for beginCaptures + endCaptures
		r.BeginCaptures = captureScopes(p.BeginCaptures)
		if r.BeginCaptures == nil {
			r.BeginCaptures = captureScopes(p.Captures)
		}
		r.EndCaptures = captureScopes(p.EndCaptures)
		if r.EndCaptures == nil {
			r.EndCaptures = captureScopes(p.Captures)
		}

		switch {
		case p.While != nil:
			r.WhileSource = *p.While
			r.WhileHasBackRefs = hasBackRefs(*p.While)
			if !r.WhileHasBackRefs {
				w, err := b.c.engine.Compile(b.ctx, *p.While)
				if err != nil {
					return b.skip("while", *p.While, r.Name, err)
				}
				r.While = w
			}
		case p.End != nil:
			r.EndSource = *p.End
			r.EndHasBackRefs = hasBackRefs(*p.End)
			if !r.EndHasBackRefs {
				e, err := b.c.engine.Compile(b.ctx, *p.End)
				if err != nil {
					return b.skip("end", *p.End, r.Name, err)
				}
				r.End = e
			}
		default:
			// begin with no end runs to the end of the document; the
			// tokenizer treats a missing end as never matching
		}

		for _, child := range p.Patterns {
			if cr := b.rule(child); cr != nil {
				r.Patterns = append(r.Patterns, cr)
			}
		}
		return r
	}

	// container: only nested patterns
	for _, child := range p.Patterns {
		if cr := b.rule(child); cr != nil {
			r.Patterns = append(r.Patterns, cr)
		}
	}
	return r
}

func (b *builder) skip(kind, expr, name string, err error) *Rule {
	b.errs = append(b.errs, errors.Errorf("skipping rule %q: %s pattern %q: %w", name, kind, expr, err))
	zerolog.Ctx(b.ctx).Warn().
		Str("grammar", b.grammar.ScopeName).
		Str("rule", name).
		Str("kind", kind).
		Err(err).
		Msg("dropping rule with uncompilable pattern")
	return nil
}

// include resolves an include directive to an already- or newly-built
// rule. Unresolvable references resolve to nil, which callers drop
// silently: optional cross-grammar references are expected to be
// missing in partial installs.
func (b *builder) include(ref string) *Rule {
	switch {
	case ref == "$self" || ref == "$base":
		// $base differs from $self only for injected grammars, where
		// it names the outermost grammar; at compile scope they
		// coincide
		return b.grammar.Root
	case strings.HasPrefix(ref, "#"):
		return b.repositoryRule(ref[1:])
	}

	scope, entry := ref, ""
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		scope, entry = ref[:i], ref[i+1:]
	}

	other, err := b.c.compileLocked(b.ctx, scope)
	if err != nil {
		zerolog.Ctx(b.ctx).Debug().
			Str("grammar", b.grammar.ScopeName).
			Str("include", ref).
			Err(err).
			Msg("dropping unresolvable cross-grammar include")
		return nil
	}
	if entry == "" {
		return other.Root
	}
	return other.Repository[entry]
}

// repositoryRule builds (once) the named repository entry. A
// placeholder is registered before building so an entry referencing
// itself resolves to the rule under construction.
func (b *builder) repositoryRule(name string) *Rule {
	if r, ok := b.grammar.Repository[name]; ok {
		return r
	}
	raw, ok := b.raw.Repository[name]
	if !ok {
		zerolog.Ctx(b.ctx).Debug().
			Str("grammar", b.grammar.ScopeName).
			Str("repository", name).
			Msg("include references missing repository entry")
		return nil
	}

	placeholder := &Rule{ID: b.nextID()}
	b.grammar.Repository[name] = placeholder

	built := b.rule(raw)
	if built == nil {
		delete(b.grammar.Repository, name)
		return nil
	}
	*placeholder = *built
	return placeholder
}

// captureScopes converts a raw capture dictionary to group-number →
// scope-name. Non-numeric keys (named groups) and capture-level
// sub-patterns are not modeled and are dropped.
func captureScopes(raw map[string]tmlanguage.Capture) map[int]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil || v.Name == nil {
			continue
		}
		out[n] = *v.Name
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// hasBackRefs reports whether a pattern references begin captures
// (\1 .. \9), which forces per-push resolution.
func hasBackRefs(expr string) bool {
	for i := 0; i+1 < len(expr); i++ {
		if expr[i] != '\\' {
			continue
		}
		// count preceding backslashes; an even count means this one
		// starts an escape
		bs := 0
		for k := i - 1; k >= 0 && expr[k] == '\\'; k-- {
			bs++
		}
		if bs%2 == 0 && expr[i+1] >= '1' && expr[i+1] <= '9' {
			return true
		}
	}
	return false
}
