package grammar

import (
	"github.com/walteh/tmscope/pkg/pattern"
	"github.com/walteh/tmscope/pkg/registry"
	"go.uber.org/multierr"
)

// Rule is one compiled grammar rule. A rule is exactly one of:
//
//   - a match rule (Match set): matches within a single line
//   - a begin/end rule (Begin and End set): opens a nested context
//   - a begin/while rule (Begin and While set): opens a context that
//     persists while While matches at each line start
//   - a container (none set): only contributes its Patterns, the
//     compiled form of includes and pattern groups
//
// Rules are immutable after compilation. Patterns may contain cycles
// (a repository entry legitimately referencing itself), so consumers
// walking the tree must carry a visited set.
type Rule struct {
	ID          int
	Name        string
	ContentName string

	Match *pattern.Compiled
	Begin *pattern.Compiled
	End   *pattern.Compiled
	While *pattern.Compiled

	// EndSource/WhileSource keep the raw pattern text for rules whose
	// end/while reference begin captures; those are resolved per push
	// by the tokenizer, not at compile time.
	EndSource        string
	EndHasBackRefs   bool
	WhileSource      string
	WhileHasBackRefs bool

	ApplyEndPatternLast bool

	Captures      map[int]string
	BeginCaptures map[int]string
	EndCaptures   map[int]string

	Patterns []*Rule
}

func (r *Rule) IsMatch() bool {
	return r.Match != nil
}

func (r *Rule) IsBeginEnd() bool {
	return r.Begin != nil && r.While == nil
}

func (r *Rule) IsBeginWhile() bool {
	return r.Begin != nil && r.While != nil
}

func (r *Rule) IsContainer() bool {
	return r.Match == nil && r.Begin == nil
}

// CompiledGrammar is the immutable output of compilation: the resolved
// rule tree plus everything the tokenizer and its consumers need to
// interpret tokens. Cached by scope name; a changed grammar requires a
// fresh registry and compiler, not invalidation.
type CompiledGrammar struct {
	ScopeName string

	// Root is a container rule holding the grammar's top-level
	// patterns.
	Root *Rule

	// Repository is the grammar's named rule dictionary, retained so
	// other grammars can include "scope#entry" through the cache.
	Repository map[string]*Rule

	// Injections are overlay containers contributed by injection
	// grammars, in precedence order. They are tried in every context
	// after the context's own candidates.
	Injections []*Rule

	// EmbeddedLanguages maps scope names to resolved language ids.
	// Names that resolved to no known language were dropped.
	EmbeddedLanguages map[string]registry.LanguageID

	// TokenTypes carries the descriptor's scope→kind overrides.
	TokenTypes map[string]string

	ContainsEmbeddedLanguages bool

	engine   *pattern.Engine
	ruleErrs []error
}

// RuleErrors aggregates the rules skipped during compilation because
// their patterns could not be compiled. A non-nil result does not make
// the grammar unusable; the surviving rules tokenize normally.
func (g *CompiledGrammar) RuleErrors() error {
	return multierr.Combine(g.ruleErrs...)
}

// Engine exposes the pattern engine the grammar was compiled with, for
// per-push resolution of back-referencing end patterns.
func (g *CompiledGrammar) Engine() *pattern.Engine {
	return g.engine
}

// EmbeddedLanguageFor returns the language id attached to a scope
// name, or LanguageNone.
func (g *CompiledGrammar) EmbeddedLanguageFor(scope string) registry.LanguageID {
	if id, ok := g.EmbeddedLanguages[scope]; ok {
		return id
	}
	return registry.LanguageNone
}
