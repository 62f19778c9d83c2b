/*
Package comments is the consumer-facing surface of the tokenization
engine: given a document and a language, find the spans of text that
are comments, so the surrounding translation feature knows what to
translate.

The package degrades softly everywhere. A language with no resolvable
grammar yields no spans (never an error), matching the product
behavior: comment detection silently becomes unavailable rather than
crashing the editor feature.
*/
package comments

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/walteh/tmscope/pkg/grammar"
	"github.com/walteh/tmscope/pkg/pattern"
	"github.com/walteh/tmscope/pkg/registry"
	"github.com/walteh/tmscope/pkg/tokenizer"
	"gitlab.com/tozd/go/errors"
)

// Span is one comment region within a document. Start/End are rune
// offsets within the line, End exclusive.
type Span struct {
	Line  int
	Start int
	End   int
	Text  string
}

// Service wires the registry, compiler and tokenizer together behind
// the operations the translation feature needs.
type Service struct {
	reg      *registry.Registry
	compiler *grammar.Compiler
}

// NewService builds a service over an already-populated registry.
// Grammar definitions are read from fs at the locations the registry's
// descriptors name; the pattern engine initializes lazily on the first
// compile.
func NewService(ctx context.Context, fs afero.Fs, reg *registry.Registry) *Service {
	zerolog.Ctx(ctx).Debug().Str("registry", reg.ID()).Msg("creating comment detection service")
	return &Service{
		reg:      reg,
		compiler: grammar.NewCompiler(fs, reg, pattern.NewEngine()),
	}
}

// AvailableLanguages lists the languages comment detection can work
// on: those with a currently-resolvable grammar.
func (s *Service) AvailableLanguages() []string {
	return s.reg.ResolvableLanguages()
}

// GrammarForLanguage resolves a language name to its compiled grammar,
// triggering lazy compilation. ok=false is the expected outcome for
// unknown languages and for grammars that failed to compile; it is the
// "cannot tokenize this language" signal, never a throw.
func (s *Service) GrammarForLanguage(ctx context.Context, language string) (*grammar.CompiledGrammar, bool) {
	scope, ok := s.reg.ScopeForLanguage(language)
	if !ok {
		zerolog.Ctx(ctx).Debug().Str("language", language).Msg("no grammar contributed for language")
		return nil, false
	}

	g, err := s.compiler.Compile(ctx, scope)
	if err != nil {
		if errors.Is(err, grammar.ErrNoGrammar) {
			zerolog.Ctx(ctx).Debug().Str("language", language).Str("scope", scope).Msg("grammar not resolvable")
		} else {
			zerolog.Ctx(ctx).Warn().Err(err).Str("language", language).Str("scope", scope).Msg("grammar failed to compile")
		}
		return nil, false
	}
	return g, true
}

// TokenizeLines tokenizes a whole document line by line, threading the
// end state of each line into the next. ok=false means the language
// has no usable grammar.
func (s *Service) TokenizeLines(ctx context.Context, language string, lines []string) ([][]tokenizer.Token, bool) {
	g, ok := s.GrammarForLanguage(ctx, language)
	if !ok {
		return nil, false
	}

	out := make([][]tokenizer.Token, len(lines))
	var state *tokenizer.State
	for i, line := range lines {
		out[i], state = tokenizer.TokenizeLine(ctx, g, line, state)
	}
	return out, true
}

// CommentSpans returns the comment regions of a document, adjacent
// comment tokens on a line merged into one span. A language without a
// usable grammar yields (nil, false): treat nothing as a comment.
func (s *Service) CommentSpans(ctx context.Context, language string, lines []string) ([]Span, bool) {
	g, ok := s.GrammarForLanguage(ctx, language)
	if !ok {
		return nil, false
	}

	var spans []Span
	var state *tokenizer.State
	for i, line := range lines {
		var tokens []tokenizer.Token
		tokens, state = tokenizer.TokenizeLine(ctx, g, line, state)

		runes := []rune(line)
		for _, tok := range tokens {
			if tok.End <= tok.Start || !isComment(g, tok.Scopes) {
				continue
			}
			if n := len(spans); n > 0 && spans[n-1].Line == i && spans[n-1].End == tok.Start {
				spans[n-1].End = tok.End
				spans[n-1].Text = string(runes[spans[n-1].Start:tok.End])
				continue
			}
			spans = append(spans, Span{
				Line:  i,
				Start: tok.Start,
				End:   tok.End,
				Text:  string(runes[tok.Start:tok.End]),
			})
		}
	}
	return spans, true
}

// isComment decides whether a scope stack marks comment text: any
// scope in the comment.* family, or any scope the grammar's token-type
// overrides reclassify as a comment.
func isComment(g *grammar.CompiledGrammar, scopes []string) bool {
	for _, scope := range scopes {
		if scope == "comment" || strings.HasPrefix(scope, "comment.") {
			return true
		}
		if kind, ok := g.TokenTypes[scope]; ok && kind == "comment" {
			return true
		}
	}
	return false
}
