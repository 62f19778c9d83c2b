/*
Package tokenizer implements the line-at-a-time TextMate tokenization
state machine.

A line is tokenized against a compiled grammar and the end-of-line
state of the previous line; the output is the line's tokens plus the
new end-of-line state. Tokenization is a pure function of its inputs —
it only reads the immutable grammar and the caller-owned state — so
lines may be tokenized on any goroutine without locking.

All offsets, in tokens and matches alike, are rune (Unicode code
point) indices into the line. Mixing unit systems between caller and
engine corrupts token boundaries, so the rune convention holds
end-to-end.
*/
package tokenizer

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/tmscope/pkg/grammar"
	"github.com/walteh/tmscope/pkg/pattern"
	"github.com/walteh/tmscope/pkg/registry"
)

// Token is a contiguous span of a line tagged with the full scope
// stack active over it, outermost first. Start/End are rune offsets,
// End exclusive. Tokens for one line are contiguous, non-overlapping,
// and cover the whole line.
type Token struct {
	Start    int
	End      int
	Scopes   []string
	Language registry.LanguageID
}

const (
	candEnd = iota
	candRule
	candInjection
)

type candidate struct {
	kind     int
	rule     *grammar.Rule
	compiled *pattern.Compiled
}

// TokenizeLine tokenizes one line. prior is the end state of the
// previous line, or nil for the first line of a document. The returned
// state is what the caller threads into the next line.
func TokenizeLine(ctx context.Context, g *grammar.CompiledGrammar, line string, prior *State) ([]Token, *State) {
	runes := []rune(line)
	state := prior
	if state == nil {
		state = Initial(g)
	}

	var tokens []Token
	pos := 0

	state, pos = checkWhileContexts(ctx, g, runes, state, &tokens)

	if len(runes) == 0 {
		// empty line: a single zero-length token keeps the state
		// threading uniform for the caller
		tokens = append(tokens, makeToken(g, 0, 0, state.scopes))
		return tokens, state
	}

	// hard backstop against grammars that push and pop at one offset
	// forever; forward progress is an invariant, not an optimization
	maxSteps := 10*len(runes) + 32

	for step := 0; pos < len(runes); step++ {
		if step >= maxSteps {
			zerolog.Ctx(ctx).Warn().
				Str("grammar", g.ScopeName).
				Int("pos", pos).
				Msg("tokenization exceeded iteration budget, emitting remainder")
			break
		}

		cand, m, ok := findBest(runes, pos, collectCandidates(g, state))
		if !ok {
			break
		}

		if m.Start > pos {
			tokens = append(tokens, makeToken(g, pos, m.Start, state.scopes))
		}

		switch {
		case cand.kind == candEnd:
			emitCaptures(g, &tokens, m, state.nameScopes, state.rule.EndCaptures)
			state = state.pop()
			pos = m.End

		case cand.rule.IsMatch():
			scopes := appendScope(state.scopes, cand.rule.Name)
			emitCaptures(g, &tokens, m, scopes, cand.rule.Captures)
			pos = m.End

		default: // begin/end or begin/while rule
			rule := cand.rule
			nameScopes := appendScope(state.scopes, rule.Name)
			emitCaptures(g, &tokens, m, nameScopes, rule.BeginCaptures)

			contentScopes := appendScope(nameScopes, rule.ContentName)

			var end, while *pattern.Compiled
			endSource := rule.EndSource
			if rule.IsBeginWhile() {
				while = resolveDynamic(ctx, g, rule.While, rule.WhileSource, rule.WhileHasBackRefs, m, runes)
				endSource = rule.WhileSource
				if while != nil {
					endSource = while.Source()
				}
			} else {
				end = resolveDynamic(ctx, g, rule.End, rule.EndSource, rule.EndHasBackRefs, m, runes)
				if end != nil {
					endSource = end.Source()
				}
			}
			state = state.push(rule, contentScopes, nameScopes, end, endSource, while)
			pos = m.End
		}
	}

	if pos < len(runes) {
		tokens = append(tokens, makeToken(g, pos, len(runes), state.scopes))
	}

	return tokens, state
}

// checkWhileContexts revalidates open begin/while contexts at the
// start of a line: outermost first, each while pattern must match for
// its context (and everything nested inside it) to survive. Matched
// spans are consumed and emitted with the surviving context's scopes.
func checkWhileContexts(ctx context.Context, g *grammar.CompiledGrammar, runes []rune, state *State, tokens *[]Token) (*State, int) {
	var whiles []*State
	for s := state; s != nil; s = s.parent {
		if s.while != nil {
			whiles = append(whiles, s)
		}
	}
	if len(whiles) == 0 {
		return state, 0
	}
	// collected innermost-first; validate outermost-first
	sort.SliceStable(whiles, func(i, j int) bool { return whiles[i].depth < whiles[j].depth })

	pos := 0
	for _, ws := range whiles {
		m, ok, err := ws.while.FindAt(runes, pos)
		if err != nil || !ok {
			zerolog.Ctx(ctx).Debug().
				Str("grammar", g.ScopeName).
				Int("depth", ws.depth).
				Msg("while context ended")
			return ws.pop(), pos
		}
		if m.End > pos {
			*tokens = append(*tokens, makeToken(g, pos, m.End, ws.scopes))
			pos = m.End
		}
	}
	return state, pos
}

// collectCandidates gathers, in precedence order, every pattern that
// may match in the current context: the context's own end (first, or
// last among its own candidates under applyEndPatternLast), the
// context rule's nested patterns in declaration order, then the
// grammar's non-suppressed injections. Injections come last — they are
// additive overlays and never outrank the context's own end rule at
// the same offset.
func collectCandidates(g *grammar.CompiledGrammar, state *State) []candidate {
	var out []candidate

	endCand := candidate{kind: candEnd, compiled: state.end}
	applyLast := state.rule.ApplyEndPatternLast

	if state.end != nil && !applyLast {
		out = append(out, endCand)
	}
	out = appendMatchable(out, state.rule.Patterns, candRule, nil)
	if state.end != nil && applyLast {
		out = append(out, endCand)
	}

	for _, inj := range g.Injections {
		out = appendMatchable(out, []*grammar.Rule{inj}, candInjection, nil)
	}
	return out
}

// appendMatchable flattens containers into their matchable leaves.
// visited tolerates rule cycles ($self and self-referencing repository
// entries).
func appendMatchable(out []candidate, rules []*grammar.Rule, kind int, visited map[int]bool) []candidate {
	if visited == nil {
		visited = make(map[int]bool)
	}
	for _, r := range rules {
		if visited[r.ID] {
			continue
		}
		visited[r.ID] = true
		switch {
		case r.IsMatch():
			out = append(out, candidate{kind: kind, rule: r, compiled: r.Match})
		case r.Begin != nil:
			out = append(out, candidate{kind: kind, rule: r, compiled: r.Begin})
		default:
			out = appendMatchable(out, r.Patterns, kind, visited)
		}
	}
	return out
}

// findBest returns the candidate whose match starts earliest; ties go
// to the candidate listed first. End matches and begin matches may be
// zero-width (they change the context stack), but a zero-width plain
// match cannot advance the line and is treated as no match, so other
// patterns still get a chance.
func findBest(runes []rune, pos int, cands []candidate) (candidate, pattern.Match, bool) {
	matcher := pattern.NewMatcher()
	for _, c := range cands {
		allowEmpty := c.kind == candEnd || (c.rule != nil && !c.rule.IsMatch())
		matcher.Add(c.compiled, allowEmpty)
	}
	i, m, ok := matcher.First(runes, pos)
	if !ok {
		return candidate{}, pattern.Match{}, false
	}
	return cands[i], m, true
}

// emitCaptures emits the tokens for one matched span: segments covered
// by a scoped capture group get that scope appended, the rest carry
// the match scopes. Zero-width segments are skipped.
func emitCaptures(g *grammar.CompiledGrammar, tokens *[]Token, m pattern.Match, scopes []string, captures map[int]string) {
	if len(captures) == 0 || len(m.Groups) == 0 {
		if m.End > m.Start {
			*tokens = append(*tokens, makeToken(g, m.Start, m.End, scopes))
		}
		return
	}

	type span struct {
		start, end int
		scope      string
	}
	var spans []span
	for _, grp := range m.Groups {
		scope, ok := captures[grp.Number]
		if !ok || !grp.Present || grp.End <= grp.Start {
			continue
		}
		spans = append(spans, span{start: grp.Start, end: grp.End, scope: scope})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	cursor := m.Start
	for _, sp := range spans {
		if sp.start < cursor || sp.end > m.End {
			// overlapping or out-of-match captures are not modeled
			continue
		}
		if sp.start > cursor {
			*tokens = append(*tokens, makeToken(g, cursor, sp.start, scopes))
		}
		*tokens = append(*tokens, makeToken(g, sp.start, sp.end, appendScope(scopes, sp.scope)))
		cursor = sp.end
	}
	if cursor < m.End {
		*tokens = append(*tokens, makeToken(g, cursor, m.End, scopes))
	}
}

func makeToken(g *grammar.CompiledGrammar, start, end int, scopes []string) Token {
	t := Token{Start: start, End: end, Scopes: scopes}
	if g.ContainsEmbeddedLanguages {
		// innermost scope with an embedded language wins
		for i := len(scopes) - 1; i >= 0; i-- {
			if id := g.EmbeddedLanguageFor(scopes[i]); id != registry.LanguageNone {
				t.Language = id
				break
			}
		}
	}
	return t
}

func appendScope(scopes []string, name string) []string {
	if name == "" {
		return scopes
	}
	out := make([]string, len(scopes), len(scopes)+1)
	copy(out, scopes)
	return append(out, name)
}

// resolveDynamic resolves a context's closing pattern at push time.
// Patterns with begin-capture back-references are rewritten with the
// captured text quoted in, then compiled; a failed dynamic compile
// falls back to the static pattern (usually nil, leaving the context
// open rather than guessing).
func resolveDynamic(ctx context.Context, g *grammar.CompiledGrammar, static *pattern.Compiled, source string, hasRefs bool, begin pattern.Match, runes []rune) *pattern.Compiled {
	if !hasRefs {
		return static
	}

	substituted := substituteBackRefs(source, begin, runes)
	compiled, err := g.Engine().Compile(ctx, substituted)
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Str("grammar", g.ScopeName).
			Str("pattern", source).
			Err(err).
			Msg("failed to resolve back-referencing close pattern")
		return static
	}
	return compiled
}

// substituteBackRefs replaces \1..\9 in a close pattern with the
// literal (quoted) text the begin match captured.
func substituteBackRefs(source string, begin pattern.Match, runes []rune) string {
	var sb strings.Builder
	for i := 0; i < len(source); i++ {
		if source[i] != '\\' || i+1 >= len(source) {
			sb.WriteByte(source[i])
			continue
		}
		next := source[i+1]
		if next < '1' || next > '9' {
			sb.WriteByte(source[i])
			sb.WriteByte(next)
			i++
			continue
		}
		num := int(next - '0')
		i++
		captured := ""
		for _, grp := range begin.Groups {
			if grp.Number == num && grp.Present {
				captured = string(runes[grp.Start:grp.End])
				break
			}
		}
		sb.WriteString(regexp.QuoteMeta(captured))
	}
	return sb.String()
}
