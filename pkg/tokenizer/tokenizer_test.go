package tokenizer_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tmscope/pkg/grammar"
	"github.com/walteh/tmscope/pkg/pattern"
	"github.com/walteh/tmscope/pkg/registry"
	"github.com/walteh/tmscope/pkg/tokenizer"
)

func testContext() context.Context {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

// compileGrammar compiles a single in-memory grammar body registered
// as source.test.
func compileGrammar(t *testing.T, ctx context.Context, body string) *grammar.CompiledGrammar {
	t.Helper()
	return compileWith(t, ctx, registry.SuppressionPolicy{}, map[string]registry.Contribution{
		"source.test": {ScopeName: "source.test", Path: "test.json"},
	}, map[string]string{"test.json": body}, "source.test")
}

func compileWith(t *testing.T, ctx context.Context, policy registry.SuppressionPolicy, contribs map[string]registry.Contribution, files map[string]string, scope string) *grammar.CompiledGrammar {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}
	reg := registry.New(ctx, policy)
	for _, c := range contribs {
		reg.RegisterContribution(ctx, c)
	}
	compiler := grammar.NewCompiler(fs, reg, pattern.NewEngine())
	g, err := compiler.Compile(ctx, scope)
	require.NoError(t, err, "test grammar should compile")
	return g
}

// requireCoverage asserts the line-tokenization contract: contiguous,
// non-overlapping tokens exactly covering [0, lineLength).
func requireCoverage(t *testing.T, tokens []tokenizer.Token, lineLen int) {
	t.Helper()
	require.NotEmpty(t, tokens, "every line produces at least one token")
	assert.Equal(t, 0, tokens[0].Start, "tokens start at offset zero")
	for i := 1; i < len(tokens); i++ {
		assert.Equal(t, tokens[i-1].End, tokens[i].Start, "token %d must start where token %d ended", i, i-1)
	}
	assert.Equal(t, lineLen, tokens[len(tokens)-1].End, "tokens cover the whole line")
}

func TestTokenizeLine_LineComment(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"match": "//.*$", "name": "comment.line.double-slash"}]
	}`)

	line := "let x = 1; // hello"
	tokens, state := tokenizer.TokenizeLine(ctx, g, line, nil)

	require.Len(t, tokens, 2)
	assert.Equal(t, 0, tokens[0].Start)
	assert.Equal(t, 11, tokens[0].End)
	assert.Equal(t, []string{"source.test"}, tokens[0].Scopes)

	assert.Equal(t, 11, tokens[1].Start)
	assert.Equal(t, len(line), tokens[1].End)
	assert.Equal(t, []string{"source.test", "comment.line.double-slash"}, tokens[1].Scopes)

	assert.Equal(t, 0, state.Depth(), "match rules never open contexts")
	requireCoverage(t, tokens, len(line))
}

func TestTokenizeLine_BlockCommentAcrossLines(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"begin": "/\\*", "end": "\\*/", "name": "comment.block"}]
	}`)

	tokens1, state1 := tokenizer.TokenizeLine(ctx, g, "/* a", nil)
	require.Equal(t, 1, state1.Depth(), "an unclosed begin leaves the context open across the line boundary")
	requireCoverage(t, tokens1, 4)
	for _, tok := range tokens1 {
		assert.Contains(t, tok.Scopes, "comment.block")
	}

	tokens2, state2 := tokenizer.TokenizeLine(ctx, g, "b */", state1)
	require.Len(t, tokens2, 2)
	assert.Equal(t, 0, tokens2[0].Start)
	assert.Equal(t, 2, tokens2[0].End)
	assert.Equal(t, []string{"source.test", "comment.block"}, tokens2[0].Scopes, `"b " is still inside the block`)
	assert.Equal(t, 2, tokens2[1].Start)
	assert.Equal(t, 4, tokens2[1].End)
	assert.Equal(t, []string{"source.test", "comment.block"}, tokens2[1].Scopes, "the end match itself carries the block scope")

	assert.Equal(t, 0, state2.Depth(), "the end match closes the context")
	requireCoverage(t, tokens2, 4)
}

func TestTokenizeLine_Determinism(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [
			{"begin": "\"", "end": "\"", "name": "string.quoted"},
			{"match": "//.*$", "name": "comment.line"}
		]
	}`)

	line := `say("hi") // done`
	tokensA, stateA := tokenizer.TokenizeLine(ctx, g, line, nil)
	tokensB, stateB := tokenizer.TokenizeLine(ctx, g, line, nil)

	assert.Equal(t, tokensA, tokensB, "identical inputs produce identical token sequences")
	assert.True(t, stateA.Equal(stateB), "identical inputs produce equal end states")
}

func TestTokenizeLine_NoBeginEndRulesStaysFlat(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [
			{"match": "\\d+", "name": "constant.numeric"},
			{"match": "[a-z]+", "name": "variable.other"}
		]
	}`)

	var state *tokenizer.State
	for _, line := range []string{"abc 123 def", "", "42", "no match here 7"} {
		var tokens []tokenizer.Token
		tokens, state = tokenizer.TokenizeLine(ctx, g, line, state)
		assert.Equal(t, 0, state.Depth(), "match-only grammars never nest")
		if len(line) > 0 {
			requireCoverage(t, tokens, len([]rune(line)))
		}
	}
}

func TestTokenizeLine_NoMatchEmitsWholeLine(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"match": "never-present", "name": "keyword"}]
	}`)

	tokens, _ := tokenizer.TokenizeLine(ctx, g, "plain text", nil)
	require.Len(t, tokens, 1)
	assert.Equal(t, []string{"source.test"}, tokens[0].Scopes)
	requireCoverage(t, tokens, 10)
}

func TestTokenizeLine_EmptyLine(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"begin": "/\\*", "end": "\\*/", "name": "comment.block"}]
	}`)

	t.Run("test_empty_line_at_top_level", func(t *testing.T) {
		tokens, state := tokenizer.TokenizeLine(ctx, g, "", nil)
		require.Len(t, tokens, 1)
		assert.Equal(t, 0, tokens[0].Start)
		assert.Equal(t, 0, tokens[0].End)
		assert.Equal(t, []string{"source.test"}, tokens[0].Scopes)
		assert.Equal(t, 0, state.Depth())
	})

	t.Run("test_empty_line_inside_block", func(t *testing.T) {
		_, open := tokenizer.TokenizeLine(ctx, g, "/*", nil)
		require.Equal(t, 1, open.Depth())

		tokens, state := tokenizer.TokenizeLine(ctx, g, "", open)
		require.Len(t, tokens, 1)
		assert.Equal(t, []string{"source.test", "comment.block"}, tokens[0].Scopes, "the zero-length token carries the active context")
		assert.Equal(t, 1, state.Depth(), "an empty line does not close the context")
	})
}

func TestTokenizeLine_ZeroWidthMatchDoesNotLoop(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"match": "x*", "name": "meta.zero"}]
	}`)

	// "abc" never contains x, so the pattern only ever matches
	// zero-width; that must be treated as no match, not an infinite
	// loop
	tokens, state := tokenizer.TokenizeLine(ctx, g, "abc", nil)
	require.Len(t, tokens, 1)
	assert.Equal(t, []string{"source.test"}, tokens[0].Scopes)
	assert.Equal(t, 0, state.Depth())
	requireCoverage(t, tokens, 3)
}

func TestTokenizeLine_Captures(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{
			"match": "(\\w+)=(\\w+)",
			"name": "meta.assignment",
			"captures": {
				"1": {"name": "variable.name"},
				"2": {"name": "constant.value"}
			}
		}]
	}`)

	tokens, _ := tokenizer.TokenizeLine(ctx, g, "a=1;", nil)
	require.Len(t, tokens, 4)

	assert.Equal(t, []string{"source.test", "meta.assignment", "variable.name"}, tokens[0].Scopes)
	assert.Equal(t, []string{"source.test", "meta.assignment"}, tokens[1].Scopes, "text between captures keeps the match scope")
	assert.Equal(t, []string{"source.test", "meta.assignment", "constant.value"}, tokens[2].Scopes)
	assert.Equal(t, []string{"source.test"}, tokens[3].Scopes)
	requireCoverage(t, tokens, 4)
}

func TestTokenizeLine_BeginCapturesAndContentName(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{
			"begin": "(\")",
			"end": "\"",
			"name": "string.quoted",
			"contentName": "meta.string-contents",
			"beginCaptures": {"1": {"name": "punctuation.definition.string.begin"}}
		}]
	}`)

	tokens, state := tokenizer.TokenizeLine(ctx, g, `"hi"`, nil)
	require.Len(t, tokens, 3)

	assert.Equal(t, []string{"source.test", "string.quoted", "punctuation.definition.string.begin"}, tokens[0].Scopes)
	assert.Equal(t, []string{"source.test", "string.quoted", "meta.string-contents"}, tokens[1].Scopes, "contentName applies between begin and end only")
	assert.Equal(t, []string{"source.test", "string.quoted"}, tokens[2].Scopes, "the end match carries the name but not the contentName")
	assert.Equal(t, 0, state.Depth())
	requireCoverage(t, tokens, 4)
}

func TestTokenizeLine_EndBackReferences(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"begin": "<(\\w+)>", "end": "</(\\1)>", "name": "meta.tag"}]
	}`)

	t.Run("test_matching_close_tag", func(t *testing.T) {
		tokens, state := tokenizer.TokenizeLine(ctx, g, "<b>bold</b>", nil)
		assert.Equal(t, 0, state.Depth(), "the back-referencing end closes on the captured name")
		requireCoverage(t, tokens, 11)
	})

	t.Run("test_mismatched_close_tag_stays_open", func(t *testing.T) {
		_, state := tokenizer.TokenizeLine(ctx, g, "<b>bold</i>", nil)
		assert.Equal(t, 1, state.Depth(), "a different close tag does not satisfy the substituted end")
	})
}

func TestTokenizeLine_ApplyEndPatternLast(t *testing.T) {
	ctx := testContext()

	t.Run("test_end_wins_by_default", func(t *testing.T) {
		g := compileGrammar(t, ctx, `{
			"scopeName": "source.test",
			"patterns": [{
				"begin": "<",
				"end": ">",
				"name": "meta.angle",
				"patterns": [{"match": ">", "name": "inner.gt"}]
			}]
		}`)

		tokens, state := tokenizer.TokenizeLine(ctx, g, "<>x", nil)
		assert.Equal(t, 0, state.Depth(), "without applyEndPatternLast the end rule is tried first")
		for _, tok := range tokens {
			assert.NotContains(t, tok.Scopes, "inner.gt", "the nested pattern never sees the close character")
		}
		requireCoverage(t, tokens, 3)
	})

	t.Run("test_nested_patterns_win_with_flag", func(t *testing.T) {
		g := compileGrammar(t, ctx, `{
			"scopeName": "source.test",
			"patterns": [{
				"begin": "<",
				"end": ">",
				"name": "meta.angle",
				"applyEndPatternLast": 1,
				"patterns": [{"match": ">", "name": "inner.gt"}]
			}]
		}`)

		tokens, state := tokenizer.TokenizeLine(ctx, g, "<>x", nil)
		assert.Equal(t, 1, state.Depth(), "the nested pattern consumes the close character, leaving the context open")

		sawInner := false
		for _, tok := range tokens {
			for _, scope := range tok.Scopes {
				if scope == "inner.gt" {
					sawInner = true
				}
			}
		}
		assert.True(t, sawInner, "applyEndPatternLast defers the end rule behind same-context candidates")
	})
}

func TestTokenizeLine_WhileContexts(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"begin": ">", "while": ">", "name": "markup.quote"}]
	}`)

	tokens1, state1 := tokenizer.TokenizeLine(ctx, g, "> a", nil)
	require.Equal(t, 1, state1.Depth(), "begin/while opens a context")
	requireCoverage(t, tokens1, 3)

	tokens2, state2 := tokenizer.TokenizeLine(ctx, g, "> b", state1)
	require.Equal(t, 1, state2.Depth(), "the context persists while the while pattern matches at line start")
	requireCoverage(t, tokens2, 3)
	assert.Contains(t, tokens2[0].Scopes, "markup.quote")

	tokens3, state3 := tokenizer.TokenizeLine(ctx, g, "plain", state2)
	assert.Equal(t, 0, state3.Depth(), "a line that fails the while check pops the context")
	require.Len(t, tokens3, 1)
	assert.Equal(t, []string{"source.test"}, tokens3[0].Scopes)
}

func TestTokenizeLine_Injections(t *testing.T) {
	ctx := testContext()

	hostContribs := func(injectTo bool) map[string]registry.Contribution {
		contribs := map[string]registry.Contribution{
			"source.test": {ScopeName: "source.test", Path: "host.json"},
		}
		if injectTo {
			contribs["doc.injection"] = registry.Contribution{
				ScopeName: "doc.injection",
				Path:      "inj.json",
				InjectTo:  []string{"source.test"},
			}
		}
		return contribs
	}
	files := map[string]string{
		"host.json": `{
			"scopeName": "source.test",
			"patterns": [{"match": "\\d+", "name": "constant.numeric"}]
		}`,
		"inj.json": `{
			"scopeName": "doc.injection",
			"patterns": [{"match": "@todo", "name": "keyword.todo.injected"}]
		}`,
	}

	t.Run("test_injected_patterns_apply", func(t *testing.T) {
		g := compileWith(t, ctx, registry.SuppressionPolicy{}, hostContribs(true), files, "source.test")
		tokens, _ := tokenizer.TokenizeLine(ctx, g, "see @todo 42", nil)

		sawInjected := false
		for _, tok := range tokens {
			for _, scope := range tok.Scopes {
				if scope == "keyword.todo.injected" {
					sawInjected = true
				}
			}
		}
		assert.True(t, sawInjected, "non-suppressed injections overlay the host grammar")
	})

	t.Run("test_denylisted_injection_equals_never_registered", func(t *testing.T) {
		deny := registry.SuppressionPolicy{DenySubstrings: []string{"doc.injection"}}
		withDenied := compileWith(t, ctx, deny, hostContribs(true), files, "source.test")
		withoutInjection := compileWith(t, ctx, registry.SuppressionPolicy{}, hostContribs(false), files, "source.test")

		line := "see @todo 42"
		deniedTokens, _ := tokenizer.TokenizeLine(ctx, withDenied, line, nil)
		cleanTokens, _ := tokenizer.TokenizeLine(ctx, withoutInjection, line, nil)

		require.Len(t, deniedTokens, len(cleanTokens), "a denylisted injection tokenizes as if never registered")
		for i := range deniedTokens {
			assert.Equal(t, cleanTokens[i].Start, deniedTokens[i].Start)
			assert.Equal(t, cleanTokens[i].End, deniedTokens[i].End)
			assert.Equal(t, cleanTokens[i].Scopes, deniedTokens[i].Scopes)
		}
	})

	t.Run("test_disabled_target_never_sees_injected_scope", func(t *testing.T) {
		disabled := registry.SuppressionPolicy{DisabledTargets: []string{"source.test"}}
		g := compileWith(t, ctx, disabled, hostContribs(true), files, "source.test")

		tokens, _ := tokenizer.TokenizeLine(ctx, g, "see @todo 42", nil)
		for _, tok := range tokens {
			assert.NotContains(t, tok.Scopes, "keyword.todo.injected", "a disabled target never emits injected scopes")
		}
	})

	t.Run("test_end_rule_beats_injection_at_same_offset", func(t *testing.T) {
		contribs := map[string]registry.Contribution{
			"source.test":   {ScopeName: "source.test", Path: "blockhost.json"},
			"doc.injection": {ScopeName: "doc.injection", Path: "endinj.json", InjectTo: []string{"source.test"}},
		}
		blockFiles := map[string]string{
			"blockhost.json": `{
				"scopeName": "source.test",
				"patterns": [{"begin": "/\\*", "end": "\\*/", "name": "comment.block"}]
			}`,
			"endinj.json": `{
				"scopeName": "doc.injection",
				"patterns": [{"match": "\\*/", "name": "bad.injected"}]
			}`,
		}
		g := compileWith(t, ctx, registry.SuppressionPolicy{}, contribs, blockFiles, "source.test")

		tokens, state := tokenizer.TokenizeLine(ctx, g, "/* x */", nil)
		assert.Equal(t, 0, state.Depth(), "the context's own end closed the block")
		for _, tok := range tokens {
			assert.NotContains(t, tok.Scopes, "bad.injected", "injections are additive overlays, never outranking the end rule")
		}
	})
}

func TestTokenizeLine_EmbeddedLanguageAttribution(t *testing.T) {
	ctx := testContext()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "html.json", []byte(`{
		"scopeName": "text.html",
		"patterns": [{"begin": "<style>", "end": "</style>", "name": "source.css.embedded"}]
	}`), 0o644))

	reg := registry.New(ctx, registry.SuppressionPolicy{})
	cssID := reg.Languages().Declare("css")
	reg.RegisterContribution(ctx, registry.Contribution{
		ScopeName:         "text.html",
		Path:              "html.json",
		Language:          "html",
		EmbeddedLanguages: map[string]string{"source.css.embedded": "css"},
	})

	g, err := grammar.NewCompiler(fs, reg, pattern.NewEngine()).Compile(ctx, "text.html")
	require.NoError(t, err)
	require.True(t, g.ContainsEmbeddedLanguages)

	tokens, _ := tokenizer.TokenizeLine(ctx, g, "<style>a{}</style>", nil)
	foundEmbedded := false
	for _, tok := range tokens {
		for _, scope := range tok.Scopes {
			if scope == "source.css.embedded" {
				foundEmbedded = true
				assert.Equal(t, cssID, tok.Language, "tokens inside the embedded scope expose its language id")
			}
		}
	}
	assert.True(t, foundEmbedded)
}

func TestState_Equal(t *testing.T) {
	ctx := testContext()
	g := compileGrammar(t, ctx, `{
		"scopeName": "source.test",
		"patterns": [{"begin": "/\\*", "end": "\\*/", "name": "comment.block"}]
	}`)

	t.Run("test_same_position_equal", func(t *testing.T) {
		_, a := tokenizer.TokenizeLine(ctx, g, "/* open", nil)
		_, b := tokenizer.TokenizeLine(ctx, g, "/* open", nil)
		assert.True(t, a.Equal(b), "structurally identical stacks compare equal")
	})

	t.Run("test_different_depth_not_equal", func(t *testing.T) {
		_, open := tokenizer.TokenizeLine(ctx, g, "/* open", nil)
		_, closed := tokenizer.TokenizeLine(ctx, g, "/* x */", nil)
		assert.False(t, open.Equal(closed))
	})

	t.Run("test_nil_receiver_handling", func(t *testing.T) {
		_, open := tokenizer.TokenizeLine(ctx, g, "/* open", nil)
		assert.False(t, open.Equal(nil))
	})
}
