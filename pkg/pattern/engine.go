/*
Package pattern wraps the backtracking regular-expression runtime used
for grammar matching.

The underlying engine (regexp2) is a full backtracking matcher with
look-around support, unlike the stdlib RE2 engine, which cannot express
look-behind at all. TextMate grammars are written against oniguruma, so
a handful of constructs remain unsupported; those are detected up front
and reported as limitations so callers can route around the pattern
instead of failing mid-tokenization.
*/
package pattern

import (
	"context"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ErrUnsupportedPattern marks a pattern the engine cannot evaluate.
// Callers check it with errors.Is and drop the owning rule.
var ErrUnsupportedPattern = errors.New("pattern uses constructs unsupported by the matching engine")

// ErrEngineInit marks a failed one-time engine initialization. Once
// initialization has failed, every subsequent call fails fast with the
// same error rather than retrying the load.
var ErrEngineInit = errors.New("matching engine failed to initialize")

// Engine is the process-wide matching capability. Initialization is
// expensive conceptually (loading and probing the runtime), so it runs
// at most once; concurrent first users are coalesced onto the same
// in-flight initialization.
type Engine struct {
	initOnce sync.Once
	initErr  error

	mu    sync.RWMutex
	cache map[string]*Compiled
}

func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*Compiled)}
}

// Init performs the one-time runtime initialization. It is safe to
// call concurrently; all callers observe the result of the single
// attempt.
func (e *Engine) Init(ctx context.Context) error {
	e.initOnce.Do(func() {
		zerolog.Ctx(ctx).Debug().Msg("initializing matching engine")

		// Probe the runtime with a pattern exercising the features we
		// rely on (look-ahead, named groups, back-references).
		probe := `(?<q>["'])(?:\\.|[^\\])*?\k<q>(?=\s|$)`
		if _, err := regexp2.Compile(probe, regexp2.None); err != nil {
			e.initErr = errors.Errorf("probing matching runtime: %w", err)
			zerolog.Ctx(ctx).Error().Err(e.initErr).Msg("matching engine initialization failed")
		}
	})
	if e.initErr != nil {
		return errors.Errorf("%w: %s", ErrEngineInit, e.initErr.Error())
	}
	return nil
}

// Compile compiles a single pattern, initializing the engine on first
// use. Patterns carrying known-unsupported constructs fail with
// ErrUnsupportedPattern; compiled results are cached by source.
func (e *Engine) Compile(ctx context.Context, expr string) (*Compiled, error) {
	if err := e.Init(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	cached, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if lims := Limitations(expr); len(lims) > 0 {
		return nil, errors.Errorf("%w: %s", ErrUnsupportedPattern, strings.Join(lims, ", "))
	}

	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, errors.Errorf("%w: compiling %q: %s", ErrUnsupportedPattern, expr, err.Error())
	}

	c := &Compiled{source: expr, re: re}

	e.mu.Lock()
	e.cache[expr] = c
	e.mu.Unlock()

	return c, nil
}

// Limitations reports the oniguruma-only constructs in expr that the
// engine cannot evaluate. Heuristic by necessity: it scans pattern
// source, it does not parse it. An empty result means the pattern is
// expected to compile.
func Limitations(expr string) []string {
	var lims []string
	if containsUnescaped(expr, `\G`) {
		lims = append(lims, "contiguous-match anchor \\G unsupported")
	}
	if strings.Contains(expr, "(?R") || containsUnescaped(expr, `\g<`) {
		lims = append(lims, "recursive subexpression calls unsupported")
	}
	if strings.Contains(expr, "[[:") {
		lims = append(lims, "POSIX bracket classes unsupported")
	}
	for _, q := range []string{"*+", "++", "?+", "}+"} {
		// an escaped quantifier char (`\++`) is a repeated literal,
		// not a possessive quantifier
		if containsUnescaped(expr, q) {
			lims = append(lims, "possessive quantifiers unsupported")
			break
		}
	}
	return lims
}

// containsUnescaped reports whether sub appears in expr at a position
// whose first character is not itself backslash-escaped.
func containsUnescaped(expr, sub string) bool {
	for i := 0; ; {
		j := strings.Index(expr[i:], sub)
		if j < 0 {
			return false
		}
		at := i + j
		backslashes := 0
		for k := at - 1; k >= 0 && expr[k] == '\\'; k-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return true
		}
		i = at + 1
	}
}
