package tokenizer

import (
	"github.com/walteh/tmscope/pkg/grammar"
	"github.com/walteh/tmscope/pkg/pattern"
)

// State is the tokenizer's end-of-line context stack: the begin/end
// (and begin/while) rule contexts currently open. States are immutable
// linked nodes — push allocates, pop returns the parent — so a caller
// can hold the end state of every line of a document at once and
// thread each into the next line.
//
// Structural equality of two states means the tokenizer is "in the
// same place" in the grammar; callers use that for incremental
// re-tokenization (an unchanged end state means following lines need
// no re-tokenization, an optimization that lives with the caller).
type State struct {
	parent *State
	rule   *grammar.Rule

	// scopes is the full scope stack for text inside this context,
	// outermost first, including the rule's contentName if any.
	scopes []string

	// nameScopes is the stack for the context's own end match, which
	// carries the rule name but never the contentName.
	nameScopes []string

	// end/while are the context's resolved closing patterns. end may
	// be nil (a begin with no end never closes within the document).
	end       *pattern.Compiled
	endSource string
	while     *pattern.Compiled

	depth int
}

// Initial returns the fresh-document state for a grammar: the
// top-level pattern list, no open contexts, the grammar's own scope as
// the only scope.
func Initial(g *grammar.CompiledGrammar) *State {
	scopes := []string{g.ScopeName}
	return &State{rule: g.Root, scopes: scopes, nameScopes: scopes}
}

func (s *State) push(rule *grammar.Rule, scopes, nameScopes []string, end *pattern.Compiled, endSource string, while *pattern.Compiled) *State {
	return &State{
		parent:     s,
		rule:       rule,
		scopes:     scopes,
		nameScopes: nameScopes,
		end:        end,
		endSource:  endSource,
		while:      while,
		depth:      s.depth + 1,
	}
}

func (s *State) pop() *State {
	if s.parent == nil {
		// popping the root state is a grammar bug (an end rule at
		// depth zero); stay put rather than losing the base context
		return s
	}
	return s.parent
}

// Depth is the number of open contexts above the initial state.
func (s *State) Depth() int {
	return s.depth
}

// Scopes returns the active scope stack, outermost first. Callers must
// not mutate it.
func (s *State) Scopes() []string {
	return s.scopes
}

// Equal reports structural equality of two context stacks.
func (s *State) Equal(o *State) bool {
	for {
		if s == o {
			return true
		}
		if s == nil || o == nil {
			return false
		}
		if s.depth != o.depth || s.rule.ID != o.rule.ID || s.endSource != o.endSource {
			return false
		}
		if len(s.scopes) != len(o.scopes) {
			return false
		}
		for i := range s.scopes {
			if s.scopes[i] != o.scopes[i] {
				return false
			}
		}
		s, o = s.parent, o.parent
	}
}
