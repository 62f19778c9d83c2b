package registry

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SuppressionPolicy decides which injections may be applied. It exists
// because some injection grammars use regex constructs the matching
// engine cannot evaluate; filtering them here, before compilation, is
// the single chokepoint that keeps the rest of the pipeline free of
// pattern failures. The policy is a plain value injected into the
// registry so a future engine with wider capabilities needs only a
// different policy, not a redesign.
//
// The zero value allows everything.
type SuppressionPolicy struct {
	// DisabledTargets are target scopes for which ALL injections are
	// suppressed, regardless of what was or will be registered.
	DisabledTargets []string

	// DenyScopes are exact injecting-scope names that are never
	// applied.
	DenyScopes []string

	// DenySubstrings suppress any injecting scope whose name contains
	// one of these fragments.
	DenySubstrings []string

	// DenyGlobs suppress injecting scopes matching these glob
	// patterns (doublestar syntax, matched against the dotted scope
	// name with "." as separator).
	DenyGlobs []string
}

// TargetDisabled reports whether all injections into target are
// suppressed.
func (p SuppressionPolicy) TargetDisabled(target string) bool {
	for _, t := range p.DisabledTargets {
		if t == target {
			return true
		}
	}
	return false
}

// Allows reports whether a grammar at injectingScope may inject at
// all.
func (p SuppressionPolicy) Allows(injectingScope string) bool {
	for _, s := range p.DenyScopes {
		if s == injectingScope {
			return false
		}
	}
	for _, s := range p.DenySubstrings {
		if strings.Contains(injectingScope, s) {
			return false
		}
	}
	for _, g := range p.DenyGlobs {
		// scope names are dotted paths, so glob-match them the way
		// doublestar matches slash paths
		ok, err := doublestar.Match(g, strings.ReplaceAll(injectingScope, ".", "/"))
		if err == nil && ok {
			return false
		}
	}
	return true
}
