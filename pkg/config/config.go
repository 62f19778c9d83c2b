// Package config loads the injection suppression policy from an HCL
// file. The policy is optional input: an absent file means the default
// allow-everything policy.
package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/walteh/tmscope/pkg/registry"
	"gitlab.com/tozd/go/errors"
)

type policyFile struct {
	// scopes for which all injections are disabled outright
	DisabledTargets []string `hcl:"disable_injections_for,optional"`
	// exact injecting-scope names to suppress
	DenyScopes []string `hcl:"deny_scopes,optional"`
	// suppress injecting scopes containing any of these fragments
	DenySubstrings []string `hcl:"deny_substrings,optional"`
	// glob patterns over dotted scope names
	DenyGlobs []string `hcl:"deny_globs,optional"`
}

// LoadPolicy reads a suppression policy from an HCL file on disk.
func LoadPolicy(path string) (registry.SuppressionPolicy, error) {
	var f policyFile
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return registry.SuppressionPolicy{}, errors.Errorf("decoding policy file %s: %w", path, err)
	}
	return toPolicy(f), nil
}

// ParsePolicy decodes a suppression policy from in-memory HCL source.
// filename is used for diagnostics and format detection only.
func ParsePolicy(filename string, src []byte) (registry.SuppressionPolicy, error) {
	var f policyFile
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return registry.SuppressionPolicy{}, errors.Errorf("decoding policy %s: %w", filename, err)
	}
	return toPolicy(f), nil
}

func toPolicy(f policyFile) registry.SuppressionPolicy {
	return registry.SuppressionPolicy{
		DisabledTargets: f.DisabledTargets,
		DenyScopes:      f.DenyScopes,
		DenySubstrings:  f.DenySubstrings,
		DenyGlobs:       f.DenyGlobs,
	}
}
