// Package manifest reads grammar contribution manifests: the
// already-parsed shape of what installed language packages contribute
// (grammars, injections, language declarations), ready to be applied
// to a registry.
package manifest

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/walteh/tmscope/pkg/registry"
	"gitlab.com/tozd/go/errors"
)

type LanguageDeclaration struct {
	ID string `json:"id"`
}

type GrammarContribution struct {
	ScopeName         string            `json:"scopeName"`
	Path              string            `json:"path"`
	Language          string            `json:"language,omitempty"`
	EmbeddedLanguages map[string]string `json:"embeddedLanguages,omitempty"`
	TokenTypes        map[string]string `json:"tokenTypes,omitempty"`
	InjectTo          []string          `json:"injectTo,omitempty"`
}

type Manifest struct {
	Languages []LanguageDeclaration `json:"languages,omitempty"`
	Grammars  []GrammarContribution `json:"grammars"`
}

// Load reads a manifest file. Grammar paths are resolved relative to
// the manifest's own directory.
func Load(fs afero.Fs, path string) (Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Manifest{}, errors.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, errors.Errorf("parsing manifest %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range m.Grammars {
		if m.Grammars[i].Path != "" && !filepath.IsAbs(m.Grammars[i].Path) {
			m.Grammars[i].Path = filepath.Join(dir, m.Grammars[i].Path)
		}
	}
	return m, nil
}

// Apply registers everything the manifest contributes. Language
// declarations are applied first so they seed id assignment before any
// embedded-language map references them.
func (m Manifest) Apply(ctx context.Context, reg *registry.Registry) {
	for _, lang := range m.Languages {
		reg.Languages().Declare(lang.ID)
	}
	for _, g := range m.Grammars {
		reg.RegisterContribution(ctx, registry.Contribution{
			ScopeName:         g.ScopeName,
			Path:              g.Path,
			Language:          g.Language,
			EmbeddedLanguages: g.EmbeddedLanguages,
			TokenTypes:        g.TokenTypes,
			InjectTo:          g.InjectTo,
		})
	}
}
