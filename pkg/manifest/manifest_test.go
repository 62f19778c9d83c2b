package manifest_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/tmscope/pkg/manifest"
	"github.com/walteh/tmscope/pkg/registry"
)

func testContext() context.Context {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func TestLoadAndApply(t *testing.T) {
	ctx := testContext()

	t.Run("test_load_resolves_relative_paths", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "ext/package.json", []byte(`{
			"languages": [{"id": "typescript"}],
			"grammars": [{
				"scopeName": "source.ts",
				"path": "syntaxes/ts.json",
				"language": "typescript",
				"injectTo": ["source.js"]
			}]
		}`), 0o644))

		m, err := manifest.Load(fs, "ext/package.json")
		require.NoError(t, err)
		require.Len(t, m.Grammars, 1)
		assert.Equal(t, "ext/syntaxes/ts.json", m.Grammars[0].Path, "grammar paths resolve relative to the manifest")
	})

	t.Run("test_apply_registers_contributions", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "package.json", []byte(`{
			"languages": [{"id": "typescript"}],
			"grammars": [
				{"scopeName": "source.ts", "path": "ts.json", "language": "typescript"},
				{"scopeName": "doc.inject", "path": "inj.json", "injectTo": ["source.ts"]}
			]
		}`), 0o644))

		m, err := manifest.Load(fs, "package.json")
		require.NoError(t, err)

		reg := registry.New(ctx, registry.SuppressionPolicy{})
		m.Apply(ctx, reg)

		_, ok := reg.Lookup("source.ts")
		assert.True(t, ok)
		scope, ok := reg.ScopeForLanguage("typescript")
		require.True(t, ok)
		assert.Equal(t, "source.ts", scope)

		entries, ok := reg.Injections("source.ts")
		require.True(t, ok)
		require.Len(t, entries, 1)
		assert.Equal(t, "doc.inject", entries[0].InjectingScope)

		_, declared := reg.Languages().Lookup("typescript")
		assert.True(t, declared, "language declarations seed the id table")
	})

	t.Run("test_missing_manifest", func(t *testing.T) {
		_, err := manifest.Load(afero.NewMemMapFs(), "nope.json")
		require.Error(t, err)
	})

	t.Run("test_malformed_manifest", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "package.json", []byte(`{broken`), 0o644))
		_, err := manifest.Load(fs, "package.json")
		require.Error(t, err)
	})
}
