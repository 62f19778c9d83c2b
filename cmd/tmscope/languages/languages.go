package languages

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/tmscope/pkg/manifest"
	"github.com/walteh/tmscope/pkg/registry"
)

type Handler struct {
	manifests []string
}

func NewLanguagesCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "list the languages with a resolvable grammar",
	}

	cmd.Flags().StringArrayVar(&me.manifests, "manifest", nil, "grammar contribution manifest (repeatable)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), cmd)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, cmd *cobra.Command) error {
	fs := afero.NewOsFs()
	reg := registry.New(ctx, registry.SuppressionPolicy{})

	for _, path := range me.manifests {
		m, err := manifest.Load(fs, path)
		if err != nil {
			return err
		}
		m.Apply(ctx, reg)
	}

	for _, language := range reg.ResolvableLanguages() {
		cmd.Println(language)
	}
	return nil
}
