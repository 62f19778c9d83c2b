package tokenize

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/walteh/tmscope/pkg/comments"
	"github.com/walteh/tmscope/pkg/config"
	"github.com/walteh/tmscope/pkg/manifest"
	"github.com/walteh/tmscope/pkg/registry"
	"gitlab.com/tozd/go/errors"
)

type Handler struct {
	manifests []string
	policy    string
	language  string
}

func NewTokenizeCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "tokenize <file>",
		Short: "tokenize a file line by line and print scoped tokens",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringArrayVar(&me.manifests, "manifest", nil, "grammar contribution manifest (repeatable)")
	cmd.Flags().StringVar(&me.policy, "policy", "", "injection suppression policy file (hcl)")
	cmd.Flags().StringVar(&me.language, "language", "", "language name to tokenize as")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), cmd, args[0])
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, cmd *cobra.Command, path string) error {
	if me.language == "" {
		return errors.New("--language is required")
	}

	fs := afero.NewOsFs()
	svc, err := buildService(ctx, fs, me.manifests, me.policy)
	if err != nil {
		return err
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	tokens, ok := svc.TokenizeLines(ctx, me.language, lines)
	if !ok {
		return errors.Errorf("no grammar is resolvable for language %q", me.language)
	}

	for i, lineTokens := range tokens {
		for _, tok := range lineTokens {
			cmd.Println(fmt.Sprintf("%d:[%d,%d) %s", i, tok.Start, tok.End, strings.Join(tok.Scopes, " ")))
		}
	}
	return nil
}

// buildService assembles a comment service from manifests and an
// optional policy file. Shared shape with the comments subcommand on
// purpose; the two differ only in what they print.
func buildService(ctx context.Context, fs afero.Fs, manifests []string, policyPath string) (*comments.Service, error) {
	policy := registry.SuppressionPolicy{}
	if policyPath != "" {
		loaded, err := config.LoadPolicy(policyPath)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}

	reg := registry.New(ctx, policy)
	for _, path := range manifests {
		m, err := manifest.Load(fs, path)
		if err != nil {
			return nil, err
		}
		m.Apply(ctx, reg)
	}

	return comments.NewService(ctx, fs, reg), nil
}
