package comments

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	commentsvc "github.com/walteh/tmscope/pkg/comments"
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

func NewCommentsCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "comments <file>",
		Short: "print the comment spans of a file",
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

	policy := registry.SuppressionPolicy{}
	if me.policy != "" {
		loaded, err := config.LoadPolicy(me.policy)
		if err != nil {
			return err
		}
		policy = loaded
	}

	reg := registry.New(ctx, policy)
	for _, mpath := range me.manifests {
		m, err := manifest.Load(fs, mpath)
		if err != nil {
			return err
		}
		m.Apply(ctx, reg)
	}
	svc := commentsvc.NewService(ctx, fs, reg)

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	spans, ok := svc.CommentSpans(ctx, me.language, lines)
	if !ok {
		return errors.Errorf("no grammar is resolvable for language %q", me.language)
	}

	for _, span := range spans {
		cmd.Println(fmt.Sprintf("%d:[%d,%d) %s", span.Line, span.Start, span.End, span.Text))
	}
	return nil
}
