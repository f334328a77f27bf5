package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/kb-engine/internal/kb"
)

// newAskCmd creates the 'ask' subcommand for answering questions against
// knowledge bases.
func newAskCmd() *cobra.Command {
	var names []string
	var style string

	cmd := &cobra.Command{
		Use:   "ask <question> [question...]",
		Short: "Answer questions from knowledge bases",
		Long: `Searches the targeted knowledge bases for each question and merges
the ranked results into an answer. With no --kb flags every knowledge
base is searched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			answerStyle := kb.AnswerStyle(style)
			if !answerStyle.Valid() {
				return fmt.Errorf("unknown style %q", style)
			}

			var targets []kb.KnowledgeBase
			if len(names) == 0 {
				targets, err = appInstance.Catalog.List(cmd.Context(), "")
				if err != nil {
					return err
				}
			} else {
				for _, name := range names {
					base, err := appInstance.Catalog.Get(cmd.Context(), name)
					if err != nil {
						return err
					}
					targets = append(targets, base)
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("no knowledge bases to ask")
			}

			answers, err := appInstance.Aggregator.Ask(cmd.Context(), args, targets, answerStyle)
			if err != nil {
				return err
			}
			return printJSON(answers)
		},
	}
	cmd.Flags().StringSliceVar(&names, "kb", nil, "knowledge base to target (repeatable; default all)")
	cmd.Flags().StringVar(&style, "style", string(kb.StyleNormal), "answer style: concise, normal, comprehensive, or exhaustive")
	return cmd
}
