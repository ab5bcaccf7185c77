package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engram-memory/engram/internal/memory"
)

func newSearchCmd() *cobra.Command {
	var (
		limit       int
		category    string
		scopeID     string
		minStrength float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Recall memories for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			in := memory.RecallInput{
				Query:    strings.Join(args, " "),
				Limit:    limit,
				Category: category,
				ScopeID:  scopeID,
			}
			if cmd.Flags().Changed("min-strength") {
				in.MinStrength = &minStrength
			}

			result, err := a.svc.Recall(cmd.Context(), in)
			if err != nil {
				return err
			}

			if len(result.Memories) == 0 {
				fmt.Println("No memories found.")
				return nil
			}
			if result.FallbackMode {
				fmt.Println("(recent memories — no search query)")
			}
			for i, m := range result.Memories {
				printRecalled(i+1, m)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum results")
	cmd.Flags().StringVar(&category, "category", "", "restrict to one category")
	cmd.Flags().StringVar(&scopeID, "scope", "", "restrict to one scope")
	cmd.Flags().Float64Var(&minStrength, "min-strength", 0.1, "minimum effective strength")
	return cmd
}

func printRecalled(rank int, m memory.RecalledMemory) {
	label := ""
	if m.Category != "" {
		label = fmt.Sprintf(" [%s]", m.Category)
	}
	fmt.Printf("%2d.%s %s\n", rank, label, m.Content)
	fmt.Printf("    id: %s | relevance %.3f | strength %.2f | accessed %dx\n",
		m.ID, m.Relevance, m.Strength, m.AccessCount)
}
