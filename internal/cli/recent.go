package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecentCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			memories, err := a.svc.RecentMemories(limit)
			if err != nil {
				return err
			}
			if len(memories) == 0 {
				fmt.Println("No memories stored.")
				return nil
			}
			for _, m := range memories {
				label := ""
				if m.Category != "" {
					label = fmt.Sprintf("[%s] ", m.Category)
				}
				fmt.Printf("%s%s\n  id: %s | created %s | strength %.2f\n",
					label, m.Content, m.ID, m.CreatedAt.Format("2006-01-02 15:04"), m.Strength)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of memories")
	return cmd
}
