package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one memory in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.svc.Show(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("id:            %s\n", m.ID)
			fmt.Printf("content:       %s\n", m.Content)
			if m.Category != "" {
				fmt.Printf("category:      %s\n", m.Category)
			}
			if m.ScopeID != "" {
				fmt.Printf("scope:         %s\n", m.ScopeID)
			}
			if m.ChatID != "" {
				fmt.Printf("chat:          %s\n", m.ChatID)
			}
			if m.ThreadID != "" {
				fmt.Printf("thread:        %s\n", m.ThreadID)
			}
			if m.TaskID != "" {
				fmt.Printf("task:          %s\n", m.TaskID)
			}
			if m.IdempotencyKey != "" {
				fmt.Printf("idempotency:   %s\n", m.IdempotencyKey)
			}
			if len(m.Metadata) > 0 {
				keys := make([]string, 0, len(m.Metadata))
				for k := range m.Metadata {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Println("metadata:")
				for _, k := range keys {
					fmt.Printf("  %s: %s\n", k, m.Metadata[k])
				}
			}
			fmt.Printf("created:       %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("updated:       %s\n", m.UpdatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("last accessed: %s\n", m.LastAccessed.Format("2006-01-02 15:04:05"))
			fmt.Printf("accesses:      %d\n", m.AccessCount)
			fmt.Printf("strength:      %.3f\n", m.Strength)
			if len(m.Embedding) > 0 {
				fmt.Printf("embedding:     %d dims\n", len(m.Embedding))
			} else {
				fmt.Println("embedding:     none")
			}
			return nil
		},
	}
}
