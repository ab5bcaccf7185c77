package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engram-memory/engram/internal/memory"
)

func newForgetCmd() *cobra.Command {
	var scopeID string

	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a memory by id",
		Long: `Delete a memory. With scopes enabled, a scoped memory is only removed
when --scope matches its scope_id; omitting --scope matches unscoped rows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.svc.Forget(cmd.Context(), memory.ForgetInput{
				ID:      args[0],
				ScopeID: scopeID,
			})
			if err != nil {
				return err
			}
			if result.Deleted {
				fmt.Printf("Memory %s deleted.\n", result.ID)
			} else {
				fmt.Printf("Memory %s not deleted (missing, or scope guard did not match).\n", result.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeID, "scope", "", "scope guard for scoped memories")
	return cmd
}
