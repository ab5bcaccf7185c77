package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newPruneCmd() *cobra.Command {
	var (
		threshold float64
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete memories whose strength fell below a threshold",
		Long: `Delete weak memories. Prune compares the stored strength; run
'engram decay --apply' first to prune on decayed values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.PruneThreshold
			}

			doomed, err := a.svc.Store().GetBelowStrength(threshold)
			if err != nil {
				return err
			}
			if len(doomed) == 0 {
				fmt.Printf("Nothing below strength %.2f.\n", threshold)
				return nil
			}

			if !yes {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return fmt.Errorf("refusing to prune %d memories without --yes on a non-interactive stdin", len(doomed))
				}
				if !confirmPrompt(fmt.Sprintf("Delete %d memories below strength %.2f?", len(doomed), threshold)) {
					fmt.Println("Aborted.")
					return nil
				}
			}

			n, err := a.svc.Prune(threshold)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d memories.\n", n)
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0.1, "strength threshold")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func confirmPrompt(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
