package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newDecayCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Report (or persist) decayed memory strengths",
		Long: `Compute the current effective strength of every memory.

Without --apply this is a report only; recall never persists decay. With
--apply the decayed strengths are written back, which makes a following
'engram prune' operate on decayed values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !apply {
				report, err := a.svc.DecayReport()
				if err != nil {
					return err
				}
				if len(report) == 0 {
					fmt.Println("No memories stored.")
					return nil
				}
				for _, r := range report {
					marker := " "
					if r.Effective < r.Memory.Strength {
						marker = "↓"
					}
					fmt.Printf("%s %.3f → %.3f  %s\n", marker, r.Memory.Strength, r.Effective, r.Memory.ID)
				}
				return nil
			}

			total, err := a.svc.Store().CountMemories()
			if err != nil {
				return err
			}
			bar := progressbar.NewOptions(total,
				progressbar.OptionSetDescription("  Applying decay"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)

			n, err := a.svc.ApplyDecay(func(done, _ int) {
				_ = bar.Set(done)
			})
			_ = bar.Finish()
			if err != nil {
				return err
			}
			fmt.Printf("Applied decay to %d memories.\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "persist decayed strengths")
	return cmd
}
