package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store totals and recall metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.svc.Stats()
			if err != nil {
				return err
			}

			fmt.Printf("Memories: %d\n", stats.TotalMemories)
			if len(stats.ByCategory) > 0 {
				cats := make([]string, 0, len(stats.ByCategory))
				for c := range stats.ByCategory {
					cats = append(cats, c)
				}
				sort.Strings(cats)
				for _, c := range cats {
					label := c
					if label == "" {
						label = "(uncategorized)"
					}
					fmt.Printf("  %-16s %d\n", label, stats.ByCategory[c])
				}
			}
			fmt.Printf("DB size:  %.1f KiB\n", float64(stats.DBSizeBytes)/1024)

			metrics := stats.Metrics
			if sessionID != "" {
				metrics, err = a.svc.Metrics(sessionID)
				if err != nil {
					return err
				}
				fmt.Printf("Session:  %s\n", sessionID)
			}
			fmt.Printf("Writes:   %d remembers\n", metrics.TotalRemembers)
			fmt.Printf("Recalls:  %d (hit rate %.0f%%, fallback %.0f%%)\n",
				metrics.TotalRecalls, metrics.RecallHitRate*100, metrics.FallbackRate*100)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "restrict metrics to one session")
	return cmd
}
