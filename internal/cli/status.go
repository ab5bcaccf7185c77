package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/engram-memory/engram/internal/config"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report daemon liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			pid, err := supervisor().RunningPID()
			if err != nil {
				return err
			}
			if pid == 0 {
				fmt.Println("Daemon:  not running")
			} else {
				fmt.Printf("Daemon:  running (pid %d)\n", pid)
			}

			client := &http.Client{Timeout: 2 * time.Second}
			url := fmt.Sprintf("http://%s:%d/health", cfg.HTTPHost, cfg.HTTPPort)
			resp, err := client.Get(url)
			if err != nil {
				fmt.Printf("HTTP:    unreachable (%s)\n", url)
				return nil
			}
			defer resp.Body.Close()

			var health struct {
				Status  string  `json:"status"`
				Version string  `json:"version"`
				UptimeS float64 `json:"uptime_s"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				fmt.Printf("HTTP:    unexpected response from %s\n", url)
				return nil
			}
			fmt.Printf("HTTP:    %s (version %s, up %.0fs) at %s\n",
				health.Status, health.Version, health.UptimeS, url)
			return nil
		},
	}
}
