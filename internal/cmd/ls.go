package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"touchgrass/internal/termstyle"
)

type statusResponse struct {
	PID      int     `json:"pid"`
	Uptime   float64 `json:"uptime"`
	Sessions []struct {
		ID        string    `json:"id"`
		Command   string    `json:"command"`
		State     string    `json:"state"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"sessions"`
}

// newLsCmd implements `tg ls` (spec §6): lists every session the daemon
// currently tracks, via GET /status. If no daemon is running, reports an
// empty list rather than starting one — listing shouldn't have the side
// effect of spawning a daemon.
func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List sessions registered with the touchgrass daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			token, err := readOrCreateAuthToken(baseDir)
			if err != nil {
				return err
			}
			client := newDaemonClient(baseDir, token)
			var status statusResponse
			if err := client.Get(cmd.Context(), "/status", &status); err != nil {
				fmt.Println("(no daemon running)")
				return nil
			}
			if len(status.Sessions) == 0 {
				fmt.Println("(no active sessions)")
				return nil
			}
			for _, s := range status.Sessions {
				dot := termstyle.GreenDot()
				if s.State != "running" {
					dot = termstyle.GrayDot()
				}
				fmt.Printf("%s %s  %-10s  %s  %s\n", dot, s.ID, s.State, s.CreatedAt.Format(time.RFC3339), s.Command)
			}
			return nil
		},
	}
}
