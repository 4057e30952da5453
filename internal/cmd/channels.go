package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newChannelsCmd implements `tg channels` (spec §6): lists configured chat
// channels via the daemon's GET /channels.
func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List configured chat channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			token, err := readOrCreateAuthToken(baseDir)
			if err != nil {
				return err
			}
			client, err := ensureDaemonRunning(cmd.Context(), baseDir, token)
			if err != nil {
				return err
			}
			var names []string
			if err := client.Get(cmd.Context(), "/channels", &names); err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("(no channels configured)")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}
