package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newSendCmd implements `tg send <id> <text>` / `tg send --file <id> <path>`
// (spec §6): queues text as if typed into the session's terminal, via the
// daemon's /remote/<id>/send-input route.
func newSendCmd() *cobra.Command {
	var file bool

	c := &cobra.Command{
		Use:   "send <id> <text|path>",
		Short: "Queue input for a running touchgrass session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var text string
			if file {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				text = string(data)
			} else {
				text = strings.Join(args[1:], " ")
			}

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
			return client.Post(cmd.Context(), "/remote/"+id+"/send-input", map[string]any{"text": text}, nil)
		},
	}
	c.Flags().BoolVar(&file, "file", false, "read the queued text from a file path instead of the literal argument")
	return c
}
