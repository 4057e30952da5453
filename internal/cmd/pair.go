package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPairCmd implements `tg pair` (spec §6): asks the daemon to mint a
// one-time pairing code and prints it for the owner to send to the bot as
// `/pair <code>` from the chat they want paired (spec §4.7).
func newPairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Generate a pairing code to link this workstation's chat owner",
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
			var out struct {
				Code string `json:"code"`
			}
			if err := client.Post(cmd.Context(), "/generate-code", nil, &out); err != nil {
				return err
			}
			fmt.Printf("Pairing code: %s\nSend \"/pair %s\" to the bot from the chat you want paired.\n", out.Code, out.Code)
			return nil
		},
	}
}
