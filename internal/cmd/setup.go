package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"touchgrass/internal/config"
)

// newSetupCmd implements `tg setup` (spec §6): a first-run wizard that
// collects the Telegram bot token and writes it into daemon-config.json,
// then points the user at `tg pair`.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			path := tgConfigPath(baseDir)
			cfg, err := config.LoadDaemonConfig(path)
			if err != nil {
				return err
			}

			tg := cfg.Channels["telegram"]
			if tg.Credentials["bot_token"] != "" {
				fmt.Println("A Telegram bot token is already configured.")
			} else {
				fmt.Print("Telegram bot token (from @BotFather): ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, _ := reader.ReadString('\n')
				token := strings.TrimSpace(line)
				if token == "" {
					return fmt.Errorf("a bot token is required")
				}
				tg.Type = "telegram"
				if tg.Credentials == nil {
					tg.Credentials = map[string]string{}
				}
				tg.Credentials["bot_token"] = token
				if cfg.Channels == nil {
					cfg.Channels = map[string]config.ChannelConfig{}
				}
				cfg.Channels["telegram"] = tg
				if err := config.SaveDaemonConfig(path, cfg); err != nil {
					return err
				}
				fmt.Println("Saved.")
			}

			fmt.Println("Next: run `tg pair` and send the code to your bot from the chat you want paired.")
			return nil
		},
	}
}
