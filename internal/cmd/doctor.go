package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"touchgrass/internal/config"
	"touchgrass/internal/termstyle"
)

// newDoctorCmd implements `tg doctor` (spec §6): a quick self-check of the
// local setup, reporting each finding rather than failing on the first one.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that touchgrass is configured correctly",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			token, err := readOrCreateAuthToken(baseDir)
			if err != nil {
				return err
			}

			ok := true
			check := func(pass bool, msg string) {
				dot, mark := termstyle.GreenDot(), termstyle.Green("ok")
				if !pass {
					dot, mark = termstyle.RedX(), termstyle.Red("FAIL")
					ok = false
				}
				fmt.Printf("%s [%s] %s\n", dot, mark, msg)
			}

			cfg, err := config.LoadDaemonConfig(tgConfigPath(baseDir))
			check(err == nil, "read daemon-config.json")

			tg := cfg.Channels["telegram"]
			check(tg.Credentials["bot_token"] != "", "Telegram bot token configured")
			check(len(tg.PairedUsers) > 0, "at least one paired user (run `tg pair`)")

			client := newDaemonClient(baseDir, token)
			healthy := client.Get(cmd.Context(), "/health", nil) == nil
			check(healthy, "daemon reachable (or will auto-start on next `tg claude` etc.)")

			for _, vendor := range []string{"claude", "codex", "pi", "kimi"} {
				_, err := exec.LookPath(vendor)
				check(err == nil, fmt.Sprintf("%q found on PATH", vendor))
			}

			if !ok {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
}
