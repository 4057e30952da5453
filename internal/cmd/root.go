package cmd

import (
	"github.com/spf13/cobra"

	"touchgrass/internal/adapter"
)

// NewRootCmd creates the root cobra command with all subcommands (spec §6).
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tg",
		Short: "Bridge long-running CLI coding assistants to chat",
		Long:  "touchgrass runs Claude Code, Codex, Pi, or Kimi under a background daemon and bridges their input/output to Telegram.",
	}

	rootCmd.AddCommand(
		newDaemonRunCmd(),
		newVendorCmd(adapter.VendorClaude, "claude"),
		newVendorCmd(adapter.VendorCodex, "codex"),
		newVendorCmd(adapter.VendorPi, "pi"),
		newVendorCmd(adapter.VendorKimi, "kimi"),
		newSendCmd(),
		newResumeCmd(),
		newLsCmd(),
		newChannelsCmd(),
		newDoctorCmd(),
		newSetupCmd(),
		newPairCmd(),
		newConfigCmd(),
		newCampCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
