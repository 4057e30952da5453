package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"touchgrass/internal/adapter"
	"touchgrass/internal/config"
)

// newResumeCmd implements `tg resume [--last] [--channel <value>]` (spec
// §6): reconnects to a prior session record for the current directory,
// using the session manifest's saved command line, via the Session
// Manager's reconnect path (`registerRemote(..., existingId)`, spec §3).
func newResumeCmd() *cobra.Command {
	var last bool
	var channel string

	return &cobra.Command{
		Use:   "resume",
		Short: "Reconnect to a prior session in this directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			manifests, err := listManifestsForCWD(baseDir, cwd)
			if err != nil {
				return err
			}
			if len(manifests) == 0 {
				return fmt.Errorf("no prior sessions found for %s", cwd)
			}

			var chosen config.SessionManifest
			if last {
				chosen = manifests[0]
			} else {
				chosen, err = pickManifest(cmd, manifests)
				if err != nil {
					return err
				}
			}

			vendor, command, args := splitCommandLine(chosen.Command)
			return runVendor(cmd.Context(), vendorRunOpts{
				vendor:     vendor,
				command:    command,
				args:       args,
				channel:    channel,
				existingID: chosen.ID,
			})
		},
	}
}

// listManifestsForCWD reads every session manifest under baseDir/sessions
// matching cwd, newest first.
func listManifestsForCWD(baseDir, cwd string) ([]config.SessionManifest, error) {
	entries, err := os.ReadDir(tgSessionsDir(baseDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []config.SessionManifest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		m, err := config.ReadSessionManifest(tgSessionsDir(baseDir) + "/" + e.Name())
		if err != nil || m.CWD != cwd {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

func pickManifest(cmd *cobra.Command, manifests []config.SessionManifest) (config.SessionManifest, error) {
	fmt.Fprintln(cmd.OutOrStdout(), "Select a session to resume:")
	for i, m := range manifests {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d) %s  (started %s)\n", i+1, m.Command, m.StartedAt)
	}
	fmt.Fprint(cmd.OutOrStdout(), "> ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, _ := reader.ReadString('\n')
	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 1 || choice > len(manifests) {
		return config.SessionManifest{}, fmt.Errorf("invalid selection")
	}
	return manifests[choice-1], nil
}

// splitCommandLine recovers (vendor, command, args) from a manifest's saved
// command line (spec §4.4 step 4 writes the full invocation as one string).
func splitCommandLine(line string) (adapter.Vendor, string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", nil
	}
	command := fields[0]
	args := fields[1:]
	switch command {
	case "claude":
		return adapter.VendorClaude, command, args
	case "codex":
		return adapter.VendorCodex, command, args
	case "pi":
		return adapter.VendorPi, command, args
	case "kimi":
		return adapter.VendorKimi, command, args
	default:
		return adapter.VendorClaude, command, args
	}
}
