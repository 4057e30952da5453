package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"touchgrass/internal/config"
)

// newConfigCmd implements `tg config {show|set k v|path}` (spec §6),
// operating directly on daemon-config.json's Settings block rather than
// going through the running daemon: these are local tunables read once at
// daemon startup (spec §6), not live session state.
func newConfigCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit touchgrass's local daemon-config.json",
	}
	c.AddCommand(newConfigShowCmd(), newConfigSetCmd(), newConfigPathCmd())
	return c
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current daemon config as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			cfg, err := config.LoadDaemonConfig(tgConfigPath(baseDir))
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path to daemon-config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseDir, err := tgBaseDir()
			if err != nil {
				return err
			}
			fmt.Println(tgConfigPath(baseDir))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one daemon-wide setting (outputBatchMinMs, outputBatchMaxMs, outputBufferMaxChars, maxSessions, defaultShell)",
		Args:  cobra.ExactArgs(2),
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
			if err := applySetting(&cfg.Settings, args[0], args[1]); err != nil {
				return err
			}
			return config.SaveDaemonConfig(path, cfg)
		},
	}
}

func applySetting(s *config.Settings, key, value string) error {
	intVal := func() (int, error) { return strconv.Atoi(value) }
	switch key {
	case "outputBatchMinMs":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("outputBatchMinMs must be an integer: %w", err)
		}
		s.OutputBatchMinMs = v
	case "outputBatchMaxMs":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("outputBatchMaxMs must be an integer: %w", err)
		}
		s.OutputBatchMaxMs = v
	case "outputBufferMaxChars":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("outputBufferMaxChars must be an integer: %w", err)
		}
		s.OutputBufferMaxChars = v
	case "maxSessions":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("maxSessions must be an integer: %w", err)
		}
		s.MaxSessions = v
	case "defaultShell":
		s.DefaultShell = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
