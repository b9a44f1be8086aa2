package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/claimguard/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show, get or set configuration values",
		Long: `Show, get or set claimguard configuration values.

Configuration is stored in <root>/claimguard.yaml unless --config names
another file. Directories are derived from the root and are not part of
the file.

Keys are in the format: section.key
Sections: log, validation, features, clustering, training

Examples:
  claimguard config show                      # List all keys
  claimguard config get clustering.max_clusters
  claimguard config set training.folds 10`,
		GroupID: groupSetup,
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "List all configuration keys and values",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := g.load()
				if err != nil {
					return err
				}
				return listConfig(cmd.OutOrStdout(), e)
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value of a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := g.load()
				if err != nil {
					return err
				}
				return getConfig(cmd.OutOrStdout(), e.cfg, args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a key and save the configuration file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := g.load()
				if err != nil {
					return err
				}
				return setConfig(cmd.OutOrStdout(), e, args[0], args[1])
			},
		},
	)
	return configCmd
}

func listConfig(w io.Writer, e *env) error {
	fmt.Fprintln(w, colorBold.Sprint("Configuration Keys"))
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintln(w)

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := e.cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}

		displayValue := value
		if displayValue == "" {
			displayValue = colorDim.Sprint("(not set)")
		}
		fmt.Fprintf(w, "  %s = %s\n", colorCyan.Sprint(key), displayValue)
	}

	if len(failedKeys) > 0 {
		fmt.Fprintf(w, "\n%s Failed to retrieve keys: %s\n", colorYellow.Sprint("Warning:"), strings.Join(failedKeys, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Config file: %s\n", e.configFile)
	fmt.Fprintf(w, "Root:        %s\n", e.paths.Root)
	return nil
}

func getConfig(w io.Writer, cfg *config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}

	if value == "" {
		fmt.Fprintln(w, colorDim.Sprint("(not set)"))
	} else {
		fmt.Fprintln(w, value)
	}
	return nil
}

func setConfig(w io.Writer, e *env, key, value string) error {
	if err := e.cfg.Set(key, value); err != nil {
		return &ExitError{Code: ExitConfigError, Message: err.Error()}
	}
	if err := e.cfg.Validate(); err != nil {
		return &ExitError{Code: ExitConfigError, Message: fmt.Sprintf("invalid configuration: %v", err)}
	}

	if err := e.cfg.SaveToFile(e.configFile); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s = %s\n", colorCyan.Sprint(key), value)
	fmt.Fprintf(w, "Saved to: %s\n", e.configFile)
	return nil
}
