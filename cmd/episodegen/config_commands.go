package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"episodegen/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(
		newConfigInitCommand(),
		newConfigShowCommand(ctx),
		newConfigPathCommand(ctx),
	)
	return configCmd
}

// initTarget resolves where config init writes, defaulting to the per-user
// config location.
func initTarget(flagValue string) (string, error) {
	flagValue = strings.TrimSpace(flagValue)
	if flagValue == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(flagValue)
}

func newConfigInitCommand() *cobra.Command {
	var pathFlag string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(pathFlag)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("inspect %s: %w", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Fill in llm.api_key, search.api_key and tts.api_key (or export the matching environment variables) before generating.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&pathFlag, "path", "p", "", "Where to write the file (default: per-user config directory)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			if ctx.JSONMode() {
				return writeJSON(cmd, redacted)
			}
			encoded, err := toml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "# loaded from %s\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "# built-in defaults")
			}
			_, err = out.Write(encoded)
			return err
		},
	}
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Show which configuration file would be loaded",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := ""
			if ctx.configFlag != nil {
				explicit = strings.TrimSpace(*ctx.configFlag)
			}
			path, exists, err := config.Locate(explicit)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"path": path, "exists": exists})
			}
			state := "present"
			if !exists {
				state = "missing, defaults apply"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", path, state)
			return nil
		},
	}
}
