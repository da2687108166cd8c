package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alanhsu0429/hottea/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return exitError(ExitConfigError, "%v", err)
			}
		}
		if err := config.Default().CreateExampleConfig(path); err != nil {
			return exitError(ExitFileIOError, "%v", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Created config file: %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := showConfig(cfg)
		if err != nil {
			return exitError(ExitProcessError, "failed to encode config: %v", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

// showConfig renders cfg as YAML with secrets masked.
func showConfig(cfg *config.Config) (string, error) {
	masked := *cfg
	masked.LLM.APIKey = mask(masked.LLM.APIKey)
	masked.Extraction.RemoteAPIKey = mask(masked.Extraction.RemoteAPIKey)
	masked.Cache.RedisPassword = mask(masked.Cache.RedisPassword)

	raw, err := yaml.Marshal(&masked)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
