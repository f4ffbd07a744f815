package cmd

import (
	"strings"

	"github.com/gaffer-sh/gaffer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gaffer",
	Short: "Board-driven development workflow orchestrator",
	Long: `Gaffer drives an automated, issue-by-issue development workflow against
a GitHub project board. Each invocation claims one issue via a
file-based task lock, runs the coding agent and gh CLI for it, and
records the outcome. Multiple workers, manual re-runs, and
crash-restarts coordinate safely through a shared directory of plain
JSON files.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/gaffer/config.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "d", "", "coordination directory (default is .gaffer)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("coordination.dir", rootCmd.PersistentFlags().Lookup("dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/gaffer")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GAFFER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., GAFFER_LOCK_TIMEOUT_MINUTES for lock.timeout_minutes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig unmarshals and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return cfg, nil
}
