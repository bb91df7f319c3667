// Package cmd provides the command-line interface for warden.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --port, --api-key, ...)
//  2. WARDEN_CONFIG_FILE environment variable - custom config file path
//  3. Individual environment variables (WARDEN_SERVER_PORT, ...)
//  4. Configuration file (.warden.yml in the working directory)
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "An authenticated admin gateway for a long-running host process",
	Long: `Warden exposes privileged administrative operations on a long-running
host process over an authenticated, rate-limited JSON-RPC protocol.

Every request passes an API-key check with temporary bans on repeated
failures, token-bucket rate limiting, and a wildcard command allow-list
before it ever reaches the host.

Quick Start:
  warden init                     Write a default .warden.yml
  warden serve                    Start the gateway
  warden version                  Show build information

Environment variables follow the WARDEN_<SECTION>_<OPTION> pattern,
e.g. WARDEN_SERVER_PORT=25575 or WARDEN_SECURITY_API_KEY=...`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Accept underscores in flag names so they line up with config keys.
	rootCmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .warden.yml, can also use WARDEN_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("WARDEN_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".warden")
	}

	viper.SetEnvPrefix("WARDEN")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine: defaults plus environment apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
