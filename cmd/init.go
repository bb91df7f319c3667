package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"i"},
	Short:   "Write a default .warden.yml",
	Long: `Write a default configuration file to the working directory. The
generated file has authentication enabled with an empty api_key that
must be filled in before "warden serve" will start.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(_ *cobra.Command, _ []string) error {
	path := ".warden.yml"
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	encoded, err := yaml.Marshal(config.Default())
	if err != nil {
		return err
	}

	header := []byte("# warden configuration. Set security.api_key before serving.\n")
	if err := os.WriteFile(path, append(header, encoded...), 0o600); err != nil {
		return err
	}

	fmt.Println("Wrote", path)
	return nil
}
