package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/csync/internal/config"
)

func newConfigCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after merging defaults, the config file,
CSYNC_* env vars and flags. Passwords are masked.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runConfig(v) },
	}

	addSyncFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runConfig(v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Printf("# loaded from %s\n", used)
	} else {
		fmt.Println("# no config file found, using defaults")
	}
	_, err = os.Stdout.Write(out)
	return err
}
