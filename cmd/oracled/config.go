package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/wallet"
)

func configCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(configShowCmd(v), configInitCmd(v))

	return cmd
}

func configShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			cfg.Print()

			return nil
		},
	}
}

func configInitCmd(v *viper.Viper) *cobra.Command {
	var (
		force       bool
		newMnemonic bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.toml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log.InitLogger()

			home := v.GetString("home")
			path := filepath.Join(home, config.FileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			cfg := config.Default()
			cfg.SetHome(home)
			if endpoint := v.GetString("endpoint"); endpoint != "" {
				cfg.Chain.Endpoint = endpoint
			}
			if addr := v.GetString("app-address"); addr != "" {
				cfg.Chain.AppAddress = addr
			}
			if newMnemonic {
				m, err := wallet.NewMnemonic()
				if err != nil {
					return err
				}
				cfg.Wallet.Mnemonic = m
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)

			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.toml")
	cmd.Flags().BoolVar(&newMnemonic, "new-mnemonic", false, "generate a fresh wallet mnemonic")

	return cmd
}
