package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GPTx-global/flightsurety/oracle/daemon"
	"github.com/GPTx-global/flightsurety/oracle/log"
)

func startCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Register the oracle accounts and answer OracleRequest events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			cfg.Print()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			d, err := daemon.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			defer d.Stop()

			if err := d.Start(); err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			<-ctx.Done()
			log.Infof("shutting down")

			return nil
		},
	}
}

func registerCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Register every wallet account as an oracle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			d, err := daemon.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			defer d.Stop()

			res, err := d.Register(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registered %d, failed %d\n", len(res.Registered), len(res.Failed))
			for _, addr := range res.Failed {
				fmt.Fprintf(out, "failed: %s\n", addr.Hex())
			}
			if len(res.Registered) == 0 {
				return daemon.ErrNoOracles
			}

			return nil
		},
	}
}

func indexesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Print the indexes the contract assigned to each wallet account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			chain, err := daemon.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer chain.Close()

			out := cmd.OutOrStdout()
			for i, acc := range daemon.Indexes(cmd.Context(), chain.Submitter, chain.Wallet.Accounts()) {
				if acc.Registered {
					fmt.Fprintf(out, "%3d %s %s\n", i, acc.Address.Hex(), acc.Indexes)
				} else {
					fmt.Fprintf(out, "%3d %s not registered\n", i, acc.Address.Hex())
				}
			}

			return nil
		},
	}
}
