package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GPTx-global/flightsurety/dapp"
	"github.com/GPTx-global/flightsurety/oracle/contract"
	"github.com/GPTx-global/flightsurety/oracle/daemon"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/subscribe"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

func dappCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dapp",
		Short: "Passenger side of FlightSurety",
	}
	cmd.AddCommand(dappServeCmd(v), dappOperationalCmd(v), dappFetchCmd(v))

	return cmd
}

func dappServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the passenger api and the websocket display feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			g, err := daemon.NewGateway(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create gateway: %w", err)
			}
			defer g.Stop()

			if err := g.Start(); err != nil {
				return fmt.Errorf("failed to start gateway: %w", err)
			}

			<-ctx.Done()
			log.Infof("shutting down")

			return nil
		},
	}
}

func dappOperationalCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "operational",
		Short: "Check if the contract is operational",
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

			client, err := daemon.NewDappClient(cfg, chain.Wallet, chain.Submitter, nil)
			if err != nil {
				return err
			}

			_, err = client.CheckOperational(cmd.Context())
			printSections(cmd.OutOrStdout(), client.Display().Sections())

			return err
		},
	}
}

func dappFetchCmd(v *viper.Viper) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "fetch <flight>",
		Short: "Ask the oracles for the status of a flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			chain, err := daemon.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer chain.Close()

			client, err := daemon.NewDappClient(cfg, chain.Wallet, chain.Submitter, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if wait <= 0 {
				_, err = client.RequestFlightStatus(ctx, args[0])
				printSections(out, client.Display().Sections())
				return err
			}

			// follow FlightStatusInfo before sending so the answer cannot be missed
			sm := subscribe.NewSubscribeManager(ctx, chain.App, chain.Client)
			if err := sm.Start(types.StartBlock{Latest: true}, contract.EventFlightStatusInfo); err != nil {
				return fmt.Errorf("failed to subscribe: %w", err)
			}
			defer sm.Stop()

			key, err := client.RequestFlightStatus(ctx, args[0])
			if err != nil {
				printSections(out, client.Display().Sections())
				return err
			}

			err = waitForStatus(ctx, client, sm.Infos(), key, wait)
			printSections(out, client.Display().Sections())

			return err
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait this long for the oracles to agree on a status")

	return cmd
}

func waitForStatus(ctx context.Context, client *dapp.Client, infos <-chan types.FlightStatusInfo, key types.FlightKey, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("no status for %s after %s", key, wait)
		case info := <-infos:
			client.Resolve(info)
			if client.Lookups().State(key) == dapp.StateResolved {
				return nil
			}
		}
	}
}

func printSections(w io.Writer, sections []dapp.Section) {
	for _, s := range sections {
		if s.Description != "" {
			fmt.Fprintf(w, "%s - %s\n", s.Title, s.Description)
		} else {
			fmt.Fprintln(w, s.Title)
		}
		for _, r := range s.Results {
			fmt.Fprintf(w, "  %s: %s\n", r.Label, r.Text())
		}
	}
}
