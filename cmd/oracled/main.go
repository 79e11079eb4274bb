package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/log"
)

const programName = "oracled"

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the oracled command tree. Flags can also be set through
// ORACLED_* environment variables.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(programName))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "FlightSurety oracle registrar, relay and passenger gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("home", config.DefaultHome(), "directory holding config.toml and logs")
	flags.String("endpoint", "", "node websocket endpoint, overrides chain.endpoint")
	flags.String("app-address", "", "FlightSuretyApp address, overrides chain.app_address")
	flags.Bool("debug", false, "enable debug logging")
	flags.Bool("log-file", false, "write logs to <home>/logs instead of stdout")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(
		startCmd(v),
		registerCmd(v),
		indexesCmd(v),
		dappCmd(v),
		configCmd(v),
	)

	return rootCmd
}

// loadConfig reads <home>/config.toml and applies flag and environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	log.InitLogger()

	cfg, err := config.Load(v.GetString("home"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if endpoint := v.GetString("endpoint"); endpoint != "" {
		cfg.Chain.Endpoint = endpoint
	}
	if addr := v.GetString("app-address"); addr != "" {
		cfg.Chain.AppAddress = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.SetDebug(cfg.Log.Debug || v.GetBool("debug"))
	if v.GetBool("log-file") {
		log.ResetLogger(cfg.Home())
	}

	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
