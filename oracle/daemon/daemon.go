package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/contract"
	"github.com/GPTx-global/flightsurety/oracle/health"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/registrar"
	"github.com/GPTx-global/flightsurety/oracle/registry"
	"github.com/GPTx-global/flightsurety/oracle/relay"
	"github.com/GPTx-global/flightsurety/oracle/server"
	"github.com/GPTx-global/flightsurety/oracle/status"
	"github.com/GPTx-global/flightsurety/oracle/subscribe"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// ErrNoOracles is returned when not a single account could be registered.
var ErrNoOracles = errors.New("no oracle account registered")

const (
	healthInterval  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Daemon struct {
	cfg   *config.Config
	chain *Chain

	metrics          *prometheus.Registry
	registry         *registry.Registry
	registrar        *registrar.Registrar
	relay            *relay.Relay
	subscribeManager *subscribe.SubscribeManager
	healthChecker    *health.HealthChecker
	server           *server.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to the node and builds the registrar and relay around the wallet pool.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	chain, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	source, err := status.FromConfig(cfg)
	if err != nil {
		chain.Close()
		return nil, fmt.Errorf("failed to build status source: %w", err)
	}

	d := new(Daemon)
	d.cfg = cfg
	d.chain = chain
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.metrics = prometheus.NewRegistry()
	d.registry = registry.New(chain.Submitter, cfg.IndexPolicy())
	d.registrar = registrar.New(chain.Submitter, d.registry, d.metrics)
	d.relay = relay.New(d.registry, chain.Submitter, source, d.metrics)
	d.subscribeManager = subscribe.NewSubscribeManager(d.ctx, chain.App, chain.Client)

	d.healthChecker = health.NewHealthChecker(healthInterval)
	d.healthChecker.AddCheck(health.NewRPCHealthCheck("rpc", chain.Client))
	d.healthChecker.AddCheck(health.NewContractHealthCheck("contract", chain.Submitter))

	d.server = server.New(cfg.Server.Listen, cfg.Server.CORSOrigins, d.healthChecker, d.metrics)

	log.Infof("oracle daemon ready: %d accounts, status source %s, index policy %s",
		chain.Wallet.Len(), source.Name(), d.registry.Policy())

	return d, nil
}

// Start registers the oracle pool, then relays OracleRequest events and serves the api.
// Registration finishes before the subscription starts.
func (d *Daemon) Start() error {
	res, err := d.Register(d.ctx)
	if err != nil {
		return err
	}
	if len(res.Registered) == 0 {
		return ErrNoOracles
	}

	if err := d.subscribeManager.Start(d.cfg.StartBlock(), contract.EventOracleRequest); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.relay.Run(d.ctx, d.subscribeManager.Requests())
	}()
	go func() {
		defer d.wg.Done()
		d.Monitor()
	}()
	go func() {
		defer d.wg.Done()
		d.healthChecker.Start(d.ctx)
	}()

	return d.server.Start()
}

// Register pays the registration fee from every wallet account.
func (d *Daemon) Register(ctx context.Context) (registrar.Result, error) {
	fee, err := d.chain.Submitter.RegistrationFee(ctx)
	if err != nil {
		return registrar.Result{}, fmt.Errorf("failed to get registration fee: %w", err)
	}
	log.Infof("registration fee %s wei", fee)

	return d.registrar.RegisterAll(ctx, d.chain.Wallet.Accounts(), fee), nil
}

// Monitor logs subscription failures until the daemon stops.
func (d *Daemon) Monitor() {
	for {
		select {
		case <-d.ctx.Done():
			return
		case err := <-d.subscribeManager.Err():
			log.Errorf("event subscription lost: %v", err)
		}
	}
}

// Stop gracefully shuts down all daemon components
func (d *Daemon) Stop() {
	d.cancel()
	d.subscribeManager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		log.Errorf("%v", err)
	}

	d.wg.Wait()
	d.chain.Close()
}

func (d *Daemon) Chain() *Chain {
	return d.chain
}

func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

// Indexes asks the contract for the index set of every wallet account.
// Accounts the contract does not know are reported unregistered.
func Indexes(ctx context.Context, fetcher registry.IndexFetcher, accounts []common.Address) []types.OracleAccount {
	out := make([]types.OracleAccount, 0, len(accounts))
	for _, addr := range accounts {
		acc := types.OracleAccount{Address: addr}
		idx, err := fetcher.GetMyIndexes(ctx, addr)
		if err != nil {
			log.Debugf("no indexes for %s: %v", addr.Hex(), err)
		} else {
			acc.Indexes = idx
			acc.Registered = true
		}
		out = append(out, acc)
	}

	return out
}
