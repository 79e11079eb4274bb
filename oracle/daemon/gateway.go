package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GPTx-global/flightsurety/dapp"
	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/contract"
	"github.com/GPTx-global/flightsurety/oracle/health"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/server"
	"github.com/GPTx-global/flightsurety/oracle/subscribe"
	"github.com/GPTx-global/flightsurety/oracle/types"
	"github.com/GPTx-global/flightsurety/oracle/wallet"
)

// Gateway serves the passenger page: it triggers contract calls for one
// wallet account and renders FlightStatusInfo events as they are emitted.
type Gateway struct {
	chain *Chain

	client           *dapp.Client
	hub              *dapp.Hub
	subscribeManager *subscribe.SubscribeManager
	healthChecker    *health.HealthChecker
	server           *server.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGateway connects to the node and builds the dapp client and its api.
func NewGateway(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	chain, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{chain: chain}
	g.hub = dapp.NewHub(OriginChecker(cfg.Server.CORSOrigins))

	g.client, err = NewDappClient(cfg, chain.Wallet, chain.Submitter, g.hub)
	if err != nil {
		chain.Close()
		return nil, err
	}
	g.hub.SetSnapshot(g.client.Display().Attach)
	g.ctx, g.cancel = context.WithCancel(ctx)

	g.subscribeManager = subscribe.NewSubscribeManager(g.ctx, chain.App, chain.Client)

	g.healthChecker = health.NewHealthChecker(healthInterval)
	g.healthChecker.AddCheck(health.NewRPCHealthCheck("rpc", chain.Client))

	g.server = server.New(cfg.Dapp.Listen, cfg.Server.CORSOrigins, g.healthChecker, prometheus.NewRegistry())
	g.server.MountDapp(g.client, g.hub)

	return g, nil
}

// NewDappClient builds the passenger client for the configured account. The
// airline defaults to the account after the passenger, as in the truffle setup.
func NewDappClient(cfg *config.Config, w *wallet.Wallet, chain dapp.Chain, out dapp.Broadcaster) (*dapp.Client, error) {
	passenger, err := w.Account(cfg.Dapp.Account)
	if err != nil {
		return nil, fmt.Errorf("invalid dapp account: %w", err)
	}

	airline := cfg.DappAirline()
	if airline == (common.Address{}) {
		if airline, err = w.Account((cfg.Dapp.Account + 1) % w.Len()); err != nil {
			return nil, err
		}
	}
	log.Infof("dapp passenger %s, airline %s", passenger.Hex(), airline.Hex())

	return dapp.NewClient(chain, passenger, airline, dapp.NewDisplay(out), dapp.NewTracker(cfg.ResponseTimeout())), nil
}

// Start follows FlightStatusInfo events from the current head and serves the page api.
func (g *Gateway) Start() error {
	if err := g.subscribeManager.Start(types.StartBlock{Latest: true}, contract.EventFlightStatusInfo); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	g.wg.Add(3)
	go func() {
		defer g.wg.Done()
		g.client.Run(g.ctx, g.subscribeManager.Infos())
	}()
	go func() {
		defer g.wg.Done()
		for {
			select {
			case <-g.ctx.Done():
				return
			case err := <-g.subscribeManager.Err():
				log.Errorf("event subscription lost: %v", err)
			}
		}
	}()
	go func() {
		defer g.wg.Done()
		g.healthChecker.Start(g.ctx)
	}()

	if _, err := g.client.CheckOperational(g.ctx); err != nil {
		log.Errorf("contract is not reachable yet: %v", err)
	}

	return g.server.Start()
}

func (g *Gateway) Stop() {
	g.cancel()
	g.subscribeManager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		log.Errorf("%v", err)
	}

	g.wg.Wait()
	g.chain.Close()
}

func (g *Gateway) Client() *dapp.Client {
	return g.client
}

// OriginChecker accepts websocket upgrades from the configured CORS origins.
// An empty list or "*" accepts any origin.
func OriginChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}
