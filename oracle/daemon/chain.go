package daemon

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/contract"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/retry"
	"github.com/GPTx-global/flightsurety/oracle/submitter"
	"github.com/GPTx-global/flightsurety/oracle/wallet"
)

// Chain bundles the node connection with the contract binding and the signing wallet.
type Chain struct {
	Client    *ethclient.Client
	App       *contract.App
	Wallet    *wallet.Wallet
	Submitter *submitter.Submitter
	ChainID   *big.Int
}

// Dial connects to endpoint, retrying transient failures behind a circuit breaker.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	cb := retry.NewCircuitBreaker(5, 5*time.Minute)

	var client *ethclient.Client
	err := retry.Do(ctx, retry.NetworkRetryConfig(),
		func() error {
			return cb.Execute(func() error {
				c, err := ethclient.DialContext(ctx, endpoint)
				if err != nil {
					return err
				}
				if _, err := c.BlockNumber(ctx); err != nil {
					c.Close()
					return err
				}
				client = c
				return nil
			})
		},
		retry.DefaultIsRetryable,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after retries: %w", endpoint, err)
	}

	log.Infof("connected to %s", endpoint)

	return client, nil
}

// Connect dials the node and builds everything needed to call the contract
// from the wallet accounts.
func Connect(ctx context.Context, cfg *config.Config) (*Chain, error) {
	if cfg.Chain.AppAddress == "" {
		return nil, fmt.Errorf("%w: chain.app_address is not set", config.ErrInvalidConfig)
	}

	parsed, err := contract.LoadABI(cfg.Chain.Artifact)
	if err != nil {
		return nil, err
	}

	w, err := wallet.New(cfg.Wallet.Mnemonic, cfg.Wallet.Accounts, cfg.Wallet.HDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet: %w", err)
	}

	client, err := Dial(ctx, cfg.Chain.Endpoint)
	if err != nil {
		return nil, err
	}

	chainID := new(big.Int).SetUint64(cfg.Chain.ChainID)
	if chainID.Sign() == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
	}

	app := contract.NewApp(cfg.AppAddress(), parsed, client)

	return &Chain{
		Client: client,
		App:    app,
		Wallet: w,
		Submitter: submitter.New(app, w, submitter.Options{
			ChainID:   chainID,
			GasLimit:  cfg.Gas.Limit,
			GasPrice:  cfg.GasPrice(),
			WaitMined: cfg.Oracle.WaitMined,
		}),
		ChainID: chainID,
	}, nil
}

func (c *Chain) Close() {
	c.Client.Close()
}
