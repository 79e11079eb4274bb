package dapp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

var (
	ErrNoFlight      = errors.New("no flight selected")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Chain is what the passenger page triggers on the contract.
type Chain interface {
	IsOperational(ctx context.Context) (bool, error)
	FetchFlightStatus(ctx context.Context, from, airline common.Address, flight string, timestamp *big.Int) (*ethtypes.Transaction, error)
	Buy(ctx context.Context, from common.Address, flight string, value *big.Int) (*ethtypes.Transaction, error)
	Withdraw(ctx context.Context, from common.Address, flight string) (*ethtypes.Transaction, error)
}

// Client drives the status display for one passenger account.
type Client struct {
	chain     Chain
	passenger common.Address
	airline   common.Address

	display *Display
	lookups *Tracker
	now     func() time.Time

	mu     sync.Mutex
	flight string
}

func NewClient(chain Chain, passenger, airline common.Address, display *Display, lookups *Tracker) *Client {
	return &Client{
		chain:     chain,
		passenger: passenger,
		airline:   airline,
		display:   display,
		lookups:   lookups,
		now:       time.Now,
	}
}

func (c *Client) Display() *Display {
	return c.display
}

func (c *Client) Lookups() *Tracker {
	return c.lookups
}

// Flight is the flight selected by the last status request.
func (c *Client) Flight() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.flight
}

// CheckOperational renders the contract's operational flag.
func (c *Client) CheckOperational(ctx context.Context) (bool, error) {
	ok, err := c.chain.IsOperational(ctx)
	if err != nil {
		log.Errorf("failed to query operational status: %v", err)
	}
	c.display.Append("Operational Status", "Check if contract is operational",
		NewResult("Operational Status", err, ok))

	return ok, err
}

// RequestFlightStatus asks the oracles for the status of flight at the current time.
func (c *Client) RequestFlightStatus(ctx context.Context, flight string) (types.FlightKey, error) {
	flight = strings.TrimSpace(flight)
	if flight == "" {
		c.display.Append("Oracles", "Trigger oracles", NewResult("Fetch Flight Status", ErrNoFlight, nil))
		return types.FlightKey{}, ErrNoFlight
	}

	c.mu.Lock()
	c.flight = flight
	c.mu.Unlock()

	now := c.now()
	key := types.FlightKey{Airline: c.airline, Flight: flight, Timestamp: uint64(now.Unix())}
	if _, err := c.lookups.Begin(key, now); err != nil {
		c.display.Append("Oracles", "Trigger oracles", NewResult("Fetch Flight Status", err, nil))
		return key, err
	}

	tx, err := c.chain.FetchFlightStatus(ctx, c.passenger, c.airline, flight, new(big.Int).SetUint64(key.Timestamp))
	if err != nil {
		c.lookups.Abort(key)
		log.Errorf("failed to request status of %s: %v", flight, err)
		c.display.Append("Oracles", "Trigger oracles", NewResult("Fetch Flight Status", err, nil))
		return key, err
	}

	c.display.Append("Oracles", "Trigger oracles",
		NewResult("Fetch Flight Status", nil, fmt.Sprintf("%s %d", flight, key.Timestamp)),
		NewResult("Transaction", nil, tx.Hash().Hex()))

	return key, nil
}

// Pay buys insurance for the selected flight and hides the pay section.
func (c *Client) Pay(ctx context.Context, amount string) (*ethtypes.Transaction, error) {
	flight := c.Flight()
	if flight == "" {
		c.display.Append("Payment status", "", NewResult("Credit has been", ErrNoFlight, nil))
		return nil, ErrNoFlight
	}

	value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || value.Sign() <= 0 {
		err := fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
		c.display.Append("Payment status", "", NewResult("Credit has been", err, nil))
		return nil, err
	}

	tx, err := c.chain.Buy(ctx, c.passenger, flight, value)
	c.display.SetVisible(IDPaySection, false)
	if err != nil {
		log.Errorf("failed to buy insurance for %s: %v", flight, err)
		c.display.Append("Payment status", "", NewResult("Credit has been", err, nil))
		return nil, err
	}

	c.display.Append("Payment status", "The insurance has been paid", NewResult("Credit has been", nil, txValue(tx)))

	return tx, nil
}

// Withdraw pulls the credit of the selected flight and hides the refund section.
func (c *Client) Withdraw(ctx context.Context) (*ethtypes.Transaction, error) {
	flight := c.Flight()
	if flight == "" {
		c.display.Append("Withdrawal status", "", NewResult("Credit", ErrNoFlight, nil))
		return nil, ErrNoFlight
	}

	tx, err := c.chain.Withdraw(ctx, c.passenger, flight)
	c.display.SetVisible(IDRefundSection, false)
	if err != nil {
		log.Errorf("failed to withdraw credit for %s: %v", flight, err)
		c.display.Append("Withdrawal status", "", NewResult("Credit", err, nil))
		return nil, err
	}

	c.display.Append("Withdrawal status", "", NewResult("Credit", nil, txValue(tx)))

	return tx, nil
}

// Resolve renders a FlightStatusInfo. Unknown codes fall back to the default label.
// It reports whether a pending lookup was resolved.
func (c *Client) Resolve(info types.FlightStatusInfo) bool {
	lookup, ok := c.lookups.Resolve(info, c.now())
	if !ok {
		log.Debugf("ignoring status for %s, no pending lookup", info.Key())
		return false
	}

	if !info.Status.Valid() {
		log.Debugf("unrecognized status code %d for %s", uint8(info.Status), info.Key())
	}

	if info.Status == types.StatusLateAirline {
		c.display.SetVisible(IDRefundSection, true)
		c.display.SetVisible(IDPaySection, false)
	} else {
		c.display.SetVisible(IDPaySection, true)
		c.display.SetVisible(IDRefundSection, false)
	}

	c.display.Append("Flight Status", lookup.Flight, NewResult("Status", nil, lookup.Label))

	return true
}

// Run renders every FlightStatusInfo from infos and expires stale lookups until ctx ends.
func (c *Client) Run(ctx context.Context, infos <-chan types.FlightStatusInfo) {
	var tick <-chan time.Time
	if timeout := c.lookups.Timeout(); timeout > 0 {
		ticker := time.NewTicker(timeout / 4)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case info, ok := <-infos:
			if !ok {
				return
			}
			c.Resolve(info)
		case <-tick:
			c.expire()
		}
	}
}

func (c *Client) expire() {
	for _, l := range c.lookups.Expire(c.now()) {
		c.display.Append("Flight Status", l.Flight,
			NewResult("Status", fmt.Errorf("no response after %s", c.lookups.Timeout()), nil))
	}
}

func txValue(tx *ethtypes.Transaction) string {
	return fmt.Sprintf("%s wei, tx %s", tx.Value(), tx.Hash().Hex())
}
