package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// ErrUnknownAccount is returned for a sender that is not in the local wallet.
var ErrUnknownAccount = errors.New("unknown account")

// Contract is the part of the FlightSuretyApp binding the submitter drives.
type Contract interface {
	RegistrationFee(ctx context.Context) (*big.Int, error)
	IsOperational(ctx context.Context) (bool, error)
	GetMyIndexes(ctx context.Context, from common.Address) ([3]uint8, error)
	RegisterOracle(opts *bind.TransactOpts) (*ethtypes.Transaction, error)
	SubmitOracleResponse(opts *bind.TransactOpts, index uint8, airline common.Address, flight string, timestamp *big.Int, status uint8) (*ethtypes.Transaction, error)
	FetchFlightStatus(opts *bind.TransactOpts, airline common.Address, flight string, timestamp *big.Int) (*ethtypes.Transaction, error)
	Buy(opts *bind.TransactOpts, flight string) (*ethtypes.Transaction, error)
	Withdrawal(opts *bind.TransactOpts, flight string) (*ethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// Signer hands out transaction options for accounts it holds keys for.
type Signer interface {
	Has(addr common.Address) bool
	Transactor(addr common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

type Options struct {
	ChainID   *big.Int
	GasLimit  uint64
	GasPrice  *big.Int // nil lets the node suggest one
	WaitMined bool
}

// Submitter signs and sends contract transactions for wallet accounts.
type Submitter struct {
	contract Contract
	signer   Signer
	opts     Options
}

func New(contract Contract, signer Signer, opts Options) *Submitter {
	return &Submitter{
		contract: contract,
		signer:   signer,
		opts:     opts,
	}
}

// BuildTransactOpts prepares signing options for from carrying value wei.
func (s *Submitter) BuildTransactOpts(ctx context.Context, from common.Address, value *big.Int) (*bind.TransactOpts, error) {
	if !s.signer.Has(from) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, from.Hex())
	}

	opts, err := s.signer.Transactor(from, s.opts.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor for %s: %w", from.Hex(), err)
	}

	opts.Context = ctx
	opts.GasLimit = s.opts.GasLimit
	if s.opts.GasPrice != nil {
		opts.GasPrice = new(big.Int).Set(s.opts.GasPrice)
	}
	if value != nil {
		opts.Value = new(big.Int).Set(value)
	}

	return opts, nil
}

// send runs build against fresh options and waits for the result when configured to.
func (s *Submitter) send(ctx context.Context, what string, from common.Address, value *big.Int, build func(*bind.TransactOpts) (*ethtypes.Transaction, error)) (*ethtypes.Transaction, error) {
	opts, err := s.BuildTransactOpts(ctx, from, value)
	if err != nil {
		return nil, err
	}

	tx, err := build(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s from %s: %w", what, from.Hex(), err)
	}
	log.Debugf("%s sent from %s: %s", what, from.Hex(), tx.Hash().Hex())

	if !s.opts.WaitMined {
		return tx, nil
	}

	if _, err := s.contract.WaitMined(ctx, tx); err != nil {
		return tx, fmt.Errorf("%s from %s: %w", what, from.Hex(), err)
	}

	return tx, nil
}

func (s *Submitter) RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) (*ethtypes.Transaction, error) {
	return s.send(ctx, "registerOracle", from, fee, s.contract.RegisterOracle)
}

func (s *Submitter) SubmitOracleResponse(ctx context.Context, from common.Address, resp types.FlightStatusResponse) (*ethtypes.Transaction, error) {
	return s.send(ctx, "submitOracleResponse", from, nil, func(opts *bind.TransactOpts) (*ethtypes.Transaction, error) {
		return s.contract.SubmitOracleResponse(opts, resp.Index, resp.Airline, resp.Flight, resp.Timestamp, uint8(resp.Status))
	})
}

func (s *Submitter) FetchFlightStatus(ctx context.Context, from, airline common.Address, flight string, timestamp *big.Int) (*ethtypes.Transaction, error) {
	return s.send(ctx, "fetchFlightStatus", from, nil, func(opts *bind.TransactOpts) (*ethtypes.Transaction, error) {
		return s.contract.FetchFlightStatus(opts, airline, flight, timestamp)
	})
}

func (s *Submitter) Buy(ctx context.Context, from common.Address, flight string, value *big.Int) (*ethtypes.Transaction, error) {
	return s.send(ctx, "buy", from, value, func(opts *bind.TransactOpts) (*ethtypes.Transaction, error) {
		return s.contract.Buy(opts, flight)
	})
}

func (s *Submitter) Withdraw(ctx context.Context, from common.Address, flight string) (*ethtypes.Transaction, error) {
	return s.send(ctx, "withdrawal", from, nil, func(opts *bind.TransactOpts) (*ethtypes.Transaction, error) {
		return s.contract.Withdrawal(opts, flight)
	})
}

// GetMyIndexes reads the indexes the contract assigned to from.
func (s *Submitter) GetMyIndexes(ctx context.Context, from common.Address) (types.Indexes, error) {
	if !s.signer.Has(from) {
		return types.Indexes{}, fmt.Errorf("%w: %s", ErrUnknownAccount, from.Hex())
	}

	idx, err := s.contract.GetMyIndexes(ctx, from)
	if err != nil {
		return types.Indexes{}, err
	}

	return types.Indexes(idx), nil
}

func (s *Submitter) RegistrationFee(ctx context.Context) (*big.Int, error) {
	return s.contract.RegistrationFee(ctx)
}

func (s *Submitter) IsOperational(ctx context.Context) (bool, error) {
	return s.contract.IsOperational(ctx)
}
