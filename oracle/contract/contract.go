package contract

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/flightsurety/oracle/log"
)

// ErrTxFailed is returned when a transaction was mined with a failed receipt status.
var ErrTxFailed = errors.New("transaction failed")

const (
	EventOracleRequest    = "OracleRequest"
	EventOracleReport     = "OracleReport"
	EventFlightStatusInfo = "FlightStatusInfo"
)

//go:embed FlightSuretyApp.abi.json
var embeddedABI string

// Backend is what App needs from a node connection; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// DefaultABI parses the embedded FlightSuretyApp interface.
func DefaultABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(embeddedABI))
}

// LoadABI reads an ABI from path. The file is either a bare ABI array or a
// truffle build artifact carrying the ABI under "abi". An empty path yields
// the embedded ABI.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return DefaultABI()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	return ParseABI(data)
}

// ParseABI accepts the same two layouts as LoadABI.
func ParseABI(data []byte) (abi.ABI, error) {
	if !gjson.ValidBytes(data) {
		return abi.ABI{}, fmt.Errorf("artifact is not valid JSON")
	}

	raw := string(data)
	if res := gjson.GetBytes(data, "abi"); res.Exists() {
		raw = res.Raw
	}

	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi: %w", err)
	}

	for _, name := range []string{EventOracleRequest, EventFlightStatusInfo} {
		if _, ok := parsed.Events[name]; !ok {
			return abi.ABI{}, fmt.Errorf("abi has no %s event", name)
		}
	}

	return parsed, nil
}

// App is a typed binding of the FlightSuretyApp contract.
type App struct {
	address  common.Address
	abi      abi.ABI
	backend  Backend
	contract *bind.BoundContract
}

func NewApp(address common.Address, parsed abi.ABI, backend Backend) *App {
	return &App{
		address:  address,
		abi:      parsed,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}
}

func (a *App) Address() common.Address {
	return a.address
}

func (a *App) ABI() abi.ABI {
	return a.abi
}

func (a *App) Backend() Backend {
	return a.backend
}

func (a *App) call(ctx context.Context, from common.Address, method string) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: from}
	if err := a.contract.Call(opts, &out, method); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}

	return out, nil
}

// RegistrationFee returns the fee every oracle pays on registration.
func (a *App) RegistrationFee(ctx context.Context) (*big.Int, error) {
	out, err := a.call(ctx, common.Address{}, "REGISTRATION_FEE")
	if err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (a *App) IsOperational(ctx context.Context) (bool, error) {
	out, err := a.call(ctx, common.Address{}, "isOperational")
	if err != nil {
		return false, err
	}

	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// GetMyIndexes asks the contract for the indexes assigned to from.
func (a *App) GetMyIndexes(ctx context.Context, from common.Address) ([3]uint8, error) {
	out, err := a.call(ctx, from, "getMyIndexes")
	if err != nil {
		return [3]uint8{}, err
	}

	return *abi.ConvertType(out[0], new([3]uint8)).(*[3]uint8), nil
}

func (a *App) RegisterOracle(opts *bind.TransactOpts) (*ethtypes.Transaction, error) {
	return a.contract.Transact(opts, "registerOracle")
}

func (a *App) SubmitOracleResponse(opts *bind.TransactOpts, index uint8, airline common.Address, flight string, timestamp *big.Int, status uint8) (*ethtypes.Transaction, error) {
	return a.contract.Transact(opts, "submitOracleResponse", index, airline, flight, timestamp, status)
}

func (a *App) FetchFlightStatus(opts *bind.TransactOpts, airline common.Address, flight string, timestamp *big.Int) (*ethtypes.Transaction, error) {
	return a.contract.Transact(opts, "fetchFlightStatus", airline, flight, timestamp)
}

func (a *App) Buy(opts *bind.TransactOpts, flight string) (*ethtypes.Transaction, error) {
	return a.contract.Transact(opts, "buy", flight)
}

func (a *App) Withdrawal(opts *bind.TransactOpts, flight string) (*ethtypes.Transaction, error) {
	return a.contract.Transact(opts, "withdrawal", flight)
}

// WaitMined blocks until tx is mined and reports ErrTxFailed for reverted receipts.
func (a *App) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, a.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: %s in block %d", ErrTxFailed, tx.Hash().Hex(), receipt.BlockNumber)
	}
	log.Debugf("tx %s mined in block %d, gas used %d", tx.Hash().Hex(), receipt.BlockNumber, receipt.GasUsed)

	return receipt, nil
}
