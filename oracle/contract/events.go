package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

type oracleRequestEvent struct {
	Index     uint8
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
}

type flightStatusEvent struct {
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
	Status    uint8
}

func unpackEvent(parsed abi.ABI, name string, l ethtypes.Log, out interface{}) error {
	event, ok := parsed.Events[name]
	if !ok {
		return fmt.Errorf("abi has no %s event", name)
	}
	if len(l.Topics) == 0 || l.Topics[0] != event.ID {
		return fmt.Errorf("%w: log is not a %s event", types.ErrInvalidRequest, name)
	}
	if err := parsed.UnpackIntoInterface(out, name, l.Data); err != nil {
		return fmt.Errorf("%w: failed to unpack %s: %v", types.ErrInvalidRequest, name, err)
	}

	return nil
}

// DecodeOracleRequest turns an OracleRequest log into a validated request.
func DecodeOracleRequest(parsed abi.ABI, l ethtypes.Log) (types.FlightStatusRequest, error) {
	var ev oracleRequestEvent
	if err := unpackEvent(parsed, EventOracleRequest, l, &ev); err != nil {
		return types.FlightStatusRequest{}, err
	}

	req := types.FlightStatusRequest{
		Index:       ev.Index,
		Airline:     ev.Airline,
		Flight:      ev.Flight,
		Timestamp:   ev.Timestamp,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
	}
	if err := req.Validate(); err != nil {
		return types.FlightStatusRequest{}, err
	}

	return req, nil
}

// DecodeFlightStatusInfo turns a FlightStatusInfo log into the resolved status.
func DecodeFlightStatusInfo(parsed abi.ABI, l ethtypes.Log) (types.FlightStatusInfo, error) {
	var ev flightStatusEvent
	if err := unpackEvent(parsed, EventFlightStatusInfo, l, &ev); err != nil {
		return types.FlightStatusInfo{}, err
	}
	if ev.Timestamp == nil {
		return types.FlightStatusInfo{}, fmt.Errorf("%w: missing timestamp", types.ErrInvalidRequest)
	}

	return types.FlightStatusInfo{
		Airline:     ev.Airline,
		Flight:      ev.Flight,
		Timestamp:   ev.Timestamp,
		Status:      types.StatusCode(ev.Status),
		BlockNumber: l.BlockNumber,
	}, nil
}

func (a *App) DecodeOracleRequest(l ethtypes.Log) (types.FlightStatusRequest, error) {
	return DecodeOracleRequest(a.abi, l)
}

func (a *App) DecodeFlightStatusInfo(l ethtypes.Log) (types.FlightStatusInfo, error) {
	return DecodeFlightStatusInfo(a.abi, l)
}

// Query builds the log filter for one event of the contract. A nil to means "up to head".
func (a *App) Query(event string, from, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{a.address},
		Topics:    [][]common.Hash{{a.abi.Events[event].ID}},
	}
}

// FilterLogs returns the historical logs of event between from and to.
func (a *App) FilterLogs(ctx context.Context, event string, from, to *big.Int) ([]ethtypes.Log, error) {
	if _, ok := a.abi.Events[event]; !ok {
		return nil, fmt.Errorf("abi has no %s event", event)
	}

	logs, err := a.backend.FilterLogs(ctx, a.Query(event, from, to))
	if err != nil {
		return nil, fmt.Errorf("unable to filter %s logs: %w", event, err)
	}

	return logs, nil
}

// WatchLogs streams new logs of event into sink starting at from.
func (a *App) WatchLogs(ctx context.Context, event string, from *big.Int, sink chan<- ethtypes.Log) (ethereum.Subscription, error) {
	if _, ok := a.abi.Events[event]; !ok {
		return nil, fmt.Errorf("abi has no %s event", event)
	}

	sub, err := a.backend.SubscribeFilterLogs(ctx, a.Query(event, from, nil), sink)
	if err != nil {
		return nil, fmt.Errorf("unable to watch %s logs: %w", event, err)
	}

	return sub, nil
}

func (a *App) FilterOracleRequests(ctx context.Context, from, to *big.Int) ([]ethtypes.Log, error) {
	return a.FilterLogs(ctx, EventOracleRequest, from, to)
}

func (a *App) WatchOracleRequests(ctx context.Context, from *big.Int, sink chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return a.WatchLogs(ctx, EventOracleRequest, from, sink)
}

func (a *App) FilterFlightStatusInfos(ctx context.Context, from, to *big.Int) ([]ethtypes.Log, error) {
	return a.FilterLogs(ctx, EventFlightStatusInfo, from, to)
}

func (a *App) WatchFlightStatusInfos(ctx context.Context, from *big.Int, sink chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return a.WatchLogs(ctx, EventFlightStatusInfo, from, sink)
}
