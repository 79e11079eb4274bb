package subscribe

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flightsurety/oracle/contract"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Source is the log access the manager needs; *contract.App satisfies it.
type Source interface {
	FilterLogs(ctx context.Context, event string, from, to *big.Int) ([]ethtypes.Log, error)
	WatchLogs(ctx context.Context, event string, from *big.Int, sink chan<- ethtypes.Log) (ethereum.Subscription, error)
	DecodeOracleRequest(l ethtypes.Log) (types.FlightStatusRequest, error)
	DecodeFlightStatusInfo(l ethtypes.Log) (types.FlightStatusInfo, error)
}

// HeadReader reports the current chain head.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

type SubscribeManager struct {
	source Source
	head   HeadReader

	subscriptions     map[string]ethereum.Subscription
	subscriptionsLock sync.RWMutex
	channelSize       int

	requests chan types.FlightStatusRequest
	infos    chan types.FlightStatusInfo
	errs     chan error

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscribeManager creates a manager for contract events.
func NewSubscribeManager(ctx context.Context, source Source, head HeadReader) *SubscribeManager {
	ctx, cancel := context.WithCancel(ctx)
	channelSize := 2 << 10

	return &SubscribeManager{
		source:        source,
		head:          head,
		subscriptions: make(map[string]ethereum.Subscription),
		channelSize:   channelSize,
		requests:      make(chan types.FlightStatusRequest, channelSize),
		infos:         make(chan types.FlightStatusInfo, channelSize),
		errs:          make(chan error, 8),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Requests delivers decoded OracleRequest events.
func (sm *SubscribeManager) Requests() <-chan types.FlightStatusRequest {
	return sm.requests
}

// Infos delivers decoded FlightStatusInfo events.
func (sm *SubscribeManager) Infos() <-chan types.FlightStatusInfo {
	return sm.infos
}

// Err reports subscription failures.
func (sm *SubscribeManager) Err() <-chan error {
	return sm.errs
}

// Start subscribes to events from head+1, or from start when it lies beyond the
// head, then backfills from start up to head. Backfilled logs are delivered
// before live ones.
func (sm *SubscribeManager) Start(start types.StartBlock, events ...string) error {
	log.Debugf("start subscribing to %v from %s", events, start)

	head, err := sm.head.BlockNumber(sm.ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}

	from := head + 1
	if !start.Latest && start.Number > from {
		from = start.Number
	}

	sinks := make(map[string]chan ethtypes.Log, len(events))
	sm.subscriptionsLock.Lock()
	for _, event := range events {
		sink := make(chan ethtypes.Log, sm.channelSize)
		sub, err := sm.source.WatchLogs(sm.ctx, event, new(big.Int).SetUint64(from), sink)
		if err != nil {
			sm.subscriptionsLock.Unlock()
			sm.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", event, err)
		}
		sm.subscriptions[event] = sub
		sinks[event] = sink
	}
	sm.subscriptionsLock.Unlock()

	var backlog []ethtypes.Log
	if !start.Latest && start.Number <= head {
		for _, event := range events {
			logs, err := sm.source.FilterLogs(sm.ctx, event, new(big.Int).SetUint64(start.Number), new(big.Int).SetUint64(head))
			if err != nil {
				sm.Stop()
				return fmt.Errorf("failed to load past %s events: %w", event, err)
			}
			backlog = append(backlog, logs...)
		}
		sortLogs(backlog)
	}
	log.Debugf("backfilled %d logs up to block %d", len(backlog), head)

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		for _, l := range backlog {
			if !sm.dispatch(l) {
				return
			}
		}
		sm.watch(sinks, from)
	}()

	return nil
}

// watch forwards live logs; anything below from is ignored.
func (sm *SubscribeManager) watch(sinks map[string]chan ethtypes.Log, from uint64) {
	var wg sync.WaitGroup
	for event, sink := range sinks {
		sm.subscriptionsLock.RLock()
		sub := sm.subscriptions[event]
		sm.subscriptionsLock.RUnlock()

		wg.Add(1)
		go func(event string, sink <-chan ethtypes.Log, sub ethereum.Subscription) {
			defer wg.Done()
			for {
				select {
				case l := <-sink:
					if l.BlockNumber < from {
						log.Debugf("skipping log in block %d before %d", l.BlockNumber, from)
						continue
					}
					if !sm.dispatch(l) {
						return
					}
				case err, ok := <-sub.Err():
					if ok && err != nil {
						log.Errorf("subscription to %s failed: %v", event, err)
						sm.reportErr(fmt.Errorf("subscription to %s: %w", event, err))
					}
					return
				case <-sm.ctx.Done():
					return
				}
			}
		}(event, sink, sub)
	}
	wg.Wait()
}

// dispatch decodes l and forwards it; it returns false once the manager is stopping.
func (sm *SubscribeManager) dispatch(l ethtypes.Log) bool {
	if l.Removed {
		log.Debugf("skipping removed log %s:%d", l.TxHash.Hex(), l.Index)
		return true
	}

	if req, err := sm.source.DecodeOracleRequest(l); err == nil {
		select {
		case sm.requests <- req:
			return true
		case <-sm.ctx.Done():
			return false
		}
	}

	if info, err := sm.source.DecodeFlightStatusInfo(l); err == nil {
		select {
		case sm.infos <- info:
			return true
		case <-sm.ctx.Done():
			return false
		}
	}

	log.Errorf("dropping undecodable log %s:%d in block %d", l.TxHash.Hex(), l.Index, l.BlockNumber)
	return true
}

func (sm *SubscribeManager) reportErr(err error) {
	select {
	case sm.errs <- err:
	default:
	}
}

// Stop cancels every subscription and waits for the delivery goroutines.
func (sm *SubscribeManager) Stop() {
	sm.cancel()

	sm.subscriptionsLock.Lock()
	for event, sub := range sm.subscriptions {
		sub.Unsubscribe()
		delete(sm.subscriptions, event)
	}
	sm.subscriptionsLock.Unlock()

	sm.wg.Wait()
}

func sortLogs(logs []ethtypes.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

var _ Source = (*contract.App)(nil)
