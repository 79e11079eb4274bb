package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety/oracle/log"
)

type HealthCheck interface {
	Check(ctx context.Context) error
	Name() string
}

type HealthChecker struct {
	checks   map[string]HealthCheck
	mutex    sync.RWMutex
	interval time.Duration
	timeout  time.Duration
	status   map[string]HealthStatus
}

type HealthStatus struct {
	Healthy   bool
	LastCheck time.Time
	LastError error
}

func NewHealthChecker(interval time.Duration) *HealthChecker {
	return &HealthChecker{
		checks:   make(map[string]HealthCheck),
		status:   make(map[string]HealthStatus),
		interval: interval,
		timeout:  10 * time.Second,
	}
}

// AddCheck registers check; it counts as healthy until it first runs.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mutex.Lock()
	defer hc.mutex.Unlock()

	name := check.Name()
	hc.checks[name] = check
	hc.status[name] = HealthStatus{
		Healthy:   true,
		LastCheck: time.Now(),
	}

	log.Debugf("added health check: %s", name)
}

// Start runs every check immediately and then on each tick until ctx ends.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			hc.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce runs every registered check once.
func (hc *HealthChecker) RunOnce(ctx context.Context) {
	hc.mutex.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, hc.timeout)
			defer cancel()
			err := check.Check(cctx)

			hc.mutex.Lock()
			hc.status[check.Name()] = HealthStatus{
				Healthy:   err == nil,
				LastCheck: time.Now(),
				LastError: err,
			}
			hc.mutex.Unlock()

			if err != nil {
				log.Errorf("health check %s failed: %v", check.Name(), err)
			}
		}(check)
	}
	wg.Wait()
}

func (hc *HealthChecker) GetStatus() map[string]HealthStatus {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	result := make(map[string]HealthStatus, len(hc.status))
	for name, status := range hc.status {
		result[name] = status
	}

	return result
}

func (hc *HealthChecker) IsHealthy() bool {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	for _, status := range hc.status {
		if !status.Healthy {
			return false
		}
	}

	return true
}

// Names lists the registered checks in sorted order.
func (hc *HealthChecker) Names() []string {
	hc.mutex.RLock()
	defer hc.mutex.RUnlock()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// FuncCheck adapts a function into a HealthCheck.
type FuncCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

func (fc *FuncCheck) Check(ctx context.Context) error {
	return fc.checkFunc(ctx)
}

func (fc *FuncCheck) Name() string {
	return fc.name
}

// BlockNumberer is implemented by *ethclient.Client.
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// NewRPCHealthCheck passes while the node answers eth_blockNumber.
func NewRPCHealthCheck(name string, node BlockNumberer) *FuncCheck {
	return &FuncCheck{
		name: name,
		checkFunc: func(ctx context.Context) error {
			_, err := node.BlockNumber(ctx)
			return err
		},
	}
}

type OperationalChecker interface {
	IsOperational(ctx context.Context) (bool, error)
}

// ErrNotOperational is reported while the contract is paused.
var ErrNotOperational = errors.New("contract is not operational")

// NewContractHealthCheck passes while the contract reports itself operational.
func NewContractHealthCheck(name string, app OperationalChecker) *FuncCheck {
	return &FuncCheck{
		name: name,
		checkFunc: func(ctx context.Context) error {
			ok, err := app.IsOperational(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotOperational
			}
			return nil
		},
	}
}
