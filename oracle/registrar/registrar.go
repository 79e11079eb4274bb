package registrar

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Registerer sends one registerOracle transaction.
type Registerer interface {
	RegisterOracle(ctx context.Context, from common.Address, fee *big.Int) (*ethtypes.Transaction, error)
}

// Registry is where successful registrations are recorded.
type Registry interface {
	MarkRegistered(addr common.Address)
	Indexes(ctx context.Context, addr common.Address) (types.Indexes, error)
	Policy() types.IndexPolicy
}

type Result struct {
	Registered []common.Address
	Failed     []common.Address
}

type metrics struct {
	attempts prometheus.Counter
	failures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracled_registrations_total",
			Help: "Number of registerOracle calls issued",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracled_registration_failures_total",
			Help: "Number of registerOracle calls that failed",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.failures)
	}

	return m
}

// Registrar registers every wallet account as an oracle.
type Registrar struct {
	registerer Registerer
	registry   Registry
	metrics    *metrics
}

// New builds a registrar; reg may be nil to skip metric registration.
func New(registerer Registerer, registry Registry, reg prometheus.Registerer) *Registrar {
	return &Registrar{
		registerer: registerer,
		registry:   registry,
		metrics:    newMetrics(reg),
	}
}

// RegisterAll issues exactly one registration per account, in order, each
// carrying fee. A failed account is logged and skipped; nothing is retried.
func (r *Registrar) RegisterAll(ctx context.Context, accounts []common.Address, fee *big.Int) Result {
	var res Result

	log.Infof("registering %d oracles with fee %s", len(accounts), fee)

	for _, addr := range accounts {
		if ctx.Err() != nil {
			log.Errorf("registration cancelled before %s: %v", addr.Hex(), ctx.Err())
			res.Failed = append(res.Failed, addr)
			continue
		}

		r.metrics.attempts.Inc()
		tx, err := r.registerer.RegisterOracle(ctx, addr, fee)
		if err != nil {
			r.metrics.failures.Inc()
			log.Errorf("failed to register oracle %s: %v", addr.Hex(), err)
			res.Failed = append(res.Failed, addr)
			continue
		}

		r.registry.MarkRegistered(addr)
		res.Registered = append(res.Registered, addr)
		log.Infof("registered oracle %s, tx %s", addr.Hex(), tx.Hash().Hex())
	}

	if r.registry.Policy() == types.IndexPolicyCache {
		r.warmCache(ctx, res.Registered)
	}

	log.Infof("oracle registration done: %d registered, %d failed", len(res.Registered), len(res.Failed))

	return res
}

func (r *Registrar) warmCache(ctx context.Context, accounts []common.Address) {
	for _, addr := range accounts {
		idx, err := r.registry.Indexes(ctx, addr)
		if err != nil {
			log.Errorf("failed to cache indexes of %s: %v", addr.Hex(), err)
			continue
		}
		log.Debugf("oracle %s holds indexes %s", addr.Hex(), idx)
	}
}
