package relay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/status"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Registry lists registered oracles and resolves their indexes.
type Registry interface {
	Registered() []common.Address
	Indexes(ctx context.Context, addr common.Address) (types.Indexes, error)
}

// Responder submits one oracle response from an account.
type Responder interface {
	SubmitOracleResponse(ctx context.Context, from common.Address, resp types.FlightStatusResponse) (*ethtypes.Transaction, error)
}

// Report summarizes how one request was handled.
type Report struct {
	Matched        []common.Address
	Submitted      []common.Address
	Failed         []common.Address
	LookupFailures int
	Status         types.StatusCode
	StatusErr      error
}

type metrics struct {
	requests       prometheus.Counter
	submitted      prometheus.Counter
	failures       prometheus.Counter
	lookupFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracled_requests_total",
			Help: "Number of OracleRequest events handled",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracled_responses_submitted_total",
			Help: "Number of oracle responses accepted by the node",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracled_response_failures_total",
			Help: "Number of oracle responses that failed to submit",
		}),
		lookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracled_index_lookup_failures_total",
			Help: "Number of failed index lookups",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.submitted, m.failures, m.lookupFailures)
	}

	return m
}

// Relay answers OracleRequest events from every registered account holding the requested index.
type Relay struct {
	registry  Registry
	responder Responder
	source    status.Source
	metrics   *metrics
}

// New builds a relay; reg may be nil to skip metric registration.
func New(registry Registry, responder Responder, source status.Source, reg prometheus.Registerer) *Relay {
	return &Relay{
		registry:  registry,
		responder: responder,
		source:    source,
		metrics:   newMetrics(reg),
	}
}

// Handle processes one request sequentially over the registered accounts.
// The status is resolved at most once per request. Failures of one account
// are logged and the next account is tried.
func (r *Relay) Handle(ctx context.Context, req types.FlightStatusRequest) Report {
	var rep Report

	if err := req.Validate(); err != nil {
		log.Errorf("dropping request: %v", err)
		return rep
	}
	r.metrics.requests.Inc()
	log.Infof("oracle request index %d for %s (block %d)", req.Index, req.Key(), req.BlockNumber)

	resolved := false
	for _, addr := range r.registry.Registered() {
		if ctx.Err() != nil {
			log.Errorf("request %s abandoned: %v", req.Key(), ctx.Err())
			return rep
		}

		idx, err := r.registry.Indexes(ctx, addr)
		if err != nil {
			rep.LookupFailures++
			r.metrics.lookupFailures.Inc()
			log.Errorf("index lookup for %s failed: %v", addr.Hex(), err)
			continue
		}
		if !idx.Contains(req.Index) {
			continue
		}
		rep.Matched = append(rep.Matched, addr)

		if !resolved {
			resolved = true
			rep.Status, rep.StatusErr = r.source.Status(ctx, req)
			if rep.StatusErr != nil {
				log.Errorf("status source %s failed for %s: %v", r.source.Name(), req.Key(), rep.StatusErr)
			}
		}
		if rep.StatusErr != nil {
			rep.Failed = append(rep.Failed, addr)
			continue
		}

		resp := req.Respond(rep.Status)
		tx, err := r.responder.SubmitOracleResponse(ctx, addr, resp)
		if err != nil {
			r.metrics.failures.Inc()
			rep.Failed = append(rep.Failed, addr)
			log.Errorf("oracle %s failed to respond to %s: %v", addr.Hex(), req.Key(), err)
			continue
		}

		r.metrics.submitted.Inc()
		rep.Submitted = append(rep.Submitted, addr)
		log.Debugf("oracle %s responded %s, tx %s", addr.Hex(), rep.Status, tx.Hash().Hex())
	}

	log.Infof("request %s: %d matched, %d submitted, %d failed", req.Key(), len(rep.Matched), len(rep.Submitted), len(rep.Failed))

	return rep
}

// Run handles requests one at a time until requests is closed or ctx ends.
func (r *Relay) Run(ctx context.Context, requests <-chan types.FlightStatusRequest) {
	for {
		select {
		case <-ctx.Done():
			log.Debugf("relay stopped: %v", ctx.Err())
			return
		case req, ok := <-requests:
			if !ok {
				log.Debugf("relay request channel closed")
				return
			}
			r.Handle(ctx, req)
		}
	}
}
