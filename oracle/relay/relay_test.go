package relay

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GPTx-global/flightsurety/oracle/registry"
	"github.com/GPTx-global/flightsurety/oracle/status"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// indexFetcher assigns account i the indexes {i, i+3, i+7} mod 10.
type indexFetcher struct {
	order map[common.Address]int
	calls map[common.Address]int
	fail  map[common.Address]bool
}

func (f *indexFetcher) indexesOf(i int) types.Indexes {
	return types.Indexes{uint8(i % 10), uint8((i + 3) % 10), uint8((i + 7) % 10)}
}

func (f *indexFetcher) GetMyIndexes(_ context.Context, from common.Address) (types.Indexes, error) {
	f.calls[from]++
	if f.fail[from] {
		return types.Indexes{}, errors.New("connection reset by peer")
	}
	return f.indexesOf(f.order[from]), nil
}

type submission struct {
	from common.Address
	resp types.FlightStatusResponse
}

type recordingResponder struct {
	submissions []submission
	failFor     map[common.Address]bool
	attempts    int
}

func (r *recordingResponder) SubmitOracleResponse(_ context.Context, from common.Address, resp types.FlightStatusResponse) (*ethtypes.Transaction, error) {
	r.attempts++
	if r.failFor[from] {
		return nil, errors.New("execution reverted: Index does not match oracle request")
	}
	r.submissions = append(r.submissions, submission{from: from, resp: resp})
	return ethtypes.NewTransaction(uint64(r.attempts), common.Address{}, nil, 100000, big.NewInt(1), nil), nil
}

type countingSource struct {
	status.Source
	calls int
	err   error
}

func (c *countingSource) Status(ctx context.Context, req types.FlightStatusRequest) (types.StatusCode, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return c.Source.Status(ctx, req)
}

var _ = ginkgo.Describe("Relay", func() {
	var (
		pool      []common.Address
		fetcher   *indexFetcher
		responder *recordingResponder
		source    *countingSource
		promReg   *prometheus.Registry
		req       types.FlightStatusRequest
	)

	newRelay := func(policy types.IndexPolicy, registered []common.Address) (*Relay, *registry.Registry) {
		reg := registry.New(fetcher, policy)
		for _, addr := range registered {
			reg.MarkRegistered(addr)
		}
		return New(reg, responder, source, promReg), reg
	}

	ginkgo.BeforeEach(func() {
		pool = make([]common.Address, 20)
		fetcher = &indexFetcher{
			order: map[common.Address]int{},
			calls: map[common.Address]int{},
			fail:  map[common.Address]bool{},
		}
		for i := range pool {
			pool[i] = common.BigToAddress(big.NewInt(int64(1000 + i)))
			fetcher.order[pool[i]] = i
		}

		fixed, err := status.NewFixed(types.StatusOnTime)
		Expect(err).NotTo(HaveOccurred())
		source = &countingSource{Source: fixed}
		responder = &recordingResponder{failFor: map[common.Address]bool{}}
		promReg = prometheus.NewRegistry()

		req = types.FlightStatusRequest{
			Index:     5,
			Airline:   common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
			Flight:    "ND1309",
			Timestamp: big.NewInt(1700000000),
		}
	})

	ginkgo.Context("with 20 registered accounts and a request for index 5", func() {
		ginkgo.It("submits once from every account holding index 5, with the fixed status", func() {
			r, _ := newRelay(types.IndexPolicyRefetch, pool)

			var expected []common.Address
			for i, addr := range pool {
				if fetcher.indexesOf(i).Contains(5) {
					expected = append(expected, addr)
				}
			}
			Expect(expected).To(HaveLen(6))

			rep := r.Handle(context.Background(), req)

			Expect(rep.Submitted).To(Equal(expected))
			Expect(responder.submissions).To(HaveLen(len(expected)))
			for _, s := range responder.submissions {
				Expect(s.resp.Status).To(Equal(types.StatusOnTime))
				Expect(s.resp.Index).To(Equal(uint8(5)))
				Expect(s.resp.Flight).To(Equal("ND1309"))
				Expect(s.resp.Airline).To(Equal(req.Airline))
				Expect(s.resp.Timestamp.Int64()).To(Equal(int64(1700000000)))
			}

			Expect(source.calls).To(Equal(1))
			Expect(testutil.ToFloat64(r.metrics.requests)).To(Equal(float64(1)))
			Expect(testutil.ToFloat64(r.metrics.submitted)).To(Equal(float64(6)))
		})

		ginkgo.It("never responds from an account whose index set lacks the request index", func() {
			r, _ := newRelay(types.IndexPolicyRefetch, pool)
			r.Handle(context.Background(), req)

			for _, s := range responder.submissions {
				Expect(fetcher.indexesOf(fetcher.order[s.from]).Contains(req.Index)).To(BeTrue())
			}
		})
	})

	ginkgo.Context("with unregistered accounts", func() {
		ginkgo.It("only uses registered accounts", func() {
			registered := pool[:10]
			r, _ := newRelay(types.IndexPolicyRefetch, registered)

			rep := r.Handle(context.Background(), req)

			Expect(rep.Submitted).To(ConsistOf(pool[2], pool[5], pool[8]))
			for _, addr := range pool[10:] {
				Expect(fetcher.calls[addr]).To(BeZero())
			}
		})

		ginkgo.It("does nothing when no account is registered", func() {
			r, _ := newRelay(types.IndexPolicyRefetch, nil)

			rep := r.Handle(context.Background(), req)
			Expect(rep.Matched).To(BeEmpty())
			Expect(responder.attempts).To(BeZero())
			Expect(source.calls).To(BeZero())
		})
	})

	ginkgo.Context("index policy", func() {
		ginkgo.It("fetches each account's indexes once across many events with the cache policy", func() {
			r, _ := newRelay(types.IndexPolicyCache, pool)
			for i := 0; i < 5; i++ {
				req.Index = uint8(i)
				r.Handle(context.Background(), req)
			}
			for _, addr := range pool {
				Expect(fetcher.calls[addr]).To(Equal(1))
			}
		})

		ginkgo.It("asks the contract on every event with the refetch policy", func() {
			r, _ := newRelay(types.IndexPolicyRefetch, pool)
			for i := 0; i < 5; i++ {
				r.Handle(context.Background(), req)
			}
			for _, addr := range pool {
				Expect(fetcher.calls[addr]).To(Equal(5))
			}
		})
	})

	ginkgo.Context("when things fail", func() {
		ginkgo.It("continues past failed submissions", func() {
			responder.failFor[pool[2]] = true
			r, _ := newRelay(types.IndexPolicyRefetch, pool)

			rep := r.Handle(context.Background(), req)

			Expect(rep.Failed).To(Equal([]common.Address{pool[2]}))
			Expect(rep.Submitted).To(HaveLen(5))
			Expect(responder.attempts).To(Equal(6))
			Expect(testutil.ToFloat64(r.metrics.failures)).To(Equal(float64(1)))
		})

		ginkgo.It("continues past failed index lookups", func() {
			fetcher.fail[pool[5]] = true
			r, _ := newRelay(types.IndexPolicyRefetch, pool)

			rep := r.Handle(context.Background(), req)

			Expect(rep.LookupFailures).To(Equal(1))
			Expect(rep.Submitted).To(HaveLen(5))
			Expect(rep.Submitted).NotTo(ContainElement(pool[5]))
			Expect(testutil.ToFloat64(r.metrics.lookupFailures)).To(Equal(float64(1)))
		})

		ginkgo.It("submits nothing when the status source fails", func() {
			source.err = errors.New("status endpoint returned 503")
			r, _ := newRelay(types.IndexPolicyRefetch, pool)

			rep := r.Handle(context.Background(), req)

			Expect(source.calls).To(Equal(1))
			Expect(rep.StatusErr).To(HaveOccurred())
			Expect(rep.Failed).To(HaveLen(6))
			Expect(responder.attempts).To(BeZero())
		})

		ginkgo.It("drops invalid requests at the boundary", func() {
			r, _ := newRelay(types.IndexPolicyRefetch, pool)
			req.Flight = ""

			rep := r.Handle(context.Background(), req)
			Expect(rep.Matched).To(BeEmpty())
			Expect(testutil.ToFloat64(r.metrics.requests)).To(BeZero())
		})
	})

	ginkgo.Describe("Run", func() {
		ginkgo.It("processes queued requests in order until the channel closes", func() {
			r, _ := newRelay(types.IndexPolicyCache, pool)
			requests := make(chan types.FlightStatusRequest, 3)
			for _, idx := range []uint8{5, 0, 9} {
				next := req
				next.Index = idx
				requests <- next
			}
			close(requests)

			r.Run(context.Background(), requests)

			Expect(testutil.ToFloat64(r.metrics.requests)).To(Equal(float64(3)))
			Expect(responder.submissions).To(HaveLen(18))
			Expect(responder.submissions[0].resp.Index).To(Equal(uint8(5)))
			Expect(responder.submissions[17].resp.Index).To(Equal(uint8(9)))
		})

		ginkgo.It("stops when the context is cancelled", func() {
			r, _ := newRelay(types.IndexPolicyCache, pool)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			done := make(chan struct{})
			go func() {
				r.Run(ctx, make(chan types.FlightStatusRequest))
				close(done)
			}()
			Eventually(done).Should(BeClosed())
		})
	})
})
