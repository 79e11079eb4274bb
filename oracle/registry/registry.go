package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// ErrNotRegistered is returned for accounts that never registered as oracles.
var ErrNotRegistered = errors.New("account is not a registered oracle")

// IndexFetcher asks the contract for the indexes of one account.
type IndexFetcher interface {
	GetMyIndexes(ctx context.Context, from common.Address) (types.Indexes, error)
}

// Registry tracks which local accounts are oracles and their assigned indexes.
type Registry struct {
	fetcher IndexFetcher
	policy  types.IndexPolicy

	mu         sync.RWMutex
	registered []common.Address
	known      map[common.Address]struct{}

	cache cmap.ConcurrentMap[string, types.Indexes]
}

func New(fetcher IndexFetcher, policy types.IndexPolicy) *Registry {
	return &Registry{
		fetcher: fetcher,
		policy:  policy,
		known:   make(map[common.Address]struct{}),
		cache:   cmap.New[types.Indexes](),
	}
}

func (r *Registry) Policy() types.IndexPolicy {
	return r.policy
}

// MarkRegistered records addr as a registered oracle; repeated marks are ignored.
func (r *Registry) MarkRegistered(addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.known[addr]; ok {
		return
	}
	r.known[addr] = struct{}{}
	r.registered = append(r.registered, addr)
}

func (r *Registry) IsRegistered(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.known[addr]
	return ok
}

// Registered returns the registered accounts in registration order.
func (r *Registry) Registered() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, len(r.registered))
	copy(out, r.registered)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.registered)
}

// Indexes returns the indexes of addr, from cache when the policy allows it.
func (r *Registry) Indexes(ctx context.Context, addr common.Address) (types.Indexes, error) {
	if !r.IsRegistered(addr) {
		return types.Indexes{}, fmt.Errorf("%w: %s", ErrNotRegistered, addr.Hex())
	}

	key := addr.Hex()
	if r.policy == types.IndexPolicyCache {
		if idx, ok := r.cache.Get(key); ok {
			return idx, nil
		}
	}

	idx, err := r.fetcher.GetMyIndexes(ctx, addr)
	if err != nil {
		return types.Indexes{}, fmt.Errorf("failed to get indexes of %s: %w", key, err)
	}
	log.Debugf("indexes of %s: %s", key, idx)

	if r.policy == types.IndexPolicyCache {
		r.cache.Set(key, idx)
	}

	return idx, nil
}

// Invalidate drops the cached indexes of addr.
func (r *Registry) Invalidate(addr common.Address) {
	r.cache.Remove(addr.Hex())
}

// Cached reports whether indexes of addr are held in the cache.
func (r *Registry) Cached(addr common.Address) bool {
	return r.cache.Has(addr.Hex())
}
