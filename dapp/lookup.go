package dapp

import (
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

// State is the progress of one flight status lookup.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting-response"
	StateResolved State = "resolved"
	StateTimedOut State = "timed-out"
)

type Lookup struct {
	Key         types.FlightKey  `json:"-"`
	Flight      string           `json:"flight"`
	Airline     string           `json:"airline"`
	Timestamp   uint64           `json:"timestamp"`
	State       State            `json:"state"`
	Status      types.StatusCode `json:"status"`
	Label       string           `json:"label,omitempty"`
	RequestedAt time.Time        `json:"requestedAt"`
	ResolvedAt  time.Time        `json:"resolvedAt,omitempty"`
}

// Tracker holds lookups by flight key. Transitions are serialized; reads are lock free.
type Tracker struct {
	mu      sync.Mutex
	lookups cmap.ConcurrentMap[string, Lookup]
	timeout time.Duration
}

// NewTracker builds a tracker; a zero timeout leaves unanswered lookups awaiting forever.
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{
		lookups: cmap.New[Lookup](),
		timeout: timeout,
	}
}

// State of key; unknown keys are idle.
func (t *Tracker) State(key types.FlightKey) State {
	if l, ok := t.lookups.Get(key.String()); ok {
		return l.State
	}

	return StateIdle
}

func (t *Tracker) Get(key types.FlightKey) (Lookup, bool) {
	return t.lookups.Get(key.String())
}

// ByFlight returns every lookup for the flight code.
func (t *Tracker) ByFlight(flight string) []Lookup {
	var out []Lookup
	for _, l := range t.lookups.Items() {
		if l.Flight == flight {
			out = append(out, l)
		}
	}

	return out
}

// Begin moves key to awaiting-response. A lookup already awaiting is rejected.
func (t *Tracker) Begin(key types.FlightKey, now time.Time) (Lookup, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.lookups.Get(key.String()); ok && cur.State == StateAwaiting {
		return cur, fmt.Errorf("lookup for %s is already awaiting a response", key)
	}

	l := Lookup{
		Key:         key,
		Flight:      key.Flight,
		Airline:     key.Airline.Hex(),
		Timestamp:   key.Timestamp,
		State:       StateAwaiting,
		RequestedAt: now,
	}
	t.lookups.Set(key.String(), l)

	return l, nil
}

// Abort returns an awaiting lookup to idle, used when the query never reached the chain.
func (t *Tracker) Abort(key types.FlightKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.lookups.Get(key.String()); ok && cur.State == StateAwaiting {
		t.lookups.Remove(key.String())
	}
}

// Resolve moves an awaiting or timed-out lookup to resolved. It reports false
// when no lookup for info was pending.
func (t *Tracker) Resolve(info types.FlightStatusInfo, now time.Time) (Lookup, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := info.Key()
	cur, ok := t.lookups.Get(key.String())
	if !ok || (cur.State != StateAwaiting && cur.State != StateTimedOut) {
		return cur, false
	}

	cur.State = StateResolved
	cur.Status = info.Status
	cur.Label = info.Status.Label()
	cur.ResolvedAt = now
	t.lookups.Set(key.String(), cur)

	return cur, true
}

// Expire times out lookups that have been awaiting longer than the timeout.
func (t *Tracker) Expire(now time.Time) []Lookup {
	if t.timeout <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Lookup
	for k, l := range t.lookups.Items() {
		if l.State == StateAwaiting && now.Sub(l.RequestedAt) >= t.timeout {
			l.State = StateTimedOut
			t.lookups.Set(k, l)
			expired = append(expired, l)
		}
	}

	return expired
}

func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}
