package types

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidRequest marks an event payload that failed boundary validation.
var ErrInvalidRequest = errors.New("invalid flight status request")

// IndexCount is the number of indexes the contract assigns to every oracle.
const IndexCount = 3

// Indexes is the opaque index set the contract assigned to one oracle.
type Indexes [IndexCount]uint8

// Contains reports whether index is one of the assigned indexes.
func (i Indexes) Contains(index uint8) bool {
	for _, v := range i {
		if v == index {
			return true
		}
	}

	return false
}

func (i Indexes) String() string {
	return fmt.Sprintf("%d,%d,%d", i[0], i[1], i[2])
}

// OracleAccount is an account of the local pool together with its assigned indexes.
type OracleAccount struct {
	Address    common.Address
	Indexes    Indexes
	Registered bool
}

// FlightKey identifies one flight status lookup.
type FlightKey struct {
	Airline   common.Address
	Flight    string
	Timestamp uint64
}

func (k FlightKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Airline.Hex(), k.Flight, k.Timestamp)
}

// FlightStatusRequest is the OracleRequest event emitted by the contract.
type FlightStatusRequest struct {
	Index       uint8
	Airline     common.Address
	Flight      string
	Timestamp   *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// Validate checks the payload before anything downstream relies on it.
func (r FlightStatusRequest) Validate() error {
	if r.Airline == (common.Address{}) {
		return fmt.Errorf("%w: zero airline address", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Flight) == "" {
		return fmt.Errorf("%w: empty flight", ErrInvalidRequest)
	}
	if r.Timestamp == nil || r.Timestamp.Sign() < 0 {
		return fmt.Errorf("%w: missing or negative timestamp", ErrInvalidRequest)
	}

	return nil
}

// Key returns the lookup key of the flight the request is about.
func (r FlightStatusRequest) Key() FlightKey {
	return FlightKey{Airline: r.Airline, Flight: r.Flight, Timestamp: timestampUint64(r.Timestamp)}
}

// Respond builds the response an oracle holding r.Index submits.
func (r FlightStatusRequest) Respond(status StatusCode) FlightStatusResponse {
	return FlightStatusResponse{
		Index:     r.Index,
		Airline:   r.Airline,
		Flight:    r.Flight,
		Timestamp: new(big.Int).Set(r.Timestamp),
		Status:    status,
	}
}

// FlightStatusResponse is the argument set of submitOracleResponse.
type FlightStatusResponse struct {
	Index     uint8
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
	Status    StatusCode
}

// FlightStatusInfo is emitted once enough matching responses were accepted.
type FlightStatusInfo struct {
	Airline     common.Address
	Flight      string
	Timestamp   *big.Int
	Status      StatusCode
	BlockNumber uint64
}

// Key returns the lookup key of the resolved flight.
func (i FlightStatusInfo) Key() FlightKey {
	return FlightKey{Airline: i.Airline, Flight: i.Flight, Timestamp: timestampUint64(i.Timestamp)}
}

func timestampUint64(ts *big.Int) uint64 {
	if ts == nil || !ts.IsUint64() {
		return 0
	}

	return ts.Uint64()
}

// IndexPolicy decides whether oracle indexes are cached after the first lookup.
type IndexPolicy string

const (
	IndexPolicyCache   IndexPolicy = "cache"
	IndexPolicyRefetch IndexPolicy = "refetch"
)

func ParseIndexPolicy(s string) (IndexPolicy, error) {
	switch p := IndexPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case IndexPolicyCache, IndexPolicyRefetch:
		return p, nil
	default:
		return "", fmt.Errorf("unknown index policy %q", s)
	}
}

// StartBlock is where the event subscription begins.
type StartBlock struct {
	Latest bool
	Number uint64
}

// Genesis starts the subscription at block 0.
var Genesis = StartBlock{}

// ParseStartBlock accepts "genesis", "latest" or a block number.
func ParseStartBlock(s string) (StartBlock, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "genesis", "earliest":
		return Genesis, nil
	case "latest":
		return StartBlock{Latest: true}, nil
	default:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return StartBlock{}, fmt.Errorf("invalid start block %q: %w", s, err)
		}
		return StartBlock{Number: n}, nil
	}
}

func (b StartBlock) String() string {
	if b.Latest {
		return "latest"
	}
	if b.Number == 0 {
		return "genesis"
	}

	return strconv.FormatUint(b.Number, 10)
}
