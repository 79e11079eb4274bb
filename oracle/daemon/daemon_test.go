package daemon

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
	"github.com/GPTx-global/flightsurety/oracle/wallet"
)

const hardhatMnemonic = "test test test test test test test test test test test junk"

var (
	account0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	account1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type nopChain struct{}

func (nopChain) IsOperational(context.Context) (bool, error) { return true, nil }

func (nopChain) FetchFlightStatus(context.Context, common.Address, common.Address, string, *big.Int) (*ethtypes.Transaction, error) {
	return nil, errors.New("not connected")
}

func (nopChain) Buy(context.Context, common.Address, string, *big.Int) (*ethtypes.Transaction, error) {
	return nil, errors.New("not connected")
}

func (nopChain) Withdraw(context.Context, common.Address, string) (*ethtypes.Transaction, error) {
	return nil, errors.New("not connected")
}

type indexTable map[common.Address]types.Indexes

func (t indexTable) GetMyIndexes(_ context.Context, from common.Address) (types.Indexes, error) {
	idx, ok := t[from]
	if !ok {
		return types.Indexes{}, errors.New("execution reverted: Not registered as an oracle")
	}
	return idx, nil
}

type DaemonTestSuite struct {
	suite.Suite
	cfg    *config.Config
	wallet *wallet.Wallet
}

func TestDaemonTestSuite(t *testing.T) {
	suite.Run(t, new(DaemonTestSuite))
}

func (suite *DaemonTestSuite) SetupSuite() {
	log.InitLogger()
	w, err := wallet.New(hardhatMnemonic, 3, "m/44'/60'/0'/0/%d")
	suite.Require().NoError(err)
	suite.wallet = w
}

func (suite *DaemonTestSuite) SetupTest() {
	suite.cfg = config.Default()
	suite.cfg.Wallet.Mnemonic = hardhatMnemonic
	suite.cfg.Wallet.Accounts = 3
	suite.cfg.Chain.AppAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
}

func (suite *DaemonTestSuite) TestNewDappClient_DefaultAirline() {
	client, err := NewDappClient(suite.cfg, suite.wallet, nopChain{}, nil)
	suite.Require().NoError(err)

	ok, err := client.CheckOperational(context.Background())
	suite.Require().NoError(err)
	suite.True(ok)
	suite.Len(client.Display().Sections(), 1)
}

func (suite *DaemonTestSuite) TestNewDappClient_Accounts() {
	suite.cfg.Dapp.Account = 2
	_, err := NewDappClient(suite.cfg, suite.wallet, nopChain{}, nil)
	suite.NoError(err)

	suite.cfg.Dapp.Account = 3
	_, err = NewDappClient(suite.cfg, suite.wallet, nopChain{}, nil)
	suite.Error(err)

	suite.cfg.Dapp.Account = 0
	suite.cfg.Dapp.Airline = account1.Hex()
	_, err = NewDappClient(suite.cfg, suite.wallet, nopChain{}, nil)
	suite.NoError(err)
}

func (suite *DaemonTestSuite) TestIndexes() {
	table := indexTable{account0: {1, 5, 9}}

	got := Indexes(context.Background(), table, suite.wallet.Accounts())
	suite.Require().Len(got, 3)

	suite.Equal(account0, got[0].Address)
	suite.True(got[0].Registered)
	suite.Equal(types.Indexes{1, 5, 9}, got[0].Indexes)

	suite.Equal(account1, got[1].Address)
	suite.False(got[1].Registered)
	suite.False(got[2].Registered)
}

func (suite *DaemonTestSuite) TestConnect_RequiresAppAddress() {
	suite.cfg.Chain.AppAddress = ""
	_, err := Connect(context.Background(), suite.cfg)
	suite.ErrorIs(err, config.ErrInvalidConfig)
}

func (suite *DaemonTestSuite) TestConnect_BadArtifact() {
	suite.cfg.Chain.Artifact = filepath.Join(suite.T().TempDir(), "missing.json")
	_, err := Connect(context.Background(), suite.cfg)
	suite.Error(err)
}

func (suite *DaemonTestSuite) TestDial_Cancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1")
	suite.ErrorIs(err, context.Canceled)
}

func (suite *DaemonTestSuite) TestOriginChecker() {
	req := httptest.NewRequest("GET", "/ws", nil)

	suite.True(OriginChecker(nil)(req))
	suite.True(OriginChecker([]string{"*"})(req))

	check := OriginChecker([]string{"http://localhost:8000/"})
	suite.True(check(req), "requests without an origin are not browsers")

	req.Header.Set("Origin", "http://localhost:8000")
	suite.True(check(req))

	req.Header.Set("Origin", "http://evil.example")
	suite.False(check(req))
}
