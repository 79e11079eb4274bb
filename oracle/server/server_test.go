package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/flightsurety/dapp"
	"github.com/GPTx-global/flightsurety/oracle/health"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

var (
	passenger = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	airline   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type fakeHealth struct {
	status map[string]health.HealthStatus
}

func (f *fakeHealth) GetStatus() map[string]health.HealthStatus {
	return f.status
}

func (f *fakeHealth) IsHealthy() bool {
	for _, st := range f.status {
		if !st.Healthy {
			return false
		}
	}
	return true
}

type fakeChain struct {
	operational bool
	err         error
}

func (f *fakeChain) tx(value *big.Int) *ethtypes.Transaction {
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 7, To: &airline, Value: value, Gas: 3000000, GasPrice: big.NewInt(1)})
}

func (f *fakeChain) IsOperational(context.Context) (bool, error) {
	return f.operational, f.err
}

func (f *fakeChain) FetchFlightStatus(context.Context, common.Address, common.Address, string, *big.Int) (*ethtypes.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx(nil), nil
}

func (f *fakeChain) Buy(_ context.Context, _ common.Address, _ string, value *big.Int) (*ethtypes.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx(value), nil
}

func (f *fakeChain) Withdraw(context.Context, common.Address, string) (*ethtypes.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx(nil), nil
}

type ServerTestSuite struct {
	suite.Suite
	health *fakeHealth
	chain  *fakeChain
	client *dapp.Client
	hub    *dapp.Hub
	ts     *httptest.Server
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupSuite() {
	log.InitLogger()
}

func (suite *ServerTestSuite) SetupTest() {
	suite.health = &fakeHealth{status: map[string]health.HealthStatus{
		"rpc":      {Healthy: true, LastCheck: time.Now()},
		"contract": {Healthy: true, LastCheck: time.Now()},
	}}

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "oracled_requests_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	suite.chain = &fakeChain{operational: true}
	suite.hub = dapp.NewHub(func(*http.Request) bool { return true })
	display := dapp.NewDisplay(suite.hub)
	suite.hub.SetSnapshot(display.Attach)
	suite.client = dapp.NewClient(suite.chain, passenger, airline, display, dapp.NewTracker(0))

	s := New(":0", []string{"*"}, suite.health, reg)
	s.MountDapp(suite.client, suite.hub)
	suite.ts = httptest.NewServer(s.Handler())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.ts.Close()
}

func (suite *ServerTestSuite) do(method, path, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, suite.ts.URL+path, reader)
	suite.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	return resp.StatusCode, data
}

func (suite *ServerTestSuite) TestIndex() {
	code, body := suite.do(http.MethodGet, "/api", "")
	suite.Equal(http.StatusOK, code)
	suite.Equal(apiMessage, gjson.GetBytes(body, "message").String())
}

func (suite *ServerTestSuite) TestHealth() {
	code, body := suite.do(http.MethodGet, "/api/health", "")
	suite.Equal(http.StatusOK, code)
	suite.True(gjson.GetBytes(body, "healthy").Bool())
	suite.True(gjson.GetBytes(body, "checks.rpc.healthy").Bool())

	suite.health.status["rpc"] = health.HealthStatus{Healthy: false, LastError: errors.New("dial tcp: connection refused")}
	code, body = suite.do(http.MethodGet, "/api/health", "")
	suite.Equal(http.StatusServiceUnavailable, code)
	suite.False(gjson.GetBytes(body, "healthy").Bool())
	suite.Equal("dial tcp: connection refused", gjson.GetBytes(body, "checks.rpc.error").String())
}

func (suite *ServerTestSuite) TestMetrics() {
	code, body := suite.do(http.MethodGet, "/metrics", "")
	suite.Equal(http.StatusOK, code)
	suite.Contains(string(body), "oracled_requests_total 3")
}

func (suite *ServerTestSuite) TestCORS() {
	req, err := http.NewRequest(http.MethodOptions, suite.ts.URL+"/api/flights/status", nil)
	suite.Require().NoError(err)
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func (suite *ServerTestSuite) TestOperational() {
	code, body := suite.do(http.MethodGet, "/api/operational", "")
	suite.Equal(http.StatusOK, code)
	suite.True(gjson.GetBytes(body, "operational").Bool())

	suite.chain.err = errors.New("connection refused")
	code, _ = suite.do(http.MethodGet, "/api/operational", "")
	suite.Equal(http.StatusBadGateway, code)
}

func (suite *ServerTestSuite) TestFlightStatusFlow() {
	code, _ := suite.do(http.MethodPost, "/api/flights/status", `{}`)
	suite.Equal(http.StatusBadRequest, code)

	code, _ = suite.do(http.MethodPost, "/api/flights/status", `not json`)
	suite.Equal(http.StatusBadRequest, code)

	code, body := suite.do(http.MethodPost, "/api/flights/status", `{"flight-number":"ND1309"}`)
	suite.Require().Equal(http.StatusAccepted, code)
	suite.Equal("ND1309", gjson.GetBytes(body, "lookup.flight").String())
	suite.Equal(string(dapp.StateAwaiting), gjson.GetBytes(body, "lookup.state").String())

	code, body = suite.do(http.MethodGet, "/api/flights/ND1309", "")
	suite.Equal(http.StatusOK, code)
	suite.Equal(int64(1), gjson.GetBytes(body, "#").Int())

	code, _ = suite.do(http.MethodGet, "/api/flights/ZZ9", "")
	suite.Equal(http.StatusNotFound, code)

	ts := gjson.GetBytes(body, "0.timestamp").Uint()
	suite.True(suite.client.Resolve(types.FlightStatusInfo{
		Airline: airline, Flight: "ND1309", Timestamp: new(big.Int).SetUint64(ts), Status: types.StatusLateAirline,
	}))

	code, body = suite.do(http.MethodGet, "/api/display", "")
	suite.Equal(http.StatusOK, code)
	suite.True(gjson.GetBytes(body, "visibility.refund-section").Bool())
	suite.False(gjson.GetBytes(body, "visibility.pay-section").Bool())
	suite.Equal("Late (Airline)", gjson.GetBytes(body, "sections.#(title==\"Flight Status\").results.0.value").String())
}

func (suite *ServerTestSuite) TestPayAndWithdraw() {
	code, _ := suite.do(http.MethodPost, "/api/insurance/pay", `{"payment-amount":"1000"}`)
	suite.Equal(http.StatusBadRequest, code)

	code, _ = suite.do(http.MethodPost, "/api/flights/status", `{"flight-number":"ND1309"}`)
	suite.Require().Equal(http.StatusAccepted, code)

	code, _ = suite.do(http.MethodPost, "/api/insurance/pay", `{"payment-amount":"abc"}`)
	suite.Equal(http.StatusBadRequest, code)

	code, body := suite.do(http.MethodPost, "/api/insurance/pay", `{"payment-amount":"1000"}`)
	suite.Equal(http.StatusOK, code)
	suite.Equal("1000", gjson.GetBytes(body, "value").String())
	suite.True(strings.HasPrefix(gjson.GetBytes(body, "txHash").String(), "0x"))

	code, _ = suite.do(http.MethodPost, "/api/insurance/withdraw", "")
	suite.Equal(http.StatusOK, code)

	suite.chain.err = errors.New("execution reverted")
	code, body = suite.do(http.MethodPost, "/api/insurance/withdraw", "")
	suite.Equal(http.StatusBadGateway, code)
	suite.Equal("execution reverted", gjson.GetBytes(body, "error").String())
}

func (suite *ServerTestSuite) TestWebsocketFeed() {
	url := "ws" + strings.TrimPrefix(suite.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)
	defer conn.Close()

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, msg, err := conn.ReadMessage()
	suite.Require().NoError(err)
	suite.Equal(dapp.EventSnapshot, gjson.GetBytes(msg, "type").String())

	suite.Eventually(func() bool { return suite.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	code, _ := suite.do(http.MethodGet, "/api/operational", "")
	suite.Require().Equal(http.StatusOK, code)

	_, msg, err = conn.ReadMessage()
	suite.Require().NoError(err)
	suite.Equal("Operational Status", gjson.GetBytes(msg, "section.title").String())
}

func TestStartAndShutdown(t *testing.T) {
	log.InitLogger()
	s := New("127.0.0.1:0", nil, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/api")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Contains(body, []byte(apiMessage)) {
		t.Fatalf("unexpected body %s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}
