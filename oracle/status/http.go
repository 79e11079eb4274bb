package status

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

var (
	once       sync.Once
	httpClient *http.Client
)

func sourceClient() *http.Client {
	once.Do(func() {
		transport := new(http.Transport)
		transport.MaxIdleConns = 100
		transport.MaxIdleConnsPerHost = 10
		transport.IdleConnTimeout = 90 * time.Second

		httpClient = new(http.Client)
		httpClient.Timeout = 15 * time.Second
		httpClient.Transport = transport
	})

	return httpClient
}

// HTTP asks a JSON endpoint for the flight status. The URL may carry
// {airline}, {flight} and {timestamp} placeholders; path is a gjson path
// to an integer status code.
type HTTP struct {
	url    string
	path   string
	client *http.Client
}

func NewHTTP(rawURL, path string) (*HTTP, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty status url")
	}
	if path == "" {
		return nil, fmt.Errorf("empty status path")
	}

	return &HTTP{url: rawURL, path: path, client: sourceClient()}, nil
}

func (h *HTTP) Name() string {
	return "http(" + h.url + ")"
}

func (h *HTTP) requestURL(req types.FlightStatusRequest) string {
	ts := "0"
	if req.Timestamp != nil {
		ts = req.Timestamp.String()
	}

	return strings.NewReplacer(
		"{airline}", req.Airline.Hex(),
		"{flight}", url.PathEscape(req.Flight),
		"{timestamp}", ts,
	).Replace(h.url)
}

func (h *HTTP) Status(ctx context.Context, req types.FlightStatusRequest) (types.StatusCode, error) {
	body, err := h.fetchRawData(ctx, h.requestURL(req))
	if err != nil {
		return 0, err
	}

	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("status response is not valid JSON")
	}

	res := gjson.GetBytes(body, h.path)
	if !res.Exists() {
		return 0, fmt.Errorf("path %q not found in status response", h.path)
	}
	if res.Type != gjson.Number {
		return 0, fmt.Errorf("path %q is %s, not a number", h.path, res.Type)
	}

	code, err := types.ParseStatusCode(res.Int())
	if err != nil {
		return 0, err
	}
	log.Debugf("status source reported %s for %s", code, req.Key())

	return code, nil
}

func (h *HTTP) fetchRawData(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Oracle-Daemon/1.0")
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
