package status

import (
	"context"
	"fmt"

	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Source decides which status an oracle reports for a request.
type Source interface {
	Status(ctx context.Context, req types.FlightStatusRequest) (types.StatusCode, error)
	Name() string
}

// Fixed reports the same code for every request.
type Fixed struct {
	code types.StatusCode
}

func NewFixed(code types.StatusCode) (*Fixed, error) {
	if !code.Valid() {
		return nil, fmt.Errorf("undefined status code %d", code)
	}

	return &Fixed{code: code}, nil
}

func (f *Fixed) Status(context.Context, types.FlightStatusRequest) (types.StatusCode, error) {
	return f.code, nil
}

func (f *Fixed) Name() string {
	return fmt.Sprintf("fixed(%d)", f.code)
}

// FromConfig builds the source selected by the [oracle] section.
func FromConfig(cfg *config.Config) (Source, error) {
	switch cfg.Oracle.StatusSource {
	case "", "fixed":
		return NewFixed(types.StatusCode(cfg.Oracle.StatusCode))
	case "http":
		return NewHTTP(cfg.Oracle.StatusURL, cfg.Oracle.StatusPath)
	default:
		return nil, fmt.Errorf("unknown status source %q", cfg.Oracle.StatusSource)
	}
}
