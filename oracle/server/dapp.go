package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/flightsurety/dapp"
)

const maxBodySize = 1 << 16

type operationalResponse struct {
	Operational bool `json:"operational"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
	Value  string `json:"value,omitempty"`
}

type lookupResponse struct {
	Lookup dapp.Lookup `json:"lookup"`
}

type displayResponse struct {
	Sections   []dapp.Section  `json:"sections"`
	Visibility map[string]bool `json:"visibility"`
}

// MountDapp adds the passenger page routes driven by client. hub, when set, serves /ws.
func (s *Server) MountDapp(client *dapp.Client, hub *dapp.Hub) {
	h := &dappHandler{client: client}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/operational", h.operational).Methods(http.MethodGet)
	api.HandleFunc("/flights/status", h.requestStatus).Methods(http.MethodPost)
	api.HandleFunc("/flights/{flight}", h.lookups).Methods(http.MethodGet)
	api.HandleFunc("/insurance/pay", h.pay).Methods(http.MethodPost)
	api.HandleFunc("/insurance/withdraw", h.withdraw).Methods(http.MethodPost)
	api.HandleFunc("/display", h.display).Methods(http.MethodGet)

	if hub != nil {
		s.router.Handle("/ws", hub)
	}
}

type dappHandler struct {
	client *dapp.Client
}

// field reads a form value keyed by the page element id from a JSON body.
func field(r *http.Request, id string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 {
		return "", nil
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("request body is not valid JSON")
	}

	return gjson.GetBytes(body, id).String(), nil
}

func (h *dappHandler) operational(w http.ResponseWriter, r *http.Request) {
	ok, err := h.client.CheckOperational(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, operationalResponse{Operational: ok})
}

func (h *dappHandler) requestStatus(w http.ResponseWriter, r *http.Request) {
	flight, err := field(r, dapp.IDFlightNumber)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	key, err := h.client.RequestFlightStatus(r.Context(), flight)
	switch {
	case errors.Is(err, dapp.ErrNoFlight):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		if l, ok := h.client.Lookups().Get(key); ok && l.State == dapp.StateAwaiting {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}

	l, _ := h.client.Lookups().Get(key)
	writeJSON(w, http.StatusAccepted, lookupResponse{Lookup: l})
}

func (h *dappHandler) lookups(w http.ResponseWriter, r *http.Request) {
	flight := mux.Vars(r)["flight"]
	found := h.client.Lookups().ByFlight(flight)
	if len(found) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("no lookup for flight %s", flight))
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *dappHandler) pay(w http.ResponseWriter, r *http.Request) {
	amount, err := field(r, dapp.IDPaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := h.client.Pay(r.Context(), amount)
	h.writeTx(w, tx, err)
}

func (h *dappHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	tx, err := h.client.Withdraw(r.Context())
	h.writeTx(w, tx, err)
}

func (h *dappHandler) writeTx(w http.ResponseWriter, tx *ethtypes.Transaction, err error) {
	switch {
	case errors.Is(err, dapp.ErrNoFlight), errors.Is(err, dapp.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		resp := txResponse{TxHash: tx.Hash().Hex()}
		if tx.Value() != nil && tx.Value().Sign() > 0 {
			resp.Value = tx.Value().String()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *dappHandler) display(w http.ResponseWriter, _ *http.Request) {
	d := h.client.Display()
	writeJSON(w, http.StatusOK, displayResponse{Sections: d.Sections(), Visibility: d.Visibility()})
}
