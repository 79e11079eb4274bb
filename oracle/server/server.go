package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/GPTx-global/flightsurety/oracle/health"
	"github.com/GPTx-global/flightsurety/oracle/log"
)

const apiMessage = "An API for use with your Dapp!"

// Health is the part of the health checker the server reports.
type Health interface {
	GetStatus() map[string]health.HealthStatus
	IsHealthy() bool
}

type Server struct {
	router   *mux.Router
	handler  http.Handler
	health   Health
	gatherer prometheus.Gatherer

	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// New builds the router with /api, /api/health and /metrics. A nil gatherer
// serves the default prometheus registry; a nil checker always reports healthy.
func New(listen string, origins []string, checker Health, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:   mux.NewRouter(),
		health:   checker,
		gatherer: gatherer,
	}

	s.router.HandleFunc("/api", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler is the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	log.Infof("serving api on %s", ln.Addr())

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("api server stopped: %v", err)
		}
	}()

	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}

	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	<-s.done

	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": apiMessage})
}

type checkStatus struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"lastCheck"`
	Error     string    `json:"error,omitempty"`
}

type healthResponse struct {
	Healthy bool                   `json:"healthy"`
	Checks  map[string]checkStatus `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Healthy: true, Checks: map[string]checkStatus{}}
	if s.health != nil {
		resp.Healthy = s.health.IsHealthy()
		for name, st := range s.health.GetStatus() {
			cs := checkStatus{Healthy: st.Healthy, LastCheck: st.LastCheck}
			if st.LastError != nil {
				cs.Error = st.LastError.Error()
			}
			resp.Checks[name] = cs
		}
	}

	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
		names := make([]string, 0, len(resp.Checks))
		for name, cs := range resp.Checks {
			if !cs.Healthy {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		log.Debugf("health endpoint reporting unhealthy: %v", names)
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
