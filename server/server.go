package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	statusEndpoint  = "/status"
	metricsEndpoint = "/metrics"
)

// Report is the body of GET /status.
type Report struct {
	Serial        string `json:"serial"`
	State         string `json:"state"`
	Display       string `json:"display"`
	TransactionId int    `json:"transactionId"`
	Connected     bool   `json:"connected"`
	Outbound      int    `json:"outbound"`
	Inbound       int    `json:"inbound"`
	Inputs        int    `json:"inputs"`
}

type Reporter interface {
	Report() Report
}

type Server struct {
	reporter   Reporter
	httpServer *http.Server
	logger     *log.Entry
}

func NewServer(reporter Reporter) *Server {
	s := &Server{reporter: reporter, logger: log.WithField("task", "status")}
	router := httprouter.New()
	s.Register(router)
	s.httpServer = &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(statusEndpoint, s.handleStatus)
	router.Handler(http.MethodGet, metricsEndpoint, promhttp.Handler())
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.reporter.Report()); err != nil {
		s.logger.Warnf("writing status: %v", err)
	}
}

// Start serves on address until ctx ends.
func (s *Server) Start(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.logger.Infof("starting status server on %s", listener.Addr())
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdown)
	}()
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
