package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/logger"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Server serves /metrics over HTTP.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts an HTTP server exposing the default registry at /metrics on
// addr. It returns once the listener is bound.
func Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to listen for metrics").
			WithDetail("address", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("metrics server listening", zap.String("address", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
