package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes /metrics on whatever address the operator
// passes to `run --metrics-addr` (no loopback restriction is applied),
// adapted from the teacher's
// server.Server pattern of a single-purpose net/http listener.
type MetricsServer struct {
	addr string
	srv  *http.Server
}

// NewMetricsServer builds a listener bound to addr (e.g. "127.0.0.1:9090").
func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start runs the listener until ctx is canceled, then shuts it down
// with a bounded grace period.
func (m *MetricsServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("telemetry: metrics listener on %s failed: %w", m.addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.srv.Shutdown(shutdownCtx)
	}
}
