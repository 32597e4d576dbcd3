package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/suspectuso/deposit-verifier/internal/metrics"
)

// Server exposes the deposit webhook alongside health and metrics endpoints.
type Server struct {
	handler *Handler
	path    string
	metrics *metrics.Metrics
	log     *slog.Logger

	server *http.Server
}

// NewServer creates a new webhook server
func NewServer(handler *Handler, path string, m *metrics.Metrics, log *slog.Logger) *Server {
	return &Server{
		handler: handler,
		path:    path,
		metrics: m,
		log:     log,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, s.handler)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Start serves until ctx is cancelled, then shuts down and waits for
// pending notifications.
func (s *Server) Start(ctx context.Context, port int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting webhook server", "port", port, "path", s.path)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("webhook server shutdown", "error", err)
		}
	}()

	err := s.server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return err
	}
	<-done
	s.handler.Wait()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
