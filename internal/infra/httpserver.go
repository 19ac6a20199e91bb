package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const metricsDrainTimeout = 5 * time.Second

// HTTPServer serves one handler until its context ends, then drains
// in-flight requests before returning.
type HTTPServer struct {
	server       *http.Server
	drainTimeout time.Duration
	logger       Logger
}

// NewHTTPServer builds the api listener from the PORT and HTTP_* settings.
// Long-running storybook requests get HTTPIdleTimeout to finish on shutdown.
func NewHTTPServer(cfg *Config, handler http.Handler, logger Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		drainTimeout: cfg.HTTPIdleTimeout,
		logger:       logger,
	}
}

// NewMetricsServer builds a side listener, such as the worker's /metrics.
func NewMetricsServer(addr string, handler http.Handler, logger Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		drainTimeout: metricsDrainTimeout,
		logger:       logger,
	}
}

// Addr is the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Run listens on Addr and serves until ctx is done.
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. A shutdown that drains
// within the timeout returns nil.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("http server: listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("http server: drain incomplete, closing connections")
		_ = s.server.Close()
		return fmt.Errorf("http server: shutdown: %w", err)
	}
	<-errCh
	s.logger.Info().Msg("http server: stopped")
	return nil
}
