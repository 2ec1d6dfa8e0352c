// README: API server: bundles handlers behind one gin engine with graceful
// shutdown.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/http/handlers"
	"tripguard/internal/infra"
	"tripguard/internal/modules/session"
)

type ServerDeps struct {
	Trips    *handlers.TripHandler
	Safety   *handlers.SafetyHandler
	Admin    *handlers.AdminHandler
	Sessions *session.Registry
	Limits   handlers.SpeedLimits
	// Verifier guards every /api route. Nil disables auth for local runs.
	Verifier infra.TokenVerifier
	Log      *logrus.Entry
}

type Server struct {
	trips    *handlers.TripHandler
	safety   *handlers.SafetyHandler
	admin    *handlers.AdminHandler
	sessions *session.Registry
	limits   handlers.SpeedLimits
	verifier infra.TokenVerifier
	log      *logrus.Entry
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		trips:    deps.Trips,
		safety:   deps.Safety,
		admin:    deps.Admin,
		sessions: deps.Sessions,
		limits:   deps.Limits,
		verifier: deps.Verifier,
		log:      deps.Log,
	}
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.WithField("addr", addr).Info("http server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}
