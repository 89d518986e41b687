package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Server bundles the store, the event bus, the websocket hub, and the AI
// responder behind one HTTP listener.
type Server struct {
	settings  Settings
	store     Store
	bus       *Bus
	hub       *Hub
	responder *Responder
	httpSrv   *http.Server
	log       zerolog.Logger
}

// New builds a server from settings. The context bounds background work
// (room readers, list notifications); cancel it to stop fanout.
func New(ctx context.Context, settings Settings) (*Server, error) {
	dsn, err := DSNForFile(settings.DBPath)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		return nil, err
	}
	bus, err := BuildBus(settings.Redis)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	hub, err := NewHub(ctx, store, bus)
	if err != nil {
		_ = bus.Close()
		_ = store.Close()
		return nil, err
	}

	s := &Server{
		settings:  settings,
		store:     store,
		bus:       bus,
		hub:       hub,
		responder: NewResponder(hub, settings.BotReply),
		log:       log.With().Str("component", "server").Logger(),
	}
	s.httpSrv = &http.Server{
		Addr:    settings.Addr,
		Handler: s.routes(),
	}
	return s, nil
}

// Handler exposes the routed handler, mainly for tests that want to serve it
// on an ephemeral listener.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Hub exposes the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is canceled or a SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := s.responder.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		s.log.Info().Str("addr", s.settings.Addr).Msg("listening")
		err := s.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve http")
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	err := eg.Wait()
	if closeErr := s.bus.Close(); closeErr != nil {
		s.log.Warn().Err(closeErr).Msg("bus close failed")
	}
	if closeErr := s.store.Close(); closeErr != nil {
		s.log.Warn().Err(closeErr).Msg("store close failed")
	}
	return err
}
