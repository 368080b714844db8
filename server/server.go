package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pinwheel-io/pinwheel/service"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
}

// Server runs the HTTP server of the daemon: health, metrics, pprof
// and the pin control API.
type Server struct {
	Config
	log     zerolog.Logger
	runtime service.Service
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, runtime service.Service) (*Server, error) {
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		runtime: runtime,
	}, nil
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed to listen on address %s", httpAddr)
	}

	httpSrv := http.Server{
		Handler: s.newRouter(),
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to serve HTTP server")
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	// Wait until context closed
	<-ctx.Done()

	log.Info().Msg("Closing server")
	httpSrv.Shutdown(context.Background())

	return nil
}

// newRouter builds the echo router of the daemon.
func (s *Server) newRouter() *echo.Echo {
	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.GET("/healthz", s.handleHealth)
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))

	apiV1 := httpRouter.Group("/api/v1")
	apiV1.GET("/pins", s.handleListPins)
	apiV1.POST("/monitors/:pin", s.handleAttachMonitor)
	apiV1.DELETE("/monitors/:pin", s.handleDetachMonitor)
	apiV1.POST("/pwm/:pin", s.handleStartPWM)
	apiV1.PUT("/pwm/:pin", s.handleUpdatePWM)
	apiV1.DELETE("/pwm/:pin", s.handleStopPWM)
	return httpRouter
}
