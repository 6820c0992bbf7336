package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mihaimyh/billingsync/internal/config"
	"github.com/mihaimyh/billingsync/pkg/billingsync"
	echorecv "github.com/mihaimyh/billingsync/receiver/echo"
	fiberrecv "github.com/mihaimyh/billingsync/receiver/fiber"
	ginrecv "github.com/mihaimyh/billingsync/receiver/gin"
)

const healthCheckTimeout = 2 * time.Second

// webhookPaths are the POST routes that accept events
var webhookPaths = []string{"/webhook", "/"}

// routes are the handlers every router mounts
type routes struct {
	receiver *billingsync.Receiver
	metrics  http.Handler
	health   http.Handler
}

// server is satisfied by the net/http and fiber servers
type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

func newServer(cfg *config.Config, r routes) (server, error) {
	if cfg.Router == config.RouterFiber {
		return &fiberServer{app: newFiberApp(cfg, r), addr: cfg.Addr()}, nil
	}

	handler, err := newHTTPHandler(cfg.Router, r)
	if err != nil {
		return nil, err
	}
	return &httpServer{srv: &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}}, nil
}

// newHTTPHandler builds the net/http handler for every router except fiber
func newHTTPHandler(router string, r routes) (http.Handler, error) {
	switch router {
	case config.RouterGin:
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.Use(gin.Recovery())
		ginrecv.Register(engine, ginrecv.Config{Receiver: r.receiver}, webhookPaths...)
		engine.GET("/healthz", gin.WrapH(r.health))
		engine.GET("/metrics", gin.WrapH(r.metrics))
		return engine, nil

	case config.RouterEcho:
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(echomiddleware.Recover())
		echorecv.Register(e, echorecv.Config{Receiver: r.receiver}, webhookPaths...)
		e.GET("/healthz", echo.WrapHandler(r.health))
		e.GET("/metrics", echo.WrapHandler(r.metrics))
		return e, nil

	case config.RouterChi:
		cr := chi.NewRouter()
		cr.Use(chimiddleware.Recoverer)
		for _, p := range webhookPaths {
			cr.Method(http.MethodPost, p, r.receiver)
		}
		cr.Method(http.MethodGet, "/healthz", r.health)
		cr.Method(http.MethodGet, "/metrics", r.metrics)
		return cr, nil

	case config.RouterMux:
		mr := mux.NewRouter()
		for _, p := range webhookPaths {
			mr.Handle(p, r.receiver).Methods(http.MethodPost)
		}
		mr.Handle("/healthz", r.health).Methods(http.MethodGet)
		mr.Handle("/metrics", r.metrics).Methods(http.MethodGet)
		return mr, nil

	case config.RouterHTTP:
		sm := http.NewServeMux()
		sm.Handle("POST /webhook", r.receiver)
		sm.Handle("POST /{$}", r.receiver)
		sm.Handle("GET /healthz", r.health)
		sm.Handle("GET /metrics", r.metrics)
		return sm, nil

	default:
		return nil, fmt.Errorf("unknown router %q", router)
	}
}

func newFiberApp(cfg *config.Config, r routes) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             int(r.receiver.MaxBodyBytes()),
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())
	fiberrecv.Register(app, fiberrecv.Config{Receiver: r.receiver}, webhookPaths...)
	app.Get("/healthz", adaptor.HTTPHandler(r.health))
	app.Get("/metrics", adaptor.HTTPHandler(r.metrics))
	return app
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// healthHandler reports 503 when any backend fails to ping
func healthHandler(pingers ...pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()

		for _, p := range pingers {
			if err := p.Ping(ctx); err != nil {
				http.Error(w, "unavailable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
}

type httpServer struct {
	srv *http.Server
}

func (s *httpServer) ListenAndServe() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *httpServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type fiberServer struct {
	app  *fiber.App
	addr string
}

func (s *fiberServer) ListenAndServe() error {
	if err := s.app.Listen(s.addr); err != nil {
		return fmt.Errorf("fiber server: %w", err)
	}
	return nil
}

func (s *fiberServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
