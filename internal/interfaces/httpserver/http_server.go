package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threadline/internal/config"
	"threadline/internal/domain/auth"
	"threadline/internal/domain/hub"
	"threadline/internal/domain/ratelimit"
	"threadline/internal/infrastructure"
	"threadline/internal/infrastructure/database"
	middleware "threadline/internal/interfaces/httpserver/middlewares"
	"threadline/internal/interfaces/httpserver/routes/api"
	authroute "threadline/internal/interfaces/httpserver/routes/auth"
)

// streamPrefix is exempt from CSRF: SSE subscriptions are GETs and never mutate.
const streamPrefix = "/stream/"

type HTTPServer struct {
	engine    *gin.Engine
	infra     *infrastructure.Infrastructure
	apiRoute  *api.APIRoute
	authRoute *authroute.AuthRoute
	hub       *hub.Hub
	config    *config.Config
}

func NewHttpServer(
	apiRoute *api.APIRoute,
	authRoute *authroute.AuthRoute,
	infra *infrastructure.Infrastructure,
	authService *auth.Service,
	cookies *middleware.Cookies,
	limits *ratelimit.Engine,
	streams *hub.Hub,
	cfg *config.Config,
) (*HTTPServer, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	if cfg.TrustForwardedFor {
		engine.ForwardedByClientIP = true
	} else if err := engine.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	server := HTTPServer{
		engine:    engine,
		infra:     infra,
		apiRoute:  apiRoute,
		authRoute: authRoute,
		hub:       streams,
		config:    cfg,
	}
	log := infra.Logger

	server.engine.Use(middleware.Recovery(log))
	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.SecurityHeaders(cfg.ContentSecurityPolicy, cfg.HSTSEnabled, cfg.HSTSMaxAge))
	server.engine.Use(middleware.TracingMiddleware(cfg.ServiceName))
	server.engine.Use(middleware.LoggingMiddleware(log))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins, cfg.CSRFHeaderName))

	server.engine.GET("/healthz", api.GetHealthz)
	server.engine.GET("/readyz", api.GetReadyz(server.readinessChecks()))
	server.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Everything below resolves the session cookie and is rate limited.
	app := server.engine.Group("/")
	app.Use(
		middleware.Session(authService, cookies, log),
		middleware.RateLimitMiddleware(limits, log),
		middleware.CSRF(cookies, log, streamPrefix),
	)
	server.authRoute.RegisterRouter(app)
	server.apiRoute.RegisterRouter(app)
	return &server, nil
}

func (httpServer *HTTPServer) readinessChecks() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{}
	if db := httpServer.infra.DB; db != nil {
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, db) }
	}
	if redis := httpServer.infra.Redis; redis != nil {
		checks["redis"] = redis.HealthCheck
	}
	return checks
}

// Handler exposes the router for tests.
func (httpServer *HTTPServer) Handler() http.Handler {
	return httpServer.engine
}

// Run serves until ctx is cancelled, then closes open streams and drains in-flight requests.
func (httpServer *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpServer.config.HTTPPort),
		Handler:           httpServer.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		httpServer.infra.Logger.Info().Int("port", httpServer.config.HTTPPort).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	httpServer.hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpServer.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	httpServer.infra.Logger.Info().Msg("http server stopped")
	return nil
}
