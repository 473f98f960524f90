package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"toolbroker/internal/admin"
	"toolbroker/internal/api"
	"toolbroker/internal/auth"
	"toolbroker/internal/broker"
	"toolbroker/internal/config"
	"toolbroker/internal/db"
	"toolbroker/internal/hostrouter"
	"toolbroker/internal/logger"
	"toolbroker/internal/model"
	"toolbroker/internal/proxy"
	"toolbroker/internal/ratelimit"
	"toolbroker/internal/scheduler"
	"toolbroker/internal/sessionlock"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(requestIDHeader),
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// requestID tags each request with an ID, reusing the caller's if present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// components are the long-lived pieces the server is assembled from.
type components struct {
	handler   http.Handler
	limiter   *ratelimit.Limiter
	transport *http.Transport
}

// buildHandler wires the broker's routes behind the host router.
func buildHandler(cfg *config.Config, log *slog.Logger, dbService db.Service) (*components, error) {
	transport := proxy.NewTransport(cfg.Proxy.Timeout)

	gateway, err := proxy.NewGateway(cfg.Proxy, transport, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	var marketing, app http.Handler
	if cfg.Hosts.MarketingOrigin != "" {
		if marketing, err = proxy.NewPassthrough("marketing", cfg.Hosts.MarketingOrigin, transport, log); err != nil {
			return nil, err
		}
	}
	if cfg.Hosts.AppOrigin != "" {
		if app, err = proxy.NewPassthrough("app", cfg.Hosts.AppOrigin, transport, log); err != nil {
			return nil, err
		}
	}

	codes := broker.NewCodeStore(dbService, cfg.Broker.CodeTTL, log)
	var discovery broker.Redeemer
	if len(cfg.Broker.DiscoveryOrigins) > 0 {
		discovery = broker.NewDiscovery(cfg.Broker.DiscoveryOrigins, cfg.Broker.DiscoveryTimeout, &http.Client{Transport: transport}, log)
	}
	resolver := broker.NewResolver(codes, dbService, discovery, log)
	locks := sessionlock.NewRegistry(dbService, model.TrendTrackProfile, cfg.TrendTrack.CheckoutDuration, log)
	signer := auth.NewSessionSigner(cfg.Admin.SessionSecret, cfg.Admin.Email)
	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	// Create a Gin router
	router := gin.New()
	// ClientIP keys the rate limiter, so forwarded headers count only from known proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted_proxies: %w", err)
	}
	router.Use(customRecovery(log), requestID())

	// If debug mode is enabled, add the logger middleware
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	api.SetupRoutes(router, api.NewHandler(codes, resolver, locks, signer, cfg.Admin, log), dbService, limiter)
	admin.SetupRoutes(router, dbService, locks, signer, app, log)

	// Everything else in the broker's namespaces goes to the upstream routes.
	router.NoRoute(gin.WrapH(gateway))

	for _, rt := range gateway.Routes() {
		log.Info("Gateway route registered", "name", rt.Name, "prefix", rt.Prefix)
	}

	return &components{
		handler:   hostrouter.New(cfg.Hosts, marketing, app, router, log),
		limiter:   limiter,
		transport: transport,
	}, nil
}

func setupAndRunServer(cfg *config.Config, log *slog.Logger, dbService db.Service) error {
	built, err := buildHandler(cfg, log, dbService)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(dbService, built.limiter, cfg.Scheduler, log)
	if err := sched.Start(); err != nil {
		return err
	}
	log.Info("Scheduler started", "schedule", cfg.Scheduler.PurgeSchedule)

	// Create and start the main server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           built.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		sched.Stop()
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sched.Stop()
	built.transport.CloseIdleConnections()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exiting")
	return nil
}

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("TOOLBROKER_CONFIG"); p != "" {
		configPath = p
	}

	// Load configuration
	cfg, warnings, err := config.LoadConfig(configPath)
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	for _, w := range warnings {
		log.Warn(w)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	dbService, err := db.NewService(cfg.Database)
	if err != nil {
		log.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	log.Info("Database initialized", "type", cfg.Database.Type)

	if err := setupAndRunServer(cfg, log, dbService); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}
