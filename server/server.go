package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buckneer/beastie-club/auth"
	"github.com/buckneer/beastie-club/config"
	"github.com/buckneer/beastie-club/middleware"
	"github.com/buckneer/beastie-club/pkg/eligibility"
	"github.com/buckneer/beastie-club/pkg/providers"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// App represents the prize wheel service application
type App struct {
	engine             *gin.Engine
	config             *config.Config
	logger             zerolog.Logger
	httpServer         *http.Server
	onShutdown         []func()
	spinService        *SpinService
	eligibilityService *eligibility.Service
	wheelHandler       *WheelHandler
	prizeHandler       *PrizeHandler
	eligibilityHandler *EligibilityHandler
}

// Options holds server configuration options
type Options struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Table        *wheel.Table
	Selector     *wheel.Selector
	GuestStore   providers.GuestStore
	AccountStore providers.AccountStore
	Auditor      providers.SpinAuditor
	Notifier     providers.AdminNotifier
}

// Router is an alias for gin.Engine for convenience
type Router = gin.Engine

// New creates a new prize wheel application
func New(opts Options) *App {
	// Set Gin mode
	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	app := &App{
		engine: engine,
		config: opts.Config,
		logger: opts.Logger,
	}

	cooldown := wheel.NewCooldownPolicy(opts.Config.Wheel.CooldownWindow)

	app.spinService = NewSpinService(
		opts.Table,
		opts.Selector,
		cooldown,
		opts.GuestStore,
		opts.AccountStore,
		opts.Auditor,
		opts.Notifier,
		opts.Logger,
	)

	app.eligibilityService = eligibility.NewService(eligibility.ServiceConfig{
		Evaluator:    app.spinService,
		Logger:       opts.Logger,
		TickInterval: opts.Config.Wheel.EligibilityTick,
	})

	// Create handlers
	app.wheelHandler = NewWheelHandler(app)
	app.prizeHandler = NewPrizeHandler(app)
	app.eligibilityHandler = NewEligibilityHandler(app, app.eligibilityService)

	return app
}

// RedemptionURL builds the admin-facing redemption link for a code
func (a *App) RedemptionURL(code string) string {
	return fmt.Sprintf("%s/%s", a.config.Wheel.RedemptionBaseURL, code)
}

// UseCommonMiddlewares adds common middlewares to the application
func (a *App) UseCommonMiddlewares() {
	// Recovery middleware (must be first)
	a.engine.Use(middleware.Recovery(a.logger))

	// Trace ID middleware
	a.engine.Use(middleware.TraceID())

	// Logging middleware
	a.engine.Use(middleware.Logging(a.logger))

	// CORS middleware if enabled
	if a.config.Server.EnableCORS {
		a.engine.Use(middleware.CORS())
	}
}

// UseMiddleware adds a custom middleware
func (a *App) UseMiddleware(m gin.HandlerFunc) {
	a.engine.Use(m)
}

// SpinService returns the spin service
func (a *App) SpinService() *SpinService {
	return a.spinService
}

// EligibilityService returns the eligibility streaming service
func (a *App) EligibilityService() *eligibility.Service {
	return a.eligibilityService
}

// RegisterHealthCheck adds health check endpoints
func (a *App) RegisterHealthCheck() {
	a.engine.GET("/health", a.healthCheck)
	a.engine.GET("/api/health", a.healthCheck)
}

func (a *App) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   a.config.Environment,
	})
}

// RegisterWheelRoutes registers the wheel API routes
//
// Flow: HTTP Request -> wheelRoutes -> WheelHandler -> SpinService -> stores
//
// Routes registered:
//   - GET  /api/wheel/eligibility  -> WheelHandler.GetEligibility
//   - POST /api/wheel/spin         -> WheelHandler.Spin
//   - POST /api/wheel/transfer     -> WheelHandler.Transfer
//   - GET  /api/wheel/updates      -> EligibilityHandler.StreamUpdates (SSE)
//   - GET  /api/wheel/updates/ws   -> EligibilityHandler.StreamUpdatesWebSocket (WebSocket)
//   - GET  /api/prizes/:code       -> PrizeHandler.GetPrize
//   - GET  /api/prizes/:code/qr    -> PrizeHandler.GetPrizeQR
func (a *App) RegisterWheelRoutes() {
	identityMW := auth.IdentityMiddleware(a.config.JWT.Secret, a.logger)

	wheelRoutes := a.engine.Group("/api/wheel")
	wheelRoutes.Use(identityMW)
	{
		wheelRoutes.GET("/eligibility", a.wheelHandler.GetEligibility)
		wheelRoutes.POST("/spin", a.wheelHandler.Spin)
		wheelRoutes.POST("/transfer", a.wheelHandler.Transfer)
		wheelRoutes.GET("/updates", a.eligibilityHandler.StreamUpdates)
		wheelRoutes.GET("/updates/ws", a.eligibilityHandler.StreamUpdatesWebSocket)
	}

	// Prize lookups are unauthenticated: the admin scanner follows the QR
	// link without a player token.
	prizeRoutes := a.engine.Group("/api/prizes")
	{
		prizeRoutes.GET("/:code", a.prizeHandler.GetPrize)
		prizeRoutes.GET("/:code/qr", a.prizeHandler.GetPrizeQR)
	}

	a.logger.Info().Msg("Wheel routes registered: /api/wheel, /api/prizes")
}

// Router returns the Gin engine for custom route registration
func (a *App) Router() *gin.Engine {
	return a.engine
}

// Group creates a route group
func (a *App) Group(path string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return a.engine.Group(path, handlers...)
}

// RegisterRoutes registers custom routes using a callback
func (a *App) RegisterRoutes(fn func(*gin.Engine)) {
	fn(a.engine)
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run starts the HTTP server
func (a *App) Run() error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	return a.waitForShutdown()
}

// RunWithContext starts the HTTP server with context
func (a *App) RunWithContext(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.config.Server.Port)

	a.httpServer = &http.Server{
		Addr:         addr,
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("Starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return a.shutdown()
	case err := <-errChan:
		return err
	}
}

func (a *App) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the eligibility tick loop before the HTTP listener so no
	// updates are published to closing connections.
	if a.eligibilityService != nil {
		a.eligibilityService.Stop()
	}

	// Call registered shutdown handlers
	for _, fn := range a.onShutdown {
		fn()
	}

	// Shutdown HTTP server
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error during server shutdown")
		return err
	}

	a.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the application logger
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// WheelHandler returns the built-in wheel handler
func (a *App) WheelHandler() *WheelHandler {
	return a.wheelHandler
}
