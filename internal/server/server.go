// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/contract"
	"github.com/atelierhq/atelier/internal/eventsync"
	"github.com/atelierhq/atelier/internal/health"
	"github.com/atelierhq/atelier/internal/logging"
	"github.com/atelierhq/atelier/internal/metrics"
	"github.com/atelierhq/atelier/internal/nft"
	"github.com/atelierhq/atelier/internal/notify"
	"github.com/atelierhq/atelier/internal/payment"
	"github.com/atelierhq/atelier/internal/ratelimit"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/internal/security"
	"github.com/atelierhq/atelier/internal/signing"
	"github.com/atelierhq/atelier/internal/traces"
	"github.com/atelierhq/atelier/internal/validation"
	"github.com/atelierhq/atelier/internal/wizard"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg             *config.Config
	signingSvc      *signing.Service
	paymentBridge   *payment.Bridge
	bundleStore     nft.BundleStore
	mintWatcher     *nft.Watcher
	contractStore   contract.Store
	contractService *contract.Service
	contractTimer   *contract.Timer
	notifyStore     notify.Store
	notifier        *notify.Dispatcher
	realtimeHub     *realtime.Hub
	syncAdapter     *eventsync.Adapter
	devSigner       *signing.LocalSigner
	rateLimiter     *ratelimit.Limiter
	checks          *health.Registry
	db              *sql.DB // nil if using in-memory
	router          *gin.Engine
	httpSrv         *http.Server
	logger          *slog.Logger
	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run
	tracesShutdown  func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIntents sets a custom payment intents client (for testing)
func WithIntents(client payment.IntentsClient) Option {
	return func(s *Server) {
		s.paymentBridge = payment.New(client, s.cfg.PaymentCurrency, s.cfg.OrderTTL)
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger/bridge)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.contractStore = contract.NewPostgresStore(db)
		s.notifyStore = notify.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.contractStore = contract.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Typed-data signing for the fixed EIP-712 domain
	s.signingSvc = signing.NewService(cfg.ChainID, cfg.VerifyingContract)

	// Payment bridge (stub intents when no PSP key is configured)
	if s.paymentBridge == nil {
		var intents payment.IntentsClient
		if cfg.PaymentSecretKey != "" {
			intents = payment.NewStripeClient(cfg.PaymentSecretKey)
			s.logger.Info("payment bridge enabled", "currency", cfg.PaymentCurrency)
		} else {
			intents = payment.StubIntents{}
			s.logger.Info("payment bridge in stub mode (no PSP key configured)")
		}
		s.paymentBridge = payment.New(intents, cfg.PaymentCurrency, cfg.OrderTTL,
			payment.WithLogger(logging.Component(s.logger, "payment")))
	}

	// NFT bundle storage on the local filesystem
	s.bundleStore = nft.NewFSStore(cfg.AssetDir, cfg.AssetBaseURL)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// Webhook notifications to both contract parties
	s.notifier = notify.NewDispatcher(s.notifyStore)

	// Lifecycle events fan out to the hub and the webhook dispatcher
	sinks := notify.Fanout{
		s.realtimeHub,
		notify.NewSink(s.notifier, logging.Component(s.logger, "notify")),
	}

	// Push sync adapter (optional, converges with the poll timer on Refresh)
	if cfg.EventSourceURL != "" {
		s.syncAdapter = eventsync.NewAdapter(
			eventsync.Config{URL: cfg.EventSourceURL},
			&refreshProxy{s},
			logging.Component(s.logger, "eventsync"),
		)
		sinks = append(sinks, &roomBinder{s})
		s.logger.Info("push event sync enabled", "source", cfg.EventSourceURL)
	}

	// Contract lifecycle engine
	s.contractService = contract.NewService(
		s.contractStore,
		s.signingSvc,
		s.paymentBridge,
		s.bundleStore,
		contract.WithEvents(sinks),
		contract.WithLogger(logging.Component(s.logger, "contract")),
	)

	// Mint watcher polls receipts for in-flight mint transactions
	watcher, err := nft.NewWatcher(nft.WatcherConfig{
		RPCURL:          cfg.RPCURL,
		ExplorerBaseURL: cfg.ExplorerBaseURL,
		PollInterval:    cfg.MintPollInterval,
	}, s.contractService, logging.Component(s.logger, "nft"))
	if err != nil {
		s.logger.Warn("failed to create mint watcher, mint observation disabled", "error", err)
	} else {
		s.mintWatcher = watcher
	}

	// Poll half of the refresh duality
	var mints contract.MintChecker
	if s.mintWatcher != nil {
		mints = s.mintWatcher
	}
	s.contractTimer = contract.NewTimer(s.contractService, s.contractStore, mints,
		cfg.RefreshPollInterval, logging.Component(s.logger, "timer"))

	// Dev signing endpoint (development only, never in production)
	if cfg.IsDevelopment() && cfg.DevSignerKey != "" {
		signer, err := signing.NewLocalSigner(cfg.DevSignerKey)
		if err != nil {
			return nil, fmt.Errorf("invalid dev signer key: %w", err)
		}
		s.devSigner = signer
		s.logger.Info("dev signing endpoint enabled", "wallet", signer.Address())
	}

	// Health checks
	s.checks = health.NewRegistry()
	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	s.checks.Register("bundle_store", func(ctx context.Context) health.Status {
		if _, err := os.Stat(cfg.AssetDir); err != nil {
			return health.Status{Name: "bundle_store", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "bundle_store", Healthy: true}
	})

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Event sink adapters
// -----------------------------------------------------------------------------

// refreshProxy defers to the contract service built after the adapter.
type refreshProxy struct {
	s *Server
}

func (p *refreshProxy) Refresh(ctx context.Context, contractID, trigger string) error {
	return p.s.contractService.Refresh(ctx, contractID, trigger)
}

// roomBinder keeps the push adapter's room-to-contract map in step with the
// contract lifecycle. The chat room for a contract is its application thread.
type roomBinder struct {
	s *Server
}

func (b *roomBinder) ContractEvent(_ context.Context, _ string, c *contract.Contract) {
	if b.s.syncAdapter == nil || c.ApplicationID == "" {
		return
	}
	if c.IsTerminal() {
		b.s.syncAdapter.UnwatchRoom(c.ApplicationID)
		return
	}
	b.s.syncAdapter.WatchRoom(c.ApplicationID, c.ID)
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit. Bundle uploads carry three images, so the cap is
	// larger than for plain JSON endpoints.
	s.router.Use(validation.RequestSizeMiddleware(3*nft.MaxVariantSize + validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time contract snapshots
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// Uploaded bundle images
	if strings.HasPrefix(s.cfg.AssetBaseURL, "/") {
		s.router.Static(s.cfg.AssetBaseURL, s.cfg.AssetDir)
	}

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	contractHandler := contract.NewHandler(s.contractService, s.cfg.AdminSecret)
	contractHandler.RegisterRoutes(v1)

	bundleHandler := nft.NewHandler(s.bundleStore)
	bundleHandler.RegisterRoutes(v1)

	notifyHandler := notify.NewHandler(s.notifyStore)
	notifyHandler.RegisterRoutes(v1)

	// PSP payment confirmation callback
	v1.POST("/payments/webhook", s.paymentWebhookHandler)

	// Realtime hub stats
	v1.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// Dev signing endpoint (only registered in development with a key)
	if s.devSigner != nil {
		v1.POST("/dev/sign", s.devSignHandler)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// paymentWebhookHandler handles POST /v1/payments/webhook. The PSP calls it
// when an order settles; the payload is authenticated with an HMAC over the
// raw body using the shared webhook secret.
func (s *Server) paymentWebhookHandler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, validation.MaxRequestSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Failed to read request body",
		})
		return
	}

	if s.cfg.WebhookSecret != "" {
		sig := c.GetHeader("X-Payment-Signature")
		mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if sig == "" || !hmac.Equal([]byte(sig), []byte(expected)) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_signature",
				"message": "Webhook signature verification failed",
			})
			return
		}
	}

	var payload struct {
		ContractID string `json:"contractId"`
		OrderID    string `json:"orderId"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.ContractID == "" || payload.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "contractId and orderId are required",
		})
		return
	}

	if payload.Status != "succeeded" {
		// Failed orders stay in PAYMENT_PENDING; the leader retries from there.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	updated, err := s.contractService.ConfirmPayment(c.Request.Context(), payload.ContractID, payload.OrderID)
	if err != nil {
		s.confirmError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "contract": updated})
}

// confirmError maps contract engine errors for the server-level handlers.
func (s *Server) confirmError(c *gin.Context, err error) {
	var stale *contract.StaleStateError
	switch {
	case errors.Is(err, contract.ErrContractNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Contract not found",
		})
	case errors.Is(err, contract.ErrOrderMismatch):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "order_mismatch",
			"message": "Order does not match the contract's pending payment",
		})
	case errors.As(err, &stale):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "stale_state",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error("payment confirmation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
	}
}

// devSignHandler handles POST /v1/dev/sign. It signs the contract's issued
// terms with the configured local key so flows can be exercised without a
// browser wallet.
func (s *Server) devSignHandler(c *gin.Context) {
	var req struct {
		ContractID string `json:"contractId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "contractId is required",
		})
		return
	}

	terms, hash, err := s.contractService.SignatureData(c.Request.Context(), req.ContractID)
	if err != nil {
		s.confirmError(c, err)
		return
	}

	wallet := s.devSigner.Address()
	var role wizard.Role
	switch {
	case strings.EqualFold(wallet, terms.Artist):
		role = wizard.RoleArtist
	case strings.EqualFold(wallet, terms.Leader):
		role = wizard.RoleLeader
	default:
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "not_a_party",
			"message": "Dev signer wallet is not a party to this contract",
		})
		return
	}

	// Drive the same ordered flow a wallet-connected client goes through,
	// with the dev key standing in for the wallet.
	flow := wizard.New(role, wallet, wizard.VerifierFunc(func(sig string) error {
		return s.signingSvc.Verify(terms, sig, wallet, hash)
	}))

	sig, err := s.devSigner.Sign(s.signingSvc, terms)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to sign terms",
		})
		return
	}

	if err := runSigningFlow(flow, wallet, hash, sig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":    wallet,
		"role":      string(role),
		"step":      flow.Step().String(),
		"typedHash": hash,
		"signature": sig,
	})
}

// runSigningFlow walks a wizard controller through every step in order.
func runSigningFlow(flow *wizard.Controller, wallet, typedHash, signature string) error {
	if err := flow.OnWalletConnected(wallet); err != nil {
		return err
	}
	if err := flow.OnDataPrepared(typedHash); err != nil {
		return err
	}
	if err := flow.RequestSignature(); err != nil {
		return err
	}
	if err := flow.OnSignerResponse(signature); err != nil {
		return err
	}
	return flow.Finish()
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Atelier API",
		"version":     "0.1.0",
		"description": "Contract lifecycle engine for leader/artist agreements",
		"chainId":     s.cfg.ChainID,
		"endpoints": gin.H{
			"contracts": "/v1/contracts",
			"webhooks":  "/v1/users/:userId/webhooks",
			"websocket": "/ws",
			"health":    "/health",
			"metrics":   "/metrics",
		},
	})
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (optional)
	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("failed to initialize tracing", "error", err)
		} else {
			s.tracesShutdown = shutdown
		}
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"chainId", s.cfg.ChainID,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start refresh poll timer
	go s.contractTimer.Start(runCtx)

	// Start mint watcher
	if s.mintWatcher != nil {
		s.mintWatcher.Start(runCtx)
	}

	// Start push event sync
	if s.syncAdapter != nil {
		s.syncAdapter.Start(runCtx)
	}

	// Sample DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timer, watcher)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop refresh timer
	s.contractTimer.Stop()
	s.logger.Info("refresh timer stopped")

	// Stop push event sync
	if s.syncAdapter != nil {
		s.syncAdapter.Stop()
		s.logger.Info("event sync stopped")
	}

	// Stop mint watcher
	if s.mintWatcher != nil {
		s.mintWatcher.Stop()
		s.logger.Info("mint watcher stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
