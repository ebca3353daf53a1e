// Package api provides the HTTP API server for the crowdsale engine.
package api

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/crowdsale-engine/internal/models"
	"github.com/crowdsale-engine/internal/sale"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// PurchaseEngineInterface defines the mutating operations the server routes
// into the engine.
type PurchaseEngineInterface interface {
	CreateSale(ctx context.Context, cfg *models.SaleConfig) error
	Initialize(ctx context.Context, saleID string) error
	Finalize(ctx context.Context, saleID string) error
	SetGlobalMinimum(ctx context.Context, saleID string, units *big.Int) error
	SetWhitelistEntry(ctx context.Context, saleID string, addr common.Address, entry *models.WhitelistEntry) error
	Purchase(ctx context.Context, saleID string, buyer common.Address, paymentWei *big.Int, now uint64) (*models.PurchaseReceipt, error)
}

// StatusServiceInterface defines the read-only projections.
type StatusServiceInterface interface {
	GetCrowdsaleInfo(ctx context.Context, saleID string) (*sale.CrowdsaleInfo, error)
	GetTokenInfo(ctx context.Context, saleID string) (*sale.TokenInfo, error)
	GetCrowdsaleStatus(ctx context.Context, saleID string, now uint64) (*sale.CrowdsaleStatus, error)
	GetWhitelistStatus(ctx context.Context, saleID string, addr common.Address) (*sale.WhitelistStatus, error)
	GetCrowdsaleWhitelist(ctx context.Context, saleID string) ([]*sale.WhitelistStatus, error)
	BalanceOf(ctx context.Context, saleID string, addr common.Address) (*big.Int, error)
	TotalSupply(ctx context.Context, saleID string) (*big.Int, error)
	GetTokensSold(ctx context.Context, saleID string) (*big.Int, error)
}

// StatusCacheInterface caches the time-dependent status projection.
type StatusCacheInterface interface {
	Get(ctx context.Context, saleID string) (*sale.CrowdsaleStatus, error)
	Set(ctx context.Context, saleID string, status *sale.CrowdsaleStatus) error
	Invalidate(ctx context.Context, saleID string) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	engine      PurchaseEngineInterface
	status      StatusServiceInterface
	statusCache StatusCacheInterface // nil disables caching
	clock       sale.Clock
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	engine PurchaseEngineInterface,
	status StatusServiceInterface,
	statusCache StatusCacheInterface,
	clock sale.Clock,
) *Server {
	if clock == nil {
		clock = sale.SystemClock{}
	}
	s := &Server{
		router:      mux.NewRouter(),
		engine:      engine,
		status:      status,
		statusCache: statusCache,
		clock:       clock,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Middleware order matters
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/sales", s.handleCreateSale).Methods(http.MethodPost)
	v1.HandleFunc("/sales/{saleID}/initialize", s.handleInitialize).Methods(http.MethodPost)
	v1.HandleFunc("/sales/{saleID}/finalize", s.handleFinalize).Methods(http.MethodPost)
	v1.HandleFunc("/sales/{saleID}/purchase", s.handlePurchase).Methods(http.MethodPost)
	v1.HandleFunc("/sales/{saleID}/minimum", s.handleSetGlobalMinimum).Methods(http.MethodPut)
	v1.HandleFunc("/sales/{saleID}/whitelist/{address}", s.handleSetWhitelistEntry).Methods(http.MethodPut)

	v1.HandleFunc("/sales/{saleID}/info", s.handleGetInfo).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/token", s.handleGetTokenInfo).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/status", s.handleGetStatus).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/tokens-sold", s.handleGetTokensSold).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/total-supply", s.handleGetTotalSupply).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/whitelist", s.handleGetWhitelist).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/whitelist/{address}", s.handleGetWhitelistStatus).Methods(http.MethodGet)
	v1.HandleFunc("/sales/{saleID}/balances/{address}", s.handleGetBalance).Methods(http.MethodGet)
}

// Router returns the configured router; tests serve requests through it.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start begins listening for requests.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
