// Package server is the JSON HTTP API over the market services.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/ctmarket/internal/server/handler"
	"github.com/alanyoungcy/ctmarket/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Tokens     *handler.TokenHandler
	Conditions *handler.ConditionHandler
	Wrappers   *handler.WrapperHandler
	Oracle     *handler.OracleHandler
	Markets    *handler.MarketHandler
	Snapshots  *handler.SnapshotHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux and wires the middleware
// chain (logging, CORS).
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Fungible tokens.
	mux.HandleFunc("POST /api/tokens", handlers.Tokens.CreateToken)
	mux.HandleFunc("GET /api/tokens/{address}", handlers.Tokens.GetToken)
	mux.HandleFunc("GET /api/tokens/{address}/balance", handlers.Tokens.GetBalance)
	mux.HandleFunc("GET /api/tokens/{address}/allowance", handlers.Tokens.GetAllowance)
	mux.HandleFunc("POST /api/tokens/{address}/mint", handlers.Tokens.MintToken)
	mux.HandleFunc("POST /api/tokens/{address}/transfer", handlers.Tokens.TransferToken)
	mux.HandleFunc("POST /api/tokens/{address}/approve", handlers.Tokens.ApproveToken)

	// Conditions and the position algebra.
	mux.HandleFunc("POST /api/conditions", handlers.Conditions.PrepareCondition)
	mux.HandleFunc("GET /api/conditions", handlers.Conditions.ListConditions)
	mux.HandleFunc("GET /api/conditions/{id}", handlers.Conditions.GetCondition)
	mux.HandleFunc("GET /api/conditions/{id}/payouts", handlers.Conditions.GetPayouts)
	mux.HandleFunc("POST /api/positions/derive", handlers.Conditions.DeriveIDs)
	mux.HandleFunc("GET /api/positions/{id}/balance", handlers.Conditions.GetPositionBalance)
	mux.HandleFunc("POST /api/positions/split", handlers.Conditions.SplitPosition)
	mux.HandleFunc("POST /api/positions/merge", handlers.Conditions.MergePositions)
	mux.HandleFunc("POST /api/positions/redeem", handlers.Conditions.RedeemPositions)
	mux.HandleFunc("POST /api/positions/approve", handlers.Conditions.SetApproval)
	mux.HandleFunc("POST /api/positions/transfer", handlers.Conditions.TransferPosition)

	// Wrapped outcome tokens.
	mux.HandleFunc("POST /api/wrappers", handlers.Wrappers.RegisterWrapper)
	mux.HandleFunc("GET /api/wrappers/{address}", handlers.Wrappers.GetWrapper)
	mux.HandleFunc("GET /api/positions/{id}/wrapper", handlers.Wrappers.GetWrapperByPosition)
	mux.HandleFunc("POST /api/wrappers/mint", handlers.Wrappers.Mint)
	mux.HandleFunc("POST /api/wrappers/burn", handlers.Wrappers.Burn)

	// Resolution oracle.
	mux.HandleFunc("GET /api/oracle", handlers.Oracle.GetOracle)
	mux.HandleFunc("POST /api/oracle/questions", handlers.Oracle.RegisterQuestion)
	mux.HandleFunc("GET /api/oracle/questions", handlers.Oracle.ListQuestions)
	mux.HandleFunc("GET /api/oracle/questions/{id}", handlers.Oracle.GetQuestion)
	mux.HandleFunc("POST /api/oracle/questions/{id}/resolve", handlers.Oracle.ResolveQuestion)

	// Markets.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{address}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{address}/pool", handlers.Markets.GetPool)
	mux.HandleFunc("POST /api/markets/{address}/join", handlers.Markets.SplitJoin)
	mux.HandleFunc("POST /api/markets/{address}/exit", handlers.Markets.ExitMerge)
	mux.HandleFunc("POST /api/markets/{address}/redeem", handlers.Markets.Redeem)

	// Admin.
	mux.HandleFunc("POST /api/admin/snapshot", handlers.Snapshots.Export)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening. It blocks until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
