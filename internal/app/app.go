// Package app owns the application lifecycle: it wires the engine, external
// dependencies, services and HTTP API, then runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/ctmarket/internal/config"
	"github.com/alanyoungcy/ctmarket/internal/engine"
	"github.com/alanyoungcy/ctmarket/internal/server"
	"github.com/alanyoungcy/ctmarket/internal/server/handler"
	"github.com/alanyoungcy/ctmarket/internal/service"
	"github.com/alanyoungcy/ctmarket/internal/state"
)

// App is the root application object. It owns the configuration, logger and
// the cleanup stack run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires everything and blocks until the context is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Core engine over one shared transactional store.
	store := state.New()
	bank := engine.NewBank(store)
	ledger := engine.NewLedger(store, bank)
	transmuter := engine.NewTransmuter(store, bank, ledger)
	oracle := engine.NewOracle(store, ledger, a.cfg.Market.Controller())
	vault := engine.NewVault(store, bank)
	factory := engine.NewMarketFactory(store, bank, ledger, transmuter, vault)

	// The default collateral token, owned by the controller so it can mint.
	collateral, err := bank.CreateToken(
		a.cfg.Market.CollateralName,
		a.cfg.Market.CollateralSymbol,
		uint8(a.cfg.Market.CollateralDecimals),
		a.cfg.Market.Controller(),
	)
	if err != nil {
		return fmt.Errorf("app: create collateral token: %w", err)
	}
	a.logger.InfoContext(ctx, "collateral token created",
		slog.String("address", collateral.Hex()),
		slog.String("symbol", a.cfg.Market.CollateralSymbol),
	)

	defaultFee, err := uint256.FromDecimal(a.cfg.Market.DefaultSwapFee)
	if err != nil {
		return fmt.Errorf("app: parse default_swap_fee: %w", err)
	}

	// Services.
	tokens := service.NewTokenService(bank, deps.AuditStore, a.logger)
	conditions := service.NewConditionService(ledger, deps.ConditionStore, deps.PayoutCache, deps.AuditStore, a.logger)
	wrappers := service.NewWrapperService(transmuter, deps.AuditStore, a.logger)
	oracleSvc := service.NewOracleService(oracle, ledger, deps.QuestionStore, deps.ConditionStore, deps.PayoutCache, deps.AuditStore, deps.Notifier, a.logger)
	markets := service.NewMarketService(factory, deps.MarketStore, deps.MarketCache, deps.AuditStore, deps.Notifier, defaultFee, a.logger)

	var snapshots *service.SnapshotService
	if deps.BlobWriter != nil {
		snapshots = service.NewSnapshotService(ledger, oracle, factory, deps.BlobWriter, deps.Notifier, a.cfg.Snapshot.Prefix, a.logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Tokens:     handler.NewTokenHandler(tokens, a.logger),
			Conditions: handler.NewConditionHandler(conditions, a.logger),
			Wrappers:   handler.NewWrapperHandler(wrappers, a.logger),
			Oracle:     handler.NewOracleHandler(oracleSvc, a.logger),
			Markets:    handler.NewMarketHandler(markets, a.logger),
			Snapshots:  newSnapshotHandler(snapshots, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, handlers, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if snapshots != nil && a.cfg.Snapshot.Interval.Duration > 0 {
		g.Go(func() error {
			return snapshots.Run(ctx, a.cfg.Snapshot.Interval.Duration)
		})
	}

	// With the server disabled there is nothing to keep the group alive.
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	return g.Wait()
}

// newSnapshotHandler tolerates a nil snapshot service so the endpoint can
// answer 503 instead of panicking when snapshots are not configured.
func newSnapshotHandler(snapshots *service.SnapshotService, logger *slog.Logger) *handler.SnapshotHandler {
	if snapshots == nil {
		return handler.NewSnapshotHandler(nil, logger)
	}
	return handler.NewSnapshotHandler(snapshots, logger)
}

// Close tears down resources in reverse registration order. Safe to call more
// than once.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
