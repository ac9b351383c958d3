package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-be/internal/cart"
	"storefront-be/internal/config"
	"storefront-be/internal/db"
	"storefront-be/internal/httpx"
	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/product"
	"storefront-be/internal/refund"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database := initDBFunc(cfg)
	defer database.Close()

	router, err := newServer(ctx, cfg, database)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server started", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServer builds every store and service on top of database and returns
// the routed handler. ctx bounds background work such as limiter eviction.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (http.Handler, error) {
	mode, err := db.ParseTxMode(cfg.DBTxMode)
	if err != nil {
		return nil, err
	}
	if mode == db.TxModeSequential {
		logger.L().Warn("running without multi-statement transactions",
			zap.Bool("stock_fallback_compensate", cfg.StockFallbackCompensate),
		)
	}

	reg := metrics.NewRegistry()
	runner := db.NewRunner(database, mode)

	productRepo := product.NewRepository(database)
	cartRepo := cart.NewRepository(database)
	orderRepo := order.NewRepository(database)
	refundRepo := refund.NewRepository(database)
	paymentLogs := payment.NewLogRepository(database)

	resolver := order.NewSnapshotResolver(cartRepo, productRepo)
	coordinator := order.NewCoordinator(runner, productRepo, orderRepo, cartRepo,
		order.WithFallbackCompensation(cfg.StockFallbackCompensate),
		order.WithMetrics(reg),
	)
	compensator := order.NewCompensator(runner, orderRepo, productRepo)

	gateway := payment.NewKhaltiGateway(payment.KhaltiConfig{
		SecretKey:  cfg.KhaltiSecretKey,
		BaseURL:    cfg.KhaltiBaseURL,
		ReturnURL:  cfg.KhaltiReturnURL,
		WebsiteURL: cfg.KhaltiWebsiteURL,
		Timeout:    cfg.GatewayTimeout,
	}, reg)

	orderHandler := order.NewHandler(order.NewService(orderRepo, resolver, coordinator, compensator))
	paymentHandler := payment.NewHandler(payment.NewService(orderRepo, gateway, paymentLogs))
	refundHandler := refund.NewHandler(refund.NewService(refundRepo, orderRepo))

	return setupRouter(routerDeps{
		jwtSecret: []byte(cfg.JWTSecret),
		limiter:   middleware.NewRateLimiter(ctx),
		metrics:   reg,
		orders:    orderHandler,
		payments:  paymentHandler,
		refunds:   refundHandler,
	}), nil
}

type routerDeps struct {
	jwtSecret []byte
	limiter   *middleware.RateLimiter
	metrics   *metrics.Registry
	orders    *order.Handler
	payments  *payment.Handler
	refunds   *refund.Handler
}

func setupRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.AuthMiddleware(d.jwtSecret))
	r.Use(d.limiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Route("/orders", d.orders.Routes)
		r.Route("/payments", func(r chi.Router) {
			r.Route("/khalti", d.payments.Routes)
			r.Route("/refunds", d.refunds.Routes)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Route("/orders", d.orders.AdminRoutes)
		r.Route("/payments", func(r chi.Router) {
			d.payments.AdminRoutes(r)
			r.Route("/refunds", d.refunds.AdminRoutes)
		})
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			httpx.WriteJSON(w, http.StatusOK, d.metrics.Snapshot())
		})
	})

	return r
}
