package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ficore/backend/internal/config"
	"github.com/ficore/backend/internal/database"
	"github.com/ficore/backend/internal/handlers"
	"github.com/ficore/backend/internal/ledger"
	"github.com/ficore/backend/internal/logging"
	mW "github.com/ficore/backend/internal/middleware"
	"github.com/ficore/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Money renders as JSON numbers rather than quoted strings.
	decimal.MarshalJSONWithoutQuotes = true

	ctx := context.Background()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(cfg.Database.DSN(), logging.Component(logger, "migrate")); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.Open(ctx, cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := database.NewRedis(ctx, cfg.Redis, logging.Component(logger, "redis"))
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerStore := ledger.NewPostgresStore(db)
	creditLedger := ledger.NewService(ledgerStore, logging.Component(logger, "ledger"),
		ledger.WithAllowedCosts(cfg.Credits.AllowedCosts...),
		ledger.WithTxTimeout(cfg.Credits.TxTimeout),
	)

	authService := services.NewAuthService(db, redisClient, cfg, logging.Component(logger, "auth"))
	billService := services.NewBillService(db, creditLedger, logging.Component(logger, "bills"))
	budgetService := services.NewBudgetService(db, creditLedger, logging.Component(logger, "budgets"))
	shoppingService := services.NewShoppingService(db, creditLedger, logging.Component(logger, "shopping"))
	creditHandler := handlers.NewCreditHandler(ledgerStore, logging.Component(logger, "credits"))

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(logging.Component(logger, "http")))
	r.Use(middleware.Recoverer)
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		})

		// Public endpoints
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(cfg.JWT.SecretKey, redisClient, logging.Component(logger, "auth")))
			r.Use(mW.RateLimit(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, logging.Component(logger, "ratelimit")))

			r.Get("/auth/account", authService.GetUserAccount)

			r.Get("/credits/balance", creditHandler.Balance)
			r.Get("/credits/transactions", creditHandler.Transactions)

			r.Route("/bills", func(r chi.Router) {
				r.Post("/", billService.CreateBill)
				r.Get("/", billService.GetBillDashboard)
				r.Get("/export/{exportType}", billService.ExportBills)
				r.Get("/export/{exportType}/{billId}", billService.ExportBills)
				r.Post("/{billId}/status", billService.UpdateBillStatus)
				r.Delete("/{billId}", billService.DeleteBill)
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Post("/", budgetService.CreateBudget)
				r.Get("/", budgetService.GetBudgetDashboard)
				r.Get("/export/{exportType}", budgetService.ExportBudgets)
				r.Get("/export/{exportType}/{budgetId}", budgetService.ExportBudgets)
				r.Delete("/{budgetId}", budgetService.DeleteBudget)
			})

			r.Route("/shopping", func(r chi.Router) {
				r.Post("/lists", shoppingService.CreateShoppingList)
				r.Get("/lists", shoppingService.GetShoppingDashboard)
				r.Delete("/lists/{listId}", shoppingService.DeleteShoppingList)
				r.Post("/lists/{listId}/items", shoppingService.AddShoppingItem)
				r.Post("/lists/{listId}/items/{itemId}/toggle", shoppingService.ToggleShoppingItem)
				r.Delete("/lists/{listId}/items/{itemId}", shoppingService.DeleteShoppingItem)
				r.Get("/export/{exportType}", shoppingService.ExportShoppingLists)
				r.Get("/export/{exportType}/{listId}", shoppingService.ExportShoppingLists)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
