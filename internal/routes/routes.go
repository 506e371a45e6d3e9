package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxwallet/internal/config"
	"github.com/congo-pay/fxwallet/internal/fx"
	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/middleware"
	"github.com/congo-pay/fxwallet/internal/notification"
	"github.com/congo-pay/fxwallet/internal/reconcile"
	"github.com/congo-pay/fxwallet/internal/validation"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// AccessLog enables fiber's plain text access log.
	AccessLog bool
}

// Components are the domain services built by Setup that the process
// bootstrap still needs after routing is wired.
type Components struct {
	Store   ledger.Store
	Rates   *fx.RateTable
	Wallets *wallet.Service
	Auditor *reconcile.Auditor
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Components, error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return Components{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Components{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Services and handlers
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory ledger")
		store = ledger.NewInMemory()
	}

	var rateCache fx.Cache
	notifiers := notification.Multi{notification.NewLoggerNotifier(d.Logger)}
	if d.Cache != nil {
		rateCache = fx.NewRedisCache(d.Cache, d.Cfg.RateCacheTTL)
		notifiers = append(notifiers, notification.NewRedisNotifier(d.Cache, ""))
	}

	validate := validation.New(d.Cfg.SupportedCurrencies)
	rates := fx.NewRateTable(store, rateCache, d.Logger)
	walletSvc := wallet.NewService(store, rates, d.Logger, wallet.Options{
		HistoryDefaultLimit: d.Cfg.HistoryDefaultLimit,
		HistoryMaxLimit:     d.Cfg.HistoryMaxLimit,
	})
	engine := reconcile.NewEngine(store, notifiers, d.Logger)

	walletHandler := wallet.NewHandler(walletSvc, validate)
	reconcileHandler := reconcile.NewHandler(engine, validate)
	fxHandler := fx.NewHandler(rates, validate)

	// Index and health
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message": d.Cfg.AppName + " API",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"fund":         "POST /wallets/:userId/fund",
				"convert":      "POST /wallets/:userId/convert",
				"withdraw":     "POST /wallets/:userId/withdraw",
				"balances":     "GET /wallets/:userId/balances",
				"transactions": "GET /wallets/:userId/transactions",
				"reconcile":    "GET /wallets/:userId/reconcile",
				"fx_rates":     "GET /fx/rates",
				"update_rate":  "PUT /fx/rates",
				"fx_rate":      "GET /fx/rates/:from/:to",
			},
			"currencies": validate.Currencies(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	RegisterHealthRoutes(app, d)

	RegisterWalletRoutes(app, walletHandler, reconcileHandler,
		middleware.RateLimit(d.Cache, d.Cfg.RateLimitPerMinute, d.Logger))
	RegisterFXRoutes(app, fxHandler, middleware.AdminKey(d.Cfg.AdminKeyHash))

	return Components{
		Store:   store,
		Rates:   rates,
		Wallets: walletSvc,
		Auditor: reconcile.NewAuditor(engine, d.Cfg.ReconcileInterval, d.Logger),
	}, nil
}
