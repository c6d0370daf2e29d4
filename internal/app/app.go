// Package app assembles the engine from configuration: store selection,
// signal producers, the trade service, scheduled sweeps and the HTTP router.
// Both the server and the operator CLI build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/broadcast"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/httpx"
	"github.com/tidewater/ocean-engine/internal/income"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/mission"
	"github.com/tidewater/ocean-engine/internal/news"
	"github.com/tidewater/ocean-engine/internal/pricing"
	"github.com/tidewater/ocean-engine/internal/scheduler"
	"github.com/tidewater/ocean-engine/internal/seed"
	"github.com/tidewater/ocean-engine/internal/store"
	"github.com/tidewater/ocean-engine/internal/telemetry"
	"github.com/tidewater/ocean-engine/internal/trade"
)

// Scheduled job names.
const (
	JobCollection = "collection"
	JobNews       = "news"
	JobTelemetry  = "telemetry"
	JobIncome     = "income"
	JobAuctions   = "auctions"
)

type App struct {
	Config    config.Config
	Store     store.Store
	Hub       *broadcast.Hub
	Pricing   *pricing.Engine
	Trade     *trade.Service
	Collector *mission.Collector
	Missions  *mission.Completer
	Income    *income.Accruer
	Scheduler *scheduler.Scheduler

	log     *slog.Logger
	closers []func()
}

// New wires every component. Call Close when done.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, log: logger}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	clk := clock.Real()
	if cfg.SeedOnStart || cfg.DatabaseURL == "" {
		if _, err := seed.Regions(ctx, st, clk.Now(), logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed regions: %w", err)
		}
		if _, err := seed.Missions(ctx, st, clk.Now(), logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed missions: %w", err)
		}
	}

	classifier, oracle := aiProviders(cfg.AI, logger)

	a.Hub = broadcast.NewHub()
	a.Pricing = pricing.NewEngine(st, cfg.Pricing, clk, a.Hub, logger)
	a.Trade = trade.NewService(st, cfg, clk, a.Hub, logger)
	a.Collector = mission.NewCollector(st, oracle, cfg.Mission, clk, logger)
	a.Missions = mission.NewCompleter(st, oracle, clk, logger)
	a.Income = income.NewAccruer(st, clk, logger)
	a.Scheduler = scheduler.New(cfg.Schedule.JobTimeout, logger)

	jobs := []scheduler.Job{
		{Name: JobCollection, Every: cfg.Schedule.CollectionEvery, Run: a.Pricing.RunCollectionSweep},
		{Name: JobIncome, Every: cfg.Schedule.IncomeEvery, Run: a.Income.Sweep},
		{Name: JobAuctions, Every: cfg.Schedule.AuctionEvery, Run: a.Trade.SweepExpired},
	}

	if cfg.News.URL != "" {
		ingester := news.NewIngester(st, news.NewHTTPFeed(cfg.News, cfg.AI.Timeout), classifier, a.Pricing, clk, logger)
		jobs = append(jobs, scheduler.Job{Name: JobNews, Every: cfg.Schedule.NewsEvery, Run: func(ctx context.Context) error {
			_, err := ingester.Run(ctx)
			return err
		}})
	} else {
		logger.Warn("NEWS_API_URL not set, news sentiment sweep disabled")
	}

	if cfg.Telemetry.URL != "" {
		ingester := telemetry.NewIngester(st, telemetry.NewHTTPFeed(cfg.Telemetry, cfg.AI.Timeout), a.Pricing, cfg.Telemetry, clk, logger)
		jobs = append(jobs, scheduler.Job{Name: JobTelemetry, Every: cfg.Schedule.TelemetryEvery, Run: ingester.Run})
	} else {
		logger.Warn("OCEAN_DATA_API_URL not set, telemetry sweep disabled")
	}

	for _, job := range jobs {
		if err := a.Scheduler.Add(job); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	cfg := a.Config
	if cfg.DatabaseURL == "" {
		a.log.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), nil
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	a.log.Info("connected to PostgreSQL")

	if cfg.MigrateOnStart {
		if err := store.Migrate(pool); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.log.Info("migrations applied")
	}

	var st store.Store = store.NewPostgresStore(pool)

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.closers = append(a.closers, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		a.log.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}
	return st, nil
}

func aiProviders(cfg config.AIConfig, logger *slog.Logger) (ai.Classifier, ai.Oracle) {
	if cfg.Provider == "openai" {
		client := ai.NewOpenAIClient(cfg)
		logger.Info("using OpenAI-compatible classifier and photo oracle", "model", cfg.Model)
		return client, client
	}
	logger.Warn("no vision model configured, using keyword classifier and accepting every photo")
	return ai.KeywordClassifier{}, ai.StaticOracle(true)
}

// Close releases the store's connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Router builds the HTTP surface.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ocean-engine"})
	})
	r.Handle("/metrics", metrics.Handler())

	limiter := httpx.NewRateLimiter(a.Config.HTTP.RatePerSecond, a.Config.HTTP.Burst)
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for price and auction events.
		r.Get("/ws", a.Hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			a.Trade.Routes(r)
			a.Collector.Routes(r)
			a.Missions.Routes(r)
		})
	})
	return r
}
