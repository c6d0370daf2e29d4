// Package config builds the immutable engine configuration from the
// environment (and an optional .env file). Components receive the section
// they need at construction time; nothing reads the environment afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	RedisURL       string
	CacheTTL       time.Duration
	MigrateOnStart bool
	SeedOnStart    bool
	InitialCredits decimal.Decimal

	Pricing      PricingConfig
	Telemetry    TelemetryConfig
	News         NewsConfig
	Auction      AuctionConfig
	Construction ConstructionConfig
	Mission      MissionConfig
	Schedule     ScheduleConfig
	AI           AIConfig
	HTTP         HTTPConfig
}

// CollectionStep pays Delta when a region's collection counter is strictly
// above Above. Steps are evaluated in order, first match wins.
type CollectionStep struct {
	Above int64
	Delta decimal.Decimal
}

type PricingConfig struct {
	Floor              decimal.Decimal
	HistoryRetention   int
	SentimentMagnitude decimal.Decimal
	CollectionSteps    []CollectionStep
	// CollectionIdleDelta applies when nothing was ever collected.
	CollectionIdleDelta decimal.Decimal
}

// Distance modes for station matching.
const (
	DistanceFlat      = "flat"
	DistanceHaversine = "haversine"
)

type TelemetryConfig struct {
	URL          string
	APIKey       string
	PerPage      int
	MaxPages     int
	RadiusKm     float64
	KmPerDegree  float64
	DistanceMode string

	ResearchStationDelta decimal.Decimal
	BuoyDelta            decimal.Decimal
	TideGaugeDelta       decimal.Decimal
	OtherStationDelta    decimal.Decimal
}

type NewsConfig struct {
	URL      string
	APIKey   string
	Query    string
	Language string
	PageSize int
}

type AuctionConfig struct {
	Duration         time.Duration
	StartingFraction decimal.Decimal
}

type ConstructionConfig struct {
	StoreCost    decimal.Decimal
	StoreRate    decimal.Decimal
	BuildingCost decimal.Decimal
	BuildingRate decimal.Decimal
}

type MissionConfig struct {
	CollectionReward decimal.Decimal
	// LocateRadiusDeg is the half-width, in degrees, of the box around a
	// pickup's coordinates in which a region must lie to receive it.
	LocateRadiusDeg float64
}

type ScheduleConfig struct {
	CollectionEvery time.Duration
	NewsEvery       time.Duration
	TelemetryEvery  time.Duration
	IncomeEvery     time.Duration
	AuctionEvery    time.Duration
	JobTimeout      time.Duration
}

type AIConfig struct {
	Provider      string // "openai" or "keyword"
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

type HTTPConfig struct {
	RatePerSecond float64
	Burst         int
}

// Default returns the configuration used when no environment overrides are
// present.
func Default() Config {
	return Config{
		Addr:           ":8080",
		CacheTTL:       30 * time.Second,
		InitialCredits: decimal.NewFromInt(1_000_000),
		Pricing: PricingConfig{
			Floor:              decimal.NewFromInt(100),
			HistoryRetention:   10,
			SentimentMagnitude: decimal.NewFromInt(150),
			CollectionSteps: []CollectionStep{
				{Above: 100, Delta: decimal.NewFromInt(500)},
				{Above: 50, Delta: decimal.NewFromInt(300)},
				{Above: 20, Delta: decimal.NewFromInt(100)},
				{Above: 0, Delta: decimal.Zero},
			},
			CollectionIdleDelta: decimal.NewFromInt(-200),
		},
		Telemetry: TelemetryConfig{
			PerPage:              100,
			MaxPages:             20,
			RadiusKm:             200,
			KmPerDegree:          111,
			DistanceMode:         DistanceFlat,
			ResearchStationDelta: decimal.NewFromInt(200),
			BuoyDelta:            decimal.NewFromInt(150),
			TideGaugeDelta:       decimal.NewFromInt(100),
			OtherStationDelta:    decimal.NewFromInt(50),
		},
		News: NewsConfig{
			Query:    "해양",
			Language: "ko",
			PageSize: 50,
		},
		Auction: AuctionConfig{
			Duration:         10 * time.Minute,
			StartingFraction: decimal.NewFromFloat(0.8),
		},
		Construction: ConstructionConfig{
			StoreCost:    decimal.NewFromInt(100_000),
			StoreRate:    decimal.NewFromInt(400),
			BuildingCost: decimal.NewFromInt(500_000),
			BuildingRate: decimal.NewFromInt(2_000),
		},
		Mission: MissionConfig{
			CollectionReward: decimal.NewFromInt(100),
			LocateRadiusDeg:  0.1,
		},
		Schedule: ScheduleConfig{
			CollectionEvery: 10 * time.Minute,
			NewsEvery:       time.Hour,
			TelemetryEvery:  30 * time.Minute,
			IncomeEvery:     10 * time.Second,
			AuctionEvery:    time.Minute,
			JobTimeout:      2 * time.Minute,
		},
		AI: AIConfig{
			Provider:      "keyword",
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			Timeout:       10 * time.Second,
			RatePerSecond: 2,
			Burst:         4,
		},
		HTTP: HTTPConfig{
			RatePerSecond: 20,
			Burst:         40,
		},
	}
}

// Load reads .env (if present) and the process environment on top of
// Default.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	} else {
		cfg.Addr = envDefault("OCEAN_ADDR", cfg.Addr)
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.CacheTTL = envDurationDefault("OCEAN_CACHE_TTL", cfg.CacheTTL)
	cfg.MigrateOnStart = envBoolDefault("OCEAN_MIGRATE_ON_START", cfg.MigrateOnStart)
	cfg.SeedOnStart = envBoolDefault("OCEAN_SEED_ON_START", cfg.SeedOnStart)
	cfg.InitialCredits = envDecimalDefault("OCEAN_INITIAL_CREDITS", cfg.InitialCredits)

	p := &cfg.Pricing
	p.Floor = envDecimalDefault("OCEAN_PRICE_FLOOR", p.Floor)
	p.HistoryRetention = envIntDefault("OCEAN_PRICE_HISTORY_RETENTION", p.HistoryRetention)
	p.SentimentMagnitude = envDecimalDefault("OCEAN_SENTIMENT_DELTA", p.SentimentMagnitude)
	p.CollectionIdleDelta = envDecimalDefault("OCEAN_COLLECTION_IDLE_DELTA", p.CollectionIdleDelta)

	tm := &cfg.Telemetry
	tm.URL = strings.TrimSpace(os.Getenv("OCEAN_DATA_API_URL"))
	tm.APIKey = strings.TrimSpace(os.Getenv("OCEAN_DATA_API_KEY"))
	tm.PerPage = envIntDefault("OCEAN_DATA_PER_PAGE", tm.PerPage)
	tm.RadiusKm = envFloatDefault("OCEAN_TELEMETRY_RADIUS_KM", tm.RadiusKm)
	tm.DistanceMode = strings.ToLower(envDefault("OCEAN_TELEMETRY_DISTANCE", tm.DistanceMode))

	n := &cfg.News
	n.URL = strings.TrimSpace(os.Getenv("NEWS_API_URL"))
	n.APIKey = strings.TrimSpace(os.Getenv("NEWS_API_KEY"))
	n.Query = envDefault("NEWS_QUERY", n.Query)
	n.PageSize = envIntDefault("NEWS_PAGE_SIZE", n.PageSize)

	cfg.Auction.Duration = envDurationDefault("OCEAN_AUCTION_DURATION", cfg.Auction.Duration)
	cfg.Auction.StartingFraction = envDecimalDefault("OCEAN_AUCTION_STARTING_FRACTION", cfg.Auction.StartingFraction)

	c := &cfg.Construction
	c.StoreCost = envDecimalDefault("STORE_COST", c.StoreCost)
	c.StoreRate = envDecimalDefault("STORE_INCOME_RATE", c.StoreRate)
	c.BuildingCost = envDecimalDefault("BUILDING_COST", c.BuildingCost)
	c.BuildingRate = envDecimalDefault("BUILDING_INCOME_RATE", c.BuildingRate)

	cfg.Mission.CollectionReward = envDecimalDefault("GARBAGE_BASE_REWARD", cfg.Mission.CollectionReward)
	cfg.Mission.LocateRadiusDeg = envFloatDefault("MISSION_LOCATE_RADIUS_DEG", cfg.Mission.LocateRadiusDeg)

	s := &cfg.Schedule
	s.CollectionEvery = envDurationDefault("OCEAN_PRICE_UPDATE_EVERY", s.CollectionEvery)
	s.NewsEvery = envDurationDefault("OCEAN_NEWS_FETCH_EVERY", s.NewsEvery)
	s.TelemetryEvery = envDurationDefault("OCEAN_TELEMETRY_FETCH_EVERY", s.TelemetryEvery)
	s.IncomeEvery = envDurationDefault("OCEAN_INCOME_EVERY", s.IncomeEvery)
	s.AuctionEvery = envDurationDefault("OCEAN_AUCTION_SWEEP_EVERY", s.AuctionEvery)
	s.JobTimeout = envDurationDefault("OCEAN_JOB_TIMEOUT", s.JobTimeout)

	a := &cfg.AI
	a.Provider = strings.ToLower(envDefault("AI_MODEL_PROVIDER", a.Provider))
	a.BaseURL = strings.TrimRight(envDefault("OPENAI_BASE_URL", a.BaseURL), "/")
	a.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	a.Model = envDefault("OPENAI_MODEL", a.Model)
	a.Timeout = envDurationDefault("AI_TIMEOUT", a.Timeout)
	a.RatePerSecond = envFloatDefault("AI_RATE_PER_SECOND", a.RatePerSecond)

	cfg.HTTP.RatePerSecond = envFloatDefault("OCEAN_HTTP_RATE_PER_SECOND", cfg.HTTP.RatePerSecond)
	cfg.HTTP.Burst = envIntDefault("OCEAN_HTTP_BURST", cfg.HTTP.Burst)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot honor.
func (c Config) Validate() error {
	if !c.Pricing.Floor.IsPositive() {
		return fmt.Errorf("price floor must be positive, got %s", c.Pricing.Floor)
	}
	if c.Pricing.HistoryRetention < 1 {
		return fmt.Errorf("price history retention must be >= 1, got %d", c.Pricing.HistoryRetention)
	}
	if c.Auction.Duration <= 0 {
		return fmt.Errorf("auction duration must be positive, got %s", c.Auction.Duration)
	}
	if !c.Auction.StartingFraction.IsPositive() || c.Auction.StartingFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("auction starting fraction must be in (0, 1], got %s", c.Auction.StartingFraction)
	}
	if c.Mission.LocateRadiusDeg <= 0 {
		return fmt.Errorf("mission locate radius must be positive, got %g", c.Mission.LocateRadiusDeg)
	}
	switch c.Telemetry.DistanceMode {
	case DistanceFlat, DistanceHaversine:
	default:
		return fmt.Errorf("unknown telemetry distance mode %q", c.Telemetry.DistanceMode)
	}
	if c.AI.Provider == "openai" && c.AI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_MODEL_PROVIDER=openai")
	}
	return nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDecimalDefault(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}
