package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jiaming2012/options-board/src/marketcalendar"
)

// Config is the full service configuration. Every field has a working
// default; a YAML file and environment variables layer on top of it.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Moex       MoexConfig       `yaml:"moex"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Volatility VolatilityConfig `yaml:"volatility"`
	Pricing    PricingConfig    `yaml:"pricing"`
	ImpliedVol ImpliedVolConfig `yaml:"implied_vol"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type MoexConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ClickHouseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type CalendarConfig struct {
	TradingStart string   `yaml:"trading_start"`
	TradingEnd   string   `yaml:"trading_end"`
	ExpiryEnd    string   `yaml:"expiry_end"`
	Clearings    []Window `yaml:"clearings"`
	Holidays     []string `yaml:"holidays"`
}

type Window struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type VolatilityConfig struct {
	Window      int  `yaml:"window"`
	ClampWindow bool `yaml:"clamp_window"`
}

type PricingConfig struct {
	RiskFreeRate       float64 `yaml:"risk_free_rate"`
	TradingDaysPerYear int     `yaml:"trading_days_per_year"`
	MinutesPerDay      int     `yaml:"minutes_per_day"`
	ContractMultiplier float64 `yaml:"contract_multiplier"`
	Workers            int     `yaml:"workers"`
}

type ImpliedVolConfig struct {
	Tolerance     float64       `yaml:"tolerance"`
	MaxIterations int           `yaml:"max_iterations"`
	VolLower      float64       `yaml:"vol_lower"`
	VolUpper      float64       `yaml:"vol_upper"`
	MemoTTL       time.Duration `yaml:"memo_ttl"`
}

type SchedulerConfig struct {
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches"`
	LookbackWeeks        int           `yaml:"lookback_weeks"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	CycleInterval        time.Duration `yaml:"cycle_interval"`
	Commodities          []string      `yaml:"commodities"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Moex: MoexConfig{
			BaseURL: "https://iss.moex.com",
			Timeout: 30 * time.Second,
		},
		ClickHouse: ClickHouseConfig{
			DSN:          "clickhouse://localhost:9000/default",
			MaxOpenConns: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  5 * time.Minute,
		},
		Calendar: CalendarConfig{
			TradingStart: "09:00",
			TradingEnd:   "23:50",
			ExpiryEnd:    "18:50",
			Clearings: []Window{
				{Start: "14:00", End: "14:05"},
				{Start: "18:50", End: "19:05"},
			},
		},
		Volatility: VolatilityConfig{
			Window: 252 * 865 / 12,
		},
		Pricing: PricingConfig{
			RiskFreeRate:       0.19,
			TradingDaysPerYear: 252,
			MinutesPerDay:      865,
			ContractMultiplier: 1,
			Workers:            4,
		},
		ImpliedVol: ImpliedVolConfig{
			Tolerance:     1e-6,
			MaxIterations: 100,
			VolLower:      1e-6,
			VolUpper:      5.0,
			MemoTTL:       10 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentFetches: 90,
			LookbackWeeks:        26,
			FetchTimeout:         time.Minute,
			CycleInterval:        5 * time.Minute,
			Commodities:          []string{"BR", "NG", "SU", "W4"},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("Load: failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("Load: failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("Load: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MOEX_BASE_URL"); v != "" {
		cfg.Moex.BaseURL = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.ClickHouse.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("Validate: server.addr must not be empty")
	}
	if c.Volatility.Window < 2 {
		return fmt.Errorf("Validate: volatility.window must be at least 2, got %d", c.Volatility.Window)
	}
	if c.Scheduler.MaxConcurrentFetches < 1 {
		return fmt.Errorf("Validate: scheduler.max_concurrent_fetches must be positive, got %d", c.Scheduler.MaxConcurrentFetches)
	}
	if c.ImpliedVol.VolLower <= 0 || c.ImpliedVol.VolUpper <= c.ImpliedVol.VolLower {
		return fmt.Errorf("Validate: implied_vol bounds must satisfy 0 < lower < upper")
	}
	if c.Pricing.TradingDaysPerYear < 1 || c.Pricing.MinutesPerDay < 1 {
		return fmt.Errorf("Validate: pricing day conventions must be positive")
	}

	if _, err := c.BuildCalendar(); err != nil {
		return err
	}

	return nil
}

// BuildCalendar materializes the trading calendar from the session strings.
func (c Config) BuildCalendar() (*marketcalendar.Calendar, error) {
	start, err := marketcalendar.ParseTimeOfDay(c.Calendar.TradingStart)
	if err != nil {
		return nil, fmt.Errorf("BuildCalendar: invalid trading_start: %w", err)
	}
	end, err := marketcalendar.ParseTimeOfDay(c.Calendar.TradingEnd)
	if err != nil {
		return nil, fmt.Errorf("BuildCalendar: invalid trading_end: %w", err)
	}
	expiryEnd, err := marketcalendar.ParseTimeOfDay(c.Calendar.ExpiryEnd)
	if err != nil {
		return nil, fmt.Errorf("BuildCalendar: invalid expiry_end: %w", err)
	}

	clearings := make([]marketcalendar.ClearingWindow, 0, len(c.Calendar.Clearings))
	for _, w := range c.Calendar.Clearings {
		ws, err := marketcalendar.ParseTimeOfDay(w.Start)
		if err != nil {
			return nil, fmt.Errorf("BuildCalendar: invalid clearing start %q: %w", w.Start, err)
		}
		we, err := marketcalendar.ParseTimeOfDay(w.End)
		if err != nil {
			return nil, fmt.Errorf("BuildCalendar: invalid clearing end %q: %w", w.End, err)
		}
		clearings = append(clearings, marketcalendar.ClearingWindow{Start: ws, End: we})
	}

	holidays := make([]time.Time, 0, len(c.Calendar.Holidays))
	for _, h := range c.Calendar.Holidays {
		day, err := time.Parse("2006-01-02", h)
		if err != nil {
			return nil, fmt.Errorf("BuildCalendar: invalid holiday %q: %w", h, err)
		}
		holidays = append(holidays, day)
	}

	return marketcalendar.New(start, end, expiryEnd, clearings, holidays), nil
}

// Lookback converts the configured lookback weeks to a duration.
func (c SchedulerConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackWeeks) * 7 * 24 * time.Hour
}
