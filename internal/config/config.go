package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Logging   LoggingConfig   `yaml:"logging"`
	Account   AccountConfig   `yaml:"account"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Execution ExecutionConfig `yaml:"execution"`
	Worker    WorkerConfig    `yaml:"worker"`
	Risk      RiskConfig      `yaml:"risk"`
	Margin    MarginConfig    `yaml:"margin"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

type LoggingConfig struct {
	Dir string `yaml:"dir"`
}

type AccountConfig struct {
	OpeningBalance float64 `yaml:"opening_balance"`
}

// PricingConfig tunes the price resolver tier chain and the market-data cache
type PricingConfig struct {
	QuoteBaseURL        string  `yaml:"quote_base_url"`
	QuoteTimeoutMS      int     `yaml:"quote_timeout_ms"`
	CacheTTLSec         int     `yaml:"cache_ttl_sec"`
	StalenessCeilingSec int     `yaml:"staleness_ceiling_sec"`
	EstimateOffset      float64 `yaml:"estimate_offset"`
	EstimateMaxAgeHours int     `yaml:"estimate_max_age_hours"`
	EstimationEnabled   bool    `yaml:"estimation_enabled"`
}

// ExecutionConfig tunes the simulated exchange latency and the fill worker
type ExecutionConfig struct {
	FillDelayMS        int `yaml:"fill_delay_ms"`
	FillPollIntervalMS int `yaml:"fill_poll_interval_ms"`
	FillBatchSize      int `yaml:"fill_batch_size"`
}

// WorkerConfig tunes the position P&L worker
type WorkerConfig struct {
	IntervalMS     int     `yaml:"interval_ms"`
	BatchSize      int     `yaml:"batch_size"`
	WriteThreshold float64 `yaml:"write_threshold"`
	ChunkSize      int     `yaml:"chunk_size"`
	MaxAutoClose   int     `yaml:"max_auto_close"`
}

type RiskConfig struct {
	WarnUtilization      float64 `yaml:"warn_utilization"`
	AutoCloseUtilization float64 `yaml:"auto_close_utilization"`
}

// MarginRule configures leverage and charges for one segment or segment:product pair
type MarginRule struct {
	Leverage      float64 `yaml:"leverage"`
	FlatBrokerage float64 `yaml:"flat_brokerage"`
	BrokerageRate float64 `yaml:"brokerage_rate"`
	BrokerageCap  float64 `yaml:"brokerage_cap"`
	FixedCharges  float64 `yaml:"fixed_charges"`
}

type MarginConfig struct {
	Rules map[string]MarginRule `yaml:"rules"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Override with environment variables if present
	cfg.loadFromEnv()
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		c.Server.Mode = v
	}

	// Database
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	// JWT
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("JWT_EXPIRE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.JWT.ExpireHours = hours
		}
	}

	// Quote vendor
	if v := os.Getenv("QUOTE_BASE_URL"); v != "" {
		c.Pricing.QuoteBaseURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Account.OpeningBalance <= 0 {
		c.Account.OpeningBalance = 100000
	}
	if c.Pricing.QuoteTimeoutMS <= 0 {
		c.Pricing.QuoteTimeoutMS = 2000
	}
	if c.Pricing.CacheTTLSec <= 0 {
		c.Pricing.CacheTTLSec = 5
	}
	if c.Pricing.StalenessCeilingSec <= 0 {
		c.Pricing.StalenessCeilingSec = 60
	}
	if c.Pricing.EstimateOffset == 0 {
		c.Pricing.EstimateOffset = 0.02
	}
	if c.Pricing.EstimateMaxAgeHours <= 0 {
		c.Pricing.EstimateMaxAgeHours = 48
	}
	if c.Execution.FillDelayMS <= 0 {
		c.Execution.FillDelayMS = 2000
	}
	if c.Execution.FillPollIntervalMS <= 0 {
		c.Execution.FillPollIntervalMS = 500
	}
	if c.Execution.FillBatchSize <= 0 {
		c.Execution.FillBatchSize = 100
	}
	if c.Worker.IntervalMS <= 0 {
		c.Worker.IntervalMS = 3000
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 500
	}
	if c.Worker.WriteThreshold <= 0 {
		c.Worker.WriteThreshold = 0.5
	}
	if c.Worker.ChunkSize <= 0 {
		c.Worker.ChunkSize = 50
	}
	if c.Worker.MaxAutoClose <= 0 {
		c.Worker.MaxAutoClose = 10
	}
	if c.Risk.WarnUtilization <= 0 {
		c.Risk.WarnUtilization = 0.7
	}
	if c.Risk.AutoCloseUtilization <= 0 {
		c.Risk.AutoCloseUtilization = 0.9
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
