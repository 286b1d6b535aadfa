package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"AlphaPull/pkg/util"
)

// Instrument is one configured (symbol, source) ingestion pair.
type Instrument struct {
	Symbol string `yaml:"symbol"`
	Class  string `yaml:"class"`
	Venue  string `yaml:"venue"`
	Source string `yaml:"source"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Backend struct {
		Type string `yaml:"type"` // memory | clickhouse
	} `yaml:"backend"`
	Instruments []Instrument `yaml:"instruments"`
	Ingestion   struct {
		Workers          int           `yaml:"workers"`
		PairTimeout      time.Duration `yaml:"pair_timeout"`
		LeaseTTL         time.Duration `yaml:"lease_ttl"`
		ScheduleInterval time.Duration `yaml:"schedule_interval"` // 0 disables the scheduler
		Retry            struct {
			MaxAttempts int           `yaml:"max_attempts"`
			BaseDelay   time.Duration `yaml:"base_delay"`
			MaxDelay    time.Duration `yaml:"max_delay"`
			Jitter      float64       `yaml:"jitter"`
		} `yaml:"retry"`
	} `yaml:"ingestion"`
	Features struct {
		Version  string        `yaml:"version"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"features"`
	Signals struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"signals"`
	Binance struct {
		BaseURL       string `yaml:"base_url"`
		Interval      string `yaml:"interval"`
		Limit         int    `yaml:"limit"`
		BackfillStart string `yaml:"backfill_start"` // YYYY-MM-DD
		Stream        struct {
			Enabled        bool          `yaml:"enabled"`
			URL            string        `yaml:"url"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay"`
			PingInterval   time.Duration `yaml:"ping_interval"`
		} `yaml:"stream"`
	} `yaml:"binance"`
	AlphaVantage struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"alphavantage"`
	Model struct {
		Type       string  `yaml:"type"` // stub | http
		URL        string  `yaml:"url"`
		Version    string  `yaml:"version"`
		StubReturn float64 `yaml:"stub_return"`
	} `yaml:"model"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("MODEL_URL"); v != "" {
		c.Model.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Redis.DB = util.ParseIntDefault(os.Getenv("REDIS_DB"), c.Redis.DB)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}
	if c.Backend.Type != "memory" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'memory' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments cannot be empty")
	}
	needAlphaVantage := false
	for i, inst := range c.Instruments {
		if inst.Symbol == "" {
			return fmt.Errorf("instruments[%d].symbol is required", i)
		}
		if inst.Source == "" {
			return fmt.Errorf("instruments[%d].source is required", i)
		}
		if inst.Source == "alphavantage" {
			needAlphaVantage = true
		}
	}
	if needAlphaVantage && c.AlphaVantage.APIKey == "" {
		return fmt.Errorf("alphavantage.api_key is required when an instrument uses the alphavantage source")
	}
	switch c.Model.Type {
	case "", "stub":
	case "http":
		if c.Model.URL == "" {
			return fmt.Errorf("model.url is required when model.type is 'http'")
		}
	default:
		return fmt.Errorf("model.type must be 'stub' or 'http', got '%s'", c.Model.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
