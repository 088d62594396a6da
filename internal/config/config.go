package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AntiFraudConfig stores parameters for the operator risk engine.
type AntiFraudConfig struct {
	// SpentThreshold flags a single purchase whose spend exceeds it.
	SpentThreshold         float64 `yaml:"spent_threshold"`
	FrequencyThreshold     int     `yaml:"frequency_threshold"`
	FrequencyWindowSeconds int     `yaml:"frequency_window_seconds"`
	ScorerURL              string  `yaml:"scorer_url"`
}

// RateLimitConfig bounds requests per caller. Algorithm is "fixed" or "sliding".
type RateLimitConfig struct {
	Requests      int    `yaml:"requests"`
	WindowSeconds int    `yaml:"window_seconds"`
	Algorithm     string `yaml:"algorithm"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// ClickHouseConfig locates the store for operator risk reports.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	App struct {
		Env          string `yaml:"env"`
		FixturesPath string `yaml:"fixtures_path"`
	} `yaml:"app"`
	Server struct {
		Port        string `yaml:"port"`
		PortAlerter string `yaml:"port_alerter"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Postgres struct {
		DSN     string `yaml:"dsn"`
		Migrate bool   `yaml:"migrate"`
	} `yaml:"postgres"`
	Kafka struct {
		Enabled          bool   `yaml:"enabled"`
		BootstrapServers string `yaml:"bootstrap_servers"`
		Topic            string `yaml:"topic"`
		DLQTopic         string `yaml:"dlq_topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Jaeger    struct {
		Port     string `yaml:"port"`
		PortGrpc string `yaml:"port_grpc"`
	} `yaml:"jaeger"`
	OIDC struct {
		URL      string `yaml:"url"`
		ClientID string `yaml:"client_id"`
	} `yaml:"oidc"`
	OPA struct {
		URL string `yaml:"url"`
	} `yaml:"opa"`
	JWT struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"jwt"`
	AntiFraud  AntiFraudConfig  `yaml:"anti_fraud"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

func Load(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// First, we substitute environment variables into the raw YAML file.
	expandedFile := os.ExpandEnv(string(file))

	err = yaml.Unmarshal([]byte(expandedFile), config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.PortAlerter == "" {
		c.Server.PortAlerter = "8081"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger.transactions"
	}
	if c.Kafka.DLQTopic == "" {
		c.Kafka.DLQTopic = c.Kafka.Topic + ".dlq"
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 60
	}
	if c.RateLimit.Algorithm == "" {
		c.RateLimit.Algorithm = "fixed"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "default"
	}
}

// Validate reports every setting the selected drivers need but do not have.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres storage driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Kafka.Enabled && c.Kafka.BootstrapServers == "" {
		errs = append(errs, errors.New("kafka.bootstrap_servers is required when kafka is enabled"))
	}
	if c.OIDC.URL == "" && c.JWT.JWTSecret == "" {
		errs = append(errs, errors.New("either oidc.url or jwt.jwt_secret must be set"))
	}
	if c.RateLimit.Algorithm != "fixed" && c.RateLimit.Algorithm != "sliding" {
		errs = append(errs, fmt.Errorf("rate_limit.algorithm %q must be fixed or sliding", c.RateLimit.Algorithm))
	}
	if c.RateLimit.Requests < 0 || c.RateLimit.WindowSeconds < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}
